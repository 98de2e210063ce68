package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AdotAyush/cedefi-banking/internal/models"
)

const connectTimeout = 10 * time.Second

// Mongo bundles the two collection-backed stores over one client.
type Mongo struct {
	client *mongo.Client
	txs    *mongo.Collection
	nodes  *mongo.Collection
}

// DialMongo connects to uri and prepares the collections, including the
// unique indexes that back the one-vote-per-voter and one-node-per-url
// invariants at the storage layer.
func DialMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(database)
	m := &Mongo{
		client: client,
		txs:    db.Collection("transactions"),
		nodes:  db.Collection("nodes"),
	}

	idxTx := mongo.IndexModel{
		Keys:    bson.D{{Key: "transactionId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := m.txs.Indexes().CreateOne(ctx, idxTx); err != nil {
		return nil, fmt.Errorf("mongo index transactions: %w", err)
	}
	idxNode := mongo.IndexModel{
		Keys:    bson.D{{Key: "publicKey", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := m.nodes.Indexes().CreateOne(ctx, idxNode); err != nil {
		return nil, fmt.Errorf("mongo index nodes: %w", err)
	}
	return m, nil
}

// Close disconnects the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Transactions returns the transaction store view.
func (m *Mongo) Transactions() TransactionStore { return &mongoTxStore{c: m.txs} }

// Nodes returns the node store view.
func (m *Mongo) Nodes() NodeStore { return &mongoNodeStore{c: m.nodes} }

type mongoTxStore struct {
	c *mongo.Collection
}

func (s *mongoTxStore) Insert(ctx context.Context, tx *models.Transaction) error {
	if _, err := s.c.InsertOne(ctx, tx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrExists
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *mongoTxStore) Get(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.c.FindOne(ctx, bson.M{"transactionId": id}).Decode(&tx)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return &tx, nil
}

func (s *mongoTxStore) Update(ctx context.Context, tx *models.Transaction) error {
	res, err := s.c.ReplaceOne(ctx, bson.M{"transactionId": tx.TransactionID}, tx)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoTxStore) List(ctx context.Context) ([]*models.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer cur.Close(ctx)
	var out []*models.Transaction
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	return out, nil
}

type mongoNodeStore struct {
	c *mongo.Collection
}

func (s *mongoNodeStore) Insert(ctx context.Context, n *models.Node) error {
	if _, err := s.c.InsertOne(ctx, n); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrExists
		}
		return fmt.Errorf("insert node: %w", err)
	}
	return nil
}

func (s *mongoNodeStore) GetByPublicKey(ctx context.Context, publicKey string) (*models.Node, error) {
	return s.findOne(ctx, bson.M{"publicKey": publicKey})
}

func (s *mongoNodeStore) GetByURL(ctx context.Context, url string) (*models.Node, error) {
	return s.findOne(ctx, bson.M{"url": url})
}

func (s *mongoNodeStore) findOne(ctx context.Context, filter bson.M) (*models.Node, error) {
	var n models.Node
	err := s.c.FindOne(ctx, filter).Decode(&n)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find node: %w", err)
	}
	return &n, nil
}

func (s *mongoNodeStore) Update(ctx context.Context, n *models.Node) error {
	res, err := s.c.ReplaceOne(ctx, bson.M{"publicKey": n.PublicKey}, n)
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoNodeStore) List(ctx context.Context) ([]*models.Node, error) {
	cur, err := s.c.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer cur.Close(ctx)
	var out []*models.Node
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode nodes: %w", err)
	}
	return out, nil
}

func (s *mongoNodeStore) CountActive(ctx context.Context) (int, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{"isActive": true})
	if err != nil {
		return 0, fmt.Errorf("count active nodes: %w", err)
	}
	return int(n), nil
}
