// Package events streams finalized transaction outcomes to Kafka so
// downstream consumers (dashboards, analytics) can follow terminal decisions
// without polling. Publishing is strictly best-effort: the consensus path
// never blocks on, or fails because of, the event stream.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/AdotAyush/cedefi-banking/internal/models"
)

const queueSize = 256

// Outcome is the published payload for one finalized transaction.
type Outcome struct {
	TransactionID string        `json:"transactionId"`
	Sender        string        `json:"sender"`
	Recipient     string        `json:"recipient"`
	Amount        float64       `json:"amount"`
	Status        models.Status `json:"status"`
	FinalizedAt   time.Time     `json:"finalizedAt"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher drains a bounded queue into a Kafka topic. A nil Publisher is a
// valid no-op, used when no brokers are configured.
type Publisher struct {
	log    *slog.Logger
	writer messageWriter
	queue  chan Outcome
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New builds a publisher for the given brokers and topic and starts its drain
// loop. Returns nil when brokers is empty.
func New(brokers []string, topic string, log *slog.Logger) *Publisher {
	if len(brokers) == 0 {
		return nil
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	p := newWithWriter(w, log)
	return p
}

func newWithWriter(w messageWriter, log *slog.Logger) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		log:    log,
		writer: w,
		queue:  make(chan Outcome, queueSize),
		cancel: cancel,
	}
	p.wg.Add(1)
	go p.run(ctx)
	return p
}

// Publish enqueues an outcome. When the queue is full the outcome is dropped
// with a warning rather than blocking the committer.
func (p *Publisher) Publish(o Outcome) {
	if p == nil {
		return
	}
	select {
	case p.queue <- o:
	default:
		p.log.Warn("outcome queue full, dropping event", "transactionId", o.TransactionID)
	}
}

func (p *Publisher) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-p.queue:
			value, err := json.Marshal(o)
			if err != nil {
				p.log.Error("marshal outcome", "err", err)
				continue
			}
			msg := kafka.Message{Key: []byte(o.TransactionID), Value: value}
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = p.writer.WriteMessages(writeCtx, msg)
			cancel()
			if err != nil {
				p.log.Warn("publish outcome failed", "transactionId", o.TransactionID, "err", err)
				continue
			}
			p.log.Info("outcome published", "transactionId", o.TransactionID, "status", o.Status)
		}
	}
}

// Close stops the drain loop and closes the writer.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
		if err := p.writer.Close(); err != nil {
			p.log.Warn("close kafka writer", "err", err)
		}
	})
}
