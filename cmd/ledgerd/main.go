// ledgerd is the main-system service: it accepts transactions, collects node
// votes and bank approvals, evaluates consensus and commits terminal
// outcomes to the immutable ledger.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/AdotAyush/cedefi-banking/internal/api"
	"github.com/AdotAyush/cedefi-banking/internal/broadcast"
	"github.com/AdotAyush/cedefi-banking/internal/chain"
	"github.com/AdotAyush/cedefi-banking/internal/config"
	"github.com/AdotAyush/cedefi-banking/internal/events"
	"github.com/AdotAyush/cedefi-banking/internal/logging"
	"github.com/AdotAyush/cedefi-banking/internal/metrics"
	"github.com/AdotAyush/cedefi-banking/internal/orchestrator"
	"github.com/AdotAyush/cedefi-banking/internal/store"
)

func main() {
	cfg := config.LoadLedger()

	app := &cli.App{
		Name:  "ledgerd",
		Usage: "Run the transaction consensus service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "listen",
				Usage:       "Listen address",
				Value:       cfg.ListenAddress,
				Destination: &cfg.ListenAddress,
			},
			&cli.StringFlag{
				Name:        "mongo-uri",
				Usage:       "MongoDB connection string (empty runs the in-memory store)",
				Value:       cfg.MongoURI,
				Destination: &cfg.MongoURI,
			},
			&cli.StringFlag{
				Name:        "mongo-database",
				Usage:       "MongoDB database name",
				Value:       cfg.MongoDatabase,
				Destination: &cfg.MongoDatabase,
			},
			&cli.StringFlag{
				Name:        "chain-url",
				Usage:       "Base URL of the immutable ledger service",
				Value:       cfg.ChainBaseURL,
				Destination: &cfg.ChainBaseURL,
			},
			&cli.StringFlag{
				Name:  "bank-endpoints",
				Usage: "Comma-separated bank service base URLs",
				Value: strings.Join(cfg.BankEndpoints, ","),
			},
			&cli.StringFlag{
				Name:  "kafka-brokers",
				Usage: "Comma-separated Kafka brokers for outcome events (empty disables publishing)",
				Value: strings.Join(cfg.KafkaBrokers, ","),
			},
			&cli.StringFlag{
				Name:        "kafka-topic",
				Usage:       "Kafka topic for outcome events",
				Value:       cfg.KafkaTopic,
				Destination: &cfg.KafkaTopic,
			},
			&cli.StringFlag{
				Name:        "redis-addr",
				Usage:       "Redis address for the idempotency cache (empty disables it)",
				Value:       cfg.RedisAddr,
				Destination: &cfg.RedisAddr,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Log level (DEBUG, INFO, WARN, ERROR)",
				Value:       cfg.LogLevel,
				Destination: &cfg.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "Optional log file mirrored alongside stdout",
				Value:       cfg.LogFile,
				Destination: &cfg.LogFile,
			},
		},
		Action: func(c *cli.Context) error {
			cfg.BankEndpoints = splitList(c.String("bank-endpoints"))
			cfg.KafkaBrokers = splitList(c.String("kafka-brokers"))
			return run(cfg)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cfg config.Ledger) error {
	lg, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer cleanup()
	lg.Info("config loaded", "listen", cfg.ListenAddress, "chain", cfg.ChainBaseURL,
		"banks", len(cfg.BankEndpoints), "mongo", cfg.MongoURI != "", "kafka", len(cfg.KafkaBrokers) > 0)

	ctx := context.Background()

	var (
		txs   store.TransactionStore
		nodes store.NodeStore
	)
	if cfg.MongoURI != "" {
		m, err := store.DialMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return err
		}
		defer func() {
			if err := m.Close(context.Background()); err != nil {
				lg.Warn("mongo disconnect", "err", err)
			}
		}()
		txs, nodes = m.Transactions(), m.Nodes()
	} else {
		lg.Warn("no MONGO_URI configured, using in-memory stores")
		txs, nodes = store.NewMemoryTxStore(), store.NewMemoryNodeStore()
	}

	met := metrics.New(nil)
	pub := events.New(cfg.KafkaBrokers, cfg.KafkaTopic, lg)
	defer pub.Close()

	orch := orchestrator.New(
		txs,
		nodes,
		broadcast.New(cfg.BankEndpoints, lg),
		chain.New(cfg.ChainBaseURL, lg),
		pub,
		met,
		lg,
	)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}

	h := &api.Handlers{Orch: orch, Log: lg}
	srv := api.NewServer(cfg.ListenAddress, h.NewRouter(rdb))

	errCh := make(chan error, 1)
	go func() {
		lg.Info("ledgerd listening", "addr", cfg.ListenAddress)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		lg.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			lg.Warn("server shutdown", "err", err)
		}
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
