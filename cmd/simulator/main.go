// simulator drives a running consensus service with synthetic traffic: it
// registers a fleet of voting nodes, then submits transactions and casts
// votes on a fixed cadence. Useful for local runs and demos; it holds no
// state of its own.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/AdotAyush/cedefi-banking/internal/logging"
)

var users = []string{
	"did:cedefi:user:alice",
	"did:cedefi:user:bob",
	"did:cedefi:user:carol",
	"did:cedefi:user:dave",
}

func main() {
	var (
		target    string
		nodeCount int
		interval  time.Duration
		maxAmount float64
		yesBias   float64
		logLevel  string
	)

	app := &cli.App{
		Name:  "simulator",
		Usage: "Generate synthetic transactions and votes against a consensus service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "target",
				Usage:       "Base URL of the consensus service",
				Value:       "http://localhost:5000",
				EnvVars:     []string{"SIM_TARGET"},
				Destination: &target,
			},
			&cli.IntFlag{
				Name:        "nodes",
				Usage:       "Number of simulated voting nodes",
				Value:       3,
				EnvVars:     []string{"SIM_NODES"},
				Destination: &nodeCount,
			},
			&cli.DurationFlag{
				Name:        "interval",
				Usage:       "Delay between submitted transactions",
				Value:       2 * time.Second,
				EnvVars:     []string{"SIM_INTERVAL"},
				Destination: &interval,
			},
			&cli.Float64Flag{
				Name:        "max-amount",
				Usage:       "Upper bound for random transaction amounts",
				Value:       2000,
				EnvVars:     []string{"SIM_MAX_AMOUNT"},
				Destination: &maxAmount,
			},
			&cli.Float64Flag{
				Name:        "yes-bias",
				Usage:       "Probability that a simulated node votes yes",
				Value:       0.8,
				EnvVars:     []string{"SIM_YES_BIAS"},
				Destination: &yesBias,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Log level (DEBUG, INFO, WARN, ERROR)",
				Value:       "INFO",
				EnvVars:     []string{"LOG_LEVEL"},
				Destination: &logLevel,
			},
		},
		Action: func(*cli.Context) error {
			return run(target, nodeCount, interval, maxAmount, yesBias, logLevel)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(target string, nodeCount int, interval time.Duration, maxAmount, yesBias float64, logLevel string) error {
	lg, cleanup, err := logging.New(logLevel, "")
	if err != nil {
		return err
	}
	defer cleanup()

	sim := &fleet{
		target:  target,
		h:       &http.Client{Timeout: 10 * time.Second},
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		yesBias: yesBias,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sim.registerNodes(ctx, nodeCount); err != nil {
		return err
	}
	lg.Info("simulator started", "target", target, "nodes", nodeCount, "interval", interval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case sig := <-stop:
			lg.Info("simulator stopping", "signal", sig.String())
			return nil
		case <-ticker.C:
			id, err := sim.submitTransaction(ctx, maxAmount)
			if err != nil {
				lg.Warn("submit transaction", "err", err)
				continue
			}
			lg.Info("transaction submitted", "transactionId", id)
			sim.castVotes(ctx, id, lg)
		}
	}
}

type fleet struct {
	target  string
	h       *http.Client
	rng     *rand.Rand
	yesBias float64
	voters  []string
}

// registerNodes creates and activates the simulated voting fleet. Conflicts
// are tolerated so restarts can reuse an already registered fleet.
func (f *fleet) registerNodes(ctx context.Context, count int) error {
	for i := 0; i < count; i++ {
		pk := fmt.Sprintf("sim-node-%d", i)
		err := f.post(ctx, "/nodes", map[string]any{
			"url":       fmt.Sprintf("http://sim-node-%d.local:4000", i),
			"name":      fmt.Sprintf("sim-node-%d", i),
			"publicKey": pk,
		}, http.StatusCreated, http.StatusConflict)
		if err != nil {
			return fmt.Errorf("register node %s: %w", pk, err)
		}
		err = f.post(ctx, "/nodes/"+pk+"/verify", map[string]any{"action": "APPROVE"}, http.StatusOK)
		if err != nil {
			return fmt.Errorf("verify node %s: %w", pk, err)
		}
		f.voters = append(f.voters, "did:cedefi:node:"+pk)
	}
	return nil
}

func (f *fleet) submitTransaction(ctx context.Context, maxAmount float64) (string, error) {
	sender := users[f.rng.Intn(len(users))]
	recipient := users[f.rng.Intn(len(users))]
	for recipient == sender {
		recipient = users[f.rng.Intn(len(users))]
	}
	id := "sim-" + uuid.NewString()
	err := f.post(ctx, "/transactions", map[string]any{
		"transactionId": id,
		"sender":        sender,
		"recipient":     recipient,
		"amount":        1 + f.rng.Float64()*(maxAmount-1),
		"signature":     "sim-signed",
	}, http.StatusCreated)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (f *fleet) castVotes(ctx context.Context, id string, lg *slog.Logger) {
	for _, voter := range f.voters {
		decision := f.rng.Float64() < f.yesBias
		err := f.post(ctx, "/transactions/"+id+"/vote", map[string]any{
			"voter":    voter,
			"decision": decision,
		}, http.StatusOK, http.StatusConflict)
		if err != nil {
			lg.Warn("cast vote", "transactionId", id, "voter", voter, "err", err)
		}
	}
}

func (f *fleet) post(ctx context.Context, path string, body any, okStatuses ...int) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.target+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.h.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	for _, s := range okStatuses {
		if resp.StatusCode == s {
			return nil
		}
	}
	b, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%s: http %d: %s", path, resp.StatusCode, string(b))
}
