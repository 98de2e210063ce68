// bankd is one bank service instance: it evaluates approval requests against
// local policy, signs approvals, and runs the bank's autonomous validator
// node. Start one instance per bank.
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

	"github.com/urfave/cli/v2"

	"github.com/AdotAyush/cedefi-banking/internal/bank"
	"github.com/AdotAyush/cedefi-banking/internal/config"
	"github.com/AdotAyush/cedefi-banking/internal/logging"
	"github.com/AdotAyush/cedefi-banking/internal/models"
	"github.com/AdotAyush/cedefi-banking/internal/wallet"
)

func main() {
	cfg := config.LoadBank()

	app := &cli.App{
		Name:  "bankd",
		Usage: "Run one bank approval service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "listen",
				Usage:       "Listen address",
				Value:       cfg.ListenAddress,
				Destination: &cfg.ListenAddress,
			},
			&cli.StringFlag{
				Name:        "bank-id",
				Usage:       "Identifier this bank signs as",
				Value:       cfg.BankID,
				Destination: &cfg.BankID,
			},
			&cli.StringFlag{
				Name:        "key-file",
				Usage:       "PEM private key file (empty generates an ephemeral wallet)",
				Value:       cfg.KeyFile,
				Destination: &cfg.KeyFile,
			},
			&cli.StringFlag{
				Name:        "main-system-url",
				Usage:       "Base URL of the main consensus service",
				Value:       cfg.MainSystemURL,
				Destination: &cfg.MainSystemURL,
			},
			&cli.Float64Flag{
				Name:        "amount-limit",
				Usage:       "Maximum amount this bank will approve",
				Value:       cfg.AmountLimit,
				Destination: &cfg.AmountLimit,
			},
			&cli.StringFlag{
				Name:  "trusted-nodes",
				Usage: "Comma-separated trusted node public keys",
				Value: strings.Join(cfg.TrustedNodes, ","),
			},
			&cli.IntFlag{
				Name:        "min-trusted-votes",
				Usage:       "Trusted yes votes required before signing",
				Value:       cfg.MinTrustedVotes,
				Destination: &cfg.MinTrustedVotes,
			},
			&cli.DurationFlag{
				Name:        "poll-interval",
				Usage:       "Validator polling interval",
				Value:       cfg.PollInterval,
				Destination: &cfg.PollInterval,
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
			cfg.TrustedNodes = splitList(c.String("trusted-nodes"))
			return run(cfg)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cfg config.Bank) error {
	lg, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer cleanup()

	w, err := wallet.Load(cfg.KeyFile)
	if err != nil {
		return err
	}
	lg.Info("bank initialized", "bankId", cfg.BankID, "address", w.Address())

	policy := bank.NewPolicy(cfg.AmountLimit, cfg.TrustedNodes, models.SecurityPolicy{
		MinTrustedVotes: cfg.MinTrustedVotes,
	})
	mc := bank.NewMainClient(cfg.MainSystemURL, lg)
	svc := bank.NewService(cfg.BankID, w, policy, mc, mc, lg)

	validator := bank.NewValidator(w.Address(), mc, cfg.PollInterval, cfg.BalanceCeiling, lg)
	validator.Start()
	defer validator.Stop()

	h := &bank.Handlers{Svc: svc}
	srv := bank.NewServer(cfg.ListenAddress, h.NewRouter())

	errCh := make(chan error, 1)
	go func() {
		lg.Info("bankd listening", "addr", cfg.ListenAddress, "bankId", cfg.BankID)
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
