// chaind is the immutable outcome ledger: a write-once record per
// transaction, created ahead of finalization and finalized exactly once.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/AdotAyush/cedefi-banking/internal/chainledger"
	"github.com/AdotAyush/cedefi-banking/internal/logging"
)

func main() {
	var (
		listen   string
		logLevel string
		logFile  string
	)

	app := &cli.App{
		Name:  "chaind",
		Usage: "Run the immutable outcome ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "listen",
				Usage:       "Listen address",
				Value:       ":6000",
				EnvVars:     []string{"CHAIN_LISTEN_ADDRESS"},
				Destination: &listen,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Log level (DEBUG, INFO, WARN, ERROR)",
				Value:       "INFO",
				EnvVars:     []string{"LOG_LEVEL"},
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "Optional log file mirrored alongside stdout",
				EnvVars:     []string{"LOG_FILE"},
				Destination: &logFile,
			},
		},
		Action: func(*cli.Context) error {
			return run(listen, logLevel, logFile)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(listen, logLevel, logFile string) error {
	lg, cleanup, err := logging.New(logLevel, logFile)
	if err != nil {
		return err
	}
	defer cleanup()

	h := &chainledger.Handlers{Ledger: chainledger.New(), Log: lg}
	srv := chainledger.NewServer(listen, h.NewRouter())

	errCh := make(chan error, 1)
	go func() {
		lg.Info("chaind listening", "addr", listen)
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
