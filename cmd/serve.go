package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/bouncepath/internal/server"
)

var (
	serveAddr    string
	serveDataDir string
	serveLedger  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Accepts run files as JSON on POST /api/v1/jobs and runs each one in the
background. Job progress is available on GET /api/v1/jobs/{id} and as
server-sent events on GET /api/v1/jobs/{id}/stream. Checkpoints of server
jobs are stored under the job ID and can be resumed with the resume command.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Directory for job checkpoints and traces")
	serveCmd.Flags().StringVar(&serveLedger, "ledger", "", "Outcome ledger path (default: <data-dir>/outcomes.db)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ledgerPath := serveLedger
	if ledgerPath == "" {
		ledgerPath = filepath.Join(serveDataDir, "outcomes.db")
	}
	r, closeRunner, err := openRunner(serveDataDir, ledgerPath, false)
	if err != nil {
		return err
	}
	defer closeRunner()

	s := server.NewServer(serveAddr, r)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		slog.Info("Received signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
