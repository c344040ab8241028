package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nwhistler/brewfile-analyzer/internal/api"
)

var (
	serveAddr string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool database over HTTP",
		Long: `Start the local web server: JSON API under /api plus the static docs
UI. Edits made through the UI are flagged as user edits and survive
later syncs.

The server binds to loopback by default and shuts down cleanly on
Ctrl+C.`,
		Example: `  # Serve on the default address
  brewfile-analyzer serve

  # Serve on a different port
  brewfile-analyzer serve --addr 127.0.0.1:8080`,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from settings, 127.0.0.1:5050)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Settings.Serve.Addr
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	server := &http.Server{
		Addr:         addr,
		Handler:      api.New(db, cfg.DocsDir(), version).Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		infof("Serving on http://%s", addr)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-sigCh:
		infof("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
