/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the contract reconciliation server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, config file, RENTALRECON_* env)
  2. Apply command-line flag overrides
  3. Build the slog logger
  4. Open the session store (SQLite, or in-memory when persistence is off)
  5. Restore the last saved session
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides server.port)
  -db      SQLite database path (overrides database.path)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/recon.db"

  # Run without persistence
  RENTALRECON_DATABASE_PERSIST=false ./server

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - config/config.go: Settings and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/warp/contract-recon/api"
	"github.com/warp/contract-recon/charges"
	"github.com/warp/contract-recon/config"
	"github.com/warp/contract-recon/factory"
	"github.com/warp/contract-recon/generic"
	"github.com/warp/contract-recon/session"
	"github.com/warp/contract-recon/session/store"
	"github.com/warp/contract-recon/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags
	port := flag.Int("port", cfg.Server.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.Database.Path, "SQLite database path")
	flag.Parse()
	cfg.Server.Port = *port
	cfg.Database.Path = *dbPath

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	tieBreak, err := charges.PolicyByName(cfg.Session.TieBreak)
	if err != nil {
		return err
	}

	// Initialize store
	var st session.Store = store.NewMemory()
	if cfg.Database.Persist {
		db, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		defer db.Close()
		st = db
	}

	// Initialize handler
	sess := session.New(session.Options{
		TieBreak:  tieBreak,
		FleetType: charges.ParseFleetType(cfg.Session.FleetType),
	})
	handler := api.NewHandler(sess, st, factory.NewRecordFactory(generic.NewTemporalResolver(loc)), logger)

	if _, err := handler.Restore(context.Background()); err != nil {
		logger.Warn("failed to restore session, starting empty", "error", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", server.Addr,
			"persist", cfg.Database.Persist,
			"db", cfg.Database.Path,
			"timezone", loc.String(),
			"tie_break", tieBreak.Name())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
}
