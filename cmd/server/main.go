/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the requirement ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env, environment and flags into config.Config
  2. Build the zerolog logger (console in DEV, JSON otherwise)
  3. Initialize SQLite store
  4. Wrap the catalog with the Redis cache when redis_addr is set
  5. Load catalog_file and calendar_file, or the demo school on an empty DEV database
  6. Start the term assignment scheduler
  7. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides LEDGER_PORT)
  -db      SQLite database path (overrides LEDGER_DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, close Redis and database connections
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run with a Redis catalog cache
  LEDGER_REDIS_ADDR=localhost:6379 ./server

SEE ALSO:
  - config/config.go: Keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/requirement-ledger/api"
	"github.com/warp/requirement-ledger/config"
	"github.com/warp/requirement-ledger/ledger"
	"github.com/warp/requirement-ledger/store/rediscache"
	"github.com/warp/requirement-ledger/store/sqlite"
)

func main() {
	if err := config.LoadDotEnv("."); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Flags
	v := config.New()
	port := flag.Int("port", v.GetInt("port"), "HTTP server port")
	dbPath := flag.String("db", v.GetString("db_path"), "SQLite database path")
	flag.Parse()
	v.Set("port", *port)
	v.Set("db_path", *dbPath)

	cfg, err := config.Load(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := newLogger(cfg)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("failed to initialize database")
	}
	defer store.Close()

	// Optional catalog cache
	var catalog api.CatalogStore
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := rediscache.Connect(ctx, cfg.RedisAddr)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, serving catalog from database")
		} else {
			defer rdb.Close()
			catalog = rediscache.New(store, rdb, cfg.CatalogCacheTTL, log)
			log.Info().Str("redis_addr", cfg.RedisAddr).Dur("ttl", cfg.CatalogCacheTTL).Msg("catalog cache enabled")
		}
	}

	handler := api.NewHandler(store, catalog, log)
	if err := seed(context.Background(), cfg, handler); err != nil {
		log.Fatal().Err(err).Msg("failed to load initial data")
	}

	scheduler := api.NewAssignmentScheduler(handler, cfg.AssignInterval)
	handler.Scheduler = scheduler
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler, cfg.CORSOrigins...),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.IsDev() {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stdout)
	}
	return log.Level(level).With().Timestamp().Str("service", "requirement-ledger").Logger()
}

// seed loads the configured catalog and calendar files. With neither set,
// an empty DEV database gets the demo school.
func seed(ctx context.Context, cfg config.Config, h *api.Handler) error {
	if cfg.CatalogFile != "" {
		data, err := os.ReadFile(cfg.CatalogFile)
		if err != nil {
			return err
		}
		items, err := h.Factory.ParseCatalog(string(data))
		if err != nil {
			return fmt.Errorf("%s: %w", cfg.CatalogFile, err)
		}
		for _, item := range items {
			err := h.Catalog.SaveItem(ctx, item)
			if errors.Is(err, ledger.ErrRequirementExists) {
				continue
			}
			if err != nil {
				return err
			}
		}
	}
	if cfg.CalendarFile != "" {
		data, err := os.ReadFile(cfg.CalendarFile)
		if err != nil {
			return err
		}
		year, err := h.Factory.ParseCalendar(string(data))
		if err != nil {
			return fmt.Errorf("%s: %w", cfg.CalendarFile, err)
		}
		if err := h.Store.SaveAcademicYear(ctx, year); err != nil {
			return err
		}
	}
	if cfg.CatalogFile != "" || cfg.CalendarFile != "" || !cfg.SeedDemo {
		return nil
	}

	items, err := h.Catalog.ListAll(ctx)
	if err != nil {
		return err
	}
	if len(items) > 0 {
		return nil
	}
	return h.SeedSchool(ctx)
}
