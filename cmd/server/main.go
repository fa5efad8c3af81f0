/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Warp Financials Engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Seed time buckets covering the current year if none exist
  4. Build caches, bucket registry, and metrics engine
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port        HTTP server port (default: 8080, env PORT)
  -db          SQLite database path (default: financials.db, env DATABASE_PATH)
               Use ":memory:" for in-memory database
  -cache-size  Max entries per metrics cache (default: 4096)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/financials.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/warp/financials-engine/api"
	"github.com/warp/financials-engine/cache"
	"github.com/warp/financials-engine/metrics"
	"github.com/warp/financials-engine/store/sqlite"
)

func main() {
	// .env is optional; flags override environment.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DATABASE_PATH", "financials.db"), "SQLite database path")
	cacheSize := flag.Int("cache-size", 4096, "max entries per metrics cache")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Seed buckets for the current year if the store has none covering
	// today. Metrics reads need a resolvable current bucket.
	if err := seedBuckets(context.Background(), store); err != nil {
		log.Fatalf("Failed to seed time buckets: %v", err)
	}

	registry := &metrics.Registry{Store: store}

	engine := &metrics.Engine{
		Store:       store,
		Registry:    registry,
		Projects:    cache.NewLRU[metrics.ProjectMetrics](*cacheSize, 0),
		PersonYears: cache.NewLRU[metrics.PersonYearMetrics](*cacheSize, 0),
		Targets:     cache.NewLRU[decimal.Decimal](*cacheSize, 0),
	}

	handler := api.NewHandler(store, engine, registry)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// seedBuckets generates the current year's buckets when the store does
// not yet cover today. Already-covered stores are untouched.
func seedBuckets(ctx context.Context, store *sqlite.Store) error {
	now := time.Now()
	if b, err := store.BucketOnOrBefore(ctx, now); err == nil {
		// Covered only if today falls inside the found bucket.
		if !now.After(b.FirstDay.AddDate(0, 0, b.Days())) {
			return nil
		}
	} else if !metrics.IsNotFound(err) {
		return err
	}

	from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(now.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
	buckets := metrics.GenerateBuckets(from, to)
	log.Printf("Seeding %d time buckets for %d", len(buckets), now.Year())
	return store.SaveBuckets(ctx, buckets)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
