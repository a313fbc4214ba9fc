/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Fable credit engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and parse command-line flags
  2. Load the catalog (file or built-in default)
  3. Initialize the SQLite account store
  4. Build the App Store verification client
  5. Wire handlers and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: 8080)
  -db       SQLite database path (default: fable.db, ":memory:" for dev)
  -catalog  Catalog JSON path (default: built-in demo catalog)

ENVIRONMENT:
  APPSTORE_SHARED_SECRET   Shared secret for receipt verification.
                           Read from the environment or a local .env file;
                           never a flag, so it stays out of process lists.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
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
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fable/credit-engine/api"
	"github.com/fable/credit-engine/appstore"
	"github.com/fable/credit-engine/factory"
	"github.com/fable/credit-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "fable.db", "SQLite database path")
	catalogPath := flag.String("catalog", "", "catalog JSON path (empty = built-in demo catalog)")
	flag.Parse()

	sharedSecret := os.Getenv("APPSTORE_SHARED_SECRET")
	if sharedSecret == "" {
		log.Println("Warning: APPSTORE_SHARED_SECRET not set; receipt verification will be rejected by Apple")
	}

	// Catalog
	catalogJSON := []byte(factory.DefaultCatalogJSON)
	if *catalogPath != "" {
		data, err := os.ReadFile(*catalogPath)
		if err != nil {
			log.Fatalf("Failed to read catalog: %v", err)
		}
		catalogJSON = data
	}
	catalog, library, err := factory.ParseCatalog(catalogJSON)
	if err != nil {
		log.Fatalf("Failed to parse catalog: %v", err)
	}

	// Store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Verification client and handlers
	verifier := appstore.New(sharedSecret)
	handler := api.NewHandler(store, verifier, catalog, library)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Credit engine listening on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

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
