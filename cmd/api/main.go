// main.go - The entry point: config, migrations, crash recovery, router.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bosocmputer/statementpipeline/configs"
	"github.com/bosocmputer/statementpipeline/internal/api"
	"github.com/bosocmputer/statementpipeline/internal/blobstore"
	"github.com/bosocmputer/statementpipeline/internal/job"
	"github.com/bosocmputer/statementpipeline/internal/store"
)

// staleProcessingThreshold bounds how long a Processing row can sit before
// the crash-recovery sweep assumes the process that owned it died mid-run.
const staleProcessingThreshold = 30 * time.Minute

func main() {
	// Step 0: Load configuration from environment variables.
	cfg, err := configs.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if ginMode := os.Getenv("GIN_MODE"); ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Step 1: Create the upload directory if it doesn't exist.
	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		log.Fatalf("Failed to create upload directory: %v", err)
	}

	// Step 2: Run migrations, then connect the pool.
	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	ctx := context.Background()
	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	blobs, err := blobstore.New(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to initialize blob store: %v", err)
	}

	// Step 3: Crash recovery - sweep stale Processing rows before accepting
	// new work.
	recovered, err := st.SweepStaleProcessing(ctx, staleProcessingThreshold)
	if err != nil {
		log.Printf("Crash-recovery sweep failed: %v", err)
	} else if recovered > 0 {
		log.Printf("Crash-recovery sweep marked %d stale job(s) as Failed(interrupted)", recovered)
	}

	controller, err := job.New(cfg, st, blobs)
	if err != nil {
		log.Fatalf("Failed to initialize job controller: %v", err)
	}
	defer controller.Shutdown()

	// Step 4: Initialize the Gin router.
	router := api.NewRouter(cfg, controller)

	// Step 5: Setup HTTP server with timeouts.
	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   3 * time.Minute, // allow time for the synchronous upload response
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		log.Println("API Endpoints:")
		log.Println("  POST   /statements/upload")
		log.Println("  GET    /statements/:id/status")
		log.Println("  GET    /statements/:id")
		log.Println("  GET    /statements")
		log.Println("  DELETE /statements/:id")
		log.Println("  GET    /statements/:id/csv")
		log.Println("  GET    /statements/:id/log")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
