package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	pkgvalidator "github.com/johnquangdev/meeting-recorder/pkg/validator"

	"github.com/johnquangdev/meeting-recorder/internal/adapter/handler"
	"github.com/johnquangdev/meeting-recorder/internal/adapter/repository"
	"github.com/johnquangdev/meeting-recorder/internal/infrastructure/database"
	"github.com/johnquangdev/meeting-recorder/internal/infrastructure/external/ffmpeg"
	"github.com/johnquangdev/meeting-recorder/internal/infrastructure/external/livekit"
	"github.com/johnquangdev/meeting-recorder/internal/infrastructure/external/voice"
	"github.com/johnquangdev/meeting-recorder/internal/infrastructure/storage"
	"github.com/johnquangdev/meeting-recorder/internal/usecase/handoff"
	"github.com/johnquangdev/meeting-recorder/internal/usecase/process"
	"github.com/johnquangdev/meeting-recorder/internal/usecase/record"
	"github.com/johnquangdev/meeting-recorder/internal/usecase/recovery"
	"github.com/johnquangdev/meeting-recorder/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Recording directories must exist before anything writes a capture
	if err := os.MkdirAll(cfg.Recorder.OutputDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	if err := os.MkdirAll(cfg.Recorder.BackupDir, 0o755); err != nil {
		log.Fatalf("Failed to create backup directory: %v", err)
	}

	// Initialize Echo instance
	e := echo.New()

	// Register validator for request validation
	e.Validator = pkgvalidator.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = false

	// Custom logger format
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} | ${status} | ${method} ${uri} | ${latency_human}\n",
	}))

	// Recover from panics
	e.Use(middleware.Recover())

	// Initialize dependencies
	log.Println("🔧 Initializing dependencies...")

	// Initialize Database (optional)
	var recordingRepo *repository.RecordingRepository
	if cfg.Database.Enabled {
		log.Println("📦 Connecting to database...")
		db, err := database.NewPostgresDB(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.CloseDB(db)

		// Run AutoMigrate only when explicitly enabled in config.
		if cfg.Database.AutoMigrate {
			if cfg.Server.Environment == "production" {
				log.Fatalf("AutoMigrate is enabled in production. Disable DB_AUTO_MIGRATE and manage schema externally.")
			}
			log.Println("🔄 Running GORM AutoMigrate (development only) ...")
			if err := database.AutoMigrate(db); err != nil {
				log.Fatalf("Failed to run AutoMigrate: %v", err)
			}
		}

		recordingRepo = repository.NewRecordingRepository(db)
	} else {
		log.Println("📦 Database disabled, recordings are not persisted")
	}

	// Initialize object storage (optional)
	var minioClient *storage.MinIOClient
	if cfg.Storage.Enabled {
		log.Println("📦 Connecting to MinIO...")
		minioClient, err = storage.NewMinIOClient(&cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to connect to MinIO: %v", err)
		}
	} else {
		log.Println("📦 Object storage disabled, final artifacts stay on disk")
	}

	// Initialize LiveKit client
	log.Println("🎥 Initializing LiveKit client...")
	livekitClient := livekit.NewClient(
		cfg.LiveKit.URL,
		cfg.LiveKit.APIKey,
		cfg.LiveKit.APISecret,
		cfg.LiveKit.UseMock,
	)
	if cfg.LiveKit.UseMock {
		log.Println("⚠️  LiveKit running in MOCK mode (no real server needed)")
	} else {
		log.Printf("✅ LiveKit connected to: %s", cfg.LiveKit.URL)
	}

	// Initialize the audio codec
	log.Println("🎛️  Initializing ffmpeg codec...")
	codec := ffmpeg.NewClient(cfg.Recorder.FFmpegPath, cfg.Recorder.CodecWorkers, logger)

	// Initialize handoff pipeline (upload, transcript, summary)
	handoffService := handoff.NewService(cfg, minioClient, recordingRepo, codec, logger)

	// Initialize segment processor and meeting finalizer
	processor := process.NewProcessor(codec, cfg.Recorder.OutputDir, cfg.Recorder.BackupDir, logger)
	finalizer := process.NewFinalizer(codec, cfg.Recorder.OutputDir, handoffService.HandleFinalArtifact, logger)

	// Sweep leftovers from interrupted sessions before accepting new ones
	log.Println("🧹 Scanning output directory for interrupted sessions...")
	scanner := recovery.NewScanner(cfg.Recorder.OutputDir, processor, finalizer, recordingRepo, logger)
	recovered, err := scanner.Recover(context.Background())
	if err != nil {
		log.Printf("⚠️  Recovery sweep failed: %v", err)
	} else if len(recovered) > 0 {
		log.Printf("✅ Recovered %d interrupted meeting(s)", len(recovered))
	}

	// Initialize voice transport and recording service
	transport := voice.NewChannelTransport(256)
	recordService := record.NewService(cfg, transport, processor, finalizer, livekitClient, recordingRepo, logger)

	// Setup router with handlers
	log.Println("🛣️  Setting up routes...")
	sessionHandler := handler.NewSessionHandler(recordService, recordingRepo, logger)
	router := handler.NewRouter(cfg, sessionHandler)
	router.Setup(e)

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		log.Printf("🚀 Starting server on %s", addr)
		log.Printf("📝 Environment: %s", cfg.Server.Environment)
		log.Printf("🔗 Health check: http://%s/health", addr)

		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	// Active sessions flush their last segment and finalize before the
	// HTTP server goes away.
	recordService.StopAll(ctx)
	handoffService.Wait()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped gracefully")
}
