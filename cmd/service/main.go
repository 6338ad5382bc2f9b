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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/lenslock/lenslock-backend/internal/auth"
	"github.com/lenslock/lenslock-backend/internal/database"
	gatehandler "github.com/lenslock/lenslock-backend/internal/handler/gate"
	mediahandler "github.com/lenslock/lenslock-backend/internal/handler/media"
	mediarepo "github.com/lenslock/lenslock-backend/internal/repository/media"
	subscriptionrepo "github.com/lenslock/lenslock-backend/internal/repository/subscription"
	mediaservice "github.com/lenslock/lenslock-backend/internal/service/media"
	storagemedia "github.com/lenslock/lenslock-backend/internal/storage/media"
	"github.com/lenslock/lenslock-backend/internal/subscription"
	"github.com/lenslock/lenslock-backend/internal/watermark"
)

// @title           LensLock API
// @description     Tiered media storage and access control for photo content.
// @BasePath        /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load .env if present; real deployments use environment variables
	godotenv.Load()

	dbConfig := &database.Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		DBName:   getEnv("DB_NAME", "lenslock"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}

	jwtSecret := getEnv("JWT_SECRET", "your-secret-key-replace-in-production")
	serverPort := getEnv("SERVER_PORT", "8080")

	db, err := database.NewConnection(dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db, getEnv("MIGRATIONS_DIR", "migrations")); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	storageProvider, err := storagemedia.NewMinioProvider(storagemedia.MinioConfig{
		Endpoint:          getEnv("MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:         getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey:         getEnv("MINIO_SECRET_KEY", "minioadmin"),
		UseSSL:            getEnv("MINIO_USE_SSL", "false") == "true",
		PremiumBucket:     getEnv("MINIO_PREMIUM_BUCKET", "premium"),
		WatermarkedBucket: getEnv("MINIO_WATERMARKED_BUCKET", "watermarked"),
		PublicBaseURL:     getEnv("MEDIA_PUBLIC_BASE_URL", ""),
	})
	if err != nil {
		log.Fatalf("Failed to create storage provider: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := storageProvider.EnsureBuckets(ctx); err != nil {
		cancel()
		log.Fatalf("Failed to ensure storage buckets: %v", err)
	}
	cancel()

	compositor, err := watermark.NewCompositor(getEnv("WATERMARK_TEXT", "LensLock"))
	if err != nil {
		log.Fatalf("Failed to create watermark compositor: %v", err)
	}

	policies := subscription.DefaultPolicies()
	if policyFile := getEnv("ACCESS_POLICY_FILE", ""); policyFile != "" {
		policies, err = subscription.LoadPolicies(policyFile)
		if err != nil {
			log.Fatalf("Failed to load access policies: %v", err)
		}
	}

	mediaRepo := mediarepo.NewRepository(db)
	subscriptionRepo := subscriptionrepo.NewRepository(db)
	uploadService := mediaservice.NewUploadService(mediaRepo, storageProvider, compositor)

	mediaHandler := mediahandler.NewMediaHandler(uploadService, mediaRepo, subscriptionRepo, policies)
	gateHandler := gatehandler.NewHandler(
		mediaRepo,
		subscriptionRepo,
		policies,
		time.Duration(getEnvAsInt("TIER_REFRESH_SECONDS", 30))*time.Second,
	)
	authMiddleware := auth.NewMiddleware(jwtSecret)

	// Background retry for assets whose watermarking failed at upload time
	retryCtx, stopRetry := context.WithCancel(context.Background())
	go runWatermarkRetry(retryCtx, uploadService, time.Duration(getEnvAsInt("WATERMARK_RETRY_SECONDS", 60))*time.Second)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/swagger/*", httpSwagger.WrapHandler)

	r.Route("/api/media", func(r chi.Router) {
		// Access resolution works for anonymous viewers too; they resolve as free tier
		r.With(authMiddleware.Optional).Get("/{mediaID}/access", mediaHandler.ResolveAccess)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Require)
			r.Post("/", mediaHandler.UploadMedia)
			r.Get("/ws", gateHandler.HandleWebSocket)
		})
	})

	server := &http.Server{
		Addr:    ":" + serverPort,
		Handler: r,
	}

	go func() {
		log.Printf("Server is starting on port %s", serverPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on port %s: %v\n", serverPort, err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down server...")
	stopRetry()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server gracefully stopped")
}

// runWatermarkRetry periodically re-attempts compositing for pending assets.
func runWatermarkRetry(ctx context.Context, service *mediaservice.UploadService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resolved, err := service.ProcessPending(ctx, 50)
			if err != nil {
				log.Printf("Watermark retry pass failed: %v", err)
				continue
			}
			if resolved > 0 {
				log.Printf("Watermark retry resolved %d pending assets", resolved)
			}
		}
	}
}

// Helpers for reading environment variables
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return fallback
}
