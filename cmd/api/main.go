package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/presqr/server/internal/attendance"
	"github.com/presqr/server/internal/broadcast"
	"github.com/presqr/server/internal/clock"
	"github.com/presqr/server/internal/config"
	"github.com/presqr/server/internal/db"
	httphandler "github.com/presqr/server/internal/http"
	"github.com/presqr/server/internal/http/handlers"
	"github.com/presqr/server/internal/metrics"
	"github.com/presqr/server/internal/middleware"
	"github.com/presqr/server/internal/repo"
)

func main() {
	// Env vars override .env
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	userRepo := repo.NewUserRepo(database)
	courseRepo := repo.NewCourseRepo(database)
	sessionRepo := repo.NewSessionRepo(database)

	clk := clock.NewFixedOffset(cfg.UTCOffset)
	if cfg.DevMode {
		log.Printf("Clock zone %s, now %s", clk.Location(), clk.Now().Format(time.RFC3339))
	}

	m := metrics.New()
	registry := broadcast.NewRegistry(m.LiveListeners)

	svc := attendance.NewService(
		courseRepo,
		userRepo,
		sessionRepo,
		attendance.NewTokenCodec(cfg.TokenSecret),
		clk,
		registry,
		m,
	)

	scanLimiter := middleware.NewRateLimiter(time.Minute, cfg.ScanRateLimit)
	defer scanLimiter.Stop()

	router := httphandler.NewRouter(httphandler.RouterDeps{
		Attendance:     handlers.NewAttendanceHandler(svc),
		Live:           handlers.NewLiveHandler(registry, cfg.AllowedOrigins),
		Metrics:        m.Handler(),
		ScanLimiter:    scanLimiter,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Hijacked WebSocket connections are not tracked by Shutdown
	registry.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
