package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"certtrack-backend/internal/config"
	"certtrack-backend/internal/database"
	"certtrack-backend/internal/handlers"
	"certtrack-backend/internal/logger"
	"certtrack-backend/internal/metrics"
	"certtrack-backend/internal/middleware"
	"certtrack-backend/internal/repository"
	"certtrack-backend/internal/router"
	"certtrack-backend/internal/services"
	"certtrack-backend/internal/session"
	"certtrack-backend/internal/websocket"
	"certtrack-backend/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log := logger.New(logger.Options{Level: cfg.LogLevel, FilePath: cfg.LogFile})
	defer log.Sync()
	log.Info("starting certtrack backend", zap.String("env", cfg.Env))

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pool.Close()

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisClients.Close()

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("database migration failed", zap.Error(err))
	}

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	trackRepo := repository.NewTrackRepo(pool)
	courseRepo := repository.NewCourseRepo(pool)
	progressRepo := repository.NewProgressRepo(pool)
	activityRepo := repository.NewActivityRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// ──── Step 5: Initialize Question Generator ────
	var (
		generator   *services.QuestionGenerator
		transcriber services.AudioTranscriber
	)
	if cfg.GeminiAPIKey != "" {
		generator, err = services.NewQuestionGenerator(cfg.GeminiAPIKey, cfg.GeminiConcurrentReqs, log)
		if err != nil {
			log.Fatal("gemini client initialization failed", zap.Error(err))
		}
		defer generator.Close()
		transcriber = generator
		log.Info("question generator enabled")
	} else {
		log.Warn("GEMINI_API_KEY not set, question generation disabled")
	}

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	publisher := services.NewPublisher(redisClients.PubSub, log)
	jobService := services.NewJobService(jobRepo, redisClients.Queue)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.FrontendURL, log)
	sourceReader := services.NewSourceReader(transcriber, cfg.UploadPath, log)

	attemptService := services.NewAttemptService(session.NewRegistry(), courseRepo, progressRepo, activityRepo, publisher, cfg.PassMarkPercent, log)
	reportService := services.NewReportService(userRepo, trackRepo, courseRepo, progressRepo, activityRepo, cfg.ViewerTimezone)
	progressService := services.NewProgressService(progressRepo, userRepo, courseRepo, publisher, log)
	generationService := services.NewGenerationService(courseRepo, jobService, generator != nil)
	reminderService := services.NewReminderService(reportService, emailService, jobService, redisClients.Queue, cfg.ReminderCron, cfg.ReminderIntervalHours, log)

	// ──── Initialize Handlers ────
	attemptHandler := handlers.NewAttemptHandler(attemptService)
	dashboardHandler := handlers.NewDashboardHandler(reportService)
	adminHandler := handlers.NewAdminHandler(reportService, progressService, generationService, reminderService, cfg.UploadPath, log)
	jobHandler := handlers.NewJobHandler(jobService)

	// ──── Step 6: Start Job Worker Pool ────
	deps := worker.Deps{
		Jobs:      jobRepo,
		Sources:   sourceReader,
		Questions: courseRepo,
		Reminders: reminderService,
		Publisher: publisher,
	}
	if generator != nil {
		deps.Generator = generator
	}
	workerPool := worker.NewPool(redisClients.Queue, deps, cfg.WorkerCount, log)
	workerPool.Start(ctx)

	if err := reminderService.Start(); err != nil {
		log.Fatal("reminder scheduler failed to start", zap.Error(err))
	}

	// ──── Step 7: Start WebSocket Hub ────
	allowedOrigins := []string{cfg.FrontendURL}
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, allowedOrigins, log)
	go wsHub.Run(ctx)

	// ──── Step 8: Start HTTP Server ────
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMin, time.Minute)
	defer limiter.Close()

	r := router.New(
		jwtAuth,
		limiter,
		attemptHandler,
		dashboardHandler,
		adminHandler,
		jobHandler,
		wsHub,
		allowedOrigins,
		log,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", zap.Error(err))
		}
	}()

	log.Info("certtrack backend ready",
		zap.String("api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port)),
		zap.String("ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port)),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	workerPool.Stop()
	reminderService.Stop()
}
