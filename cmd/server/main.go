package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eternisai/push-relay/internal/auth"
	"github.com/eternisai/push-relay/internal/config"
	"github.com/eternisai/push-relay/internal/fcm"
	"github.com/eternisai/push-relay/internal/logger"
	"github.com/eternisai/push-relay/internal/notifications"
	"github.com/eternisai/push-relay/internal/server"
	"github.com/eternisai/push-relay/internal/storage/pg"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))

	log.Info("Setting Gin mode", slog.String("mode", cfg.GinMode))
	gin.SetMode(cfg.GinMode)

	// Initialize database.
	db, err := pg.InitDatabase(cfg)
	if err != nil {
		log.Error("Failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	tokenValidator, err := newTokenValidator(cfg, log)
	if err != nil {
		log.Error("Failed to initialize token validator", slog.String("error", err.Error()))
		os.Exit(1)
	}
	authMiddleware := auth.NewMiddleware(tokenValidator)

	// Pick the notifier: live FCM dispatch when the service account is fully
	// configured, simulated delivery otherwise.
	account := fcm.ServiceAccountFromConfig(cfg)
	outbound := &http.Client{Timeout: time.Duration(cfg.OutboundTimeoutSeconds) * time.Second}

	var notifier fcm.Notifier
	if account.Configured() {
		exchanger := fcm.NewExchanger(account, fcm.DefaultTokenURL, outbound, log)
		notifier = fcm.NewDispatcher(account, exchanger, db.Tokens, outbound, log, fcm.DefaultSendBaseURL, cfg.FCMBatchSize)
		log.Info("🔥 FCM delivery enabled", slog.String("project_id", account.ProjectID))
	} else {
		notifier = fcm.SimulatedNotifier{}
		log.Warn("⚠️  Firebase service account not configured, running in simulation mode")
	}

	service := notifications.NewService(db.Tokens, notifier, account, cfg.DeliveryHints, log)

	router := server.NewRouter(service, authMiddleware, log)

	port := ":" + cfg.Port
	log.Info("🔔 push relay listening on " + port)

	srv := &http.Server{
		Addr:    port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := db.DB.Close(); err != nil {
		log.Warn("Failed to close database", slog.String("error", err.Error()))
	}

	log.Info("✅ Server exited")
}

func newTokenValidator(cfg *config.Config, log *logger.Logger) (auth.TokenValidator, error) {
	switch cfg.ValidatorType {
	case "firebase":
		if cfg.FirebaseCredJSON == "" {
			return nil, errors.New("FIREBASE_CRED_JSON is required for the firebase validator")
		}
		log.Info("creating Firebase token validator")
		return auth.NewFirebaseTokenValidator(context.Background(), cfg.FirebaseCredJSON)

	case "jwk":
		return auth.NewTokenValidator(cfg.JWTJWKSURL)

	default:
		return nil, errors.New("validator type must be either 'firebase' or 'jwk'")
	}
}
