package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/larderapp/larder/internal/billing"
	"github.com/larderapp/larder/internal/database"
	"github.com/larderapp/larder/internal/email"
	"github.com/larderapp/larder/internal/logging"
	"github.com/larderapp/larder/internal/push"
	"github.com/larderapp/larder/internal/server"
	"github.com/larderapp/larder/internal/snapshot"
	"github.com/larderapp/larder/internal/store"
)

func main() {
	// Missing .env is fine; real deployments use the environment directly.
	_ = godotenv.Load()

	logger := logging.Setup(os.Getenv("LARDER_LOG_LEVEL"))

	port := os.Getenv("LARDER_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("LARDER_DB_PATH")
	if dbPath == "" {
		dbPath = "larder.db"
	}

	baseURL := os.Getenv("LARDER_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:" + port
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	emailClient := email.NewClient(os.Getenv("LARDER_POSTMARK_TOKEN"), os.Getenv("LARDER_FROM_EMAIL"))

	var billingClient *billing.Client
	if key := os.Getenv("STRIPE_SECRET_KEY"); key != "" {
		billingClient = billing.NewClient(billing.Config{
			SecretKey:            key,
			WebhookSecret:        os.Getenv("STRIPE_WEBHOOK_SECRET"),
			PremiumPriceID:       os.Getenv("STRIPE_PREMIUM_PRICE_ID"),
			PremiumAnnualPriceID: os.Getenv("STRIPE_PREMIUM_ANNUAL_PRICE_ID"),
			SuccessURL:           baseURL + "/account?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:            baseURL + "/upgrade",
		})
	}

	pushSvc := push.NewService(
		os.Getenv("LARDER_VAPID_PUBLIC_KEY"),
		os.Getenv("LARDER_VAPID_PRIVATE_KEY"),
		os.Getenv("LARDER_FROM_EMAIL"),
	)

	srv := server.New(db, emailClient, billingClient, pushSvc, os.Getenv("LARDER_SECURE_COOKIES") == "true", logger)

	// Periodic subscription re-checks drive downgrade reconciliation even
	// when the user never opens the app.
	srv.Resolver().Start()
	defer srv.Resolver().Stop()

	snapshotMgr := snapshot.NewManager(snapshotConfig(dbPath), db, store.NewSnapshotStore(db), logger.With("component", "snapshot"))
	if snapshotMgr.Configured() {
		snapshotMgr.Start(context.Background())
		defer snapshotMgr.Stop()
	}

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					slog.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired sessions", "count", n)
				}
				if n, err := srv.AuthCodeStore().DeleteExpired(); err != nil {
					slog.Error("cleanup expired auth codes", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired auth codes", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("larder starting", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func snapshotConfig(dbPath string) snapshot.Config {
	hour := 3
	if s := os.Getenv("LARDER_SNAPSHOT_HOUR"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 23 {
			hour = n
		}
	}
	retention := 30
	if s := os.Getenv("LARDER_SNAPSHOT_RETENTION_DAYS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			retention = n
		}
	}
	return snapshot.Config{
		S3: snapshot.S3Config{
			Endpoint:  os.Getenv("LARDER_S3_ENDPOINT"),
			Bucket:    os.Getenv("LARDER_S3_BUCKET"),
			Region:    os.Getenv("LARDER_S3_REGION"),
			AccessKey: os.Getenv("LARDER_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("LARDER_S3_SECRET_KEY"),
		},
		DBPath:        dbPath,
		Passphrase:    os.Getenv("LARDER_SNAPSHOT_PASSPHRASE"),
		ScheduleHour:  hour,
		RetentionDays: retention,
	}
}
