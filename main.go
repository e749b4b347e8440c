package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"disaster-alerts-go/internal/aggregator"
	"disaster-alerts-go/internal/config"
	"disaster-alerts-go/internal/handlers"
	"disaster-alerts-go/internal/ingest"
	"disaster-alerts-go/internal/metrics"
	"disaster-alerts-go/internal/models"
	"disaster-alerts-go/internal/sources"
	"disaster-alerts-go/internal/store"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// Persistence: PostgreSQL when configured, process memory otherwise
	var st store.Store
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer pgStore.Close()

		if err := pgStore.RunMigrations(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Database migrations completed")
		st = pgStore
	} else {
		log.Println("DATABASE_URL not set, storing alerts in memory")
		st = store.NewMemoryStore()
	}

	// Live alert events over Redis pub/sub
	var bus store.EventBus
	if cfg.Redis.Addr != "" {
		redisBus := store.NewRedisBus(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisBus.Ping(ctx); err != nil {
			log.Printf("Redis unavailable at %s, live events disabled: %v", cfg.Redis.Addr, err)
			redisBus.Close()
		} else {
			defer redisBus.Close()
			bus = redisBus
		}
	} else {
		log.Println("REDIS_ADDR not set, live events disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	srcs := sources.NewFromConfig(cfg)
	agg := aggregator.New(srcs, aggregator.NewCache(cfg.Alerts.CacheTTL), cfg.Alerts.FetchTimeout, m)
	writer := ingest.NewWriter(agg, st, m)

	pusher, err := handlers.NewPusher(cfg.Push, st)
	if err != nil {
		log.Printf("Web push disabled: %v", err)
		pusher = nil
	}

	h := handlers.NewHandler(st, bus, agg, writer, pusher, cfg)

	// Initialize operator admin user
	h.InitAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)

	staff := func(next http.HandlerFunc) http.HandlerFunc {
		return h.AuthMiddleware(h.RequireUser((*models.User).CanPublishAlerts)(next))
	}
	admin := func(next http.HandlerFunc) http.HandlerFunc {
		return h.AuthMiddleware(h.RoleMiddleware(models.RoleAdmin)(next))
	}

	mux := http.NewServeMux()

	// External feed
	mux.HandleFunc("/api/disaleart", h.ExternalAlertsHandler)
	mux.HandleFunc("/api/disaleart/save", h.SaveExternalAlertsHandler)

	// Stored alerts
	mux.HandleFunc("/api/alerts", h.ListAlertsHandler)
	mux.HandleFunc("/api/alerts/events", h.SSEHandler)
	mux.HandleFunc("/api/alerts/admin/create", staff(h.CreateAlertHandler))

	// Auth
	mux.HandleFunc("/api/auth/signup", h.SignupHandler)
	mux.HandleFunc("/api/auth/login", h.LoginHandler)
	mux.HandleFunc("/api/auth/logout", h.LogoutHandler)
	mux.HandleFunc("/api/auth/me", h.AuthMiddleware(h.CurrentUserHandler))
	mux.HandleFunc("/api/auth/profile", h.AuthMiddleware(h.UpdateProfileHandler))
	mux.HandleFunc("/api/auth/password", h.AuthMiddleware(h.ChangePasswordHandler))
	mux.HandleFunc("/api/auth/2fa/setup", h.AuthMiddleware(h.Setup2FAHandler))
	mux.HandleFunc("/api/auth/2fa/enable", h.AuthMiddleware(h.Enable2FAHandler))
	mux.HandleFunc("/api/auth/2fa/disable", h.AuthMiddleware(h.Disable2FAHandler))

	// Web push
	mux.HandleFunc("/api/push/vapid", h.VAPIDKeyHandler)
	mux.HandleFunc("/api/push/subscribe", h.AuthMiddleware(h.SubscribePushHandler))

	// Admin
	mux.HandleFunc("/api/admin/users", admin(h.UsersHandler))
	mux.HandleFunc("/api/admin/users/", admin(h.UserHandler))
	mux.HandleFunc("/api/admin/reset-password", admin(h.AdminResetPasswordHandler))
	mux.HandleFunc("/api/admin/disable-2fa", admin(h.AdminDisable2FAHandler))
	mux.HandleFunc("/api/admin/audit", admin(h.AuditLogsHandler))

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", h.HealthHandler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Println("Listening on :" + cfg.Port)
		log.Printf("Serving %d external alert sources", len(srcs))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
