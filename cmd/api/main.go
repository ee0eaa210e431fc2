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

	"voice-agent-platform/internal/agents"
	"voice-agent-platform/internal/analytics"
	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/batch"
	"voice-agent-platform/internal/billing"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/contacts"
	"voice-agent-platform/internal/credits"
	"voice-agent-platform/internal/httpapi"
	"voice-agent-platform/internal/jobs"
	"voice-agent-platform/internal/llm"
	"voice-agent-platform/internal/metrics"
	"voice-agent-platform/internal/reporting"
	"voice-agent-platform/internal/scheduling"
	"voice-agent-platform/internal/voice"
	"voice-agent-platform/pkg/logger"
	"voice-agent-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/cors"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.DB.URL, utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// Redis only fences scheduler runs across replicas; a single replica runs without it.
	var runLock scheduling.Locker = scheduling.NopLocker{}
	if cfg.Redis.Addr != "" {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		runLock = scheduling.NewRedisLocker(rdb)
	} else {
		log.Warn("REDIS_ADDR not set, scheduler runs are not fenced across processes")
	}

	provider, err := voice.NewClient(cfg.Provider)
	if err != nil {
		log.Error("voice provider init failed", "err", err)
		os.Exit(1)
	}

	// Services
	callHistory := calls.NewPostgresRepo(db)
	registry := agents.NewRegistry(agents.NewPostgresRepo(db))
	contactSvc := contacts.NewService(contacts.NewPostgresStore(db), cfg.App.PhoneRegion)
	creditSvc := credits.NewService(db)

	initiator := calls.NewInitiator(provider, callHistory, contactSvc, cfg.Provider.PhoneNumberID, cfg.App.PhoneRegion)
	backfill := analytics.NewBackfill(analytics.NewPostgresRepo(db), provider, callHistory,
		analytics.WithAgentNames(registry),
		analytics.WithUsageCharger(creditSvc, cfg.Credits.PerMinute),
	)
	scheduledRepo := scheduling.NewPostgresRepo(db)
	executor := scheduling.NewExecutor(scheduledRepo, registry, initiator, backfill, runLock)

	billingSvc := billing.NewService(billing.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		BaseURL:       cfg.App.BaseURL,
	}, billing.DefaultCatalog(cfg.Credits.FreeGrant), creditSvc)

	h := httpapi.Handlers{
		Calls:          initiator,
		Status:         calls.NewStatusChecker(provider, callHistory),
		Batches:        batch.NewSubmitter(provider, batch.NewPostgresRepo(db)),
		Scheduler:      executor,
		ScheduledCalls: scheduling.NewService(scheduledRepo, registry, cfg.App.PhoneRegion),
		Analytics:      backfill,
		Conversations:  analytics.NewPostgresRepo(db),
		CallerContext:  contacts.NewContextBuilder(contactSvc, registry),
		Contacts:       contactSvc,
		Agents:         registry,
		Credits:        creditSvc,
		Billing:        billingSvc,
		Reports:        reporting.NewService(reporting.NewSQLRepo(db)),
		Audit:          audit.NewService(audit.NewPostgresRepo(db)),
	}
	if c := llm.NewClient(cfg.OpenAI); c != nil {
		h.LLM = c
	} else {
		log.Warn("OPENAI_API_KEY not set, llm-completion is disabled")
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(metrics.Middleware())

	registerRoutes(r, routeDeps{
		handlers:   h,
		auth:       authManager,
		serviceKey: cfg.DB.ServiceKey,
		balances:   creditSvc,
		db:         db,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.App.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "apikey", "x-client-info", "Idempotency-Key"},
	})

	var cronManager *jobs.CronManager
	if cfg.Scheduler.Enabled {
		cronManager = jobs.NewCronManager(executor, backfill, log)
		if err := cronManager.SetupJobs(jobs.Specs{
			Scheduled: cfg.Scheduler.ScheduledSpec,
			Analytics: cfg.Scheduler.AnalyticsSpec,
		}); err != nil {
			log.Error("cron setup failed", "err", err)
			os.Exit(1)
		}
		cronManager.Start()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           corsHandler.Handler(r),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if cronManager != nil {
		cronManager.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
