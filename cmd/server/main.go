package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/sentryview/sentryview/internal/ai"
	"github.com/sentryview/sentryview/internal/alerts"
	"github.com/sentryview/sentryview/internal/api"
	"github.com/sentryview/sentryview/internal/bridge"
	"github.com/sentryview/sentryview/internal/capture"
	"github.com/sentryview/sentryview/internal/config"
	"github.com/sentryview/sentryview/internal/correlate"
	"github.com/sentryview/sentryview/internal/data"
	"github.com/sentryview/sentryview/internal/motion"
	"github.com/sentryview/sentryview/internal/pipeline"
	"github.com/sentryview/sentryview/internal/ratelimit"
	"github.com/sentryview/sentryview/internal/realtime"
	"github.com/sentryview/sentryview/internal/tokens"
)

const version = "1.0.0"

func main() {
	// 1. Config
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/default.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// 2. DB Init
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	// 3. Shared clients
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Printf("[WARN] NATS connect failed, automation bridge disabled: %v", err)
		}
	}

	// 4. Models
	cameras := data.CameraModel{DB: db}
	detections := data.DetectionModel{DB: db}
	events := data.EventModel{DB: db}
	groups := data.GroupModel{DB: db}
	rules := data.AlertRuleModel{DB: db}
	notifications := data.NotificationModel{DB: db}
	webhookAttempts := data.WebhookAttemptModel{DB: db}

	// 5. AI orchestration
	providers := make([]ai.Provider, 0, len(cfg.AI.Providers))
	for _, pc := range cfg.AI.Providers {
		modes := make([]ai.Mode, 0, len(pc.Modes))
		for _, m := range pc.Modes {
			modes = append(modes, ai.Mode(m))
		}
		costs := make(map[ai.Mode]float64, len(pc.CostPerCall))
		for m, c := range pc.CostPerCall {
			costs[ai.Mode(m)] = c
		}
		p, err := ai.NewProvider(ai.Settings{
			Name:        pc.Name,
			Kind:        pc.Kind,
			BaseURL:     pc.BaseURL,
			APIKey:      pc.APIKey,
			Model:       pc.Model,
			Modes:       modes,
			CostPerCall: costs,
		}, nil)
		if err != nil {
			log.Fatalf("AI provider %q: %v", pc.Name, err)
		}
		providers = append(providers, p)
	}

	circuit := ai.NewCircuitBreaker(cfg.AI.Circuit.Threshold, cfg.AI.Circuit.Cooldown.Std())
	caps := make(map[string]ai.CapConfig, len(providers))
	for _, p := range providers {
		caps[p.Name()] = ai.CapConfig{
			DailyUSD:   cfg.AI.Caps.DailyUSD,
			MonthlyUSD: cfg.AI.Caps.MonthlyUSD,
		}
	}
	ledger := ai.NewCostLedger(rdb, caps)
	orchestrator := ai.NewOrchestrator(providers, circuit, ledger, events, ai.OrchestratorConfig{
		Prompt:      cfg.AI.Prompt,
		CallTimeout: cfg.AI.CallTimeout.Std(),
		MaxRetries:  cfg.AI.MaxRetries,
	})

	// 6. Realtime + automation bridge
	hub := realtime.NewHub()
	var publisher *bridge.Publisher
	if nc != nil {
		publisher = bridge.NewPublisher(nc, 3)
	}
	notifier := &fanout{hub: hub, bridge: publisher}

	// 7. Correlation, alerts, pipeline
	correlator := correlate.New(events, groups, cfg.Correlation.Window.Std())
	dispatcher := alerts.NewWebhookDispatcher(webhookAttempts, cfg.Alerts.WebhookMaxRetries, cfg.Alerts.WebhookRetryDelay.Std())
	alertEngine := alerts.New(rules, notifications, dispatcher, notifier)

	pipe := pipeline.New(orchestrator, detections, events, correlator, alertEngine, notifier, pipeline.Config{
		QueueSize:     cfg.Pipeline.QueueSize,
		Workers:       cfg.Pipeline.Workers,
		DedupTTL:      cfg.Pipeline.DedupTTL.Std(),
		ShutdownGrace: cfg.Pipeline.ShutdownGrace.Std(),
	})

	// 8. Capture
	detectorFactory := func(cam *data.Camera) (capture.Detector, error) {
		return motion.New(cam)
	}
	manager := capture.NewManager(capture.NewSource, detectorFactory, pipe, notifier.CameraStatusChanged, cameras, capture.BackoffConfig{
		Base:        cfg.Capture.BackoffBase.Std(),
		Max:         cfg.Capture.BackoffMax.Std(),
		MaxAttempts: cfg.Capture.MaxAttempts,
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go hub.Run(rootCtx)
	pipe.Start(rootCtx)

	startCtx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	cams, err := cameras.ListEnabled(startCtx)
	cancel()
	if err != nil {
		log.Fatalf("Camera load error: %v", err)
	}
	for _, cam := range cams {
		manager.StartCamera(rootCtx, cam)
	}
	log.Printf("[Server] started capture for %d cameras", len(cams))

	// 9. Config hot reload (capture backoff and camera set only; structural
	// settings need a restart)
	config.Watch(rootCtx, cfgPath, func(newCfg *config.Config) {
		reloadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		cams, err := cameras.ListEnabled(reloadCtx)
		if err != nil {
			log.Printf("[ERROR] Config reload: camera list: %v", err)
			return
		}
		for _, cam := range cams {
			manager.StartCamera(rootCtx, cam)
		}
	})

	// 10. HTTP surface
	tokenMgr := tokens.NewManager(cfg.Server.JWTSecret, 0)
	router := api.NewRouter(api.Handlers{
		Events:        &api.EventHandler{Events: events, Reanalyzer: orchestrator},
		Cameras:       &api.CameraHandler{Cameras: cameras, Capture: manager},
		Notifications: &api.NotificationHandler{Notifications: notifications},
		Health:        &api.HealthHandler{DB: db, Redis: rdb, Version: version},
		WS:            &api.WSHandler{Tokens: tokenMgr, Hub: hub},
		Limiter:       ratelimit.NewLimiter(rdb),
		APILimit: ratelimit.Limit{
			Rate:   cfg.Server.RateLimit.Rate,
			Window: cfg.Server.RateLimit.Window.Std(),
		},
	}, tokenMgr)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("[Server] shutdown requested")

	// Graceful shutdown: stop intake first, drain the pipeline, then close
	// the HTTP surface.
	manager.Shutdown(10 * time.Second)
	pipe.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown error: %v", err)
	}
	if nc != nil {
		nc.Close()
	}
	log.Println("[Server] stopped gracefully")
}

// fanout forwards pipeline signals to every configured consumer.
type fanout struct {
	hub    *realtime.Hub
	bridge *bridge.Publisher
}

func (f *fanout) EventCreated(evt *data.Event) {
	f.hub.EventCreated(evt)
	if f.bridge != nil {
		f.bridge.EventCreated(evt)
	}
}

func (f *fanout) AlertTriggered(rule *data.AlertRule, evt *data.Event) {
	f.hub.AlertTriggered(rule, evt)
	if f.bridge != nil {
		f.bridge.AlertTriggered(rule, evt)
	}
}

func (f *fanout) NotificationCreated(n *data.Notification) {
	f.hub.NotificationCreated(n)
}

func (f *fanout) CameraStatusChanged(change capture.StatusChange) {
	f.hub.CameraStatusChanged(change)
	if f.bridge != nil {
		f.bridge.CameraStatusChanged(change)
	}
}
