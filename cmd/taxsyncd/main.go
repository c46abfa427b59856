// Command taxsyncd runs the taxsync API, the scheduled broker sync and the
// metrics server in one process.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"taxsync-pro/config"
	"taxsync-pro/internal/api"
	"taxsync-pro/internal/broker"
	"taxsync-pro/internal/gateway"
	"taxsync-pro/internal/logger"
	"taxsync-pro/internal/metrics"
	"taxsync-pro/internal/model"
	"taxsync-pro/internal/notification"
	"taxsync-pro/internal/report"
	"taxsync-pro/internal/scheduler"
	"taxsync-pro/internal/store/redis"
	"taxsync-pro/internal/store/sqlite"
	"taxsync-pro/internal/syncer"

	goredis "github.com/go-redis/redis/v8"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	cfg := config.Load()
	logger.Init("taxsyncd", logger.ParseLevel(cfg.LogLevel))
	log.Println("[taxsyncd] starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Fatalf("[taxsyncd] create data dir: %v", err)
	}
	store, err := sqlite.New(sqlite.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[taxsyncd] sqlite: %v", err)
	}
	defer store.Close()

	// Metrics + health
	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.CheckSQLite(ctx, store.DB())

	catalog, err := cfg.BrokerCatalog()
	if err != nil {
		log.Fatalf("[taxsyncd] broker catalog: %v", err)
	}
	factory := broker.NewFactory(catalog)
	factory.Limiter.OnWait = m.ObserveRateLimitWait

	hub := gateway.NewHub(100)
	hub.OnClientsChanged = func(n int) { m.WSClients.Set(float64(n)) }

	opts := syncer.Options{
		Notifier:       newNotifier(cfg),
		Metrics:        m,
		Health:         health,
		ThrottleWindow: cfg.SyncThrottle,
		ScoreTTL:       cfg.ScoreTTL,
		Events:         hub,
	}

	// Redis is optional: without it syncs are unthrottled, scores uncached
	// and events go straight to local websocket clients.
	var rdb *goredis.Client
	var scores model.ScoreCache
	cache, err := redis.New(redis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		log.Printf("[taxsyncd] WARNING: redis unavailable, running without cache: %v", err)
		health.SetRedisConnected(false)
	} else {
		defer cache.Close()
		rdb = cache.Client()
		health.SetRedisConnected(true)

		cache.Breaker().OnStateChange = func(from, to redis.State) {
			log.Printf("[redis] circuit breaker %s -> %s", from, to)
			m.SetBreakerState(int(to))
		}
		events := redis.NewBufferedPublisher(ctx, cache, 1000)
		events.OnBuffer = func() { m.RedisBufferedEvents.Inc() }
		events.OnFlush = func(n int) { log.Printf("[redis] flushed %d buffered sync events", n) }

		opts.Throttle = cache
		opts.Scores = cache
		opts.Events = events
		scores = cache
		go hub.Relay(ctx, cache.Subscribe)
	}
	health.StartLivenessChecker(ctx, rdb, store.DB(), 15*time.Second)

	svc := syncer.New(factory, store, store, opts)

	// Scheduled sync
	sched, err := scheduler.New(cfg.SyncSchedule, store, svc)
	if err != nil {
		log.Fatalf("[taxsyncd] scheduler: %v", err)
	}
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[taxsyncd] scheduler start: %v", err)
	}
	health.SetSchedulerRunning(true)

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	deps := api.Deps{
		Sync:         svc,
		Integrations: store,
		Snapshots:    store,
		ScoreTTL:     cfg.ScoreTTL,
		Catalog:      catalog,
		Scores:       scores,
		Renderer:     report.JSONRenderer{},
		Health:       health,
		Events:       hub,
	}
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.NewRouter(deps)}

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[taxsyncd] serving at http://localhost%s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[taxsyncd] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[taxsyncd] shutting down...")
	cancel()
	sched.Stop()
	health.SetSchedulerRunning(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
}

func newNotifier(cfg *config.Config) notification.Notifier {
	switch cfg.AlertChannel() {
	case config.AlertTelegram:
		log.Println("[taxsyncd] alerts via telegram")
		return notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	case config.AlertWebhook:
		log.Println("[taxsyncd] alerts via webhook")
		return notification.NewWebhookNotifier(cfg.AlertWebhookURL)
	default:
		return notification.NewLogNotifier()
	}
}
