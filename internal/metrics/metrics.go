package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the sync service.
type Metrics struct {
	SyncRuns        *prometheus.CounterVec   // labels: status=success|partial|failed|throttled
	SyncDuration    prometheus.Histogram     // whole run, fetch to persist
	BrokerFetches   *prometheus.CounterVec   // labels: broker, status
	BrokerFetchDur  *prometheus.HistogramVec // labels: broker
	RateLimitWait   *prometheus.HistogramVec // labels: broker
	SQLiteCommitDur prometheus.Histogram

	// Engine output
	HoldingsClassified *prometheus.CounterVec // labels: category
	Opportunities      *prometheus.GaugeVec   // labels: priority
	EfficiencyScore    prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedEvents      prometheus.Counter

	// Outbound surfaces
	WSClients     prometheus.Gauge
	Notifications *prometheus.CounterVec // labels: status=sent|failed
}

// NewMetrics registers all metrics with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxsync_sync_runs_total",
			Help: "Portfolio sync runs by outcome",
		}, []string{"status"}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taxsync_sync_duration_seconds",
			Help:    "Wall time of a full portfolio sync",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BrokerFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxsync_broker_fetch_total",
			Help: "Broker holdings fetches by outcome",
		}, []string{"broker", "status"}),
		BrokerFetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taxsync_broker_fetch_duration_seconds",
			Help:    "Broker holdings plus transactions fetch latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"broker"}),
		RateLimitWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taxsync_rate_limit_wait_seconds",
			Help:    "Time spent waiting on a broker's rate limiter",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		}, []string{"broker"}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taxsync_sqlite_commit_duration_seconds",
			Help:    "SQLite snapshot replace latency",
			Buckets: prometheus.DefBuckets,
		}),

		HoldingsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxsync_holdings_classified_total",
			Help: "Holdings classified by tax category",
		}, []string{"category"}),
		Opportunities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "taxsync_opportunities",
			Help: "Opportunities found in the last sync by priority",
		}, []string{"priority"}),
		EfficiencyScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taxsync_efficiency_score",
			Help:    "Distribution of computed efficiency scores",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taxsync_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taxsync_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taxsync_redis_buffered_events_total",
			Help: "Sync events buffered locally while the Redis breaker was open",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taxsync_ws_clients",
			Help: "Connected dashboard websocket clients",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxsync_notifications_total",
			Help: "Opportunity alerts by delivery outcome",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.SyncRuns,
		m.SyncDuration,
		m.BrokerFetches,
		m.BrokerFetchDur,
		m.RateLimitWait,
		m.SQLiteCommitDur,
		m.HoldingsClassified,
		m.Opportunities,
		m.EfficiencyScore,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedEvents,
		m.WSClients,
		m.Notifications,
	)

	return m
}

// ObserveRateLimitWait is shaped to plug into broker.RateLimiter.OnWait.
func (m *Metrics) ObserveRateLimitWait(broker string, waited time.Duration) {
	m.RateLimitWait.WithLabelValues(broker).Observe(waited.Seconds())
}

// SetBreakerState records a breaker transition. state follows the
// closed=0, open=1, half-open=2 encoding.
func (m *Metrics) SetBreakerState(state int) {
	m.RedisCircuitBreakerState.Set(float64(state))
	if state == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected   bool      `json:"redis_connected"`
	SQLiteOK         bool      `json:"sqlite_ok"`
	SchedulerRunning bool      `json:"scheduler_running"`
	LastSyncAt       time.Time `json:"last_sync_at"`
	LastSyncStatus   string    `json:"last_sync_status"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSchedulerRunning(v bool) {
	h.mu.Lock()
	h.SchedulerRunning = v
	h.mu.Unlock()
}

// RecordSync stamps the outcome of the most recent sync run.
func (h *HealthStatus) RecordSync(status string, at time.Time) {
	h.mu.Lock()
	h.LastSyncStatus = status
	h.LastSyncAt = at
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// Snapshot is the JSON body served on /healthz.
type Snapshot struct {
	Status           string  `json:"status"`
	Uptime           string  `json:"uptime"`
	RedisConnected   bool    `json:"redis_connected"`
	RedisLatencyMs   float64 `json:"redis_latency_ms"`
	SQLiteOK         bool    `json:"sqlite_ok"`
	SQLiteLatencyMs  float64 `json:"sqlite_latency_ms"`
	SchedulerRunning bool    `json:"scheduler_running"`
	LastSyncAt       string  `json:"last_sync_at,omitempty"`
	LastSyncStatus   string  `json:"last_sync_status,omitempty"`
	LastCheckAt      string  `json:"last_check_at"`
}

// Snapshot reports overall status. SQLite is required; Redis only degrades
// since the sync path fails open without it.
func (h *HealthStatus) Snapshot() (Snapshot, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	switch {
	case !h.SQLiteOK:
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	case !h.RedisConnected:
		overallStatus = "degraded"
	}

	s := Snapshot{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		SQLiteOK:         h.SQLiteOK,
		SQLiteLatencyMs:  h.SQLiteLatencyMs,
		SchedulerRunning: h.SchedulerRunning,
		LastSyncStatus:   h.LastSyncStatus,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}
	if !h.LastSyncAt.IsZero() {
		s.LastSyncAt = h.LastSyncAt.Format(time.RFC3339)
	}
	return s, httpCode
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, httpCode := h.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
