package broker

import (
	"context"
	"net/http"
	"time"

	"taxsync-pro/internal/model"
)

// Source fetches one user's data from one broker.
type Source interface {
	Broker() string

	// Authenticate validates (and for OAuth brokers exchanges) the credentials.
	Authenticate(ctx context.Context) error

	// Holdings returns normalized holdings.
	Holdings(ctx context.Context) ([]model.Holding, error)

	// Transactions returns trades between from and to, inclusive.
	Transactions(ctx context.Context, from, to time.Time) ([]model.Transaction, error)

	// HealthCheck probes the broker API. It never fails; problems are
	// reported in the returned Health.
	HealthCheck(ctx context.Context) Health

	// Credentials returns the credentials as updated by Authenticate.
	Credentials() model.Credentials
}

// HealthState is the coarse broker API status.
type HealthState string

const (
	Healthy  HealthState = "healthy"
	Degraded HealthState = "degraded"
	Down     HealthState = "down"
)

// DegradedLatency is the response time above which a healthy API is
// reported degraded.
const DegradedLatency = 5 * time.Second

// Health is the result of a broker probe.
type Health struct {
	Broker    string      `json:"broker"`
	Status    HealthState `json:"status"`
	LatencyMS int64       `json:"latency"`
	CheckedAt time.Time   `json:"lastSync"`
	Errors    []string    `json:"errors"`
}

func healthFrom(broker string, start time.Time, err error) Health {
	latency := time.Since(start)
	h := Health{
		Broker:    broker,
		Status:    Healthy,
		LatencyMS: latency.Milliseconds(),
		CheckedAt: time.Now(),
		Errors:    []string{},
	}
	switch {
	case err != nil:
		h.Status = Down
		h.Errors = append(h.Errors, err.Error())
	case latency > DegradedLatency:
		h.Status = Degraded
	}
	return h
}

// Factory builds Sources from a catalog, a shared limiter and the normalizer
// registry.
type Factory struct {
	Catalog  Catalog
	Limiter  *RateLimiter
	Registry *Registry

	// HTTPClient is used by live sources. Defaults to a 15s-timeout client.
	HTTPClient *http.Client
}

// NewFactory wires a factory with its own limiter and registry.
func NewFactory(catalog Catalog) *Factory {
	return &Factory{
		Catalog:    catalog,
		Limiter:    NewRateLimiter(catalog),
		Registry:   NewRegistry(),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewSource picks the Source variant for broker once: Simulated for brokers
// that are not live, the SmartAPI source for Angel One logins with a TOTP
// secret, and the generic HTTP source otherwise.
func (f *Factory) NewSource(broker string, creds model.Credentials) (Source, error) {
	cfg, err := f.Catalog.Lookup(broker)
	if err != nil {
		return nil, err
	}
	norm, err := f.Registry.For(broker)
	if err != nil {
		return nil, err
	}

	switch {
	case !cfg.IsLive:
		return NewSimulated(cfg, creds), nil
	case broker == "angelone" && creds.TOTPSecret != "":
		return NewAngelOne(cfg, creds, f.Limiter, norm, f.HTTPClient), nil
	default:
		return NewLive(cfg, creds, f.Limiter, norm, f.HTTPClient), nil
	}
}
