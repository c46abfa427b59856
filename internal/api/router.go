// Package api serves the taxsync REST endpoints.
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"taxsync-pro/internal/broker"
	"taxsync-pro/internal/model"
	"taxsync-pro/internal/report"
	"taxsync-pro/internal/syncer"
	"taxsync-pro/internal/taxcalc"
)

// Syncer is the part of *syncer.Service the API drives.
type Syncer interface {
	Sync(ctx context.Context, req syncer.Request) (*syncer.Result, error)
	Snapshot(ctx context.Context, userID string) (*syncer.Result, error)
	Connect(ctx context.Context, userID, brokerName string, creds model.Credentials) (*model.Integration, error)
	BrokerHealth(ctx context.Context, userID string) ([]broker.Health, error)
}

// Deps are the router's collaborators. Scores, Health and Events are optional.
type Deps struct {
	Sync         Syncer
	Integrations model.IntegrationStore
	Snapshots    model.SnapshotStore
	Scores       model.ScoreCache
	ScoreTTL     time.Duration
	Catalog      broker.Catalog
	Renderer     report.Renderer
	Matcher      *taxcalc.Matcher

	// Health answers /api/v1/health when set.
	Health http.Handler
	// Events serves the /ws sync-event stream when set.
	Events http.Handler

	Now func() time.Time
}

type server struct {
	Deps
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(d Deps) *http.ServeMux {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.ScoreTTL <= 0 {
		d.ScoreTTL = 10 * time.Minute
	}
	if d.Matcher == nil {
		d.Matcher = taxcalc.NewMatcher(taxcalc.DefaultMatcherConfig())
	}
	if d.Renderer == nil {
		d.Renderer = report.JSONRenderer{}
	}
	s := &server{Deps: d}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		if s.Health != nil {
			s.Health.ServeHTTP(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Brokers
	mux.HandleFunc("/api/v1/brokers/connect", s.only(http.MethodPost, s.connectBroker))
	mux.HandleFunc("/api/v1/brokers", s.only(http.MethodGet, s.listBrokers))

	// Portfolio
	mux.HandleFunc("/api/v1/portfolio/sync", s.only(http.MethodPost, s.syncPortfolio))
	mux.HandleFunc("/api/v1/portfolio", s.only(http.MethodGet, s.getPortfolio))
	mux.HandleFunc("/api/v1/tax-opportunities", s.only(http.MethodGet, s.taxOpportunities))

	// Tax tools
	mux.HandleFunc("/api/v1/tax/calculate", s.only(http.MethodPost, s.calculate))
	mux.HandleFunc("/api/v1/tax/wash-sale", s.only(http.MethodPost, s.washSale))
	mux.HandleFunc("/api/v1/tax/efficiency", s.only(http.MethodGet, s.efficiency))
	mux.HandleFunc("/api/v1/tax/exemption", s.only(http.MethodGet, s.exemption))

	// Reports
	mux.HandleFunc("/api/v1/reports", s.only(http.MethodPost, s.generateReport))

	if s.Events != nil {
		mux.Handle("/ws", s.Events)
	}

	log.Printf("[api] routes registered, %d brokers in catalog", len(s.Catalog))
	return mux
}

// only wraps h with CORS headers and a method check.
func (s *server) only(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
			return
		}
		h(w, r)
	}
}
