// Package syncer runs a portfolio sync for one user: fetch every connected
// broker concurrently, consolidate, classify, find harvesting opportunities,
// then persist and announce the result.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"sync"
	"time"

	"taxsync-pro/internal/broker"
	"taxsync-pro/internal/logger"
	"taxsync-pro/internal/metrics"
	"taxsync-pro/internal/model"
	"taxsync-pro/internal/notification"
	"taxsync-pro/internal/portfolio"
	"taxsync-pro/internal/taxcalc"

	"github.com/google/uuid"
)

var (
	// ErrNoIntegrations is returned when the user has no connected broker
	// matching the request.
	ErrNoIntegrations = errors.New("no connected broker integrations")

	// ErrAllBrokersFailed is returned when no broker produced holdings. The
	// previous snapshot is left untouched.
	ErrAllBrokersFailed = errors.New("every broker failed to sync")
)

// SourceFactory builds a broker Source; *broker.Factory satisfies it.
type SourceFactory interface {
	NewSource(brokerName string, creds model.Credentials) (broker.Source, error)
}

// Options carries the optional collaborators. Nil fields are skipped.
type Options struct {
	Throttle model.SyncThrottle
	Scores   model.ScoreCache
	Events   model.EventPublisher
	Notifier notification.Notifier
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus

	// Matcher defaults to taxcalc.DefaultMatcherConfig.
	Matcher *taxcalc.MatcherConfig

	ThrottleWindow time.Duration // default 5m
	ScoreTTL       time.Duration // default 10m
	HistoryYears   int           // transaction lookback, default 2

	Now func() time.Time
}

// Service orchestrates syncs. Safe for concurrent use.
type Service struct {
	sources      SourceFactory
	integrations model.IntegrationStore
	snapshots    model.SnapshotStore
	opts         Options
	matcher      *taxcalc.Matcher
}

// New creates a Service.
func New(sources SourceFactory, integrations model.IntegrationStore, snapshots model.SnapshotStore, opts Options) *Service {
	if opts.ThrottleWindow <= 0 {
		opts.ThrottleWindow = 5 * time.Minute
	}
	if opts.ScoreTTL <= 0 {
		opts.ScoreTTL = 10 * time.Minute
	}
	if opts.HistoryYears <= 0 {
		opts.HistoryYears = 2
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cfg := taxcalc.DefaultMatcherConfig()
	if opts.Matcher != nil {
		cfg = *opts.Matcher
	}
	return &Service{
		sources:      sources,
		integrations: integrations,
		snapshots:    snapshots,
		opts:         opts,
		matcher:      taxcalc.NewMatcher(cfg),
	}
}

// Request selects what to sync. An empty Broker syncs every connected broker.
type Request struct {
	UserID string `json:"userId"`
	Broker string `json:"brokerName,omitempty"`
	Force  bool   `json:"forceSync"`
}

// BrokerResult is one broker's outcome within a run.
type BrokerResult struct {
	Broker       string           `json:"broker"`
	Status       model.SyncStatus `json:"status"`
	Holdings     int              `json:"holdings"`
	Transactions int              `json:"transactions"`
	Error        string           `json:"error,omitempty"`
	LastSync     time.Time        `json:"lastSync,omitempty"`
}

// Result is a classified portfolio snapshot, fresh or read back from storage.
type Result struct {
	RunID         string                    `json:"runId,omitempty"`
	UserID        string                    `json:"userId"`
	Cached        bool                      `json:"cached"`
	Brokers       []BrokerResult            `json:"syncResult"`
	Holdings      []model.ClassifiedHolding `json:"portfolio"`
	Opportunities []model.Opportunity       `json:"taxOpportunities"`
	Score         model.EfficiencyScore     `json:"efficiencyScore"`
	Summary       portfolio.Summary         `json:"summary"`
	SyncedAt      time.Time                 `json:"syncTimestamp"`
}

type fetchResult struct {
	integration model.Integration
	holdings    []model.Holding
	txns        []model.Transaction
	creds       model.Credentials
	err         error
}

// Sync runs one sync for req.UserID. Within the throttle window, and unless
// req.Force is set, it returns the stored snapshot with Cached set instead.
// A broker that fails keeps its holdings from the previous snapshot.
func (s *Service) Sync(ctx context.Context, req Request) (*Result, error) {
	if req.UserID == "" {
		return nil, &model.ValidationError{Field: "userId", Reason: "required"}
	}

	all, err := s.integrations.ListIntegrations(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	connected := make(map[string]bool)
	var targets []model.Integration
	for _, in := range all {
		if !in.IsConnected {
			continue
		}
		connected[in.Broker] = true
		if req.Broker == "" || in.Broker == req.Broker {
			targets = append(targets, in)
		}
	}
	if len(targets) == 0 {
		if req.Broker != "" {
			return nil, fmt.Errorf("%w: %s", ErrNoIntegrations, req.Broker)
		}
		return nil, ErrNoIntegrations
	}

	if !req.Force && !s.acquire(ctx, req.UserID) {
		log.Printf("[sync] %s synced within %s, serving stored snapshot", req.UserID, s.opts.ThrottleWindow)
		s.countRun("throttled")
		return s.Snapshot(ctx, req.UserID)
	}

	now := s.opts.Now()
	runID := uuid.NewString()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(req.UserID, now))
	ctx = logger.With(ctx, "user", req.UserID, "run", runID)
	logger.FromContext(ctx).Info("sync started", slog.Int("brokers", len(targets)))
	s.publish(ctx, model.SyncEvent{Type: model.EventSyncStarted, UserID: req.UserID, RunID: runID, TS: now})

	fetched := s.fetchAll(ctx, targets, now, runID)

	succeeded := make(map[string]bool)
	var fresh []model.Holding
	var txns []model.Transaction
	var failures []string
	for _, f := range fetched {
		if f.err != nil {
			failures = append(failures, f.err.Error())
			continue
		}
		succeeded[f.integration.Broker] = true
		fresh = append(fresh, f.holdings...)
		txns = append(txns, f.txns...)
	}

	if len(succeeded) == 0 {
		s.recordBrokers(ctx, req.UserID, fetched, now)
		s.release(ctx, req.UserID)
		s.countRun("failed")
		s.publish(ctx, model.SyncEvent{Type: model.EventSyncCompleted, UserID: req.UserID, RunID: runID,
			Error: ErrAllBrokersFailed.Error(), TS: s.opts.Now()})
		return nil, fmt.Errorf("%w: %s", ErrAllBrokersFailed, strings.Join(failures, "; "))
	}

	carried := s.carryOver(ctx, req.UserID, connected, succeeded)
	merged := portfolio.Merge(append(fresh, carried...))
	classified := taxcalc.ClassifyAll(merged, now)
	opps := s.matcher.WithPurchases(model.Purchases(txns)).FindOpportunities(classified, now)
	score := taxcalc.Score(classified)

	if err := s.persist(ctx, req.UserID, classified, opps, now); err != nil {
		s.release(ctx, req.UserID)
		s.countRun("failed")
		return nil, err
	}
	s.recordBrokers(ctx, req.UserID, fetched, now)

	s.cacheScore(ctx, req.UserID, score)

	res := &Result{
		RunID:         runID,
		UserID:        req.UserID,
		Brokers:       brokerResults(fetched, now),
		Holdings:      classified,
		Opportunities: opps,
		Score:         score,
		Summary:       portfolio.Summarize(classified, opps),
		SyncedAt:      now,
	}

	status := "success"
	if len(failures) > 0 {
		status = "partial"
	}
	s.countRun(status)
	s.observe(res, now)
	s.notify(ctx, res, now)

	s.publish(ctx, model.SyncEvent{Type: model.EventSyncCompleted, UserID: req.UserID, RunID: runID,
		Holdings: len(classified), Opportunities: len(opps), TS: s.opts.Now()})
	logger.FromContext(ctx).Info("sync completed", slog.String("status", status),
		slog.Int("holdings", len(classified)), slog.Int("opportunities", len(opps)), slog.Int("score", score.Score))
	return res, nil
}

// fetchAll runs one goroutine per integration and returns results in input order.
func (s *Service) fetchAll(ctx context.Context, targets []model.Integration, now time.Time, runID string) []fetchResult {
	out := make([]fetchResult, len(targets))
	from := now.AddDate(-s.opts.HistoryYears, 0, 0)

	var wg sync.WaitGroup
	for i, in := range targets {
		wg.Add(1)
		go func(i int, in model.Integration) {
			defer wg.Done()
			start := time.Now()
			f := s.fetch(ctx, in, from, now)
			out[i] = f

			status := "success"
			ev := model.SyncEvent{Type: model.EventBrokerSynced, UserID: in.UserID, RunID: runID, Broker: in.Broker,
				Holdings: len(f.holdings), TS: s.opts.Now()}
			if f.err != nil {
				status = "error"
				ev.Type, ev.Error = model.EventBrokerFailed, f.err.Error()
				logger.FromContext(ctx).Warn("broker sync failed",
					slog.String("broker", in.Broker), slog.String("error", f.err.Error()))
			}
			if m := s.opts.Metrics; m != nil {
				m.BrokerFetches.WithLabelValues(in.Broker, status).Inc()
				m.BrokerFetchDur.WithLabelValues(in.Broker).Observe(time.Since(start).Seconds())
			}
			s.publish(ctx, ev)
		}(i, in)
	}
	wg.Wait()
	return out
}

func (s *Service) fetch(ctx context.Context, in model.Integration, from, now time.Time) fetchResult {
	f := fetchResult{integration: in, creds: in.Credentials}

	src, err := s.sources.NewSource(in.Broker, in.Credentials)
	if err != nil {
		f.err = err
		return f
	}
	if err := src.Authenticate(ctx); err != nil {
		f.err = err
		return f
	}
	f.creds = src.Credentials()

	holdings, err := src.Holdings(ctx)
	if err != nil {
		f.err = err
		return f
	}

	txns, err := src.Transactions(ctx, from, now)
	if err != nil {
		// Purchase dates fall back to estimates; the holdings are still usable.
		log.Printf("[sync] %s transactions for %s: %v", in.Broker, in.UserID, err)
		txns = nil
	}
	f.holdings = portfolio.ApplyPurchaseDates(holdings, txns, now)
	f.txns = txns
	return f
}

// carryOver returns the previous snapshot's lots for brokers that are still
// connected but were not refreshed in this run.
func (s *Service) carryOver(ctx context.Context, userID string, connected, refreshed map[string]bool) []model.Holding {
	keep := make(map[string]bool)
	for b := range connected {
		if !refreshed[b] {
			keep[b] = true
		}
	}
	if len(keep) == 0 {
		return nil
	}

	prev, err := s.snapshots.ReadPortfolio(ctx, userID)
	if err != nil {
		log.Printf("[sync] read previous snapshot for %s: %v", userID, err)
		return nil
	}
	holdings := make([]model.Holding, len(prev))
	for i, h := range prev {
		holdings[i] = h.Holding
	}
	carried := portfolio.FromBrokers(portfolio.Split(holdings), keep)
	if len(carried) > 0 {
		log.Printf("[sync] carrying %d stale lots for %s", len(carried), userID)
	}
	return carried
}

// cacheScore stores the new score. If that fails the previous entry is
// dropped so the stale score is not served until its TTL runs out.
func (s *Service) cacheScore(ctx context.Context, userID string, score model.EfficiencyScore) {
	if s.opts.Scores == nil {
		return
	}
	err := s.opts.Scores.SetScore(ctx, userID, score, s.opts.ScoreTTL)
	if err == nil {
		return
	}
	log.Printf("[sync] cache score for %s: %v", userID, err)
	if err := s.opts.Scores.InvalidateScore(ctx, userID); err != nil {
		log.Printf("[sync] drop stale score for %s: %v", userID, err)
	}
}

func (s *Service) persist(ctx context.Context, userID string, holdings []model.ClassifiedHolding, opps []model.Opportunity, now time.Time) error {
	start := time.Now()
	if err := s.snapshots.ReplaceSnapshot(ctx, userID, holdings, opps, now); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if m := s.opts.Metrics; m != nil {
		m.SQLiteCommitDur.Observe(time.Since(start).Seconds())
	}
	return nil
}

// recordBrokers stamps each integration's sync outcome and stores refreshed
// credentials.
func (s *Service) recordBrokers(ctx context.Context, userID string, fetched []fetchResult, now time.Time) {
	for _, f := range fetched {
		status, msg := model.SyncSuccess, ""
		if f.err != nil {
			status, msg = model.SyncError, f.err.Error()
		}
		if f.err == nil && f.creds != f.integration.Credentials {
			in := f.integration
			in.Credentials = f.creds
			if err := s.integrations.UpsertIntegration(ctx, in); err != nil {
				log.Printf("[sync] store refreshed credentials for %s/%s: %v", userID, in.Broker, err)
			}
		}
		if err := s.integrations.RecordSync(ctx, userID, f.integration.Broker, status, msg, now); err != nil {
			log.Printf("[sync] record sync for %s/%s: %v", userID, f.integration.Broker, err)
		}
	}
}

func brokerResults(fetched []fetchResult, now time.Time) []BrokerResult {
	out := make([]BrokerResult, len(fetched))
	for i, f := range fetched {
		r := BrokerResult{
			Broker:       f.integration.Broker,
			Status:       model.SyncSuccess,
			Holdings:     len(f.holdings),
			Transactions: len(f.txns),
			LastSync:     now,
		}
		if f.err != nil {
			r.Status, r.Error = model.SyncError, f.err.Error()
		}
		out[i] = r
	}
	return out
}

// Snapshot reads the stored portfolio and opportunities for userID and
// derives the score and summary from them.
func (s *Service) Snapshot(ctx context.Context, userID string) (*Result, error) {
	holdings, err := s.snapshots.ReadPortfolio(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read portfolio: %w", err)
	}
	opps, err := s.snapshots.ReadOpportunities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read opportunities: %w", err)
	}
	ints, err := s.integrations.ListIntegrations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}

	res := &Result{
		UserID:        userID,
		Cached:        true,
		Holdings:      holdings,
		Opportunities: opps,
		Score:         taxcalc.Score(holdings),
		Summary:       portfolio.Summarize(holdings, opps),
	}
	for _, in := range ints {
		res.Brokers = append(res.Brokers, BrokerResult{
			Broker:   in.Broker,
			Status:   in.SyncStatus,
			Error:    in.SyncError,
			LastSync: in.LastSync,
		})
	}
	for _, h := range holdings {
		if h.EvaluationDate.After(res.SyncedAt) {
			res.SyncedAt = h.EvaluationDate
		}
	}
	return res, nil
}

// acquire reports whether a sync may run now. Throttle errors fail open.
func (s *Service) acquire(ctx context.Context, userID string) bool {
	if s.opts.Throttle == nil {
		return true
	}
	ok, err := s.opts.Throttle.TryAcquire(ctx, userID, s.opts.ThrottleWindow)
	if err != nil {
		log.Printf("[sync] throttle unavailable for %s, syncing anyway: %v", userID, err)
		return true
	}
	return ok
}

func (s *Service) release(ctx context.Context, userID string) {
	if s.opts.Throttle == nil {
		return
	}
	if err := s.opts.Throttle.Release(ctx, userID); err != nil {
		log.Printf("[sync] release throttle for %s: %v", userID, err)
	}
}

func (s *Service) publish(ctx context.Context, ev model.SyncEvent) {
	if s.opts.Events != nil {
		s.opts.Events.Publish(ctx, ev)
	}
}

func (s *Service) countRun(status string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.SyncRuns.WithLabelValues(status).Inc()
	}
	if s.opts.Health != nil && status != "throttled" {
		s.opts.Health.RecordSync(status, s.opts.Now())
	}
}

func (s *Service) observe(res *Result, start time.Time) {
	m := s.opts.Metrics
	if m == nil {
		return
	}
	m.SyncDuration.Observe(s.opts.Now().Sub(start).Seconds())
	for _, h := range res.Holdings {
		m.HoldingsClassified.WithLabelValues(string(h.TaxCategory)).Inc()
	}
	counts := map[model.Priority]int{model.PriorityHigh: 0, model.PriorityMedium: 0, model.PriorityLow: 0}
	for _, o := range res.Opportunities {
		counts[o.Priority]++
	}
	for p, n := range counts {
		m.Opportunities.WithLabelValues(string(p)).Set(float64(n))
	}
	m.EfficiencyScore.Observe(float64(res.Score.Score))
}

// notify alerts on high-priority opportunities with a deadline ahead.
func (s *Service) notify(ctx context.Context, res *Result, now time.Time) {
	if s.opts.Notifier == nil {
		return
	}
	for _, o := range res.Opportunities {
		if !notification.ShouldAlert(o, now) {
			continue
		}
		status := "sent"
		if err := s.opts.Notifier.Send(ctx, notification.OpportunityAlert(res.UserID, o, now)); err != nil {
			status = "failed"
			log.Printf("[sync] alert %s for %s: %v", o.ID, res.UserID, err)
		}
		if s.opts.Metrics != nil {
			s.opts.Metrics.Notifications.WithLabelValues(status).Inc()
		}
	}
}
