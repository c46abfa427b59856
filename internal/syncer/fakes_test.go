package syncer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"taxsync-pro/internal/broker"
	"taxsync-pro/internal/model"
	"taxsync-pro/internal/notification"
)

type fakeSource struct {
	name     string
	holdings []model.Holding
	txns     []model.Transaction
	authErr  error
	holdErr  error
	txnErr   error
	creds    model.Credentials // returned after a successful Authenticate
}

func (f *fakeSource) Broker() string { return f.name }

func (f *fakeSource) Authenticate(ctx context.Context) error { return f.authErr }

func (f *fakeSource) Holdings(ctx context.Context) ([]model.Holding, error) {
	if f.holdErr != nil {
		return nil, f.holdErr
	}
	out := make([]model.Holding, len(f.holdings))
	for i, h := range f.holdings {
		h.Broker = f.name
		out[i] = h
	}
	return out, nil
}

func (f *fakeSource) Transactions(ctx context.Context, from, to time.Time) ([]model.Transaction, error) {
	return f.txns, f.txnErr
}

func (f *fakeSource) HealthCheck(ctx context.Context) broker.Health {
	h := broker.Health{Broker: f.name, Status: broker.Healthy, Errors: []string{}}
	if f.authErr != nil {
		h.Status = broker.Down
		h.Errors = append(h.Errors, f.authErr.Error())
	}
	return h
}

func (f *fakeSource) Credentials() model.Credentials { return f.creds }

type fakeFactory struct {
	sources map[string]*fakeSource
	calls   atomic.Int32
}

func (f *fakeFactory) NewSource(name string, creds model.Credentials) (broker.Source, error) {
	f.calls.Add(1)
	src, ok := f.sources[name]
	if !ok {
		return nil, &model.UnsupportedBrokerError{Broker: name}
	}
	if src.creds == (model.Credentials{}) {
		src.creds = creds
	}
	return src, nil
}

type memStore struct {
	mu        sync.Mutex
	ints      map[string]model.Integration
	portfolio map[string][]model.ClassifiedHolding
	opps      map[string][]model.Opportunity
	saveErr   error
}

func newMemStore(ints ...model.Integration) *memStore {
	s := &memStore{
		ints:      make(map[string]model.Integration),
		portfolio: make(map[string][]model.ClassifiedHolding),
		opps:      make(map[string][]model.Opportunity),
	}
	for _, in := range ints {
		s.ints[in.UserID+"/"+in.Broker] = in
	}
	return s
}

func (s *memStore) UpsertIntegration(ctx context.Context, in model.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.ints[in.UserID+"/"+in.Broker]; ok {
		in.LastSync = prev.LastSync
	}
	s.ints[in.UserID+"/"+in.Broker] = in
	return nil
}

func (s *memStore) GetIntegration(ctx context.Context, userID, b string) (*model.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.ints[userID+"/"+b]
	if !ok {
		return nil, nil
	}
	return &in, nil
}

func (s *memStore) ListIntegrations(ctx context.Context, userID string) ([]model.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Integration
	for _, in := range s.ints {
		if in.UserID == userID {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Broker < out[j].Broker })
	return out, nil
}

func (s *memStore) ConnectedUsers(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, in := range s.ints {
		if in.IsConnected && !seen[in.UserID] {
			seen[in.UserID] = true
			out = append(out, in.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memStore) RecordSync(ctx context.Context, userID, b string, status model.SyncStatus, syncErr string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := s.ints[userID+"/"+b]
	in.SyncStatus, in.SyncError, in.LastSync = status, syncErr, at
	s.ints[userID+"/"+b] = in
	return nil
}

func (s *memStore) ReplaceSnapshot(ctx context.Context, userID string, h []model.ClassifiedHolding, o []model.Opportunity, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.portfolio[userID] = h
	s.opps[userID] = o
	return nil
}

func (s *memStore) ReadPortfolio(ctx context.Context, userID string) ([]model.ClassifiedHolding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portfolio[userID], nil
}

func (s *memStore) ReadOpportunities(ctx context.Context, userID string) ([]model.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opps[userID], nil
}

type fakeThrottle struct {
	allow    bool
	err      error
	released int
}

func (f *fakeThrottle) TryAcquire(ctx context.Context, userID string, window time.Duration) (bool, error) {
	return f.allow, f.err
}

func (f *fakeThrottle) Release(ctx context.Context, userID string) error {
	f.released++
	return nil
}

type fakeScores struct {
	mu          sync.Mutex
	scores      map[string]model.EfficiencyScore
	setErr      error
	invalidated int
}

func (f *fakeScores) GetScore(ctx context.Context, userID string) (*model.EfficiencyScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.scores[userID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeScores) SetScore(ctx context.Context, userID string, s model.EfficiencyScore, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	if f.scores == nil {
		f.scores = make(map[string]model.EfficiencyScore)
	}
	f.scores[userID] = s
	return nil
}

func (f *fakeScores) InvalidateScore(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
	delete(f.scores, userID)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []model.SyncEvent
}

func (e *eventLog) Publish(ctx context.Context, ev model.SyncEvent) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *eventLog) count(t model.SyncEventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type alertLog struct {
	alerts []notification.Alert
	err    error
}

func (a *alertLog) Send(ctx context.Context, alert notification.Alert) error {
	a.alerts = append(a.alerts, alert)
	return a.err
}

var errAuth = errors.New("HTTP 401: invalid token")
