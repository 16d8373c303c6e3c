package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/stakedeck/stakedeck/internal/logging"
	"github.com/stakedeck/stakedeck/pkg/types"
)

// Source reads the raw dashboard record. *ledger.Gateway implements it.
type Source interface {
	Dashboard(ctx context.Context, id types.UserID) (*types.RawDashboard, error)
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time used to derive stake views.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service loads and assembles dashboards, remembers the last one loaded
// per user, and fans invalidations out to subscribers.
type Service struct {
	source Source
	now    func() time.Time

	mu        sync.RWMutex
	snapshots map[types.UserID]*types.UserDashboard
	listeners map[int]func(types.UserID)
	nextID    int
}

// NewService creates a Service reading from source.
func NewService(source Source, opts ...Option) *Service {
	s := &Service{
		source:    source,
		now:       time.Now,
		snapshots: make(map[types.UserID]*types.UserDashboard),
		listeners: make(map[int]func(types.UserID)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads and assembles the dashboard of id. Read errors such as
// ledger.ErrNotEnabled and ledger.ErrPending pass through unchanged.
func (s *Service) Load(ctx context.Context, id types.UserID) (*types.UserDashboard, error) {
	raw, err := s.source.Dashboard(ctx, id)
	if err != nil {
		return nil, err
	}

	d := Assemble(raw, s.now())
	if d == nil {
		return nil, nil
	}

	s.mu.Lock()
	s.snapshots[id] = d
	s.mu.Unlock()

	logging.Debug("dashboard assembled",
		logging.UserID(id.String()),
		"stakes", len(d.Stakes),
		"ready_to_claim", len(d.ReadyToClaim))
	return d, nil
}

// Snapshot returns the last dashboard loaded for id, if any.
func (s *Service) Snapshot(id types.UserID) (*types.UserDashboard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.snapshots[id]
	return d, ok
}

// Invalidate drops the snapshot of id and notifies subscribers so they
// refetch.
func (s *Service) Invalidate(id types.UserID) {
	s.mu.Lock()
	delete(s.snapshots, id)
	listeners := make([]func(types.UserID), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(id)
	}
}

// Subscribe registers fn for invalidations and returns a function that
// removes it.
func (s *Service) Subscribe(fn func(types.UserID)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
