package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/marketdesk/internal/config"
	"github.com/pitabwire/marketdesk/internal/observability"
	"github.com/pitabwire/marketdesk/model"
)

// Eviction reasons recorded in metrics.
const (
	EvictIdle     = "idle"
	EvictLimit    = "limit"
	EvictShutdown = "shutdown"
)

// Session is one open view and the admin who owns it.
type Session struct {
	ID         string
	SubjectID  string
	Collection string
	CreatedAt  time.Time
	View       View
	Tokens     *TokenHolder

	lastUsed time.Time
}

// Builder creates the view of a new session. tokens is the session's token
// holder, to be handed to the view's resource client.
type Builder func(tokens *TokenHolder) (View, error)

// Registry holds the open sessions of all admins.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	idleTTL       time.Duration
	sweepInterval time.Duration
	maxPerSubject int

	now     func() time.Time
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewRegistry creates an empty registry. Zero limits in cfg disable the
// corresponding eviction.
func NewRegistry(cfg config.ViewsConfig, logger *zap.Logger, metrics *observability.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions:      make(map[string]*Session),
		idleTTL:       cfg.IdleTTL,
		sweepInterval: cfg.SweepInterval,
		maxPerSubject: cfg.MaxPerSubject,
		now:           time.Now,
		logger:        logger,
		metrics:       metrics,
	}
}

// Open registers a new session for the admin in ctx. When the admin already
// holds the maximum number of sessions, the least recently used one is
// closed.
func (r *Registry) Open(ctx context.Context, collection string, build Builder) (*Session, error) {
	rctx, err := subjectOf(ctx)
	if err != nil {
		return nil, err
	}

	tokens := NewTokenHolder(rctx.Token)
	view, err := build(tokens)
	if err != nil {
		return nil, err
	}

	now := r.now()
	s := &Session{
		ID:         uuid.NewString(),
		SubjectID:  rctx.SubjectID,
		Collection: collection,
		CreatedAt:  now,
		View:       view,
		Tokens:     tokens,
		lastUsed:   now,
	}

	r.mu.Lock()
	var evicted []*Session
	if r.maxPerSubject > 0 {
		owned := r.ownedLocked(rctx.SubjectID)
		for len(owned) >= r.maxPerSubject {
			evicted = append(evicted, owned[0])
			delete(r.sessions, owned[0].ID)
			owned = owned[1:]
		}
	}
	r.sessions[s.ID] = s
	open := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetViewsOpen(open)
	r.closeAll(evicted, EvictLimit)

	observability.RequestLogger(ctx, r.logger).Debug("view opened",
		zap.String("view_id", s.ID),
		zap.String("collection", collection),
	)
	return s, nil
}

// Get returns the session id owned by the admin in ctx and marks it used.
// The admin's current token replaces the stored one. Sessions owned by
// other admins are reported as not found.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	rctx, err := subjectOf(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok || s.SubjectID != rctx.SubjectID {
		r.mu.Unlock()
		return nil, model.NewViewNotFoundError(id)
	}
	s.lastUsed = r.now()
	r.mu.Unlock()

	s.Tokens.Set(rctx.Token)
	return s, nil
}

// Close closes and removes the session id owned by the admin in ctx.
func (r *Registry) Close(ctx context.Context, id string) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.sessions, s.ID)
	open := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetViewsOpen(open)
	s.View.Close()
	return nil
}

// Sweep closes sessions idle for longer than the idle TTL and returns how
// many were closed.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.lastUsed.Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	open := len(r.sessions)
	r.mu.Unlock()

	if len(expired) > 0 {
		r.metrics.SetViewsOpen(open)
		r.closeAll(expired, EvictIdle)
		r.logger.Info("idle views closed", zap.Int("count", len(expired)), zap.Int("open", open))
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.sweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Shutdown closes every session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	r.metrics.SetViewsOpen(0)
	r.closeAll(all, EvictShutdown)
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func subjectOf(ctx context.Context) (*model.RequestContext, error) {
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil || rctx.SubjectID == "" {
		return nil, model.NewUnauthorizedError("no signed-in admin")
	}
	return rctx, nil
}

// ownedLocked returns the sessions of subject, least recently used first.
func (r *Registry) ownedLocked(subject string) []*Session {
	var owned []*Session
	for _, s := range r.sessions {
		if s.SubjectID == subject {
			owned = append(owned, s)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].lastUsed.Before(owned[j].lastUsed)
	})
	return owned
}

func (r *Registry) closeAll(sessions []*Session, reason string) {
	for _, s := range sessions {
		s.View.Close()
		r.metrics.RecordViewEviction(reason)
		r.logger.Debug("view evicted",
			zap.String("view_id", s.ID),
			zap.String("subject_id", s.SubjectID),
			zap.String("reason", reason),
		)
	}
}
