package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/cache"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/lifecycle"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/metrics"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/pricing"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/store"
)

const (
	DefaultNegotiationTTL = 24 * time.Hour
	DefaultTrustCacheTTL  = 5 * time.Minute
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           store.Repository
	pricing        *pricing.Engine
	trustCache     cache.TrustScoreCache
	trustTTL       time.Duration
	negotiationTTL time.Duration
	maxOfferRounds int
	now            func() time.Time
	logger         *zap.Logger
	metrics        *metrics.Metrics
	negotiations   *lifecycle.StateMachine
	transactions   *lifecycle.StateMachine
	vendorLocks    *keyedMutex
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithNegotiationTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.negotiationTTL = ttl
		}
	}
}

// WithMaxOfferRounds caps the number of offers in one negotiation. Zero
// leaves it unbounded.
func WithMaxOfferRounds(rounds int) Option {
	return func(s *Service) {
		if rounds >= 0 {
			s.maxOfferRounds = rounds
		}
	}
}

func WithTrustCache(c cache.TrustScoreCache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.trustCache = c
		}
		if ttl > 0 {
			s.trustTTL = ttl
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(repo store.Repository, engine *pricing.Engine, opts ...Option) *Service {
	if engine == nil {
		engine = pricing.NewEngine(repo)
	}
	s := &Service{
		repo:           repo,
		pricing:        engine,
		trustCache:     cache.Noop{},
		trustTTL:       DefaultTrustCacheTTL,
		negotiationTTL: DefaultNegotiationTTL,
		now:            time.Now,
		logger:         zap.NewNop(),
		negotiations:   lifecycle.NewNegotiationMachine(),
		transactions:   lifecycle.NewTransactionMachine(),
		vendorLocks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "service"))
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, domain.Forbidden(nil, "authentication required")
	}
	return actor, nil
}

func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, domain.Forbidden(nil, "%s role required", roles[0])
}

// storeError translates repository sentinels into domain errors. Domain
// errors pass through untouched.
func storeError(err error, entity string) error {
	if err == nil {
		return nil
	}
	var derr *domain.Error
	switch {
	case errors.As(err, &derr):
		return err
	case errors.Is(err, store.ErrNotFound):
		return domain.NotFound("%s not found", entity)
	case errors.Is(err, store.ErrConflict):
		return domain.Conflict(domain.ErrStaleWrite, "%s was modified concurrently, reload and retry", entity)
	case errors.Is(err, store.ErrInvalidRecord):
		return domain.BadRequest(nil, "invalid %s", entity)
	default:
		return domain.Internal(err)
	}
}

// keyedMutex serializes work per key and drops idle entries.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
