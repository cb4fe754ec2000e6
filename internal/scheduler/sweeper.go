// Package scheduler runs the periodic negotiation expiry sweep.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/metrics"
)

const DefaultSpec = "@hourly"

// Expirer closes every active negotiation whose deadline has passed and
// reports how many it closed.
type Expirer interface {
	ExpireNegotiations(ctx context.Context) (int, error)
}

// Sweeper drives an Expirer from a cron schedule.
type Sweeper struct {
	cron    *cron.Cron
	expirer Expirer
	spec    string
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	running bool
	entryID cron.EntryID
}

func NewSweeper(expirer Expirer, spec string, logger *zap.Logger, m *metrics.Metrics) *Sweeper {
	if spec == "" {
		spec = DefaultSpec
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		expirer: expirer,
		spec:    spec,
		timeout: time.Minute,
		logger:  logger.With(zap.String("component", "expiry-sweeper")),
		metrics: m,
	}
}

// Start registers the sweep and starts the cron loop. It fails on a bad
// schedule or when already running.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("expiry sweeper already running")
	}
	id, err := s.cron.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.spec, err)
	}
	s.entryID = id
	s.running = true
	s.cron.Start()
	s.logger.Info("expiry sweeper started", zap.String("spec", s.spec))
	return nil
}

// Stop waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.cron.Remove(s.entryID)
	s.running = false
	s.logger.Info("expiry sweeper stopped")
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	started := time.Now()
	count, err := s.expirer.ExpireNegotiations(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
		return 0, err
	}
	s.metrics.NegotiationsSwept(count)
	s.logger.Info("expiry sweep finished",
		zap.Int("expired", count),
		zap.Duration("took", time.Since(started)),
	)
	return count, nil
}

// Next reports when the sweep fires next; zero when not running.
func (s *Sweeper) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}
