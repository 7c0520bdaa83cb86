package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// Supervisor runs a set of registered strategies as independent concurrent
// producers feeding one shared opportunity channel. A strategy failure is
// local: it is logged and the strategy restarted after a delay, it never
// takes the rest of the engine down.
type Supervisor struct {
	registry     *Registry
	enabled      []string
	restartDelay time.Duration
	logger       *slog.Logger
}

// NewSupervisor creates a Supervisor for the named strategies. Every name
// must be registered; a missing name is a startup configuration error.
func NewSupervisor(registry *Registry, enabled []string, logger *slog.Logger) (*Supervisor, error) {
	if len(enabled) == 0 {
		return nil, fmt.Errorf("supervisor: no strategies enabled")
	}
	for _, name := range enabled {
		if _, err := registry.Get(name); err != nil {
			return nil, fmt.Errorf("supervisor: %w", err)
		}
	}
	return &Supervisor{
		registry:     registry,
		enabled:      enabled,
		restartDelay: 5 * time.Second,
		logger:       logger.With(slog.String("component", "strategy_supervisor")),
	}, nil
}

// Enabled returns the names of the supervised strategies.
func (s *Supervisor) Enabled() []string {
	out := make([]string, len(s.enabled))
	copy(out, s.enabled)
	return out
}

// Run starts one goroutine per enabled strategy, each writing to out. It
// blocks until ctx is cancelled, then returns ctx's error once every
// strategy has stopped. The caller owns out and closes it after Run returns.
func (s *Supervisor) Run(ctx context.Context, out chan<- domain.Opportunity) error {
	s.logger.Info("strategies starting", slog.Any("strategies", s.enabled))
	defer s.logger.Info("strategies stopped")

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range s.enabled {
		name := name
		g.Go(func() error {
			return s.runOne(gctx, name, out)
		})
	}
	return g.Wait()
}

// runOne keeps a single strategy alive: Run until ctx cancellation, restart
// after restartDelay on any other return.
func (s *Supervisor) runOne(ctx context.Context, name string, out chan<- domain.Opportunity) error {
	strat, err := s.registry.Get(name)
	if err != nil {
		return err
	}

	for {
		err := strat.Run(ctx, out)
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return ctx.Err()
		}
		if err == nil {
			err = errors.New("strategy returned without cancellation")
		}
		s.logger.Warn("strategy stopped, restarting",
			slog.String("strategy", name),
			slog.Duration("restart_delay", s.restartDelay),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.restartDelay):
		}
	}
}
