package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// oneShot emits a single opportunity and then blocks until cancelled.
type oneShot struct {
	name string
	opp  domain.Opportunity
}

func (s *oneShot) Name() string { return s.name }

func (s *oneShot) Run(ctx context.Context, out chan<- domain.Opportunity) error {
	select {
	case out <- s.opp:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestNewSupervisorRejectsUnknownStrategy(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&oneShot{name: "known"})

	_, err := NewSupervisor(reg, []string{"known", "missing"}, testLogger())
	require.Error(t, err)
}

func TestSupervisorFansInAllStrategies(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&oneShot{name: "a", opp: domain.Opportunity{Strategy: "a"}})
	reg.Register(&oneShot{name: "b", opp: domain.Opportunity{Strategy: "b"}})

	sup, err := NewSupervisor(reg, []string{"a", "b"}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan domain.Opportunity, 4)
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx, out) }()

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case opp := <-out:
			got[opp.Strategy] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for opportunities")
		}
	}
	assert.True(t, got["a"])
	assert.True(t, got["b"])

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop on cancellation")
	}
}
