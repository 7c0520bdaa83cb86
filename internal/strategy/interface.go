package strategy

import (
	"context"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// Strategy is the common producer contract for opportunity detection. Run
// blocks until ctx is cancelled, emitting opportunities on out in discovery
// order. A strategy keeps no state that must survive a restart; re-invoking
// Run starts a fresh scan.
type Strategy interface {
	Name() string
	Run(ctx context.Context, out chan<- domain.Opportunity) error
}
