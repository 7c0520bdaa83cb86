package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OpportunityStore persists the ledger of accepted opportunities.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity, reason RejectReason) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	CountByStrategy(ctx context.Context, since time.Time) (map[string]int64, error)
}

// ExecutionStore persists execution plans and their results for PnL history.
type ExecutionStore interface {
	CreatePlan(ctx context.Context, plan ExecutionPlan) error
	RecordResult(ctx context.Context, res ExecutionResult) error
	ListRecent(ctx context.Context, limit int) ([]ExecutionResult, error)
	SumPnL(ctx context.Context, since time.Time) (float64, error)
}
