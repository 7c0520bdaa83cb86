package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL. Plans and
// results are separate tables so an interrupted attempt still leaves its plan
// row behind.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore backed by the given pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// CreatePlan records one execution plan before the attempt starts.
func (s *ExecutionStore) CreatePlan(ctx context.Context, plan domain.ExecutionPlan) error {
	const query = `
		INSERT INTO execution_plans (
			id, opportunity_id, source, provider, fee_bps,
			position_usd, min_profit_usd, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		plan.ID, plan.OpportunityID, string(plan.Source), plan.Provider, plan.FeeBps,
		plan.PositionUSD, plan.MinProfitUSD, plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create execution plan %s: %w", plan.ID, err)
	}
	return nil
}

// RecordResult records the terminal outcome of an execution attempt.
func (s *ExecutionStore) RecordResult(ctx context.Context, res domain.ExecutionResult) error {
	const query = `
		INSERT INTO execution_results (
			plan_id, status, tx_hash, gas_used_usd, profit_usd, error, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (plan_id) DO UPDATE SET
			status = EXCLUDED.status,
			tx_hash = EXCLUDED.tx_hash,
			gas_used_usd = EXCLUDED.gas_used_usd,
			profit_usd = EXCLUDED.profit_usd,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at`

	_, err := s.pool.Exec(ctx, query,
		res.PlanID, string(res.Status), res.TxHash,
		res.GasUsedUSD, res.ProfitUSD, res.Error, res.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record execution result %s: %w", res.PlanID, err)
	}
	return nil
}

// ListRecent returns the most recent execution results, newest first.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionResult, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT plan_id, status, tx_hash, gas_used_usd, profit_usd, error, finished_at
		FROM execution_results
		ORDER BY finished_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent executions: %w", err)
	}
	defer rows.Close()

	var results []domain.ExecutionResult
	for rows.Next() {
		var (
			r      domain.ExecutionResult
			status string
		)
		if err := rows.Scan(
			&r.PlanID, &status, &r.TxHash,
			&r.GasUsedUSD, &r.ProfitUSD, &r.Error, &r.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan execution result: %w", err)
		}
		r.Status = domain.ExecutionStatus(status)
		results = append(results, r)
	}
	return results, rows.Err()
}

// SumPnL returns the realized profit of successful executions since the given
// time.
func (s *ExecutionStore) SumPnL(ctx context.Context, since time.Time) (float64, error) {
	const query = `
		SELECT COALESCE(SUM(profit_usd), 0)
		FROM execution_results
		WHERE finished_at >= $1 AND status IN ('confirmed', 'dry_run')`

	var pnl float64
	if err := s.pool.QueryRow(ctx, query, since).Scan(&pnl); err != nil {
		return 0, fmt.Errorf("postgres: sum pnl: %w", err)
	}
	return pnl, nil
}

// Compile-time interface check.
var _ domain.ExecutionStore = (*ExecutionStore)(nil)
