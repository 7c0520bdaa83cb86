package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL. Every
// processed opportunity lands here, accepted or not; the reject_reason column
// is NULL for accepted rows.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// Insert records one processed opportunity. reason is empty for accepted
// opportunities. Re-processing the same ID updates the outcome.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity, reason domain.RejectReason) error {
	var rejectReason *string
	if reason != "" {
		r := string(reason)
		rejectReason = &r
	}

	const query = `
		INSERT INTO opportunities (
			id, kind, chain, strategy, path_key,
			gross_usd, gas_usd, net_usd, notional_usd,
			confidence, deadline_block, reject_reason, discovered_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13
		) ON CONFLICT (id) DO UPDATE SET
			gas_usd = EXCLUDED.gas_usd,
			net_usd = EXCLUDED.net_usd,
			reject_reason = EXCLUDED.reject_reason`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, string(opp.Kind), string(opp.Chain), opp.Strategy, opp.Path.Key(),
		opp.GrossUSD, opp.GasUSD, opp.NetUSD, opp.NotionalUSD,
		opp.Confidence, int64(opp.DeadlineBlock), rejectReason, opp.DiscoveredAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecent returns the most recently discovered opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, kind, chain, strategy,
			gross_usd, gas_usd, net_usd, notional_usd,
			confidence, deadline_block, discovered_at
		FROM opportunities
		ORDER BY discovered_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	opps, err := scanOpportunityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent opportunities: %w", err)
	}
	return opps, nil
}

// CountByStrategy returns opportunity counts per strategy since the given time.
func (s *OpportunityStore) CountByStrategy(ctx context.Context, since time.Time) (map[string]int64, error) {
	const query = `
		SELECT strategy, COUNT(*)
		FROM opportunities
		WHERE discovered_at >= $1
		GROUP BY strategy`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: count opportunities by strategy: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			strategy string
			count    int64
		)
		if err := rows.Scan(&strategy, &count); err != nil {
			return nil, fmt.Errorf("postgres: scan strategy count: %w", err)
		}
		counts[strategy] = count
	}
	return counts, rows.Err()
}

func scanOpportunityRows(rows pgx.Rows) ([]domain.Opportunity, error) {
	var opps []domain.Opportunity
	for rows.Next() {
		var (
			o             domain.Opportunity
			kind, chain   string
			deadlineBlock int64
		)
		if err := rows.Scan(
			&o.ID, &kind, &chain, &o.Strategy,
			&o.GrossUSD, &o.GasUSD, &o.NetUSD, &o.NotionalUSD,
			&o.Confidence, &deadlineBlock, &o.DiscoveredAt,
		); err != nil {
			return nil, err
		}
		o.Kind = domain.OpportunityKind(kind)
		o.Chain = domain.ChainID(chain)
		o.DeadlineBlock = uint64(deadlineBlock)
		opps = append(opps, o)
	}
	return opps, rows.Err()
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
