package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// DryRun is a plan executor that settles every plan as a simulated fill at
// the opportunity's revalidated economics. Scan mode runs the full pipeline
// through it without touching the chain.
type DryRun struct {
	logger *slog.Logger
}

var _ domain.PlanExecutor = (*DryRun)(nil)

// NewDryRun creates the simulated executor.
func NewDryRun(logger *slog.Logger) *DryRun {
	return &DryRun{logger: logger.With(slog.String("component", "dry_run_executor"))}
}

// Execute implements domain.PlanExecutor. The simulated profit scales the
// opportunity's gross to the routed position, minus fees and gas, mirroring
// what a perfect fill would realize.
func (d *DryRun) Execute(ctx context.Context, plan domain.ExecutionPlan) (domain.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExecutionResult{}, err
	}

	opp := plan.Opportunity
	gross := opp.GrossUSD
	if opp.NotionalUSD.GreaterThan(decimal.Zero) {
		gross = plan.PositionUSD.Mul(opp.GrossUSD).Div(opp.NotionalUSD)
	}
	fee := plan.PositionUSD.Mul(decimal.NewFromInt(plan.FeeBps)).Div(decimal.NewFromInt(10_000))
	profit := gross.Sub(fee).Sub(opp.GasUSD)

	d.logger.Info("dry-run fill",
		slog.String("plan", plan.ID),
		slog.String("source", string(plan.Source)),
		slog.String("profit_usd", profit.StringFixed(4)),
	)
	return domain.ExecutionResult{
		PlanID:     plan.ID,
		Status:     domain.ExecDryRun,
		GasUsedUSD: opp.GasUSD,
		ProfitUSD:  profit,
		FinishedAt: time.Now(),
	}, nil
}
