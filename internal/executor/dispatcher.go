package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// Reporter receives terminal execution results. The coordinator implements it
// to keep the session stats and PnL current.
type Reporter interface {
	ReportExecution(res domain.ExecutionResult)
}

// Dispatcher consumes execution plans from the coordinator and hands them to
// the plan executor one at a time. Results flow back to the reporter and,
// best-effort, into the execution ledger.
type Dispatcher struct {
	exec     domain.PlanExecutor
	reporter Reporter
	store    domain.ExecutionStore
	logger   *slog.Logger
}

// NewDispatcher creates the dispatcher. reporter may be nil.
func NewDispatcher(exec domain.PlanExecutor, reporter Reporter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		exec:     exec,
		reporter: reporter,
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// WithStore attaches the execution ledger. Ledger failures are logged, never
// propagated.
func (d *Dispatcher) WithStore(store domain.ExecutionStore) *Dispatcher {
	d.store = store
	return d
}

// Run consumes plans until the channel closes or the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context, in <-chan domain.ExecutionPlan) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case plan, ok := <-in:
			if !ok {
				return nil
			}
			d.dispatch(ctx, plan)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, plan domain.ExecutionPlan) {
	if d.store != nil {
		if err := d.store.CreatePlan(ctx, plan); err != nil {
			d.logger.Warn("ledger plan insert failed",
				slog.String("plan", plan.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	d.logger.Info("executing plan",
		slog.String("plan", plan.ID),
		slog.String("opportunity", plan.OpportunityID),
		slog.String("source", string(plan.Source)),
		slog.String("position_usd", plan.PositionUSD.StringFixed(2)),
	)

	res, err := d.exec.Execute(ctx, plan)
	if err != nil {
		res = domain.ExecutionResult{
			PlanID:     plan.ID,
			Status:     domain.ExecReverted,
			Error:      err.Error(),
			FinishedAt: time.Now(),
		}
		if ctx.Err() != nil {
			res.Status = domain.ExecTimeout
		}
		d.logger.Error("execution failed",
			slog.String("plan", plan.ID),
			slog.String("error", err.Error()),
		)
	} else {
		d.logger.Info("execution finished",
			slog.String("plan", plan.ID),
			slog.String("status", string(res.Status)),
			slog.String("profit_usd", res.ProfitUSD.StringFixed(4)),
		)
	}
	if res.PlanID == "" {
		res.PlanID = plan.ID
	}

	if d.reporter != nil {
		d.reporter.ReportExecution(res)
	}
	if d.store != nil {
		if err := d.store.RecordResult(ctx, res); err != nil {
			d.logger.Warn("ledger result insert failed",
				slog.String("plan", plan.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
