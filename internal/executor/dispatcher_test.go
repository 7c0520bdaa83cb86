package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevanbtc/apexarb/internal/domain"
)

type recordingReporter struct {
	mu      sync.Mutex
	results []domain.ExecutionResult
}

func (r *recordingReporter) ReportExecution(res domain.ExecutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recordingReporter) all() []domain.ExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ExecutionResult(nil), r.results...)
}

type failingExecutor struct {
	err error
}

func (e *failingExecutor) Execute(_ context.Context, plan domain.ExecutionPlan) (domain.ExecutionResult, error) {
	if e.err != nil {
		return domain.ExecutionResult{}, e.err
	}
	return domain.ExecutionResult{PlanID: plan.ID, Status: domain.ExecConfirmed, FinishedAt: time.Now()}, nil
}

type memoryExecStore struct {
	mu      sync.Mutex
	plans   []domain.ExecutionPlan
	results []domain.ExecutionResult
}

func (s *memoryExecStore) CreatePlan(_ context.Context, plan domain.ExecutionPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = append(s.plans, plan)
	return nil
}

func (s *memoryExecStore) RecordResult(_ context.Context, res domain.ExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	return nil
}

func (s *memoryExecStore) ListRecent(context.Context, int) ([]domain.ExecutionResult, error) {
	return nil, nil
}

func (s *memoryExecStore) SumPnL(context.Context, time.Time) (float64, error) { return 0, nil }

func testPlan(id string) domain.ExecutionPlan {
	opp := scalableOpp(0.35, 0.05, 10)
	return domain.ExecutionPlan{
		ID:            id,
		OpportunityID: opp.ID,
		Opportunity:   opp,
		Source:        domain.CapitalWallet,
		PositionUSD:   decimal.NewFromInt(29),
		MinProfitUSD:  decimal.NewFromFloat(0.10),
		CreatedAt:     time.Now(),
	}
}

func TestDispatcherReportsResults(t *testing.T) {
	reporter := &recordingReporter{}
	store := &memoryExecStore{}
	d := NewDispatcher(&failingExecutor{}, reporter, testLogger()).WithStore(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := make(chan domain.ExecutionPlan, 1)
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, in) }()

	in <- testPlan("plan-1")
	close(in)
	require.NoError(t, <-done)

	results := reporter.all()
	require.Len(t, results, 1)
	assert.Equal(t, "plan-1", results[0].PlanID)
	assert.Equal(t, domain.ExecConfirmed, results[0].Status)
	assert.Len(t, store.plans, 1)
	assert.Len(t, store.results, 1)
}

func TestDispatcherConvertsErrorToFailedResult(t *testing.T) {
	reporter := &recordingReporter{}
	d := NewDispatcher(&failingExecutor{err: errors.New("nonce too low")}, reporter, testLogger())

	in := make(chan domain.ExecutionPlan, 1)
	in <- testPlan("plan-2")
	close(in)
	require.NoError(t, d.Run(context.Background(), in))

	results := reporter.all()
	require.Len(t, results, 1)
	assert.Equal(t, domain.ExecReverted, results[0].Status)
	assert.Equal(t, "plan-2", results[0].PlanID)
	assert.Contains(t, results[0].Error, "nonce too low")
}

func TestDispatcherStopsOnCancel(t *testing.T) {
	d := NewDispatcher(&failingExecutor{}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan domain.ExecutionPlan)
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, in) }()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestDryRunScalesProfitToPosition(t *testing.T) {
	d := NewDryRun(testLogger())

	plan := testPlan("plan-3")
	plan.Source = domain.CapitalFlashloan
	plan.Provider = "aave_v3"
	plan.FeeBps = 9
	plan.PositionUSD = decimal.NewFromInt(2900)

	res, err := d.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecDryRun, res.Status)
	assert.True(t, res.Succeeded())

	// 2900 * (0.35/10) - 2900*0.0009 - 0.05 = 101.5 - 2.61 - 0.05 = 98.84.
	assert.True(t, res.ProfitUSD.Equal(decimal.NewFromFloat(98.84)), "profit %s", res.ProfitUSD)
}

func TestDryRunRefusesCancelledContext(t *testing.T) {
	d := NewDryRun(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Execute(ctx, testPlan("plan-4"))
	assert.ErrorIs(t, err, context.Canceled)
}
