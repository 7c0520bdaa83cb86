package coordinator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevanbtc/apexarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubCaller struct {
	gasGwei decimal.Decimal
	gasErr  error
	block   uint64
}

func (s *stubCaller) Call(_ context.Context, _ domain.ChainID, _ any, _ string, _ ...any) error {
	return domain.ErrNotFound
}

func (s *stubCaller) BlockNumber(_ context.Context, _ domain.ChainID) (uint64, error) {
	return s.block, nil
}

func (s *stubCaller) GasPriceGwei(_ context.Context, _ domain.ChainID) (decimal.Decimal, error) {
	if s.gasErr != nil {
		return decimal.Zero, s.gasErr
	}
	return s.gasGwei, nil
}

type stubRouter struct {
	infeasible bool
	routed     []domain.Opportunity
}

func (r *stubRouter) Route(_ context.Context, opp domain.Opportunity) (domain.ExecutionPlan, error) {
	if r.infeasible {
		return domain.ExecutionPlan{}, domain.ErrPlanInfeasible
	}
	r.routed = append(r.routed, opp)
	return domain.ExecutionPlan{
		OpportunityID: opp.ID,
		Opportunity:   opp,
		Source:        domain.CapitalWallet,
		PositionUSD:   decimal.NewFromInt(25),
	}, nil
}

func oneHopOpp(strategy string, gross float64) domain.Opportunity {
	path := domain.Path{{Venue: "uniswap", TokenIn: "USDC", TokenOut: "WETH"}}
	now := time.Now()
	return domain.Opportunity{
		ID:           domain.OpportunityID(path, strategy, now),
		Kind:         domain.KindMultiHop,
		Chain:        domain.ChainArbitrum,
		Path:         path,
		GrossUSD:     decimal.NewFromFloat(gross),
		Strategy:     strategy,
		DiscoveredAt: now,
	}
}

func newTestCoordinator(caller *stubCaller, router Router) *Coordinator {
	return New(Config{
		MinProfitUSD:  decimal.NewFromFloat(0.10),
		DedupWindow:   10 * time.Second,
		CoalesceDelay: 20 * time.Millisecond,
	}, caller, router, testLogger())
}

func TestProcessRejectsBelowThreshold(t *testing.T) {
	// 1 gwei * 150k gas * 1 hop at $3000/ETH = $0.45 gas.
	caller := &stubCaller{gasGwei: decimal.NewFromInt(1)}
	router := &stubRouter{}
	c := newTestCoordinator(caller, router)

	_, accepted := c.Process(context.Background(), oneHopOpp("multi_hop", 0.50))
	assert.False(t, accepted, "$0.05 net is under the $0.10 floor")
	assert.Empty(t, router.routed)

	snap := c.Snapshot()
	assert.Equal(t, int64(1), snap.TotalOpportunities)
	assert.Equal(t, int64(1), snap.Rejections[domain.RejectBelowThreshold])
}

func TestProcessAcceptsAboveFloor(t *testing.T) {
	caller := &stubCaller{gasGwei: decimal.NewFromInt(1)}
	router := &stubRouter{}
	c := newTestCoordinator(caller, router)

	plan, accepted := c.Process(context.Background(), oneHopOpp("multi_hop", 1.00))
	require.True(t, accepted)
	assert.Equal(t, domain.CapitalWallet, plan.Source)
	require.Len(t, router.routed, 1)
	assert.True(t, router.routed[0].NetUSD.Equal(decimal.NewFromFloat(0.55)),
		"router must see the revalidated net, got %s", router.routed[0].NetUSD)

	snap := c.Snapshot()
	assert.Equal(t, int64(1), snap.Accepted)
	assert.Equal(t, int64(1), snap.Dispatch[domain.CapitalWallet])
}

func TestRevalidateIsIdempotent(t *testing.T) {
	caller := &stubCaller{gasGwei: decimal.NewFromInt(1)}
	c := newTestCoordinator(caller, &stubRouter{})
	opp := oneHopOpp("multi_hop", 1.00)

	first, err := c.Revalidate(context.Background(), opp)
	require.NoError(t, err)
	second, err := c.Revalidate(context.Background(), opp)
	require.NoError(t, err)

	assert.True(t, first.NetUSD.Equal(second.NetUSD))
	assert.True(t, first.GasUSD.Equal(second.GasUSD))
	assert.True(t, opp.GasUSD.IsZero(), "input opportunity is never mutated")
}

func TestProcessRejectsPastDeadline(t *testing.T) {
	caller := &stubCaller{gasGwei: decimal.NewFromInt(1), block: 105}
	c := newTestCoordinator(caller, &stubRouter{})

	opp := oneHopOpp("event_hunter", 1.00)
	opp.DeadlineBlock = 100

	_, accepted := c.Process(context.Background(), opp)
	assert.False(t, accepted)
	assert.Equal(t, int64(1), c.Snapshot().Rejections[domain.RejectStalePrice])
}

func TestProcessRejectsWhenChainUnreachable(t *testing.T) {
	caller := &stubCaller{gasErr: domain.ErrAllEndpointsExhausted}
	c := newTestCoordinator(caller, &stubRouter{})

	_, accepted := c.Process(context.Background(), oneHopOpp("multi_hop", 1.00))
	assert.False(t, accepted, "no chain access this cycle drops the opportunity, not the process")
	assert.Equal(t, int64(1), c.Snapshot().Rejections[domain.RejectStalePrice])
}

func TestProcessDedupKeepsHigherNet(t *testing.T) {
	caller := &stubCaller{gasGwei: decimal.Zero}
	router := &stubRouter{}
	c := newTestCoordinator(caller, router)

	_, accepted := c.Process(context.Background(), oneHopOpp("multi_hop", 0.12))
	require.True(t, accepted)

	_, accepted = c.Process(context.Background(), oneHopOpp("event_hunter", 0.11))
	assert.False(t, accepted, "lower-profit duplicate within the window is superseded")
	assert.Equal(t, int64(1), c.Snapshot().Rejections[domain.RejectDuplicateSuperseded])
}

func TestProcessRejectsInfeasiblePlan(t *testing.T) {
	caller := &stubCaller{gasGwei: decimal.Zero}
	c := newTestCoordinator(caller, &stubRouter{infeasible: true})

	_, accepted := c.Process(context.Background(), oneHopOpp("multi_hop", 1.00))
	assert.False(t, accepted)
	assert.Equal(t, int64(1), c.Snapshot().Rejections[domain.RejectPlanInfeasible])
}

func TestRunForwardsOnlyBestDuplicate(t *testing.T) {
	caller := &stubCaller{gasGwei: decimal.Zero}
	router := &stubRouter{}
	// Floor below both profits so coalescing, not the floor, decides.
	c := New(Config{
		MinProfitUSD:  decimal.NewFromFloat(0.05),
		CoalesceDelay: 20 * time.Millisecond,
	}, caller, router, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := make(chan domain.Opportunity, 2)
	out := make(chan domain.ExecutionPlan, 2)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, in, out) }()

	// Two strategies report the same path almost simultaneously; only the
	// $0.12 one may reach the router.
	low := oneHopOpp("multi_hop", 0.08)
	high := oneHopOpp("event_hunter", 0.12)
	in <- low
	in <- high

	select {
	case plan := <-out:
		assert.True(t, plan.Opportunity.NetUSD.Equal(decimal.NewFromFloat(0.12)),
			"forwarded %s", plan.Opportunity.NetUSD)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the coalesced plan")
	}

	select {
	case plan := <-out:
		t.Fatalf("unexpected second plan with net %s", plan.Opportunity.NetUSD)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestReportExecutionUpdatesPnL(t *testing.T) {
	c := newTestCoordinator(&stubCaller{}, &stubRouter{})

	c.ReportExecution(domain.ExecutionResult{Status: domain.ExecConfirmed, ProfitUSD: decimal.NewFromFloat(0.30)})
	c.ReportExecution(domain.ExecutionResult{Status: domain.ExecReverted})

	snap := c.Snapshot()
	assert.Equal(t, int64(1), snap.Executed)
	assert.Equal(t, int64(1), snap.Failed)
	assert.True(t, snap.PnLUSD.Equal(decimal.NewFromFloat(0.30)))
}
