package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CapitalSource selects where execution capital comes from.
type CapitalSource string

const (
	CapitalWallet    CapitalSource = "wallet"
	CapitalFlashloan CapitalSource = "flashloan"
)

// FlashloanProvider describes one configured flashloan venue. Availability
// and liquidity are refreshed by an external collaborator on its own cadence;
// the router treats them as read-only inputs.
type FlashloanProvider struct {
	Name         string
	FeeBps       int64
	LiquidityUSD decimal.Decimal
	Available    bool
}

// Fee returns the flashloan fee for a given position size.
func (p FlashloanProvider) Fee(positionUSD decimal.Decimal) decimal.Decimal {
	return positionUSD.Mul(decimal.NewFromInt(p.FeeBps)).Div(decimal.NewFromInt(10000))
}

// ExecutionPlan is the router's output: one validated execution attempt for an
// accepted opportunity. It is owned by the router for the duration of the
// attempt and discarded afterwards; the on-chain outcome belongs to the
// execution collaborator.
type ExecutionPlan struct {
	ID            string // uuid, correlates logs and ledger rows
	OpportunityID string
	Opportunity   Opportunity
	Source        CapitalSource
	Provider      string // flashloan provider name, empty for wallet plans
	FeeBps        int64  // flashloan fee, 0 for wallet plans
	PositionUSD   decimal.Decimal
	MinProfitUSD  decimal.Decimal // after capital-source fees
	CreatedAt     time.Time
}

// ExecutionStatus is the terminal state reported by the execution collaborator.
type ExecutionStatus string

const (
	ExecConfirmed ExecutionStatus = "confirmed"
	ExecReverted  ExecutionStatus = "reverted"
	ExecTimeout   ExecutionStatus = "timeout"
	ExecDryRun    ExecutionStatus = "dry_run"
)

// ExecutionResult is the outcome of one execution attempt.
type ExecutionResult struct {
	PlanID     string
	Status     ExecutionStatus
	TxHash     string
	GasUsedUSD decimal.Decimal
	ProfitUSD  decimal.Decimal // realized, net of gas and fees
	Error      string
	FinishedAt time.Time
}

// Succeeded reports whether the attempt landed profitably on chain (or in a
// dry run).
func (r ExecutionResult) Succeeded() bool {
	return r.Status == ExecConfirmed || r.Status == ExecDryRun
}
