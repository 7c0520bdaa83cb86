package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PlanExecutor is the execution contract exposed to the on-chain execution
// collaborator. Atomicity of flashloan-funded plans is the collaborator's
// guarantee, not the engine's.
type PlanExecutor interface {
	Execute(ctx context.Context, plan ExecutionPlan) (ExecutionResult, error)
}

// WalletState is the read-only capital view the router works from. It is
// refreshed by an external collaborator on its own cadence.
type WalletState interface {
	// BalanceUSD returns the wallet balance usable as position capital.
	BalanceUSD(ctx context.Context) (decimal.Decimal, error)
	// Address returns the funding wallet address.
	Address() string
}

// FlashloanSource reports which flashloan providers are currently usable.
type FlashloanSource interface {
	Providers(ctx context.Context) ([]FlashloanProvider, error)
}
