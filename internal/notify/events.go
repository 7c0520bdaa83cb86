package notify

import (
	"fmt"
	"strings"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// Event types used to filter operator notifications.
const (
	EventOpportunity = "opportunity"
	EventExecution   = "execution"
	EventDegraded    = "degraded"
	EventSession     = "session"
)

// OpportunityMessage formats an accepted opportunity and its routed plan.
func OpportunityMessage(plan domain.ExecutionPlan) (title, message string) {
	title = fmt.Sprintf("Opportunity accepted (%s)", plan.Opportunity.Strategy)

	var b strings.Builder
	fmt.Fprintf(&b, "Path: %s\n", plan.Opportunity.Path.Key())
	fmt.Fprintf(&b, "Net: $%s\n", plan.Opportunity.NetUSD.StringFixed(4))
	fmt.Fprintf(&b, "Source: %s", plan.Source)
	if plan.Provider != "" {
		fmt.Fprintf(&b, " (%s, %dbps)", plan.Provider, plan.FeeBps)
	}
	fmt.Fprintf(&b, "\nPosition: $%s", plan.PositionUSD.StringFixed(2))
	return title, b.String()
}

// ExecutionMessage formats a terminal execution result for operators.
func ExecutionMessage(plan domain.ExecutionPlan, res domain.ExecutionResult) (title, message string) {
	verb := "confirmed"
	switch res.Status {
	case domain.ExecReverted:
		verb = "reverted"
	case domain.ExecTimeout:
		verb = "timed out"
	case domain.ExecDryRun:
		verb = "simulated"
	}
	title = fmt.Sprintf("Execution %s", verb)

	var b strings.Builder
	fmt.Fprintf(&b, "Path: %s\n", plan.Opportunity.Path.Key())
	fmt.Fprintf(&b, "Source: %s", plan.Source)
	if plan.Provider != "" {
		fmt.Fprintf(&b, " (%s, %dbps)", plan.Provider, plan.FeeBps)
	}
	fmt.Fprintf(&b, "\nPosition: $%s\n", plan.PositionUSD.StringFixed(2))
	if res.Succeeded() {
		fmt.Fprintf(&b, "Profit: $%s", res.ProfitUSD.StringFixed(4))
	} else if res.Error != "" {
		fmt.Fprintf(&b, "Error: %s", res.Error)
	}
	if res.TxHash != "" {
		fmt.Fprintf(&b, "\nTx: %s", res.TxHash)
	}
	return title, b.String()
}

// DegradedMessage formats a chain connectivity alert.
func DegradedMessage(chain domain.ChainID, openEndpoints, total int) (title, message string) {
	title = fmt.Sprintf("Chain %s degraded", chain)
	message = fmt.Sprintf("%d of %d endpoints are circuit-open; opportunity flow is paused until one recovers.", openEndpoints, total)
	return title, message
}

// RecoveredMessage formats the all-clear after a degraded period.
func RecoveredMessage(chain domain.ChainID) (title, message string) {
	return fmt.Sprintf("Chain %s recovered", chain), "At least one endpoint closed its circuit; opportunity flow resumed."
}

// SessionMessage formats the shutdown summary.
func SessionMessage(snap domain.StatsSnapshot) (title, message string) {
	title = "Session summary"
	var b strings.Builder
	fmt.Fprintf(&b, "Opportunities: %d (accepted %d)\n", snap.TotalOpportunities, snap.Accepted)
	fmt.Fprintf(&b, "Executed: %d ok, %d failed\n", snap.Executed, snap.Failed)
	fmt.Fprintf(&b, "PnL: $%s", snap.PnLUSD.StringFixed(4))
	return title, b.String()
}
