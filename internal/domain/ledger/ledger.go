// Package ledger holds the pure credit-balance arithmetic. Nothing in this
// package touches I/O; repositories and usecases call into it and persist
// the results.
package ledger

import "github.com/shopspring/decimal"

// ExpirationMode controls what happens to the existing balance when new
// credits are applied.
type ExpirationMode string

const (
	// ExpirationNever keeps the existing balance; the rollover cap is the
	// only limiting mechanism.
	ExpirationNever ExpirationMode = "never"

	// ExpirationEachPeriod expires the positive part of the existing
	// balance before the new allocation is applied. Unused by current call
	// sites but kept as the extension point for use-it-or-lose-it plans.
	ExpirationEachPeriod ExpirationMode = "each_period"
)

// BalanceResult is the outcome of applying an allocation to a balance.
type BalanceResult struct {
	NewBalance decimal.Decimal
	Expired    decimal.Decimal
}

// CalculateBalanceWithExpiration applies newCredits to currentBalance under
// the given expiration mode and optional rollover cap.
//
// A nil maxRollover means uncapped: the result is the exact sum. Under
// ExpirationNever the cap truncates the sum but the truncated amount is not
// reported as expired; capped credits were simply never added. Negative
// balances (a user who over-spent under concurrent debits) flow through the
// arithmetic unclamped; flooring pools at zero is the caller's concern.
func CalculateBalanceWithExpiration(currentBalance, newCredits decimal.Decimal, mode ExpirationMode, maxRollover *decimal.Decimal) BalanceResult {
	expired := decimal.Zero
	base := currentBalance

	if mode == ExpirationEachPeriod && currentBalance.IsPositive() {
		expired = currentBalance
		base = decimal.Zero
	}

	sum := base.Add(newCredits)
	if maxRollover != nil && sum.GreaterThan(*maxRollover) {
		sum = *maxRollover
	}

	return BalanceResult{
		NewBalance: sum,
		Expired:    expired,
	}
}

// PlanChangeResult describes the credit effect of a tier change.
type PlanChangeResult struct {
	// NewSubscriptionCredits is the subscription pool after the change.
	NewSubscriptionCredits decimal.Decimal
	// CreditsAdded is the delta to record as a plan_upgrade transaction.
	// Zero on downgrades: the lower allocation applies from the next
	// renewal and no immediate debit occurs.
	CreditsAdded decimal.Decimal
	// Upgrade reports whether the target tier allocates more per month.
	Upgrade bool
}

// ApplyPlanChange computes the immediate credit effect of moving from one
// monthly allocation to another.
//
// Upgrades credit the difference between the two monthly allocations right
// away, capped at the target tier's rollover ceiling. Downgrades preserve
// the existing balance, only truncating it when it already exceeds the new
// ceiling. The asymmetry is a product policy invariant: pay more, get the
// difference now; pay less, keep what you have until renewal.
func ApplyPlanChange(subscriptionCredits decimal.Decimal, currentMonthly, targetMonthly int, targetMaxRollover decimal.Decimal) PlanChangeResult {
	if targetMonthly > currentMonthly {
		delta := decimal.NewFromInt(int64(targetMonthly - currentMonthly))
		res := CalculateBalanceWithExpiration(subscriptionCredits, delta, ExpirationNever, &targetMaxRollover)
		return PlanChangeResult{
			NewSubscriptionCredits: res.NewBalance,
			CreditsAdded:           delta,
			Upgrade:                true,
		}
	}

	capped := subscriptionCredits
	if capped.GreaterThan(targetMaxRollover) {
		capped = targetMaxRollover
	}
	return PlanChangeResult{
		NewSubscriptionCredits: capped,
		CreditsAdded:           decimal.Zero,
		Upgrade:                false,
	}
}
