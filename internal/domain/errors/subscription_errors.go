package errors

import "errors"

var (
	// ErrNoActiveSubscription indicates the user has no active or trialing
	// subscription; plan changes require an existing subscription.
	ErrNoActiveSubscription = errors.New("no active subscription found")

	// ErrSubscriptionNotFound indicates the specified subscription was not found
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrSamePlan indicates the requested price equals the current one
	ErrSamePlan = errors.New("target plan is identical to the current plan")

	// ErrInvalidPriceID indicates the target price does not map to an active plan
	ErrInvalidPriceID = errors.New("price id does not match an active plan")

	// ErrSubscriptionModified indicates the provider-side subscription diverged
	// from the locally cached expectation between decision and mutation.
	ErrSubscriptionModified = errors.New("subscription was modified elsewhere, please refresh and retry")

	// ErrProfileNotFound indicates no profile row exists for the user
	ErrProfileNotFound = errors.New("profile not found")
)
