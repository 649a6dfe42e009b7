package errors

// Generic error codes shared across handlers.
const (
	ErrInternal        = "INTERNAL"
	ErrNotFound        = "NOT_FOUND"
	ErrInvalidArgument = "INVALID_ARGUMENT"
	ErrUnauthenticated = "UNAUTHENTICATED"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrConflict        = "CONFLICT"
	ErrTimeout         = "TIMEOUT"
	ErrNotImplemented  = "NOT_IMPLEMENTED"
)

// Billing-specific error codes surfaced by the subscription endpoints.
const (
	ErrInvalidPriceID       = "INVALID_PRICE_ID"
	ErrSamePlan             = "SAME_PLAN"
	ErrNoActiveSubscription = "NO_ACTIVE_SUBSCRIPTION"
	ErrSubscriptionModified = "SUBSCRIPTION_MODIFIED"
	ErrStripeError          = "STRIPE_ERROR"
	ErrInsufficientCredits  = "INSUFFICIENT_CREDITS"
)
