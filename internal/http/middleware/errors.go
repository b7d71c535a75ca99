package middleware

// Error codes written by middleware. The handlers package re-exports them so
// clients see a single code list.
const (
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeRateLimited       = "too_many_requests"
	ErrCodeBadIdempotencyKey = "bad_idempotency_key"
	ErrCodeInternal          = "internal_error"
)
