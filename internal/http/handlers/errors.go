// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Every error response carries one of them.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "validation_failed",
//	  "message": "assessment is invalid",
//	  "errors": [{"field": "age", "message": "is required"}]
//	}
package handlers

import "github.com/tbourn/cycle-assessment-backend/internal/http/middleware"

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = middleware.ErrCodeUnauthorized
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = middleware.ErrCodeRateLimited
	ErrCodeInternal         = middleware.ErrCodeInternal
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeBadIdempotency   = middleware.ErrCodeBadIdempotencyKey

	// Domain-specific:
	ErrCodeValidation      = "validation_failed"
	ErrCodeMessageTooLong  = "message_too_long"
	ErrCodeEmptyMessage    = "empty_message"
	ErrCodeSendFailed      = "send_failed"
	ErrCodeUnavailable     = "unavailable"
	ErrCodeRequestCanceled = "request_canceled"
)
