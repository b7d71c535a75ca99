// Package services defines the business logic for assessments,
// conversations and message threading. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// Translation into HTTP status codes is performed by the handler layer.
package services

import (
	"errors"

	"github.com/tbourn/cycle-assessment-backend/internal/assessment"
)

// Assessment errors.
var (
	// ErrAssessmentNotFound indicates that no assessment has the given id.
	ErrAssessmentNotFound = errors.New("assessment not found")

	// ErrAssessmentForbidden is returned when the assessment exists but is
	// owned by another user.
	ErrAssessmentForbidden = errors.New("assessment belongs to another user")

	// ErrNotOwnedOrNotFound is returned when a conversation is linked to an
	// assessment that is missing or owned by someone else. The two cases are
	// deliberately indistinguishable.
	ErrNotOwnedOrNotFound = errors.New("assessment not found or not owned")
)

// Conversation and message errors.
var (
	// ErrConversationNotFound indicates that the conversation does not exist,
	// including when it was deleted while a write was waiting for its lock.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyMessage is returned when message content is blank.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when message content exceeds the
	// configured rune limit.
	ErrMessageTooLong = errors.New("message too long")

	// ErrMessageNotFound indicates that the message does not exist in the
	// conversation, or is not editable by the caller.
	ErrMessageNotFound = errors.New("message not found")

	// ErrThreadRootNotUser is returned when the first message of a
	// conversation would not be a user message.
	ErrThreadRootNotUser = errors.New("first message of a conversation must be from the user")

	// ErrInvalidRole is returned for roles other than user and assistant, and
	// for user messages without an author.
	ErrInvalidRole = errors.New("invalid message role")
)

// ValidationError reports every problem found in an assessment payload.
type ValidationError struct {
	Errors assessment.ValidationErrors
}

func (e *ValidationError) Error() string { return e.Errors.Error() }

// Unwrap exposes the field list to errors.As.
func (e *ValidationError) Unwrap() error { return e.Errors }

// asValidation wraps assessment.ValidationErrors; other errors pass through.
func asValidation(err error) error {
	var ve assessment.ValidationErrors
	if errors.As(err, &ve) {
		return &ValidationError{Errors: ve}
	}
	return err
}
