// Package ai defines the reply generator contract used by the chat
// orchestrator and an OpenAI-compatible implementation of it.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
)

// Turn is one message of the conversation history sent to a generator.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries everything a generator may use to produce a reply.
// History is in thread order and ends with the user message being answered.
type Request struct {
	ConversationID string
	UserID         string
	Message        string
	History        []Turn

	// Pattern and Snapshot are copied from the conversation's linked
	// assessment; both are empty for an unlinked conversation.
	Pattern  string
	Snapshot json.RawMessage
}

// Generator produces an assistant reply for a request. Implementations must
// honour ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ErrorKind classifies generator failures.
type ErrorKind string

const (
	KindConfig    ErrorKind = "config"
	KindTimeout   ErrorKind = "timeout"
	KindRateLimit ErrorKind = "rate_limit"
	KindProvider  ErrorKind = "provider"
	KindEmpty     ErrorKind = "empty"
)

// Error is returned by generators for every upstream failure.
type Error struct {
	Kind    ErrorKind
	Op      string
	Status  int // upstream HTTP status, 0 when unknown
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ai %s error in %s: %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("ai %s error in %s: %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }
