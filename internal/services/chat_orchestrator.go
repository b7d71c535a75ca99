// Package services – ChatOrchestrator
//
// This file implements ChatOrchestrator, the workflow behind a chat send:
//
//	START → ASSESSMENT_VALIDATED → CONVERSATION_CREATED →
//	USER_MESSAGE_PERSISTED → REPLY_GENERATED →
//	ASSISTANT_MESSAGE_PERSISTED → DONE
//
// Any failure moves to FAILED and is returned as *StageError. Earlier
// stages are never rolled back. A failing or slow generator does not fail
// the send: a locally built fallback reply is persisted instead.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/cycle-assessment-backend/internal/ai"
	"github.com/tbourn/cycle-assessment-backend/internal/domain"
	"github.com/tbourn/cycle-assessment-backend/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Stage is a step of the send workflow.
type Stage string

const (
	StageStart                     Stage = "START"
	StageAssessmentValidated       Stage = "ASSESSMENT_VALIDATED"
	StageConversationCreated       Stage = "CONVERSATION_CREATED"
	StageUserMessagePersisted      Stage = "USER_MESSAGE_PERSISTED"
	StageReplyGenerated            Stage = "REPLY_GENERATED"
	StageAssistantMessagePersisted Stage = "ASSISTANT_MESSAGE_PERSISTED"
	StageDone                      Stage = "DONE"
	StageFailed                    Stage = "FAILED"
)

const (
	defaultReplyTimeout = 30 * time.Second
	defaultHistoryLimit = 20

	// StaticFallbackReply is used when no FallbackReplier is configured.
	StaticFallbackReply = "Sorry, I can't answer right now. Please try again in a moment."
)

// StageError reports the stage that was being attempted when the workflow
// failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("chat send failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FallbackReplier builds a reply without calling the generator. It must not
// fail.
type FallbackReplier interface {
	Reply(req ai.Request) string
}

// SendRequest is the input to Send. Empty optional ids are ignored.
type SendRequest struct {
	UserID         string
	Message        string
	ConversationID *string
	AssessmentID   *string
}

// SendResult is the outcome of a successful Send.
type SendResult struct {
	ConversationID   string
	UserMessage      *domain.Message
	AssistantMessage *domain.Message
	// Fallback is true when the reply did not come from the generator.
	Fallback bool
}

// EditResult is the outcome of EditAndRegenerate.
type EditResult struct {
	Message     *domain.Message
	Regenerated []domain.Message
}

// ChatOrchestrator coordinates assessments, conversations, threading and
// reply generation.
type ChatOrchestrator struct {
	Assessments   *AssessmentService
	Conversations *ConversationService
	Threader      *MessageThreader

	// Generator may be nil, in which case every reply is a fallback.
	Generator ai.Generator
	Fallback  FallbackReplier

	// ReplyTimeout bounds one generator call; 0 means 30s.
	ReplyTimeout time.Duration
	// HistoryLimit is the number of recent turns sent to the generator;
	// 0 means 20.
	HistoryLimit int
}

// Send runs the workflow for one user message. With no ConversationID a new
// conversation is created, anchored to AssessmentID when given. With an
// existing conversation a different AssessmentID relinks it first.
func (o *ChatOrchestrator) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	tr := otel.Tracer("services/ChatOrchestrator")
	ctx, span := tr.Start(ctx, "Send", trace.WithAttributes(attribute.String("user.id", req.UserID)))
	defer span.End()

	log := zerolog.Ctx(ctx)
	stage := StageStart
	fail := func(err error) error {
		span.SetAttributes(attribute.String("chat.failed_stage", string(stage)))
		log.Debug().Str("stage", string(stage)).Err(err).Msg("chat send failed")
		return &StageError{Stage: stage, Err: err}
	}

	content, err := o.Threader.cleanContent(req.Message)
	if err != nil {
		return nil, fail(err)
	}

	// ASSESSMENT_VALIDATED
	stage = StageAssessmentValidated
	assessmentID := trimmed(req.AssessmentID)
	if assessmentID != nil {
		ok, err := o.Assessments.ValidateOwnership(ctx, *assessmentID, req.UserID)
		if err != nil {
			return nil, fail(err)
		}
		if !ok {
			return nil, fail(ErrNotOwnedOrNotFound)
		}
	}

	// CONVERSATION_CREATED
	stage = StageConversationCreated
	conv, err := o.resolveConversation(ctx, req.UserID, trimmed(req.ConversationID), assessmentID)
	if err != nil {
		return nil, fail(err)
	}
	span.SetAttributes(attribute.String("conversation.id", conv.ID))

	// The whole turn runs under the conversation lock so a concurrent send
	// cannot slip its user message between this one and its reply.
	unlock, err := lockConversation(ctx, o.Threader.Locks, conv.ID)
	if err != nil {
		return nil, fail(err)
	}
	defer unlock()

	// USER_MESSAGE_PERSISTED
	stage = StageUserMessagePersisted
	uid := req.UserID
	userMsg, err := o.Threader.insertLocked(ctx, conv.ID, NewMessage{Role: domain.RoleUser, Content: content, UserID: &uid})
	if err != nil {
		return nil, fail(err)
	}

	// REPLY_GENERATED
	stage = StageReplyGenerated
	history, err := o.Threader.RecentTurns(ctx, conv.ID, o.historyLimit())
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("history unavailable, replying to the last message only")
		history = []domain.Message{*userMsg}
	}
	reply, fallback := o.generate(ctx, o.request(conv, req.UserID, content, history))

	// ASSISTANT_MESSAGE_PERSISTED. The user message stays even if the
	// caller has gone away, so the answer is persisted regardless.
	stage = StageAssistantMessagePersisted
	assistantMsg, err := o.Threader.insertLocked(context.WithoutCancel(ctx), conv.ID, NewMessage{
		Role:            domain.RoleAssistant,
		Content:         reply,
		ParentMessageID: &userMsg.ID,
	})
	if err != nil {
		return nil, fail(err)
	}

	span.SetAttributes(attribute.Bool("chat.fallback", fallback))
	return &SendResult{
		ConversationID:   conv.ID,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Fallback:         fallback,
	}, nil
}

func (o *ChatOrchestrator) resolveConversation(ctx context.Context, userID string, conversationID, assessmentID *string) (*domain.Conversation, error) {
	if conversationID == nil {
		return o.Conversations.Create(ctx, userID, assessmentID)
	}
	conv, err := o.Conversations.Get(ctx, *conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if assessmentID == nil || deref(conv.AssessmentID) == *assessmentID {
		return conv, nil
	}
	ok, err := o.Conversations.UpdateAssessmentLinks(ctx, conv.ID, userID, assessmentID, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConversationNotFound
	}
	return o.Conversations.Get(ctx, conv.ID, userID)
}

// EditAndRegenerate edits one of the user's messages and regenerates, in
// place, every assistant reply threaded directly off it. Regeneration sees
// the thread up to and including the edited message.
func (o *ChatOrchestrator) EditAndRegenerate(ctx context.Context, userID, conversationID, messageID, content string) (*EditResult, error) {
	tr := otel.Tracer("services/ChatOrchestrator")
	ctx, span := tr.Start(ctx, "EditAndRegenerate",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("message.id", messageID),
		),
	)
	defer span.End()

	conv, err := o.Conversations.Get(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	edited, replies, err := o.Threader.EditMessage(ctx, conversationID, userID, messageID, content)
	if err != nil {
		return nil, err
	}
	out := &EditResult{Message: edited, Regenerated: []domain.Message{}}
	if len(replies) == 0 {
		return out, nil
	}

	thread, err := o.Threader.GetOrderedThread(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	history := upTo(thread, edited.ID, o.historyLimit())
	req := o.request(conv, userID, edited.Content, history)

	for _, r := range replies {
		text, _ := o.generate(ctx, req)
		updated, err := o.Threader.UpdateReply(context.WithoutCancel(ctx), conversationID, r.ID, text)
		if err != nil {
			return nil, fmt.Errorf("regenerate reply %s: %w", r.ID, err)
		}
		out.Regenerated = append(out.Regenerated, *updated)
	}
	span.SetAttributes(attribute.Int("chat.regenerated", len(out.Regenerated)))
	return out, nil
}

// generate asks the generator for a reply within ReplyTimeout and falls
// back to the local replier on error, empty output or timeout. The wait is
// bounded even if the generator ignores ctx.
func (o *ChatOrchestrator) generate(ctx context.Context, req ai.Request) (string, bool) {
	start := time.Now()
	log := zerolog.Ctx(ctx)

	if o.Generator != nil {
		gctx, cancel := context.WithTimeout(ctx, o.replyTimeout())
		defer cancel()

		type result struct {
			text string
			err  error
		}
		ch := make(chan result, 1)
		go func() {
			text, err := o.Generator.Generate(gctx, req)
			ch <- result{text, err}
		}()

		var err error
		select {
		case r := <-ch:
			if r.err == nil && strings.TrimSpace(r.text) != "" {
				observability.ObserveReply(observability.ReplySourceGenerator, time.Since(start))
				return strings.TrimSpace(r.text), false
			}
			err = r.err
		case <-gctx.Done():
			err = gctx.Err()
		}
		log.Warn().Err(err).Str("conversation_id", req.ConversationID).
			Dur("elapsed", time.Since(start)).Msg("reply generation failed, using fallback")
	}

	text := StaticFallbackReply
	if o.Fallback != nil {
		if s := strings.TrimSpace(o.Fallback.Reply(req)); s != "" {
			text = s
		}
	}
	observability.ObserveReply(observability.ReplySourceFallback, time.Since(start))
	return text, true
}

func (o *ChatOrchestrator) request(conv *domain.Conversation, userID, message string, history []domain.Message) ai.Request {
	turns := make([]ai.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, ai.Turn{Role: m.Role, Content: m.Content})
	}
	return ai.Request{
		ConversationID: conv.ID,
		UserID:         userID,
		Message:        message,
		History:        turns,
		Pattern:        deref(conv.AssessmentPattern),
		Snapshot:       json.RawMessage(conv.AssessmentSnapshot),
	}
}

func (o *ChatOrchestrator) replyTimeout() time.Duration {
	if o.ReplyTimeout > 0 {
		return o.ReplyTimeout
	}
	return defaultReplyTimeout
}

func (o *ChatOrchestrator) historyLimit() int {
	if o.HistoryLimit > 0 {
		return o.HistoryLimit
	}
	return defaultHistoryLimit
}

// upTo returns at most limit messages of thread ending with id.
func upTo(thread []domain.Message, id string, limit int) []domain.Message {
	end := len(thread)
	for i, m := range thread {
		if m.ID == id {
			end = i + 1
			break
		}
	}
	start := 0
	if limit > 0 && end > limit {
		start = end - limit
	}
	return thread[start:end]
}
