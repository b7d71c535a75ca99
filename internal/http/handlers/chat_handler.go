// Chat HTTP handlers.
//
// This file exposes REST endpoints for assessment-anchored conversations:
//   - POST   /api/chat/send                                   (send, idempotent)
//   - GET    /api/chat/history                                (summaries, ETag)
//   - GET    /api/chat/{conversationId}                       (thread, ETag)
//   - DELETE /api/chat/{conversationId}                       (delete)
//   - PUT    /api/chat/{conversationId}/assessment            (relink)
//   - PUT    /api/chat/{conversationId}/messages/{messageId}  (edit + regenerate)
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/cycle-assessment-backend/internal/domain"
	"github.com/tbourn/cycle-assessment-backend/internal/http/middleware"
	"github.com/tbourn/cycle-assessment-backend/internal/repo"
	"github.com/tbourn/cycle-assessment-backend/internal/services"
	"github.com/tbourn/cycle-assessment-backend/internal/utils"
)

// ChatSendScope namespaces Idempotency-Key values of chat sends.
const ChatSendScope = "chat.send"

// maxThreadLimit caps the optional ?limit on thread reads.
const maxThreadLimit = 500

//
// DTOs
//

// SendMessageRequest is the body of POST /api/chat/send.
type SendMessageRequest struct {
	Message string `json:"message" example:"Why are my periods so irregular?"`
	// ConversationID continues an existing conversation; omit to start one.
	ConversationID *string `json:"conversationId,omitempty"`
	// AssessmentID anchors a new conversation, or relinks an existing one.
	AssessmentID *string `json:"assessmentId,omitempty"`
}

// SendMessageResponse is the outcome of a chat send.
type SendMessageResponse struct {
	// Message is the assistant's reply text.
	Message          string          `json:"message"`
	ConversationID   string          `json:"conversationId"`
	UserMessage      *domain.Message `json:"userMessage"`
	AssistantMessage *domain.Message `json:"assistantMessage"`
	// Fallback is true when the reply did not come from the generator.
	// Replayed responses always report false.
	Fallback bool `json:"fallback"`
}

// HistoryResponse lists the caller's conversations, most recently active
// first.
type HistoryResponse struct {
	Conversations []services.ConversationSummary `json:"conversations"`
}

// ConversationResponse is one conversation with its ordered thread.
type ConversationResponse struct {
	ID                string           `json:"id"`
	AssessmentID      *string          `json:"assessment_id"`
	AssessmentPattern *string          `json:"assessment_pattern"`
	Messages          []domain.Message `json:"messages"`
}

// RelinkRequest is the body of PUT /api/chat/{conversationId}/assessment.
// Omitting assessmentId unlinks the conversation.
type RelinkRequest struct {
	AssessmentID *string `json:"assessmentId,omitempty"`
	// Pattern overrides the pattern copied from the assessment.
	Pattern *string `json:"pattern,omitempty"`
}

// EditMessageRequest is the body of a message edit.
type EditMessageRequest struct {
	Content string `json:"content" example:"Actually my cycle is 45 days"`
}

// EditMessageResponse carries the edited message and regenerated replies.
type EditMessageResponse struct {
	Message     *domain.Message  `json:"message"`
	Regenerated []domain.Message `json:"regenerated"`
}

// MessageResponse is a plain confirmation.
type MessageResponse struct {
	Message string `json:"message" example:"Conversation deleted"`
}

// ChatSendLookup lets IdempotencyValidator recognise keys that already have
// a stored chat send. It returns nil when Handlers has no database.
func (h *Handlers) ChatSendLookup() middleware.IdempotencyLookup {
	if h.db == nil {
		return nil
	}
	return func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
		_, err := repo.GetIdempotency(ctx, h.db, userID, scope, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

// replay rebuilds a stored send. It reports false when anything it needs
// has gone, in which case the request is processed afresh.
func (h *Handlers) replay(c *gin.Context, uid, key string) bool {
	ctx := c.Request.Context()
	rec, err := repo.GetIdempotency(ctx, h.db, uid, ChatSendScope, key, time.Now().UTC())
	if err != nil {
		return false
	}
	reply, err := repo.GetMessage(ctx, h.db, rec.ConversationID, rec.MessageID)
	if err != nil || reply.ParentMessageID == nil {
		return false
	}
	prompt, err := repo.GetMessage(ctx, h.db, rec.ConversationID, *reply.ParentMessageID)
	if err != nil {
		return false
	}
	c.Header(middleware.HeaderIdempotencyReplayed, "true")
	ok(c, http.StatusOK, SendMessageResponse{
		Message:          reply.Content,
		ConversationID:   rec.ConversationID,
		UserMessage:      prompt,
		AssistantMessage: reply,
	})
	return true
}

// nonEmpty drops blank optional ids.
func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendChatMessage
// @Summary     Send a chat message
// @Description Stores the user's message, generates a reply (falling back to built-in guidance when the generator fails) and stores it. Without conversationId a new conversation is started. Supports Idempotency-Key replays.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string                         true   "Caller id set by the gateway"
// @Param       Idempotency-Key  header  string                         false  "Replays the stored result for a repeated key"
// @Param       body             body    handlers.SendMessageRequest    true   "Message"
//
// @Success     200  {object}  handlers.SendMessageResponse
// @Header      200  {string}  Idempotency-Replayed  "true when served from a stored result"
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or oversized message"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation or assessment not found"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     503  {object}  handlers.ErrorResponse  "Conversation busy"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/chat/send [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	key, hasKey := middleware.GetIdempotencyKey(c)
	if hasKey && h.db != nil && h.replay(c, uid, key) {
		return
	}

	res, err := h.chat.Send(ctx, services.SendRequest{
		UserID:         uid,
		Message:        req.Message,
		ConversationID: nonEmpty(req.ConversationID),
		AssessmentID:   nonEmpty(req.AssessmentID),
	})
	if err != nil {
		writeError(c, err, ErrCodeSendFailed)
		return
	}

	if hasKey && h.db != nil {
		_, err := repo.CreateIdempotency(ctx, h.db, uid, ChatSendScope, key,
			res.ConversationID, res.AssistantMessage.ID, http.StatusOK, h.idemTTL)
		if err != nil {
			middleware.LoggerFrom(c).Debug().Err(err).Str("key", key).Msg("idempotency record not stored")
		}
	}

	ok(c, http.StatusOK, SendMessageResponse{
		Message:          res.AssistantMessage.Content,
		ConversationID:   res.ConversationID,
		UserMessage:      res.UserMessage,
		AssistantMessage: res.AssistantMessage,
		Fallback:         res.Fallback,
	})
}

// History godoc
// @ID          chatHistory
// @Summary     List conversations
// @Description Returns the caller's conversations with a preview of the latest message. Supports weak ETag via If-None-Match.
// @Tags        Chat
// @Produce     json
//
// @Param       X-User-ID      header  string  true   "Caller id set by the gateway"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
//
// @Success     200  {object}  handlers.HistoryResponse
// @Success     304  {string}  string  "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/chat/history [get]
func (h *Handlers) History(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	if h.db != nil {
		if count, latest, err := repo.ConversationsStats(ctx, h.db, uid); err == nil {
			if notModified(c, weakETag("conversations", uid, count, latest)) {
				return
			}
		}
	}

	items, err := h.conversations.ListForUser(ctx, uid)
	if err != nil {
		writeError(c, err, ErrCodeInternal)
		return
	}
	if items == nil {
		items = []services.ConversationSummary{}
	}
	ok(c, http.StatusOK, HistoryResponse{Conversations: items})
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Read a conversation
// @Description Returns the conversation's assessment link and its messages in thread order. With limit, only the most recent turns are returned.
// @Tags        Chat
// @Produce     json
//
// @Param       X-User-ID       header  string  true   "Caller id set by the gateway"
// @Param       conversationId  path    string  true   "Conversation ID"
// @Param       limit           query   int     false  "Most recent messages only"  minimum(1) maximum(500)
//
// @Success     200  {object}  handlers.ConversationResponse
// @Success     304  {string}  string  "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found or not owned"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/chat/{conversationId} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("conversationId")

	conv, err := h.conversations.Get(ctx, id, middleware.UserID(c))
	if err != nil {
		writeError(c, err, ErrCodeInternal)
		return
	}
	if conv == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		return
	}

	limit := utils.ParseLimit(c.Query("limit"), 0, maxThreadLimit)
	if h.db != nil {
		if count, latest, err := repo.MessagesStats(ctx, h.db, id); err == nil {
			owner := id + ":" + derefOr(conv.AssessmentID, "-") + ":" + derefOr(conv.AssessmentPattern, "-")
			if limit > 0 {
				owner += ":" + c.Query("limit")
			}
			if notModified(c, weakETag("conversation", owner, count, latest)) {
				return
			}
		}
	}

	var msgs []domain.Message
	if limit > 0 {
		msgs, err = h.messages.RecentTurns(ctx, id, limit)
	} else {
		msgs, err = h.messages.GetOrderedThread(ctx, id)
	}
	if err != nil {
		writeError(c, err, ErrCodeInternal)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	ok(c, http.StatusOK, ConversationResponse{
		ID:                conv.ID,
		AssessmentID:      conv.AssessmentID,
		AssessmentPattern: conv.AssessmentPattern,
		Messages:          msgs,
	})
}

// DeleteConversation godoc
// @ID          deleteConversation
// @Summary     Delete a conversation
// @Description Removes the conversation and all of its messages.
// @Tags        Chat
// @Produce     json
//
// @Param       X-User-ID       header  string  true  "Caller id set by the gateway"
// @Param       conversationId  path    string  true  "Conversation ID"
//
// @Success     200  {object}  handlers.MessageResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Not found or not owned"
// @Failure     503  {object}  handlers.ErrorResponse  "Conversation busy"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/chat/{conversationId} [delete]
func (h *Handlers) DeleteConversation(c *gin.Context) {
	deleted, err := h.conversations.Delete(c.Request.Context(), c.Param("conversationId"), middleware.UserID(c))
	if err != nil {
		writeError(c, err, ErrCodeInternal)
		return
	}
	if !deleted {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: "Conversation deleted"})
}

// RelinkConversation godoc
// @ID          relinkConversation
// @Summary     Change a conversation's assessment
// @Description Links the conversation to another of the caller's assessments, or unlinks it. The assessment is snapshotted at link time.
// @Tags        Chat
// @Accept      json
//
// @Param       X-User-ID       header  string                  true  "Caller id set by the gateway"
// @Param       conversationId  path    string                  true  "Conversation ID"
// @Param       body            body    handlers.RelinkRequest  true  "New link"
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation or assessment not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/chat/{conversationId}/assessment [put]
func (h *Handlers) RelinkConversation(c *gin.Context) {
	var req RelinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	updated, err := h.conversations.UpdateAssessmentLinks(c.Request.Context(),
		c.Param("conversationId"), middleware.UserID(c), nonEmpty(req.AssessmentID), req.Pattern)
	if err != nil {
		writeError(c, err, ErrCodeInternal)
		return
	}
	if !updated {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		return
	}
	noContent(c)
}

// EditMessage godoc
// @ID          editMessage
// @Summary     Edit a message and regenerate replies
// @Description Replaces the content of one of the caller's messages and regenerates the assistant replies to it.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID       header  string                       true  "Caller id set by the gateway"
// @Param       conversationId  path    string                       true  "Conversation ID"
// @Param       messageId       path    string                       true  "Message ID"
// @Param       body            body    handlers.EditMessageRequest  true  "New content"
//
// @Success     200  {object}  handlers.EditMessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or oversized message"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation or message not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Conversation busy"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/chat/{conversationId}/messages/{messageId} [put]
func (h *Handlers) EditMessage(c *gin.Context) {
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.chat.EditAndRegenerate(c.Request.Context(), middleware.UserID(c),
		c.Param("conversationId"), c.Param("messageId"), req.Content)
	if err != nil {
		writeError(c, err, ErrCodeInternal)
		return
	}
	regenerated := res.Regenerated
	if regenerated == nil {
		regenerated = []domain.Message{}
	}
	ok(c, http.StatusOK, EditMessageResponse{Message: res.Message, Regenerated: regenerated})
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
