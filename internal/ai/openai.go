package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tbourn/cycle-assessment-backend/internal/assessment"
	"github.com/tbourn/cycle-assessment-backend/internal/config"
)

const systemPrompt = "You are a supportive menstrual health assistant. " +
	"Answer in plain language, keep replies short, and suggest seeing a clinician " +
	"for anything that sounds urgent or unusual. You are not a doctor and do not diagnose."

// OpenAIGenerator talks to any OpenAI-compatible chat completion endpoint.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIGenerator builds a generator from cfg. It fails when no API key
// is configured.
func NewOpenAIGenerator(cfg config.AIConfig) (*OpenAIGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &Error{Kind: KindConfig, Op: "config", Message: "OPENAI_API_KEY is not set"}
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(oc),
		model:       model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Generate requests one chat completion for req.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    BuildMessages(req),
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", classify("completion", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &Error{Kind: KindEmpty, Op: "completion", Message: "empty completion response"}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// BuildMessages renders req as a chat completion prompt: the system prompt,
// the assessment context when present, then the history.
func BuildMessages(req Request) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})

	if ctxText := assessmentContext(req); ctxText != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: ctxText})
	}

	for _, t := range req.History {
		role := openai.ChatMessageRoleUser
		if t.Role == openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	if len(req.History) == 0 && req.Message != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Message})
	}
	return msgs
}

func assessmentContext(req Request) string {
	var b strings.Builder
	if req.Pattern != "" {
		b.WriteString("The user's cycle assessment pattern is: ")
		b.WriteString(assessment.Label(req.Pattern))
		b.WriteString(".")
	}
	snap := strings.TrimSpace(string(req.Snapshot))
	if snap != "" && snap != "{}" && snap != "null" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Assessment answers (JSON): ")
		b.WriteString(snap)
	}
	return b.String()
}

// classify maps transport and API errors onto *Error.
func classify(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTimeout, Op: op, Message: "request did not complete", Cause: err}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		kind := KindProvider
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			kind = KindRateLimit
		}
		return &Error{Kind: kind, Op: op, Status: apiErr.HTTPStatusCode, Message: apiErr.Message, Cause: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		kind := KindProvider
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			kind = KindRateLimit
		}
		return &Error{Kind: kind, Op: op, Status: reqErr.HTTPStatusCode, Message: "request failed", Cause: err}
	}
	return &Error{Kind: KindProvider, Op: op, Message: "request failed", Cause: err}
}
