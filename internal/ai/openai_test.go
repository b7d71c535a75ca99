package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tbourn/cycle-assessment-backend/internal/config"
)

func newGen(t *testing.T, h http.HandlerFunc) *OpenAIGenerator {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	g, err := NewOpenAIGenerator(config.AIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1/", Model: "test-model", MaxTokens: 64})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}
	return g
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "cmpl-1",
		"object":  "chat.completion",
		"choices": []any{map[string]any{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}}},
	})
	return string(b)
}

func TestNewOpenAIGenerator_RequiresKey(t *testing.T) {
	_, err := NewOpenAIGenerator(config.AIConfig{APIKey: "  "})
	var aerr *Error
	if !errors.As(err, &aerr) || aerr.Kind != KindConfig {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestGenerate_SendsPromptAndReturnsReply(t *testing.T) {
	var got openai.ChatCompletionRequest
	g := newGen(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion("  Try tracking for three months.  ")))
	})

	reply, err := g.Generate(context.Background(), Request{
		Message:  "is this normal?",
		Pattern:  "irregular",
		Snapshot: json.RawMessage(`{"cycle_length":"40"}`),
		History: []Turn{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi"},
			{Role: "user", Content: "is this normal?"},
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "Try tracking for three months." {
		t.Fatalf("reply = %q", reply)
	}
	if got.Model != "test-model" || got.MaxTokens != 64 {
		t.Fatalf("unexpected request: model=%q max=%d", got.Model, got.MaxTokens)
	}
	if len(got.Messages) != 5 {
		t.Fatalf("expected system, context and 3 history messages, got %d", len(got.Messages))
	}
	if !strings.Contains(got.Messages[1].Content, "pattern is: Irregular.") || !strings.Contains(got.Messages[1].Content, `"cycle_length":"40"`) {
		t.Fatalf("assessment context missing: %q", got.Messages[1].Content)
	}
	if got.Messages[4].Role != "user" || got.Messages[4].Content != "is this normal?" {
		t.Fatalf("last message = %+v", got.Messages[4])
	}
}

func TestAssessmentContext(t *testing.T) {
	got := assessmentContext(Request{Pattern: "heavy", Snapshot: json.RawMessage(`{}`)})
	if got != "The user's cycle assessment pattern is: Heavy." {
		t.Fatalf("context = %q", got)
	}
	if got := assessmentContext(Request{Snapshot: json.RawMessage(`null`)}); got != "" {
		t.Fatalf("empty request should add no context, got %q", got)
	}
}

func TestGenerate_RateLimitIsClassified(t *testing.T) {
	g := newGen(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`))
	})

	_, err := g.Generate(context.Background(), Request{Message: "hi"})
	var aerr *Error
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	if aerr.Kind != KindRateLimit || aerr.Status != http.StatusTooManyRequests {
		t.Fatalf("kind=%s status=%d", aerr.Kind, aerr.Status)
	}
}

func TestGenerate_EmptyChoices(t *testing.T) {
	g := newGen(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion("   ")))
	})
	_, err := g.Generate(context.Background(), Request{Message: "hi"})
	var aerr *Error
	if !errors.As(err, &aerr) || aerr.Kind != KindEmpty {
		t.Fatalf("expected empty error, got %v", err)
	}
}

func TestGenerate_DeadlineIsTimeout(t *testing.T) {
	g := newGen(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := g.Generate(ctx, Request{Message: "hi"})
	var aerr *Error
	if !errors.As(err, &aerr) || aerr.Kind != KindTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cause to unwrap to DeadlineExceeded, got %v", err)
	}
}

func TestBuildMessages_NoContextNoHistory(t *testing.T) {
	msgs := BuildMessages(Request{Message: "hello", Snapshot: json.RawMessage(`{}`)})
	if len(msgs) != 2 {
		t.Fatalf("expected system + user, got %d", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem || msgs[1].Content != "hello" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestGeneratorFunc(t *testing.T) {
	var g Generator = GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		return "echo " + req.Message, nil
	})
	out, err := g.Generate(context.Background(), Request{Message: "x"})
	if err != nil || out != "echo x" {
		t.Fatalf("got %q, %v", out, err)
	}
}
