package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/cycle-assessment-backend/internal/ai"
	"github.com/tbourn/cycle-assessment-backend/internal/config"
	"github.com/tbourn/cycle-assessment-backend/internal/http/handlers"
	"github.com/tbourn/cycle-assessment-backend/internal/http/middleware"
	"github.com/tbourn/cycle-assessment-backend/internal/repo"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api",
		RateRPS:     100,
		RateBurst:   10,
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		Chat:        config.ChatConfig{ReplyTimeout: time.Second, MaxMessageRunes: 20},
	}
}

func newTestRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	gen := ai.GeneratorFunc(func(_ context.Context, req ai.Request) (string, error) {
		return "reply to " + req.Message, nil
	})
	RegisterRoutes(r, Deps{DB: newTestDB(t), Generator: gen}, cfg)
	return r
}

func serve(r *gin.Engine, method, path, user, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r := newTestRouter(t, testConfig())

	w := serve(r, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" || w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("request id or security headers missing: %v", w.Header())
	}
	if w.Header().Get("Cache-Control") != "" {
		t.Fatalf("health should stay cacheable: %v", w.Header())
	}

	w = serve(r, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	if w := serve(r, http.MethodGet, "/nope", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/health", "", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/swagger/index.html", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be off by default, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://app.example.org"}}
	r := newTestRouter(t, cfg)

	// The allowed origin differs from httptest's Host, so this is a real
	// cross-origin request.
	w := serve(r, http.MethodGet, "/health", "", "", "Origin", "http://app.example.org")
	if w.Code != http.StatusOK {
		t.Fatalf("allowed origin: %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example.org" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	w = serve(r, http.MethodGet, "/health", "", "", "Origin", "http://evil.example")
	if w.Code != http.StatusForbidden {
		t.Fatalf("unlisted origin: %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin echoed: %q", got)
	}
}

func TestRegisterRoutes_SwaggerEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.SwaggerEnabled = true
	r := newTestRouter(t, cfg)

	w := serve(r, http.MethodGet, "/swagger/doc.json", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/api/chat/send") {
		t.Fatalf("swagger doc: %d %.200s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_APIRequiresIdentity(t *testing.T) {
	r := newTestRouter(t, testConfig())
	for _, p := range []string{"/api/assessment/list", "/api/chat/history"} {
		w := serve(r, http.MethodGet, p, "", "")
		if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), handlers.ErrCodeUnauthorized) {
			t.Fatalf("GET %s without identity = %d %s", p, w.Code, w.Body.String())
		}
		if w.Header().Get("Cache-Control") != "no-store" {
			t.Fatalf("GET %s: API responses must not be stored: %v", p, w.Header())
		}
	}
}

// A full round trip through the production pipeline.
func TestPipeline_AssessmentThenChat(t *testing.T) {
	r := newTestRouter(t, testConfig())

	w := serve(r, http.MethodPost, "/api/assessment/send", "u1",
		`{"assessmentData":{"age":"16","cycleLength":"irregular"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create assessment: %d %s", w.Code, w.Body.String())
	}
	var a struct {
		ID      string `json:"id"`
		Pattern string `json:"pattern"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &a)
	if a.Pattern != "developing" {
		t.Fatalf("pattern = %q", a.Pattern)
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("assessment response cacheable: %v", w.Header())
	}

	body := fmt.Sprintf(`{"message":"hi","assessmentId":%q}`, a.ID)
	w = serve(r, http.MethodPost, "/api/chat/send", "u1", body, middleware.HeaderIdempotencyKey, "k-1")
	if w.Code != http.StatusOK {
		t.Fatalf("send: %d %s", w.Code, w.Body.String())
	}
	var sent struct {
		Message        string `json:"message"`
		ConversationID string `json:"conversationId"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &sent)
	if sent.Message != "reply to hi" || sent.ConversationID == "" {
		t.Fatalf("send = %+v", sent)
	}

	w = serve(r, http.MethodPost, "/api/chat/send", "u1", body, middleware.HeaderIdempotencyKey, "k-1")
	if w.Code != http.StatusOK || w.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay: %d %v", w.Code, w.Header())
	}

	w = serve(r, http.MethodPost, "/api/chat/send", "u1", `{"message":"this message is far too long"}`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "message_too_long") {
		t.Fatalf("too long: %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodPost, "/api/chat/send", "u1", `{"message":"x"}`, middleware.HeaderIdempotencyKey, "bad key!")
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), handlers.ErrCodeBadIdempotency) {
		t.Fatalf("bad idempotency key: %d %s", w.Code, w.Body.String())
	}
}

func TestPipeline_ChatSendRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r := newTestRouter(t, cfg)

	if w := serve(r, http.MethodPost, "/api/chat/send", "u1", `{"message":"one"}`); w.Code != http.StatusOK {
		t.Fatalf("first send: %d %s", w.Code, w.Body.String())
	}
	w := serve(r, http.MethodPost, "/api/chat/send", "u1", `{"message":"two"}`)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" ||
		!strings.Contains(w.Body.String(), handlers.ErrCodeRateLimited) {
		t.Fatalf("second send: %d %v", w.Code, w.Header())
	}
	// Budgets are per user; reads are not limited.
	if w := serve(r, http.MethodPost, "/api/chat/send", "u2", `{"message":"mine"}`); w.Code != http.StatusOK {
		t.Fatalf("other user: %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/api/chat/history", "u1", ""); w.Code != http.StatusOK {
		t.Fatalf("history: %d", w.Code)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
