// Assessment HTTP handlers.
//
// This file exposes REST endpoints for cycle assessments:
//   - POST   /api/assessment/send  (create)
//   - GET    /api/assessment/list  (list, ETag support)
//   - GET    /api/assessment/{id}  (read)
//   - PUT    /api/assessment/{id}  (partial update)
//   - DELETE /api/assessment/{id}  (delete)
//
// Request bodies wrap the questionnaire in an "assessmentData" envelope. The
// envelope is removed here; the service decides whether what is inside is a
// legacy or current payload.
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/cycle-assessment-backend/internal/http/middleware"
	"github.com/tbourn/cycle-assessment-backend/internal/repo"
)

// AssessmentRequest is the body of create and update calls.
type AssessmentRequest struct {
	// AssessmentData holds the questionnaire answers (snake_case or
	// camelCase keys).
	AssessmentData map[string]any `json:"assessmentData" swaggertype:"object"`
}

// bindAssessmentData reads the envelope. A missing or non-object
// assessmentData yields nil so the service reports it as a field error.
func bindAssessmentData(c *gin.Context) (map[string]any, bool) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return nil, false
	}
	data, _ := body["assessmentData"].(map[string]any)
	return data, true
}

// weakETag builds a weak validator from a collection's size and last change.
func weakETag(kind, owner string, count int64, latest *time.Time) string {
	var ts int64
	if latest != nil {
		ts = latest.UnixNano()
	}
	return fmt.Sprintf(`W/"%s:%s:%d:%d"`, kind, owner, count, ts)
}

// notModified sets ETag and reports whether If-None-Match already matches.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	for _, v := range strings.Split(c.GetHeader("If-None-Match"), ",") {
		if v = strings.TrimSpace(v); v == etag || v == "*" {
			c.Status(http.StatusNotModified)
			return true
		}
	}
	return false
}

// CreateAssessment godoc
// @ID          createAssessment
// @Summary     Store an assessment
// @Description Validates the questionnaire, derives the cycle pattern and stock recommendations, and stores the result.
// @Tags        Assessments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string                        true  "Caller id set by the gateway"  example(user123)
// @Param       body       body    handlers.AssessmentRequest    true  "Assessment payload"
//
// @Success     201  {object}  assessment.Assessment
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/assessment/send [post]
func (h *Handlers) CreateAssessment(c *gin.Context) {
	data, okBody := bindAssessmentData(c)
	if !okBody {
		return
	}
	a, err := h.assessments.Create(c.Request.Context(), middleware.UserID(c), data)
	if err != nil {
		writeError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusCreated, a)
}

// ListAssessments godoc
// @ID          listAssessments
// @Summary     List the caller's assessments
// @Description Returns every readable assessment of the caller, newest first. Supports weak ETag via If-None-Match.
// @Tags        Assessments
// @Produce     json
//
// @Param       X-User-ID      header  string  true   "Caller id set by the gateway"  example(user123)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
//
// @Success     200  {array}   assessment.Assessment
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "No assessments"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/assessment/list [get]
func (h *Handlers) ListAssessments(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	if h.db != nil {
		if count, latest, err := repo.AssessmentsStats(ctx, h.db, uid); err == nil && count > 0 {
			if notModified(c, weakETag("assessments", uid, count, latest)) {
				return
			}
		}
	}

	items, err := h.assessments.ListByUser(ctx, uid)
	if err != nil {
		writeError(c, err, ErrCodeInternal)
		return
	}
	if len(items) == 0 {
		c.Writer.Header().Del("ETag")
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no assessments found")
		return
	}
	ok(c, http.StatusOK, items)
}

// GetAssessment godoc
// @ID          getAssessment
// @Summary     Read one assessment
// @Tags        Assessments
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Caller id set by the gateway"
// @Param       id         path    string  true  "Assessment ID"
//
// @Success     200  {object}  assessment.Assessment
// @Failure     404  {object}  handlers.ErrorResponse  "Not found or not owned"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/assessment/{id} [get]
func (h *Handlers) GetAssessment(c *gin.Context) {
	a, err := h.assessments.FindForUser(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		writeError(c, err, ErrCodeInternal)
		return
	}
	if a == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "assessment not found")
		return
	}
	ok(c, http.StatusOK, a)
}

// UpdateAssessment godoc
// @ID          updateAssessment
// @Summary     Update an assessment
// @Description Merges the given fields into the stored assessment. Legacy records are rewritten in the current layout.
// @Tags        Assessments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string                      true  "Caller id set by the gateway"
// @Param       id         path    string                      true  "Assessment ID"
// @Param       body       body    handlers.AssessmentRequest  true  "Fields to change"
//
// @Success     200  {object}  assessment.Assessment
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse  "Owned by another user"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/assessment/{id} [put]
func (h *Handlers) UpdateAssessment(c *gin.Context) {
	data, okBody := bindAssessmentData(c)
	if !okBody {
		return
	}
	a, err := h.assessments.Update(c.Request.Context(), c.Param("id"), middleware.UserID(c), data)
	if err != nil {
		writeError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, a)
}

// DeleteAssessment godoc
// @ID          deleteAssessment
// @Summary     Delete an assessment
// @Description Conversations linked to it keep their snapshot.
// @Tags        Assessments
//
// @Param       X-User-ID  header  string  true  "Caller id set by the gateway"
// @Param       id         path    string  true  "Assessment ID"
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found or not owned"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/assessment/{id} [delete]
func (h *Handlers) DeleteAssessment(c *gin.Context) {
	deleted, err := h.assessments.Delete(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		writeError(c, err, ErrCodeInternal)
		return
	}
	if !deleted {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "assessment not found")
		return
	}
	noContent(c)
}
