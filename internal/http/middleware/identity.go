// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides Identity, which trusts the X-User-ID header set by the
// upstream gateway and makes the caller's id available to the rest of the
// chain. Authentication itself happens before requests reach this service.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderUserID carries the authenticated user id.
	HeaderUserID = "X-User-ID"

	// userIDKey is the Gin context key holding the caller's id.
	userIDKey = "userID"

	maxUserIDLen = 64
)

// Identity copies X-User-ID into the Gin context and adds it to the
// request-scoped logger. Requests without a usable id are rejected with 401.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if uid == "" || len(uid) > maxUserIDLen {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       ErrCodeUnauthorized,
				"message":    "missing or invalid " + HeaderUserID,
			})
			return
		}
		c.Set(userIDKey, uid)
		setLogger(c, LoggerFrom(c).With().Str("user_id", uid).Logger())
		c.Next()
	}
}

// UserID returns the id stored by Identity, or "" when the request has not
// passed through it.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(userIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
