// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity. There is no authentication in
// front of the cache; the client names itself through X-User-ID and the
// rollout gate buckets on that value. Admin routes additionally require the
// identity to be listed as an internal user.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderUserID carries the caller identity.
	HeaderUserID = "X-User-ID"

	ctxKeyUserID = "userID"

	// AnonymousUser is used when no identity was supplied.
	AnonymousUser = "anonymous"

	maxUserIDLen = 128
)

// Identity stores the X-User-ID header (trimmed, capped) in the context.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
			if len(uid) > maxUserIDLen {
				uid = uid[:maxUserIDLen]
			}
			c.Set(ctxKeyUserID, uid)
		}
		c.Next()
	}
}

// UserIDFrom returns the identity stored by Identity, or AnonymousUser.
func UserIDFrom(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return AnonymousUser
}

// RequireInternal rejects callers that isInternal does not recognise.
func RequireInternal(isInternal func(userID string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := UserIDFrom(c)
		if uid == AnonymousUser || isInternal == nil || !isInternal(uid) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "forbidden",
				"message":    "internal users only",
			})
			return
		}
		c.Next()
	}
}
