// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency for unsafe methods, used by the
// interaction endpoint so a client retrying after a lost response does not
// queue the same interaction twice. The middleware validates the
// Idempotency-Key header and asks a lookup whether (user, route, key) was
// already accepted. It annotates the context so downstream code can:
//   - read the validated key (GetIdempotencyKey)
//   - detect a replay and its stored queue id (IsReplay, ReplayedQueueID)
//   - skip rate limiting for the replay (internal flag read by RateLimiter)
//
// Design notes:
//   - Persistence stays behind the IdempotencyLookup function type; the
//     router adapts the repo, tests pass closures
//   - Recording a key is the handler's job, after the enqueue succeeded
//   - Expiry is enforced by the lookup, not here
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // string: queue id of the stored result
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length; values <= 0 mean 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup returns the queue id stored for (userID, scope, key), or
// found=false.
//
// Implementations consult the idempotency table and treat expired rows as
// absent. Return an error only for lookup failures; the middleware logs it
// and lets the request through as a fresh one.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (queueID string, found bool, err error)

// IdempotencyValidator returns a Gin middleware that validates and resolves
// the Idempotency-Key header.
//
// Behavior:
//   - GET, HEAD, OPTIONS and requests without the header pass through
//     untouched
//   - A key longer than MaxLen or outside Pattern aborts with 400
//     {"code":"bad_idempotency_key"} and the request id
//   - A valid key is stored on the context (GetIdempotencyKey)
//   - When lookup finds (user, IdempotencyScope, key), the stored queue id
//     is stashed (ReplayedQueueID), the rate limiter is told to bypass, and
//     the replay counter is incremented
//   - Lookup errors are logged at warn and never block the request
//
// Mount it after Identity (the user id is part of the key) and before the
// rate limiter (so replays are free).
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			queueID, found, err := lookup(c.Request.Context(), UserIDFrom(c), IdempotencyScope(c), key, time.Now().UTC())
			if err != nil {
				lg := LoggerFrom(c)
				lg.Warn().Err(err).Msg("idempotency lookup failed")
			}
			if found {
				c.Set(ctxKeyIdemReplay, queueID)
				c.Set(ctxKeyRateBypass, true)
				idempotentReplays.Inc()
			}
		}
		c.Next()
	}
}

// IdempotencyScope is the scope under which keys are recorded: the matched
// route, or the raw path when nothing matched.
func IdempotencyScope(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return c.Request.Method + " " + p
	}
	return c.Request.Method + " " + c.Request.URL.Path
}

// GetIdempotencyKey returns the validated key, if any.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// ReplayedQueueID returns the queue id of the result being replayed.
func ReplayedQueueID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IsReplay reports whether the request repeats an accepted one.
func IsReplay(c *gin.Context) bool {
	_, ok := ReplayedQueueID(c)
	return ok
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
