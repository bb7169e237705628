// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides request correlation, the access log and panic
// recovery. AccessLog attaches a request-scoped zerolog logger to the
// context (see LoggerFrom) and writes one line per request with the query
// string and headers scrubbed: sensitive headers are masked, and emails,
// phone numbers and UUIDs are replaced. Bodies are never logged.
//
// Order: RequestID, Identity, AccessLog, Recovery.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbourn/today-feed-cache/internal/sysutil"
)

const (
	requestIDKey      = "requestID"
	requestIDHeader   = "X-Request-ID"
	ctxKeyLogger      = "logger"
	maxQueryLogLength = 2048
	maxRequestIDLen   = 128
)

// RequestID returns a Gin middleware that assigns each request a correlation
// id.
//
// Behavior:
//   - Reuses the incoming X-Request-ID when it is non-empty after trimming
//     and at most 128 bytes long
//   - Otherwise generates a random UUID
//   - Stores the id on the context (RequestIDFrom) and echoes it in the
//     X-Request-ID response header
//
// Mount it first after tracing so every later log line and error envelope
// carries the id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if rid == "" || len(rid) > maxRequestIDLen {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the correlation id set by RequestID.
func RequestIDFrom(c *gin.Context) string {
	v, _ := c.Get(requestIDKey)
	s, _ := v.(string)
	return s
}

// AccessLogOptions configures AccessLog.
type AccessLogOptions struct {
	// MaskHeaders are masked in addition to Authorization, Cookie and Set-Cookie.
	MaskHeaders []string
	// SkipPaths are served without an access log line (e.g. /metrics).
	SkipPaths []string
}

// redactor scrubs identifiers out of free text. UUIDs go first so the phone
// pattern cannot eat their digit groups.
type redactor struct {
	uuid, email, phone *regexp.Regexp
	masked             map[string]struct{}
}

func newRedactor(extra []string) *redactor {
	r := &redactor{
		uuid:  regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`),
		email: regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`),
		phone: regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`),
		masked: map[string]struct{}{
			"authorization": {},
			"cookie":        {},
			"set-cookie":    {},
		},
	}
	for _, h := range extra {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.masked[h] = struct{}{}
		}
	}
	return r
}

func (r *redactor) text(s string) string {
	if s == "" {
		return s
	}
	s = r.uuid.ReplaceAllString(s, "[REDACTED:id]")
	s = r.email.ReplaceAllString(s, "[REDACTED:email]")
	return r.phone.ReplaceAllString(s, "[REDACTED:phone]")
}

func (r *redactor) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.masked[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = r.text(strings.Join(vv, ", "))
	}
	return out
}

// AccessLog returns a Gin middleware that writes one structured line per
// request and exposes a request-scoped logger.
//
// Behavior:
//   - Before the handler runs, attaches a zerolog logger tagged with
//     request_id, user_id, method and route (see LoggerFrom)
//   - After the handler runs, logs "http_request" with status, latency,
//     sizes, client IP, replay flag, the scrubbed query and headers
//   - Level: error for 5xx or gin errors, warn for 4xx, info otherwise
//   - Paths in SkipPaths still get the scoped logger but no access line
//
// Redaction:
//   - Authorization, Cookie, Set-Cookie and MaskHeaders are replaced with
//     [REDACTED]
//   - UUIDs, emails and phone numbers in the query and header values are
//     replaced with typed placeholders
//   - The query is truncated at 2 KiB; bodies are never read
func AccessLog(opts AccessLogOptions) gin.HandlerFunc {
	red := newRedactor(opts.MaskHeaders)
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		base := sysutil.Component("http")
		l := base.With().
			Str("request_id", RequestIDFrom(c)).
			Str("user_id", UserIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(ctxKeyLogger, &l)

		c.Next()

		if _, ok := skip[path]; ok {
			return
		}
		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0:
			ev = l.Error().Str("errors", c.Errors.String())
		case status >= http.StatusInternalServerError:
			ev = l.Error()
		case status >= http.StatusBadRequest:
			ev = l.Warn()
		default:
			ev = l.Info()
		}
		ev.
			Str("query", red.text(truncate(c.Request.URL.RawQuery, maxQueryLogLength))).
			Str("remote_ip", c.ClientIP()).
			Int64("bytes_in", c.Request.ContentLength).
			Int("status", status).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Bool("replay", IsReplay(c)).
			Interface("headers", red.headers(c.Request.Header)).
			Msg("http_request")
	}
}

// Recovery returns a Gin middleware that turns a panic into a JSON 500.
//
// Behavior:
//   - Logs the panic value and stack through the request-scoped logger
//   - If nothing was written yet, answers 500 with the standard error
//     envelope {"request_id","code":"internal_error","message"} and echoes
//     X-Request-ID
//   - If the response was already started, only aborts with status 500
//
// Mount it after AccessLog so the recovered request still gets its access
// line.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := RequestIDFrom(c)
			lg := LoggerFrom(c)
			lg.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the http component logger
// when AccessLog is not installed.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(ctxKeyLogger); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := sysutil.Component("http")
	return &l
}

// truncate caps s at max bytes; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
