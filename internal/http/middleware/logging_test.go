package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad log line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/rid", func(c *gin.Context) { seen = RequestIDFrom(c) })

	w := serve(r, http.MethodGet, "/rid", nil)
	if gen := w.Header().Get(requestIDHeader); gen == "" || gen != seen {
		t.Fatalf("generated id header=%q ctx=%q", gen, seen)
	}

	w = serve(r, http.MethodGet, "/rid", map[string]string{"x-request-id": "abc-123"})
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("propagated id = %q", got)
	}

	w = serve(r, http.MethodGet, "/rid", map[string]string{requestIDHeader: strings.Repeat("z", 500)})
	if got := w.Header().Get(requestIDHeader); len(got) > maxRequestIDLen {
		t.Fatalf("oversized id echoed back")
	}
}

func TestAccessLog_LevelsAndRedaction(t *testing.T) {
	buf := captureLogger(t)
	r := gin.New()
	r.Use(RequestID(), Identity(), AccessLog(AccessLogOptions{
		MaskHeaders: []string{"X-API-Key"},
		SkipPaths:   []string{"/metrics"},
	}))
	r.GET("/ok", func(c *gin.Context) {
		lg := LoggerFrom(c)
		lg.Info().Msg("inside handler")
		c.Status(http.StatusOK)
	})
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodGet, "/ok?email=jane@example.com&id=123e4567-e89b-12d3-a456-426614174000", map[string]string{
		"Authorization": "Bearer secret",
		"X-API-Key":     "k",
		HeaderUserID:    "u-9",
	})
	serve(r, http.MethodGet, "/bad", nil)
	serve(r, http.MethodGet, "/boom", nil)
	serve(r, http.MethodGet, "/metrics", nil)
	serve(r, http.MethodGet, "/nowhere", nil)

	lines := logLines(t, buf)
	if len(lines) != 5 {
		t.Fatalf("got %d log lines; want 5:\n%s", len(lines), buf.String())
	}

	inner := lines[0]
	if inner["message"] != "inside handler" || inner["user_id"] != "u-9" || inner["request_id"] == "" {
		t.Fatalf("request-scoped logger fields missing: %v", inner)
	}

	ok := lines[1]
	if ok["level"] != "info" || ok["status"] != float64(200) || ok["component"] != "http" {
		t.Fatalf("ok line: %v", ok)
	}
	q := ok["query"].(string)
	if strings.Contains(q, "jane@example.com") || strings.Contains(q, "123e4567") {
		t.Fatalf("query not redacted: %q", q)
	}
	hdrs := ok["headers"].(map[string]any)
	if hdrs["Authorization"] != "[REDACTED]" || hdrs["X-Api-Key"] != "[REDACTED]" {
		t.Fatalf("headers not masked: %v", hdrs)
	}

	if lines[2]["level"] != "warn" || lines[3]["level"] != "error" {
		t.Fatalf("levels: %v / %v", lines[2]["level"], lines[3]["level"])
	}
	if lines[4]["path"] != "/nowhere" || lines[4]["status"] != float64(404) {
		t.Fatalf("unmatched line: %v", lines[4])
	}
}

func TestRedactor_UUIDBeforePhone(t *testing.T) {
	red := newRedactor(nil)
	got := red.text("id=123e4567-e89b-12d3-a456-426614174000 call 212-555-1212")
	if got != "id=[REDACTED:id] call [REDACTED:phone]" {
		t.Fatalf("redacted = %q", got)
	}
}

func TestRecovery_PanicBecomesJSON500(t *testing.T) {
	buf := captureLogger(t)
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/panic", func(*gin.Context) { panic("kaboom") })

	w := serve(r, http.MethodGet, "/panic", map[string]string{requestIDHeader: "rid-1"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["request_id"] != "rid-1" || body["code"] != "internal_error" {
		t.Fatalf("body = %v", body)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("panic not logged: %s", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if truncate("abc", 0) != "abc" || truncate("abc", 3) != "abc" || truncate("abcdef", 3) != "abc…" {
		t.Fatal("truncate mismatch")
	}
}
