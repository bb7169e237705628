package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/today-feed-cache/internal/domain"
)

const (
	defaultUserAgent = "today-feed-cache/1.0"
	maxErrorBody     = 512
)

// ErrNoContent is returned by FetchToday when the API has nothing for today.
var ErrNoContent = errors.New("remote: no content for today")

// StatusError reports a non-2xx response.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api %s returned status %d", e.Path, e.Status)
	}
	return fmt.Sprintf("api %s returned status %d: %s", e.Path, e.Status, e.Body)
}

// Client talks to the content API over HTTP.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

// NewClient builds a Client for baseURL with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}, nil
}

type batchRequest struct {
	Items []domain.PendingInteraction `json:"items"`
}

// FetchToday retrieves today's record.
func (c *Client) FetchToday(ctx context.Context) (domain.ContentRecord, error) {
	ctx, span := otel.Tracer("remote/Client").Start(ctx, "FetchToday")
	defer span.End()

	var rec domain.ContentRecord
	status, err := c.do(ctx, http.MethodGet, "/content/today", nil, &rec)
	if status == http.StatusNotFound || status == http.StatusNoContent {
		return domain.ContentRecord{}, ErrNoContent
	}
	if err != nil {
		span.RecordError(err)
		return domain.ContentRecord{}, err
	}
	if err := rec.Validate(); err != nil {
		return domain.ContentRecord{}, fmt.Errorf("remote record: %w", err)
	}
	return rec, nil
}

// SyncBatch uploads queued interactions in one request.
func (c *Client) SyncBatch(ctx context.Context, items []domain.PendingInteraction) error {
	ctx, span := otel.Tracer("remote/Client").Start(ctx, "SyncBatch",
		trace.WithAttributes(attribute.Int("batch_size", len(items))),
	)
	defer span.End()

	body, err := json.Marshal(batchRequest{Items: items})
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	if _, err := c.do(ctx, http.MethodPost, "/interactions/batch", body, nil); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Ping reports whether the API answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, dest any) (int, error) {
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: strings.TrimRight(c.baseURL.Path, "/") + path})

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), rdr)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, &StatusError{Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("content api url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse content api url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("content api url %q has no host", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
