// Interaction, sync and connectivity HTTP handlers.
//
//   - POST /interactions   (queue for upload; Idempotency-Key aware)
//   - POST /sync/drain     (upload the queue now)
//   - GET  /sync/status
//   - POST /connectivity   (report a connectivity transition)
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/http/middleware"
	"github.com/tbourn/today-feed-cache/internal/repo"
	"github.com/tbourn/today-feed-cache/internal/services"
)

// HeaderIdempotencyReplayed is set on responses answered from a stored key.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// InteractionRequest is the payload of POST /interactions.
type InteractionRequest struct {
	// Action names what the user did.
	Action string `json:"action" binding:"required" example:"content_viewed"`
	// Payload is forwarded to the remote API untouched.
	Payload json.RawMessage `json:"payload,omitempty" swaggertype:"object"`
}

// InteractionResponse identifies the queued entry.
type InteractionResponse struct {
	QueueID string `json:"queue_id" example:"6f1c1f1e-1f9e-4a4e-9d59-0d3c2a8b1e11"`
	Queued  bool   `json:"queued"`
}

// SyncStatusResponse is the payload of GET /sync/status.
type SyncStatusResponse struct {
	domain.SyncStatus
	Pending []domain.PendingInteraction `json:"pending"`
}

// ConnectivityRequest is the payload of POST /connectivity.
type ConnectivityRequest struct {
	Online *bool `json:"online" binding:"required" example:"true"`
}

// PostInteraction godoc
// @ID          postInteraction
// @Summary     Queue an interaction
// @Description Queues a user interaction for upload. With an Idempotency-Key, a retry returns the original queue id.
// @Tags        Sync
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Caller identity"  example(user123)
// @Param       Idempotency-Key  header  string  false "Key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.InteractionRequest  true  "Interaction"
//
// @Success     202  {object}  handlers.InteractionResponse
// @Success     200  {object}  handlers.InteractionResponse  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     503  {object}  handlers.ErrorResponse  "Cache not initialized"
// @Router      /interactions [post]
func (h *Handlers) PostInteraction(c *gin.Context) {
	ctx := c.Request.Context()
	if queueID, replay := middleware.ReplayedQueueID(c); replay {
		c.Header(HeaderIdempotencyReplayed, "true")
		ok(c, http.StatusOK, InteractionResponse{QueueID: queueID, Queued: true})
		return
	}

	var req InteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Action) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action is required")
		return
	}
	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "payload must be JSON")
		return
	}

	item, err := h.Sync.Enqueue(ctx, req.Action, req.Payload)
	if err != nil {
		failErr(c, err)
		return
	}

	// Store path, best effort: a failed write only loses replay protection.
	if key, has := middleware.GetIdempotencyKey(c); has && h.DB != nil {
		_, err := repo.CreateIdempotency(ctx, h.DB, middleware.UserIDFrom(c), middleware.IdempotencyScope(c), key, item.QueueID, http.StatusAccepted, h.IdempotencyTTL)
		if err != nil && !errors.Is(err, repo.ErrDuplicate) {
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Msg("store idempotency key")
		}
	}
	ok(c, http.StatusAccepted, InteractionResponse{QueueID: item.QueueID, Queued: true})
}

// DrainSync godoc
// @ID          drainSync
// @Summary     Drain the sync queue
// @Description Uploads queued interactions in one batch. A failed upload schedules a backoff retry and returns 502.
// @Tags        Sync
// @Produce     json
//
// @Success     200  {object}  services.DrainResult
// @Failure     502  {object}  handlers.ErrorResponse  "Upload failed"
// @Failure     503  {object}  handlers.ErrorResponse  "Cache not initialized"
// @Router      /sync/drain [post]
func (h *Handlers) DrainSync(c *gin.Context) {
	res, err := h.Sync.Drain(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// SyncStatus godoc
// @ID          syncStatus
// @Summary     Sync queue status
// @Tags        Sync
// @Produce     json
//
// @Success     200  {object}  handlers.SyncStatusResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Cache not initialized"
// @Router      /sync/status [get]
func (h *Handlers) SyncStatus(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := h.Sync.Status(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	pending, err := h.Sync.Pending(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	if pending == nil {
		pending = []domain.PendingInteraction{}
	}
	ok(c, http.StatusOK, SyncStatusResponse{SyncStatus: st, Pending: pending})
}

// Connectivity godoc
// @ID          connectivity
// @Summary     Report connectivity
// @Description A transition to online drains the sync queue and runs a connectivity warming pass.
// @Tags        Sync
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ConnectivityRequest  true  "Connectivity"
//
// @Success     200  {object}  services.LifecycleState
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     503  {object}  handlers.ErrorResponse  "Cache not initialized"
// @Router      /connectivity [post]
func (h *Handlers) Connectivity(c *gin.Context) {
	var req ConnectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Online == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `expected {"online": true|false}`)
		return
	}
	if err := h.Lifecycle.OnConnectivityChange(c.Request.Context(), *req.Online); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, h.Lifecycle.State())
}

var _ SyncService = (*services.SyncQueue)(nil)
