// Admin HTTP handlers.
//
//   - POST /admin/maintenance  (purge, then enforce the size budget)
//   - POST /admin/warm         (manual warming pass)
//   - GET  /admin/health       (measured cache report)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/services"
)

// HealthResponse combines the measured report with warming and lifecycle
// state.
type HealthResponse struct {
	domain.HealthReport
	Warming   *domain.WarmingStats     `json:"warming,omitempty"`
	Lifecycle *services.LifecycleState `json:"lifecycle,omitempty"`
}

// RunMaintenance godoc
// @ID          runMaintenance
// @Summary     Run maintenance now
// @Description Purges expired idempotency keys and evicts history, then sync errors, until the store is under budget.
// @Tags        Admin
// @Produce     json
//
// @Success     200  {object}  domain.EvictionReport
// @Failure     403  {object}  handlers.ErrorResponse  "Not an internal user"
// @Failure     503  {object}  handlers.ErrorResponse  "Cache not initialized"
// @Router      /admin/maintenance [post]
func (h *Handlers) RunMaintenance(c *gin.Context) {
	rep, err := h.Maintenance.Run(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}

// Warm godoc
// @ID          warm
// @Summary     Warm the cache now
// @Description Runs a manual warming pass. Manual passes bypass the warming window but not the global switch.
// @Tags        Admin
// @Produce     json
//
// @Success     200  {object}  domain.WarmResult
// @Failure     403  {object}  handlers.ErrorResponse  "Not an internal user"
// @Failure     502  {object}  handlers.ErrorResponse  "Fetch failed"
// @Failure     503  {object}  handlers.ErrorResponse  "Cache not initialized"
// @Router      /admin/warm [post]
func (h *Handlers) Warm(c *gin.Context) {
	res, err := h.Warming.Warm(c.Request.Context(), domain.TriggerManual)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// GetHealth godoc
// @ID          getCacheHealth
// @Summary     Cache health report
// @Description Every figure is measured from the store at request time.
// @Tags        Admin
// @Produce     json
//
// @Success     200  {object}  handlers.HealthResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not an internal user"
// @Failure     503  {object}  handlers.ErrorResponse  "Cache not initialized"
// @Router      /admin/health [get]
func (h *Handlers) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()
	rep, err := h.Health.Snapshot(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	resp := HealthResponse{HealthReport: rep}
	if h.Warming != nil {
		if st, err := h.Warming.Stats(ctx); err == nil {
			resp.Warming = &st
		}
	}
	if h.Lifecycle != nil {
		st := h.Lifecycle.State()
		resp.Lifecycle = &st
	}
	ok(c, http.StatusOK, resp)
}
