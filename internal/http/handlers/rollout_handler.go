// Rollout HTTP handlers.
//
//   - GET /rollout/decision                    (gate outcome for the caller)
//   - GET /admin/rollout                       (persisted state)
//   - PUT /admin/rollout/phase
//   - PUT /admin/rollout/strategy
//   - PUT /admin/rollout/percentage
//   - PUT /admin/rollout/rollback              (kill switch)
//   - PUT /admin/rollout/force-compatibility   (kill switch)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/http/middleware"
)

// PhaseRequest sets the rollout phase by name.
type PhaseRequest struct {
	Phase string `json:"phase" binding:"required" example:"gradual_rollout"`
}

// StrategyRequest sets the gradual rollout strategy.
type StrategyRequest struct {
	Strategy string `json:"strategy" binding:"required" example:"percentage"`
}

// PercentageRequest sets the rollout percentage.
type PercentageRequest struct {
	Percentage *int `json:"percentage" binding:"required" example:"25"`
}

// SwitchRequest toggles a kill switch.
type SwitchRequest struct {
	Enabled *bool `json:"enabled" binding:"required" example:"true"`
}

// DecisionResponse explains the gate outcome for the caller.
type DecisionResponse struct {
	UserID string `json:"user_id" example:"user123"`
	domain.RolloutDecision
}

// GetDecision godoc
// @ID          getRolloutDecision
// @Summary     Evaluate the rollout gate
// @Description Reports whether the caller is served by the new content path and why.
// @Tags        Rollout
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Caller identity"  example(user123)
//
// @Success     200  {object}  handlers.DecisionResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Rollout gate not initialized"
// @Router      /rollout/decision [get]
func (h *Handlers) GetDecision(c *gin.Context) {
	user := h.userContext(c)
	d, err := h.Rollout.Decide(c.Request.Context(), user)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, DecisionResponse{UserID: user.ID, RolloutDecision: d})
}

// GetRollout godoc
// @ID          getRollout
// @Summary     Rollout state
// @Tags        Admin
// @Produce     json
//
// @Success     200  {object}  domain.MigrationState
// @Failure     403  {object}  handlers.ErrorResponse  "Not an internal user"
// @Failure     503  {object}  handlers.ErrorResponse  "Rollout gate not initialized"
// @Router      /admin/rollout [get]
func (h *Handlers) GetRollout(c *gin.Context) {
	st, err := h.Rollout.State()
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// SetPhase godoc
// @ID          setRolloutPhase
// @Summary     Set the rollout phase
// @Description Phases never advance on their own; this is the only way to move between them.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.PhaseRequest  true  "Phase"
//
// @Success     200  {object}  domain.MigrationState
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown phase"
// @Failure     403  {object}  handlers.ErrorResponse  "Not an internal user"
// @Router      /admin/rollout/phase [put]
func (h *Handlers) SetPhase(c *gin.Context) {
	var req PhaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `expected {"phase": "<name>"}`)
		return
	}
	p, err := domain.ParsePhase(req.Phase)
	if err != nil {
		failErr(c, err)
		return
	}
	h.applyRollout(c, h.Rollout.SetPhase(c.Request.Context(), p))
}

// SetStrategy godoc
// @ID          setRolloutStrategy
// @Summary     Set the rollout strategy
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.StrategyRequest  true  "Strategy"
//
// @Success     200  {object}  domain.MigrationState
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown strategy"
// @Failure     403  {object}  handlers.ErrorResponse  "Not an internal user"
// @Router      /admin/rollout/strategy [put]
func (h *Handlers) SetStrategy(c *gin.Context) {
	var req StrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `expected {"strategy": "<name>"}`)
		return
	}
	s, err := domain.ParseStrategy(req.Strategy)
	if err != nil {
		failErr(c, err)
		return
	}
	h.applyRollout(c, h.Rollout.SetStrategy(c.Request.Context(), s))
}

// SetPercentage godoc
// @ID          setRolloutPercentage
// @Summary     Set the rollout percentage
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.PercentageRequest  true  "Percentage (0..100)"
//
// @Success     200  {object}  domain.MigrationState
// @Failure     400  {object}  handlers.ErrorResponse  "Out of range"
// @Failure     403  {object}  handlers.ErrorResponse  "Not an internal user"
// @Router      /admin/rollout/percentage [put]
func (h *Handlers) SetPercentage(c *gin.Context) {
	var req PercentageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Percentage == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `expected {"percentage": 0..100}`)
		return
	}
	h.applyRollout(c, h.Rollout.SetPercentage(c.Request.Context(), *req.Percentage))
}

// SetRollback godoc
// @ID          setRollback
// @Summary     Toggle the rollback kill switch
// @Description While enabled every caller is served by the legacy path.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.SwitchRequest  true  "Switch"
//
// @Success     200  {object}  domain.MigrationState
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not an internal user"
// @Router      /admin/rollout/rollback [put]
func (h *Handlers) SetRollback(c *gin.Context) {
	on, good := bindSwitch(c)
	if !good {
		return
	}
	h.applyRollout(c, h.Rollout.SetRollback(c.Request.Context(), on))
}

// SetForceCompatibility godoc
// @ID          setForceCompatibility
// @Summary     Toggle the force-compatibility kill switch
// @Description While enabled every caller is served by the legacy path.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.SwitchRequest  true  "Switch"
//
// @Success     200  {object}  domain.MigrationState
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not an internal user"
// @Router      /admin/rollout/force-compatibility [put]
func (h *Handlers) SetForceCompatibility(c *gin.Context) {
	on, good := bindSwitch(c)
	if !good {
		return
	}
	h.applyRollout(c, h.Rollout.SetForceCompatibility(c.Request.Context(), on))
}

func bindSwitch(c *gin.Context) (bool, bool) {
	var req SwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `expected {"enabled": true|false}`)
		return false, false
	}
	return *req.Enabled, true
}

// applyRollout answers a setter call with the resulting state.
func (h *Handlers) applyRollout(c *gin.Context, err error) {
	if err != nil {
		failErr(c, err)
		return
	}
	st, err := h.Rollout.State()
	if err != nil {
		failErr(c, err)
		return
	}
	lg := middleware.LoggerFrom(c)
	lg.Info().
		Str("phase", st.Phase.String()).
		Str("strategy", string(st.Strategy)).
		Int("percentage", st.Percentage).
		Bool("rollback", st.Rollback).
		Bool("force_compatibility", st.ForceCompatibility).
		Msg("rollout updated")
	ok(c, http.StatusOK, st)
}
