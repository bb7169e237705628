// Content HTTP handlers.
//
//   - GET    /content/today     (rollout-gated read)
//   - PUT    /content/today     (cache a record)
//   - DELETE /content/today     (archive and clear)
//   - GET    /content/fallback  (previous day, then history)
//   - GET    /content/history   (paginated, weak ETag)
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/http/middleware"
	"github.com/tbourn/today-feed-cache/internal/metrics"
	"github.com/tbourn/today-feed-cache/internal/repo"
	"github.com/tbourn/today-feed-cache/internal/services"
	"github.com/tbourn/today-feed-cache/internal/sysutil"
	"github.com/tbourn/today-feed-cache/internal/utils"
)

// HeaderFeedPath tells the client which read path served the request.
const HeaderFeedPath = "X-Feed-Path"

// TodayResponse is the payload of GET /content/today and /content/fallback.
type TodayResponse struct {
	Content              *domain.ContentRecord `json:"content,omitempty"`
	FallbackType         domain.FallbackType   `json:"fallback_type" example:"none"`
	ContentAgeSeconds    int64                 `json:"content_age_seconds" example:"3600"`
	IsStale              bool                  `json:"is_stale"`
	ShouldShowAgeWarning bool                  `json:"should_show_age_warning"`
	// Architecture is "new" or "legacy".
	Architecture string `json:"architecture,omitempty" example:"new"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// HistoryResponse wraps a page of history, newest first.
type HistoryResponse struct {
	Items      []domain.ContentRecord `json:"items"`
	Pagination Pagination             `json:"pagination"`
}

func fromFallback(res domain.FallbackResult) TodayResponse {
	return TodayResponse{
		Content:              res.Content,
		FallbackType:         res.FallbackType,
		ContentAgeSeconds:    int64(res.ContentAge.Seconds()),
		IsStale:              res.IsStale,
		ShouldShowAgeWarning: res.ShouldShowAgeWarning,
	}
}

func (h *Handlers) userContext(c *gin.Context) domain.UserContext {
	uid := middleware.UserIDFrom(c)
	internal := uid != middleware.AnonymousUser && h.IsInternal != nil && h.IsInternal(uid)
	return domain.UserContext{ID: uid, IsInternal: internal}
}

// useNewPath evaluates the rollout gate. Any gate failure keeps the caller
// on the legacy path.
func (h *Handlers) useNewPath(c *gin.Context) bool {
	if h.Rollout == nil {
		return false
	}
	d, err := h.Rollout.Decide(c.Request.Context(), h.userContext(c))
	if err != nil {
		lg := middleware.LoggerFrom(c)
		lg.Warn().Err(err).Msg("rollout gate unavailable; serving legacy path")
		return false
	}
	return d.UseNew
}

var historyPages = utils.PageParams{DefaultSize: 10, MaxSize: 50}

// GetToday godoc
// @ID          getToday
// @Summary     Get today's content
// @Description Callers on the new architecture get the full fallback chain (today, previous day, newest history);
// @Description legacy callers get today's record only. allow_stale returns yesterday's record annotated as stale.
// @Tags        Content
// @Produce     json
//
// @Param       X-User-ID    header  string  false "Caller identity (rollout bucketing)"  example(user123)
// @Param       allow_stale  query   bool    false "Accept a stale today record"          default(false)
//
// @Success     200  {object}  handlers.TodayResponse
// @Header      200  {string}  X-Feed-Path  "new or legacy"
// @Failure     404  {object}  handlers.ErrorResponse  "No content"
// @Failure     503  {object}  handlers.ErrorResponse  "Cache not initialized"
// @Router      /content/today [get]
func (h *Handlers) GetToday(c *gin.Context) {
	ctx := c.Request.Context()
	allowStale := sysutil.IsTruthy(c.Query("allow_stale"))
	useNew := h.useNewPath(c)
	path := metrics.PathLabel(useNew)
	c.Header(HeaderFeedPath, path)

	rec, err := h.Content.GetToday(ctx, allowStale)
	if err != nil {
		failErr(c, err)
		return
	}
	if rec != nil {
		resp := fromFallback(h.Content.Annotate(rec))
		resp.Architecture = path
		ok(c, http.StatusOK, resp)
		return
	}
	if !useNew {
		failErr(c, services.ErrNoContent)
		return
	}

	// The today slot already missed; go straight to the fallback chain.
	res, err := h.Content.GetFallback(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	if res.Content == nil {
		failErr(c, services.ErrNoContent)
		return
	}
	resp := fromFallback(res)
	resp.Architecture = path
	ok(c, http.StatusOK, resp)
}

// PutToday godoc
// @ID          putToday
// @Summary     Cache today's content
// @Description Stores a record as today's content. A record for an earlier day already in the slot moves to previous-day.
// @Tags        Content
// @Accept      json
// @Produce     json
//
// @Param       body  body  domain.ContentRecord  true  "Content record"
//
// @Success     204  {string}  string "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed body"
// @Failure     422  {object}  handlers.ErrorResponse  "Record failed validation"
// @Failure     503  {object}  handlers.ErrorResponse  "Cache not initialized"
// @Router      /content/today [put]
func (h *Handlers) PutToday(c *gin.Context) {
	var rec domain.ContentRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.Content.CacheToday(c.Request.Context(), rec); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ClearToday godoc
// @ID          clearToday
// @Summary     Clear today's content
// @Description Archives the current today record into the previous-day slot and removes it. Idempotent.
// @Tags        Content
//
// @Success     204  {string}  string "No Content"
// @Failure     503  {object}  handlers.ErrorResponse  "Cache not initialized"
// @Router      /content/today [delete]
func (h *Handlers) ClearToday(c *gin.Context) {
	if err := h.Content.ClearTodayContent(c.Request.Context()); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// GetFallback godoc
// @ID          getFallback
// @Summary     Get fallback content
// @Description Resolves previous-day content, then the newest history entry. fallback_type none means nothing is cached.
// @Tags        Content
// @Produce     json
//
// @Success     200  {object}  handlers.TodayResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Cache not initialized"
// @Router      /content/fallback [get]
func (h *Handlers) GetFallback(c *gin.Context) {
	res, err := h.Content.GetFallback(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, fromFallback(res))
}

// GetHistory godoc
// @ID          getHistory
// @Summary     List content history (paginated)
// @Description Returns cached history newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Content
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"content:4:2048:1735380000\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(50) default(10)
//
// @Success     200  {object} handlers.HistoryResponse
// @Header      200  {string} ETag  "Weak ETag for the content partition"
// @Success     304  {string} string "Not Modified"
// @Failure     503  {object} handlers.ErrorResponse "Cache not initialized"
// @Router      /content/history [get]
func (h *Handlers) GetHistory(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := historyPages.Parse(c.Query("page"), c.Query("page_size"))

	// ETag pre-check, best effort.
	if h.DB != nil {
		count, size, maxTS, err := repo.PartitionStats(ctx, h.DB, domain.PartitionContent)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"content:%d:%d:%d"`, count, size, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	all, err := h.Content.History(ctx)
	if err != nil {
		failErr(c, err)
		return
	}

	start, end, totalPages := utils.Window(len(all), page, pageSize)
	ok(c, http.StatusOK, HistoryResponse{
		Items: all[start:end],
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int64(len(all)),
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
