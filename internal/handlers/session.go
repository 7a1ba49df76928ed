package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/accounts"
	"github.com/Ramsey-B/aster/pkg/collapse"
	"github.com/Ramsey-B/aster/pkg/daycache"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/scheduler"
	"github.com/Ramsey-B/aster/pkg/session"
)

// SessionHandler serves the synced activity view and refresh controls
type SessionHandler struct {
	sess     *session.Session
	sched    *scheduler.Scheduler
	coord    *daycache.Coordinator
	accounts *accounts.Store
	logger   ectologger.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(
	sess *session.Session,
	sched *scheduler.Scheduler,
	coord *daycache.Coordinator,
	accountStore *accounts.Store,
	logger ectologger.Logger,
) *SessionHandler {
	return &SessionHandler{
		sess:     sess,
		sched:    sched,
		coord:    coord,
		accounts: accountStore,
		logger:   logger,
	}
}

// RegisterRoutes registers session routes
func (h *SessionHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/session", h.GetSession)
	g.GET("/heatmap", h.GetHeatmap)
	g.GET("/days/:day/activities", h.GetDayActivities)
	g.POST("/refresh", h.TriggerRefresh)
	g.POST("/accounts/:id/backfill", h.Backfill)
}

// GetSession returns a snapshot of the full session view
func (h *SessionHandler) GetSession(c echo.Context) error {
	return SuccessResponse(c, h.sess.Snapshot())
}

// GetHeatmap returns the per-day activity buckets, trimmed to the configured
// heatmap window counted back from today
func (h *SessionHandler) GetHeatmap(c echo.Context) error {
	view := h.sess.Snapshot()

	window := h.accounts.HeatmapWindowDays(c.Request().Context())
	cutoff := models.DayOf(time.Now().UTC().AddDate(0, 0, -(window - 1)))

	buckets := make([]models.HeatMapBucket, 0, len(view.Heatmap))
	for _, bucket := range view.Heatmap {
		if bucket.Date >= cutoff {
			buckets = append(buckets, bucket)
		}
	}
	return SuccessResponse(c, buckets)
}

// dayActivitiesResponse is the day drill-down payload
type dayActivitiesResponse struct {
	Day        string                   `json:"day"`
	Activities []models.UnifiedActivity `json:"activities,omitempty"`
	Groups     []collapse.Group         `json:"groups,omitempty"`
}

// GetDayActivities returns the merged activities for one calendar date.
// With ?collapse=true bursts of same-kind work are folded into groups.
func (h *SessionHandler) GetDayActivities(c echo.Context) error {
	day, err := ParseDayParam(c, "day")
	if err != nil {
		return err
	}

	activities := h.sess.ActivitiesForDay(day)

	if c.QueryParam("collapse") == "true" {
		groups := collapse.Collapse(activities)
		if groups == nil {
			groups = []collapse.Group{}
		}
		return SuccessResponse(c, dayActivitiesResponse{Day: day, Groups: groups})
	}

	if activities == nil {
		activities = []models.UnifiedActivity{}
	}
	return SuccessResponse(c, dayActivitiesResponse{Day: day, Activities: activities})
}

// TriggerRefresh starts a refresh cycle in the background. ?force=true skips
// the debounce but never overlaps an in-flight cycle.
func (h *SessionHandler) TriggerRefresh(c echo.Context) error {
	force := c.QueryParam("force") == "true"

	// detach from the request so the cycle outlives the response
	go func() {
		ctx := context.Background()
		if err := h.sched.Trigger(ctx, force); err != nil {
			if errors.Is(err, scheduler.ErrTriggerDebounced) || errors.Is(err, daycache.ErrRefreshInFlight) {
				h.logger.WithContext(ctx).Debugf("Refresh trigger skipped: %v", err)
				return
			}
			h.logger.WithContext(ctx).WithError(err).Error("Triggered refresh cycle failed")
		}
	}()

	return AcceptedResponse(c, map[string]string{"status": "refresh started"})
}

type backfillRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Backfill fetches a day range older than the rolling window for one account
func (h *SessionHandler) Backfill(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")
	account, err := h.accounts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return NotFound("account not found")
		}
		return err
	}

	var req backfillRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if req.From == "" || req.To == "" {
		return BadRequest("from and to days are required")
	}

	if err := h.coord.Backfill(ctx, account, req.From, req.To); err != nil {
		h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"account_id": id,
		}).Error("backfill failed")
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	return SuccessResponse(c, map[string]string{"status": "backfill complete"})
}
