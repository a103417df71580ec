// Package api exposes the orchestrator over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/prometheus/client_golang/prometheus"

	"mini-rpa/internal/apierr"
	"mini-rpa/internal/orchestrator/db"
	"mini-rpa/internal/orchestrator/services"
	"mini-rpa/pkg/metrics"
	"mini-rpa/pkg/ratelimit"
)

// JournalReader serves the read side of the dispatch journal.
type JournalReader interface {
	Get(ctx context.Context, dispatchID string) (*db.DispatchRecord, error)
	List(ctx context.Context, f db.ListFilter) ([]db.DispatchRecord, error)
}

type DispatchHandler struct {
	Service *services.DispatchService
	Journal JournalReader
}

func NewDispatchHandler(svc *services.DispatchService, journal JournalReader) *DispatchHandler {
	return &DispatchHandler{Service: svc, Journal: journal}
}

// Dispatch handles POST /dispatch.
func (h *DispatchHandler) Dispatch(ctx context.Context, c *app.RequestContext) {
	req, err := services.DecodeDispatchRequest(c.Request.Body())
	if err != nil {
		apierr.Write(ctx, c, err)
		return
	}
	res, err := h.Service.Dispatch(ctx, req)
	if err != nil {
		apierr.Write(ctx, c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetDispatches handles GET /dispatches?task=&status=&limit=.
func (h *DispatchHandler) GetDispatches(ctx context.Context, c *app.RequestContext) {
	if h.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, utils.H{"error": "dispatch journal is disabled"})
		return
	}
	f := db.ListFilter{
		TaskName: c.Query("task"),
		Status:   c.Query("status"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid limit: " + raw})
			return
		}
		f.Limit = limit
	}
	recs, err := h.Journal.List(ctx, f)
	if err != nil {
		hlog.CtxErrorf(ctx, "listing dispatches: %v", err)
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to list dispatches: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, recs)
}

// GetDispatchByID handles GET /dispatches/:id.
func (h *DispatchHandler) GetDispatchByID(ctx context.Context, c *app.RequestContext) {
	if h.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, utils.H{"error": "dispatch journal is disabled"})
		return
	}
	id := c.Param("id")
	rec, err := h.Journal.Get(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, utils.H{"error": "Dispatch not found"})
		return
	}
	if err != nil {
		hlog.CtxErrorf(ctx, "fetching dispatch %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to fetch dispatch: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Register mounts the orchestrator routes on h. A nil limiter disables rate limiting.
func Register(h *server.Hertz, handler *DispatchHandler, limiter *ratelimit.Limiter, gatherer prometheus.Gatherer) {
	h.GET("/ping", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, utils.H{"message": "pong"})
	})
	if gatherer != nil {
		h.GET("/metrics", metrics.Handler(gatherer))
	}
	h.POST("/dispatch", ratelimit.Middleware(limiter), handler.Dispatch)

	dispatchGroup := h.Group("/dispatches")
	{
		dispatchGroup.GET("", handler.GetDispatches)
		dispatchGroup.GET("/:id", handler.GetDispatchByID)
	}
}
