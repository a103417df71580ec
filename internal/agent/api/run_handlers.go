// Package api exposes the agent over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/prometheus/client_golang/prometheus"

	"mini-rpa/internal/agent/services"
	"mini-rpa/internal/apierr"
	"mini-rpa/pkg/auth"
	"mini-rpa/pkg/metrics"
)

type RunHandler struct {
	Service *services.RunService
}

func NewRunHandler(svc *services.RunService) *RunHandler {
	return &RunHandler{Service: svc}
}

// Run handles POST /run.
func (h *RunHandler) Run(ctx context.Context, c *app.RequestContext) {
	payload, err := services.DecodeJobPayload(c.Request.Body())
	if err != nil {
		apierr.Write(ctx, c, err)
		return
	}
	if subject, ok := c.Get(auth.SubjectKey); ok && subject != payload.TaskName {
		c.JSON(http.StatusUnauthorized, utils.H{"error": "unauthorized: token was issued for another task"})
		return
	}

	res, err := h.Service.Run(ctx, payload)
	if err != nil {
		apierr.Write(ctx, c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Register mounts the agent routes on h.
func Register(h *server.Hertz, handler *RunHandler, authSecret string, gatherer prometheus.Gatherer) {
	h.GET("/ping", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, utils.H{"message": "pong"})
	})
	if gatherer != nil {
		h.GET("/metrics", metrics.Handler(gatherer))
	}
	h.POST("/run", auth.Middleware(authSecret), handler.Run)
}

