// Package apierr renders pipeline errors as JSON responses.
package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"mini-rpa/internal/models"
)

// Body builds the JSON error body for err and returns it with its status code.
// Errors outside the taxonomy become a bare 500.
func Body(err error) (int, utils.H) {
	e, ok := models.AsError(err)
	if !ok {
		return http.StatusInternalServerError, utils.H{"error": err.Error()}
	}
	body := utils.H{
		"error": e.Error(),
		"kind":  string(e.Kind),
		"stage": e.Stage,
	}
	if errors.Is(e, models.ErrRun) {
		body["registered"] = e.Registered
	}
	if e.AgentStatus != 0 {
		body["agent_status"] = e.AgentStatus
		body["agent_response"] = AgentResponse(e.AgentBody)
	}
	return e.HTTPStatus(), body
}

// Write logs err and renders it on c.
func Write(ctx context.Context, c *app.RequestContext, err error) {
	status, body := Body(err)
	if status >= http.StatusInternalServerError {
		hlog.CtxErrorf(ctx, "%s %s failed: %v", c.Method(), c.Request.URI().Path(), err)
	} else {
		hlog.CtxWarnf(ctx, "%s %s rejected: %v", c.Method(), c.Request.URI().Path(), err)
	}
	c.JSON(status, body)
}

// AgentResponse returns b as raw JSON when it is valid JSON, otherwise as a
// JSON string, so a reply is never lost when it is relayed.
func AgentResponse(b []byte) json.RawMessage {
	if len(b) > 0 && json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}
