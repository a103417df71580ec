// Package client relays job payloads to agents.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"mini-rpa/internal/models"
	"mini-rpa/pkg/auth"
)

// DefaultTimeout bounds one call to an agent.
const DefaultTimeout = 30 * time.Second

// RunPath is appended to the agent base URL.
const RunPath = "/run"

// Reply is a 2xx answer from an agent.
type Reply struct {
	StatusCode int
	Body       []byte
}

// AgentClient posts job payloads to <agent_url>/run. It never retries.
type AgentClient struct {
	c       *client.Client
	timeout time.Duration
	signer  *auth.Signer
}

// Option configures an AgentClient.
type Option func(*[]config.ClientOption)

// WithTLSConfig sets the TLS configuration used for https agents. Without it
// the system roots are used.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(opts *[]config.ClientOption) {
		if cfg != nil {
			*opts = append(*opts, client.WithTLSConfig(cfg))
		}
	}
}

// NewAgentClient builds a client whose calls are bounded by timeout. A nil
// signer sends no Authorization header. The standard dialer is used so that
// both http and https agent URLs work.
func NewAgentClient(timeout time.Duration, signer *auth.Signer, opts ...Option) (*AgentClient, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	clientOpts := []config.ClientOption{
		client.WithDialTimeout(timeout),
		client.WithDialer(standard.NewDialer()),
	}
	for _, opt := range opts {
		opt(&clientOpts)
	}
	c, err := client.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}
	return &AgentClient{c: c, timeout: timeout, signer: signer}, nil
}

// RunURL joins the agent base URL and the run path.
func RunURL(agentURL string) string {
	return strings.TrimRight(agentURL, "/") + RunPath
}

// Relay sends body for taskName. Transport failures, timeouts and non-2xx
// replies come back as an AgentUnreachableError; for non-2xx the agent's
// status and body are attached.
func (a *AgentClient) Relay(ctx context.Context, agentURL, taskName string, body []byte) (*Reply, error) {
	url := RunURL(agentURL)

	req, resp := protocol.AcquireRequest(), protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(url)
	req.Header.SetContentTypeBytes([]byte(consts.MIMEApplicationJSON))
	req.SetBody(body)
	if a.signer != nil {
		token, err := a.signer.Sign(taskName)
		if err != nil {
			return nil, models.NewError(models.KindAgentUnreachable, models.StageRelay, err, "failed to sign relay token")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if err := a.c.DoTimeout(ctx, req, resp, a.timeout); err != nil {
		return nil, models.NewError(models.KindAgentUnreachable, models.StageRelay, err, "failed to contact agent at %s", url)
	}

	status := resp.StatusCode()
	respBody := append([]byte(nil), resp.Body()...)
	if status < 200 || status > 299 {
		e := models.NewError(models.KindAgentUnreachable, models.StageRelay, nil, "agent at %s answered %d: %s", url, status, truncate(respBody, 512))
		e.AgentStatus = status
		e.AgentBody = respBody
		return nil, e
	}
	return &Reply{StatusCode: status, Body: respBody}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
