package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-rpa/internal/models"
	"mini-rpa/pkg/auth"
)

func TestRunURL(t *testing.T) {
	assert.Equal(t, "http://agent:5001/run", RunURL("http://agent:5001"))
	assert.Equal(t, "http://agent:5001/run", RunURL("http://agent:5001/"))
}

func TestRelay_Success(t *testing.T) {
	var gotBody, gotAuth, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/run", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"started","task":"Demo_Run","workdir":"/tmp/bot_job_1"}`))
	}))
	defer srv.Close()

	c, err := NewAgentClient(time.Second, auth.NewSigner("relay-secret", time.Minute))
	require.NoError(t, err)
	reply, err := c.Relay(context.Background(), srv.URL, "Demo_Run", []byte(`{"task_name":"Demo_Run"}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, reply.StatusCode)
	assert.JSONEq(t, `{"status":"started","task":"Demo_Run","workdir":"/tmp/bot_job_1"}`, string(reply.Body))
	assert.Equal(t, `{"task_name":"Demo_Run"}`, gotBody)
	assert.Equal(t, "application/json", gotType)
	require.Contains(t, gotAuth, "Bearer ")
	sub, err := auth.Verify([]byte("relay-secret"), gotAuth[len("Bearer "):])
	require.NoError(t, err)
	assert.Equal(t, "Demo_Run", sub)
}

func TestRelay_Non2xxCarriesAgentReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"kind":"ScheduledTaskRegistrationError"}`))
	}))
	defer srv.Close()

	c, err := NewAgentClient(time.Second, nil)
	require.NoError(t, err)
	_, err = c.Relay(context.Background(), srv.URL, "Demo_Run", []byte(`{}`))

	require.ErrorIs(t, err, models.ErrAgentUnreachable)
	e, _ := models.AsError(err)
	assert.Equal(t, http.StatusInternalServerError, e.AgentStatus)
	assert.JSONEq(t, `{"kind":"ScheduledTaskRegistrationError"}`, string(e.AgentBody))
	assert.Equal(t, http.StatusBadGateway, e.HTTPStatus())
}

func TestRelay_Unreachable(t *testing.T) {
	c, err := NewAgentClient(time.Second, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Relay(context.Background(), "http://127.0.0.1:1", "Demo_Run", []byte(`{}`))
	require.ErrorIs(t, err, models.ErrAgentUnreachable)
	assert.Less(t, time.Since(start), 5*time.Second)
	e, _ := models.AsError(err)
	assert.Zero(t, e.AgentStatus)
	assert.Contains(t, e.Error(), "127.0.0.1:1")
}

func TestRelay_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewAgentClient(200*time.Millisecond, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Relay(context.Background(), srv.URL, "Demo_Run", []byte(`{}`))
	assert.ErrorIs(t, err, models.ErrAgentUnreachable)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRelay_HTTPS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/run", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"started","task":"Demo_Run"}`))
	}))
	defer srv.Close()

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	c, err := NewAgentClient(time.Second, nil, WithTLSConfig(&tls.Config{RootCAs: pool, ServerName: "127.0.0.1"}))
	require.NoError(t, err)

	reply, err := c.Relay(context.Background(), srv.URL, "Demo_Run", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, reply.StatusCode)
	assert.JSONEq(t, `{"status":"started","task":"Demo_Run"}`, string(reply.Body))
}

func TestRelay_HTTPSUntrustedCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach an untrusted agent")
	}))
	defer srv.Close()

	c, err := NewAgentClient(time.Second, nil)
	require.NoError(t, err)

	_, err = c.Relay(context.Background(), srv.URL, "Demo_Run", []byte(`{}`))
	assert.ErrorIs(t, err, models.ErrAgentUnreachable)
}
