package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-rpa/internal/agent/hostsched"
	"mini-rpa/internal/agent/hostsched/hostschedtest"
	"mini-rpa/internal/agent/services"
	"mini-rpa/internal/agent/workspace"
	"mini-rpa/internal/models"
	"mini-rpa/pkg/auth"
	"mini-rpa/pkg/credential"
	"mini-rpa/pkg/metrics"
)

func setupAgent(t *testing.T, authSecret string) (*route.Engine, *credential.Key, *hostschedtest.Facility) {
	t.Helper()
	engine, key, fake, _ := setupAgentWithRegistry(t, authSecret)
	return engine, key, fake
}

func setupAgentWithRegistry(t *testing.T, authSecret string) (*route.Engine, *credential.Key, *hostschedtest.Facility, *prometheus.Registry) {
	t.Helper()
	hlog.SetLevel(hlog.LevelFatal)

	key, err := credential.GenerateKey()
	require.NoError(t, err)
	ws, err := workspace.NewManager(t.TempDir(), "python3", workspace.LauncherSh)
	require.NoError(t, err)
	fake := hostschedtest.New()
	reg := prometheus.NewRegistry()
	m := metrics.MustNew(reg)
	svc := services.NewRunService(key, ws, hostsched.NewReconciler(fake, m), time.Minute, m)

	h := server.Default(server.WithHostPorts("127.0.0.1:0"), server.WithExitWaitTime(0))
	Register(h, NewRunHandler(svc), authSecret, reg)
	return h.Engine, key, fake, reg
}

func jobBody(t *testing.T, key *credential.Key) []byte {
	t.Helper()
	ct, err := key.Seal([]byte("secret"))
	require.NoError(t, err)
	b, err := json.Marshal(models.JobPayload{
		TaskName:       "Demo_Run",
		Username:       "svc",
		CredCiphertext: ct,
		ScriptB64:      base64.StdEncoding.EncodeToString([]byte("print(1)")),
	})
	require.NoError(t, err)
	return b
}

func postRun(engine *route.Engine, body []byte, headers ...ut.Header) *ut.ResponseRecorder {
	headers = append(headers, ut.Header{Key: "Content-Type", Value: "application/json"})
	return ut.PerformRequest(engine, "POST", "/run", &ut.Body{Body: bytes.NewBuffer(body), Len: len(body)}, headers...)
}

func TestRunAPI_Started(t *testing.T) {
	engine, key, fake := setupAgent(t, "")

	w := postRun(engine, jobBody(t, key))
	require.Equal(t, http.StatusOK, w.Result().StatusCode(), string(w.Result().Body()))

	var res models.RunResult
	require.NoError(t, json.Unmarshal(w.Result().Body(), &res))
	assert.Equal(t, "started", res.Status)
	assert.Equal(t, "Demo_Run", res.Task)
	assert.NotEmpty(t, res.WorkDir)
	assert.Equal(t, models.PathCreate, res.Path)
	assert.Equal(t, 1, fake.Runs("Demo_Run"))
}

func TestRunAPI_Rejections(t *testing.T) {
	engine, _, fake := setupAgent(t, "")
	other, err := credential.GenerateKey()
	require.NoError(t, err)

	testCases := []struct {
		name string
		body []byte
		kind models.Kind
	}{
		{name: "wrong key", body: jobBody(t, other), kind: models.KindInvalidCredential},
		{name: "schema", body: []byte(`{"task_name":"Demo_Run"}`), kind: models.KindInvalidPayload},
		{name: "not json", body: []byte(`{`), kind: models.KindInvalidPayload},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := postRun(engine, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode())
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Result().Body(), &body))
			assert.Equal(t, string(tc.kind), body["kind"])
		})
	}
	assert.Empty(t, fake.Calls())
}

func TestRunAPI_RunFailureSaysRegistered(t *testing.T) {
	engine, key, fake := setupAgent(t, "")
	fake.RunErr = assert.AnError

	w := postRun(engine, jobBody(t, key))
	assert.Equal(t, http.StatusInternalServerError, w.Result().StatusCode())
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Result().Body(), &body))
	assert.Equal(t, "ScheduledTaskRunError", body["kind"])
	assert.Equal(t, true, body["registered"])
}

func TestRunAPI_BearerAuth(t *testing.T) {
	engine, key, _ := setupAgent(t, "relay-secret")
	signer := auth.NewSigner("relay-secret", time.Minute)

	w := postRun(engine, jobBody(t, key))
	assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode())

	wrongTask, err := signer.Sign("Other_Task")
	require.NoError(t, err)
	w = postRun(engine, jobBody(t, key), ut.Header{Key: "Authorization", Value: "Bearer " + wrongTask})
	assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode())

	token, err := signer.Sign("Demo_Run")
	require.NoError(t, err)
	w = postRun(engine, jobBody(t, key), ut.Header{Key: "Authorization", Value: "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
}

func TestPingAndMetrics(t *testing.T) {
	engine, key, _, reg := setupAgentWithRegistry(t, "")
	postRun(engine, jobBody(t, key))

	w := ut.PerformRequest(engine, "GET", "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
	assert.JSONEq(t, `{"message":"pong"}`, string(w.Result().Body()))

	assert.True(t, hasRoute(engine, "GET", "/metrics"))
	expected := `
# HELP minirpa_agent_runs_total Run requests handled, by outcome kind.
# TYPE minirpa_agent_runs_total counter
minirpa_agent_runs_total{outcome="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "minirpa_agent_runs_total"))
}

func hasRoute(engine *route.Engine, method, path string) bool {
	for _, r := range engine.Routes() {
		if r.Method == method && r.Path == path {
			return true
		}
	}
	return false
}
