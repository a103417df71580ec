package hostsched

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-rpa/pkg/credential"
)

type recordingExecutor struct {
	calls  [][]string
	argv   [][]string
	stderr string
	err    error
}

func (r *recordingExecutor) Execute(_ context.Context, args ...string) ([]byte, []byte, error) {
	r.calls = append(r.calls, append([]string(nil), args...))
	r.argv = append(r.argv, args)
	return nil, []byte(r.stderr), r.err
}

func TestSchtasksFacility_CreateArgs(t *testing.T) {
	rec := &recordingExecutor{}
	f := NewSchtasksFacility(rec)

	start := time.Date(2024, 1, 1, 9, 7, 0, 0, time.Local)
	err := f.CreateTask(context.Background(), TaskDefinition{
		Name:      "Demo_Run",
		Command:   `C:\Temp\bot_job_1\runner.cmd`,
		StartAt:   start,
		RunAs:     RunAs{Account: `HOST\user`, Password: credential.NewSecret([]byte("secret"))},
		Privilege: PrivilegeHighest,
		Overwrite: true,
	})
	require.NoError(t, err)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, []string{
		"/Create", "/TN", "Demo_Run",
		"/TR", `"C:\Temp\bot_job_1\runner.cmd"`,
		"/SC", "ONCE", "/ST", "09:07",
		"/RU", `HOST\user`, "/RP", "secret",
		"/RL", "HIGHEST", "/F",
	}, rec.calls[0])
}

func TestSchtasksFacility_ChangeAndRunArgs(t *testing.T) {
	rec := &recordingExecutor{}
	f := NewSchtasksFacility(rec)
	ctx := context.Background()

	require.NoError(t, f.ChangeCredentials(ctx, "Demo_Run", RunAs{Account: "u", Password: credential.NewSecret([]byte("p"))}))
	require.NoError(t, f.RunTask(ctx, "Demo_Run"))

	assert.Equal(t, []string{"/Change", "/TN", "Demo_Run", "/RU", "u", "/RP", "p"}, rec.calls[0])
	assert.Equal(t, []string{"/Run", "/TN", "Demo_Run"}, rec.calls[1])
}

func TestSchtasksFacility_ErrorCarriesStderr(t *testing.T) {
	rec := &recordingExecutor{err: errors.New("exit status 1"), stderr: "ERROR: Access is denied.\r\n"}
	f := NewSchtasksFacility(rec)

	err := f.RunTask(context.Background(), "Demo_Run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Access is denied.")
	assert.Contains(t, err.Error(), `run "Demo_Run"`)
}

func TestSchtasksFacility_PasswordArgClearedAfterCall(t *testing.T) {
	rec := &recordingExecutor{err: errors.New("exit status 1"), stderr: "ERROR: The user name or password is incorrect."}
	f := NewSchtasksFacility(rec)
	ctx := context.Background()
	runAs := RunAs{Account: `HOST\user`, Password: credential.NewSecret([]byte("secret"))}

	err := f.CreateTask(ctx, TaskDefinition{Name: "Demo_Run", Command: "runner.cmd", StartAt: time.Now(), RunAs: runAs, Overwrite: true})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
	err = f.ChangeCredentials(ctx, "Demo_Run", runAs)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")

	require.Len(t, rec.argv, 2)
	for _, argv := range rec.argv {
		assert.NotContains(t, argv, "secret")
		assert.Contains(t, argv, "/RP")
	}
	assert.Contains(t, rec.calls[0], "secret", "the process still receives the password")
}
