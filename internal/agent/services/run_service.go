// Package services holds the agent's run pipeline.
package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"

	"mini-rpa/internal/agent/hostsched"
	"mini-rpa/internal/agent/workspace"
	"mini-rpa/internal/models"
	"mini-rpa/pkg/credential"
	"mini-rpa/pkg/metrics"
	"mini-rpa/pkg/validation"
)

// DefaultTriggerDelay is how far in the future a new task's one-shot trigger is set.
const DefaultTriggerDelay = 2 * time.Minute

// DecodeJobPayload validates body against the job payload schema and decodes it.
func DecodeJobPayload(body []byte) (models.JobPayload, error) {
	var p models.JobPayload
	if err := validation.JobPayload.Validate(body); err != nil {
		return p, models.NewError(models.KindInvalidPayload, models.StageValidate, err, "invalid job payload")
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return p, models.NewError(models.KindInvalidPayload, models.StageValidate, err, "invalid job payload")
	}
	return p, nil
}

// RunService turns a JobPayload into a started scheduled task.
type RunService struct {
	key          *credential.Key
	workspaces   *workspace.Manager
	reconciler   *hostsched.Reconciler
	triggerDelay time.Duration
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewRunService(key *credential.Key, ws *workspace.Manager, rec *hostsched.Reconciler, triggerDelay time.Duration, m *metrics.Metrics) *RunService {
	if triggerDelay <= 0 {
		triggerDelay = DefaultTriggerDelay
	}
	return &RunService{
		key:          key,
		workspaces:   ws,
		reconciler:   rec,
		triggerDelay: triggerDelay,
		metrics:      m,
		now:          time.Now,
	}
}

// Run decrypts the credential, writes the workspace, reconciles the host task
// and starts it. Nothing touches the disk or the host before the credential
// and script have both been decoded.
func (s *RunService) Run(ctx context.Context, p models.JobPayload) (*models.RunResult, error) {
	res, err := s.run(ctx, p)
	if err != nil {
		kind := "error"
		if e, ok := models.AsError(err); ok {
			kind = string(e.Kind)
		}
		s.metrics.IncRun(kind)
		return nil, err
	}
	s.metrics.IncRun(metrics.OutcomeOK)
	return res, nil
}

func (s *RunService) run(ctx context.Context, p models.JobPayload) (*models.RunResult, error) {
	secret, err := s.key.Open(p.CredCiphertext)
	if err != nil {
		return nil, models.NewError(models.KindInvalidCredential, models.StageDecrypt, err, "invalid credential ciphertext")
	}
	defer secret.Wipe()

	script, err := base64.StdEncoding.DecodeString(p.ScriptB64)
	if err != nil {
		return nil, models.NewError(models.KindInvalidPayload, models.StageValidate, err, "script_b64 is not valid base64")
	}

	ws, err := s.workspaces.Prepare(p.WorkingDir, script, p.InteractiveHint)
	if err != nil {
		return nil, models.NewError(models.KindWorkspace, models.StageWorkspace, err, "failed to prepare workspace")
	}
	hlog.CtxInfof(ctx, "task %q: workspace %s ready", p.TaskName, ws.Dir)

	def := hostsched.TaskDefinition{
		Name:      p.TaskName,
		Command:   ws.LauncherPath,
		WorkDir:   ws.Dir,
		StartAt:   s.now().Add(s.triggerDelay),
		RunAs:     hostsched.RunAs{Account: p.Username, Password: secret},
		Privilege: hostsched.PrivilegeHighest,
		Overwrite: true,
	}
	out, err := s.reconciler.Reconcile(ctx, def)
	if err != nil {
		var regErr *hostsched.RegistrationError
		if errors.As(err, &regErr) {
			ws.Discard()
			return nil, models.NewError(models.KindRegistration, models.StageRegister, err, "scheduled task registration failed")
		}
		runErr := models.NewError(models.KindRun, models.StageRun, err, "scheduled task run failed")
		runErr.Registered = out.State == hostsched.StateRegistered
		return nil, runErr
	}

	return &models.RunResult{
		Status:  models.RunStatusStarted,
		Task:    p.TaskName,
		WorkDir: ws.Dir,
		Path:    out.Path,
	}, nil
}
