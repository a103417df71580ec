package hostsched

import (
	"context"
	"fmt"

	"github.com/cloudwego/hertz/pkg/common/hlog"

	"mini-rpa/internal/models"
	"mini-rpa/pkg/metrics"
)

// State of a task name with respect to the host facility.
type State string

const (
	StateAbsent     State = "ABSENT"
	StateRegistered State = "REGISTERED"
	StateTriggered  State = "TRIGGERED"
)

// Outcome describes how far reconciliation got and which path it took.
type Outcome struct {
	Task  string
	Path  string
	State State
}

// RegistrationError means both create and change failed; nothing was registered.
type RegistrationError struct {
	Task      string
	CreateErr error
	ChangeErr error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("failed to create or change scheduled task %q: create: %v; change: %v", e.Task, e.CreateErr, e.ChangeErr)
}

func (e *RegistrationError) Unwrap() []error { return []error{e.CreateErr, e.ChangeErr} }

// RunError means the task is registered but could not be started.
type RunError struct {
	Task string
	Path string
	Err  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("scheduled task %q registered via %s but failed to start: %v", e.Task, e.Path, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Reconciler brings the facility's record for a task name in line with the
// latest definition and starts it. Calls for the same name are serialized.
type Reconciler struct {
	facility Facility
	locks    *keyedMutex
	metrics  *metrics.Metrics
}

func NewReconciler(f Facility, m *metrics.Metrics) *Reconciler {
	return &Reconciler{facility: f, locks: newKeyedMutex(), metrics: m}
}

// Reconcile tries create, falls back to change-credentials when create fails,
// then runs the task. A failed run leaves the task registered.
func (r *Reconciler) Reconcile(ctx context.Context, def TaskDefinition) (Outcome, error) {
	unlock := r.locks.Lock(def.Name)
	defer unlock()

	out := Outcome{Task: def.Name, State: StateAbsent}

	createErr := r.facility.CreateTask(ctx, def)
	if createErr == nil {
		out.Path = models.PathCreate
	} else {
		hlog.CtxWarnf(ctx, "create of scheduled task %q failed, trying credential change: %v", def.Name, createErr)
		if changeErr := r.facility.ChangeCredentials(ctx, def.Name, def.RunAs); changeErr != nil {
			r.metrics.IncReconciliation(models.PathChange, "failed")
			return out, &RegistrationError{Task: def.Name, CreateErr: createErr, ChangeErr: changeErr}
		}
		out.Path = models.PathChange
	}
	out.State = StateRegistered
	r.metrics.IncReconciliation(out.Path, "ok")
	hlog.CtxInfof(ctx, "scheduled task %q registered via %s", def.Name, out.Path)

	if err := r.facility.RunTask(ctx, def.Name); err != nil {
		return out, &RunError{Task: def.Name, Path: out.Path, Err: err}
	}
	out.State = StateTriggered
	hlog.CtxInfof(ctx, "scheduled task %q triggered", def.Name)
	return out, nil
}
