// Package hostsched registers and triggers unattended scheduled tasks on the host.
//
// The host's scheduler is reached through a Facility with three operations keyed
// by task name: create, change-credentials and run. Reconciler drives them as a
// small state machine (ABSENT -> REGISTERED -> TRIGGERED) so that repeated
// dispatches of the same task name converge on a single registered task.
package hostsched

import (
	"context"
	"errors"
	"time"

	"mini-rpa/pkg/credential"
)

// Privilege is the run level requested for a task.
type Privilege string

const (
	PrivilegeHighest Privilege = "HIGHEST"
	PrivilegeLimited Privilege = "LIMITED"
)

var (
	// ErrTaskExists is returned by CreateTask when the host refuses to replace an
	// existing definition.
	ErrTaskExists = errors.New("scheduled task already exists")
	// ErrTaskNotFound is returned when a task name has no host record.
	ErrTaskNotFound = errors.New("scheduled task not found")
)

// RunAs is the account a task runs under, independent of who is logged in.
// Password is owned by the caller and may be wiped once the facility call returns.
type RunAs struct {
	Account  string
	Password *credential.Secret
}

// TaskDefinition is everything CreateTask needs to register a one-shot task.
type TaskDefinition struct {
	Name      string
	Command   string
	WorkDir   string
	StartAt   time.Time
	RunAs     RunAs
	Privilege Privilege
	Overwrite bool
}

// Facility is the host scheduler as seen by the agent.
type Facility interface {
	CreateTask(ctx context.Context, def TaskDefinition) error
	ChangeCredentials(ctx context.Context, name string, runAs RunAs) error
	RunTask(ctx context.Context, name string) error
}
