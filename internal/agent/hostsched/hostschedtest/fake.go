// Package hostschedtest provides an in-memory Facility that records every call.
package hostschedtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mini-rpa/internal/agent/hostsched"
)

// Record is the fake host's view of one registered task. Password is copied
// out of the caller's secret so tests can assert on it after the secret is wiped.
type Record struct {
	Name      string
	Command   string
	WorkDir   string
	StartAt   time.Time
	Account   string
	Password  string
	Privilege hostsched.Privilege
}

// Call is one invocation of the facility.
type Call struct {
	Op   string
	Task string
}

const (
	OpCreate = "create"
	OpChange = "change"
	OpRun    = "run"
)

// Facility is a hostsched.Facility backed by a map.
type Facility struct {
	// RejectExisting makes CreateTask fail with ErrTaskExists when the task is
	// already registered, like a host policy that forbids silent overwrite.
	RejectExisting bool
	// CreateErr, ChangeErr and RunErr force the matching operation to fail.
	CreateErr error
	ChangeErr error
	RunErr    error

	mu      sync.Mutex
	records map[string]Record
	runs    map[string]int
	calls   []Call
}

func New() *Facility {
	return &Facility{records: make(map[string]Record), runs: make(map[string]int)}
}

var _ hostsched.Facility = (*Facility)(nil)

func (f *Facility) CreateTask(_ context.Context, def hostsched.TaskDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: OpCreate, Task: def.Name})
	if f.CreateErr != nil {
		return f.CreateErr
	}
	if _, ok := f.records[def.Name]; ok && (f.RejectExisting || !def.Overwrite) {
		return fmt.Errorf("%w: %s", hostsched.ErrTaskExists, def.Name)
	}
	f.records[def.Name] = Record{
		Name:      def.Name,
		Command:   def.Command,
		WorkDir:   def.WorkDir,
		StartAt:   def.StartAt,
		Account:   def.RunAs.Account,
		Password:  string(def.RunAs.Password.Bytes()),
		Privilege: def.Privilege,
	}
	return nil
}

func (f *Facility) ChangeCredentials(_ context.Context, name string, runAs hostsched.RunAs) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: OpChange, Task: name})
	if f.ChangeErr != nil {
		return f.ChangeErr
	}
	rec, ok := f.records[name]
	if !ok {
		return fmt.Errorf("%w: %s", hostsched.ErrTaskNotFound, name)
	}
	rec.Account = runAs.Account
	rec.Password = string(runAs.Password.Bytes())
	f.records[name] = rec
	return nil
}

func (f *Facility) RunTask(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: OpRun, Task: name})
	if f.RunErr != nil {
		return f.RunErr
	}
	if _, ok := f.records[name]; !ok {
		return fmt.Errorf("%w: %s", hostsched.ErrTaskNotFound, name)
	}
	f.runs[name]++
	return nil
}

// Seed registers a task directly, as if an earlier dispatch had created it.
func (f *Facility) Seed(rec Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.Name] = rec
}

// Record returns the registered task, if any.
func (f *Facility) Record(name string) (Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[name]
	return rec, ok
}

// Records returns the number of registered tasks.
func (f *Facility) Records() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// Runs returns how many times name was triggered.
func (f *Facility) Runs(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[name]
}

// Calls returns a copy of every call made so far.
func (f *Facility) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Ops returns the operation names of every call, in order.
func (f *Facility) Ops() []string {
	var ops []string
	for _, c := range f.Calls() {
		ops = append(ops, c.Op)
	}
	return ops
}
