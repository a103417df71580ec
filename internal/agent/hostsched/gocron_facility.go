package hostsched

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

const gocronTaskTag = "minirpa_task"

// CommandRunner starts a task's command in its working directory.
type CommandRunner interface {
	Run(ctx context.Context, command, workDir string) error
}

// ExecRunner runs the command as a child of the agent process.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, command, workDir string) error {
	cmd := exec.CommandContext(ctx, command)
	cmd.Dir = workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("run %s: %w: %s", command, err, out)
	}
	return nil
}

type gocronTask struct {
	jobID   uuid.UUID
	command string
	workDir string
	account string
}

// GocronFacility keeps scheduled tasks inside the agent process. It is used on
// hosts without a system scheduler the agent can drive. Tasks run as the agent's
// own user; the RunAs account is recorded but the password is never stored.
type GocronFacility struct {
	scheduler      gocron.Scheduler
	runner         CommandRunner
	allowOverwrite bool

	mu    sync.Mutex
	tasks map[string]*gocronTask
}

// NewGocronFacility creates and starts the in-process scheduler. A nil runner
// means ExecRunner.
func NewGocronFacility(runner CommandRunner, allowOverwrite bool) (*GocronFacility, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	s.Start()
	return &GocronFacility{
		scheduler:      s,
		runner:         runner,
		allowOverwrite: allowOverwrite,
		tasks:          make(map[string]*gocronTask),
	}, nil
}

var _ Facility = (*GocronFacility)(nil)

func (f *GocronFacility) CreateTask(_ context.Context, def TaskDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.tasks[def.Name]; ok {
		if !f.allowOverwrite || !def.Overwrite {
			return fmt.Errorf("%w: %s", ErrTaskExists, def.Name)
		}
		if err := f.scheduler.RemoveJob(existing.jobID); err != nil {
			hlog.Debugf("removing previous job for task %q: %v", def.Name, err)
		}
		delete(f.tasks, def.Name)
	}

	job, err := f.newJob(def.Name, gocron.OneTimeJobStartDateTime(def.StartAt))
	if err != nil {
		return fmt.Errorf("failed to schedule task %q at %v: %w", def.Name, def.StartAt, err)
	}
	f.tasks[def.Name] = &gocronTask{
		jobID:   job.ID(),
		command: def.Command,
		workDir: def.WorkDir,
		account: def.RunAs.Account,
	}
	hlog.Debugf("scheduled task %q as gocron job %s", def.Name, job.ID())
	return nil
}

func (f *GocronFacility) ChangeCredentials(_ context.Context, name string, runAs RunAs) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	t.account = runAs.Account
	return nil
}

// RunTask starts the task now. If its one-time job has already fired and left
// the scheduler, a fresh immediate job is created for it.
func (f *GocronFacility) RunTask(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	for _, j := range f.scheduler.Jobs() {
		if j.ID() == t.jobID {
			return j.RunNow()
		}
	}
	job, err := f.newJob(name, gocron.OneTimeJobStartImmediately())
	if err != nil {
		return fmt.Errorf("failed to start task %q: %w", name, err)
	}
	t.jobID = job.ID()
	return nil
}

func (f *GocronFacility) newJob(name string, start gocron.OneTimeJobStartAtOption) (gocron.Job, error) {
	return f.scheduler.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(f.execute, name),
		gocron.WithName(name),
		gocron.WithTags(gocronTaskTag, "task:"+name),
	)
}

// execute looks the task up at fire time so a credential change applies to it.
func (f *GocronFacility) execute(name string) {
	f.mu.Lock()
	t, ok := f.tasks[name]
	var command, workDir, account string
	if ok {
		command, workDir, account = t.command, t.workDir, t.account
	}
	f.mu.Unlock()
	if !ok {
		hlog.Warnf("gocron fired for unknown task %q", name)
		return
	}
	hlog.Infof("starting task %q (run as %s)", name, account)
	if err := f.runner.Run(context.Background(), command, workDir); err != nil {
		hlog.Errorf("task %q failed: %v", name, err)
		return
	}
	hlog.Infof("task %q finished", name)
}

// Shutdown stops the scheduler and waits for running tasks.
func (f *GocronFacility) Shutdown() error {
	return f.scheduler.Shutdown()
}
