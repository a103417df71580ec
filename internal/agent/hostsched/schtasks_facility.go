package hostsched

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandExecutor runs the schtasks binary.
type CommandExecutor interface {
	Execute(ctx context.Context, args ...string) (stdout, stderr []byte, err error)
}

// ExecExecutor shells out to schtasks.exe.
type ExecExecutor struct {
	Binary string
}

func (e ExecExecutor) Execute(ctx context.Context, args ...string) ([]byte, []byte, error) {
	bin := e.Binary
	if bin == "" {
		bin = "schtasks"
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// SchtasksFacility drives the Windows Task Scheduler. Arguments carry the
// run-as password and must never be logged.
//
// schtasks only accepts the password on its command line, so it is copied into
// an argv string that Secret.Wipe cannot reach. The copy lives only for the
// duration of one call and the argv slot is cleared once the process returns.
type SchtasksFacility struct {
	exec CommandExecutor
}

// NewSchtasksFacility returns a facility using e, or ExecExecutor when e is nil.
func NewSchtasksFacility(e CommandExecutor) *SchtasksFacility {
	if e == nil {
		e = ExecExecutor{}
	}
	return &SchtasksFacility{exec: e}
}

var _ Facility = (*SchtasksFacility)(nil)

func (f *SchtasksFacility) CreateTask(ctx context.Context, def TaskDefinition) error {
	args := []string{
		"/Create",
		"/TN", def.Name,
		"/TR", `"` + def.Command + `"`,
		"/SC", "ONCE",
		"/ST", def.StartAt.Format("15:04"),
		"/RU", def.RunAs.Account,
		"/RP", string(def.RunAs.Password.Bytes()),
		"/RL", string(privilegeOrDefault(def.Privilege)),
	}
	if def.Overwrite {
		args = append(args, "/F")
	}
	defer clearPassword(args)
	return f.run(ctx, "create", def.Name, args)
}

func (f *SchtasksFacility) ChangeCredentials(ctx context.Context, name string, runAs RunAs) error {
	args := []string{
		"/Change",
		"/TN", name,
		"/RU", runAs.Account,
		"/RP", string(runAs.Password.Bytes()),
	}
	defer clearPassword(args)
	return f.run(ctx, "change", name, args)
}

// clearPassword drops the argv reference to the password.
func clearPassword(args []string) {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "/RP" {
			args[i+1] = ""
		}
	}
}

func (f *SchtasksFacility) RunTask(ctx context.Context, name string) error {
	return f.run(ctx, "run", name, []string{"/Run", "/TN", name})
}

func (f *SchtasksFacility) run(ctx context.Context, op, name string, args []string) error {
	stdout, stderr, err := f.exec.Execute(ctx, args...)
	if err == nil {
		return nil
	}
	detail := strings.TrimSpace(string(stderr))
	if detail == "" {
		detail = strings.TrimSpace(string(stdout))
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("schtasks %s %q failed (exit %d): %s", op, name, exitErr.ExitCode(), detail)
	}
	if detail != "" {
		return fmt.Errorf("schtasks %s %q: %w: %s", op, name, err, detail)
	}
	return fmt.Errorf("schtasks %s %q: %w", op, name, err)
}

func privilegeOrDefault(p Privilege) Privilege {
	if p == "" {
		return PrivilegeHighest
	}
	return p
}
