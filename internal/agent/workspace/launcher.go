package workspace

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ScriptFileName is the name the job script is written under.
const ScriptFileName = "automation.py"

// InteractiveFlag is appended to the script's arguments when an interactive
// session was requested. Scripts decide for themselves what to do with it.
const InteractiveFlag = "--interactive"

const (
	LauncherCmd = "cmd"
	LauncherSh  = "sh"
)

// Launcher renders the wrapper the host scheduler actually starts.
type Launcher interface {
	FileName() string
	Render(runtime, scriptPath string, interactive bool) []byte
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Launcher)
)

func init() {
	RegisterLauncher(LauncherCmd, CmdLauncher{})
	RegisterLauncher(LauncherSh, ShLauncher{})
}

// RegisterLauncher makes l available under name, replacing any previous one.
func RegisterLauncher(name string, l Launcher) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = l
}

func GetLauncher(name string) (Launcher, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	l, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("no launcher registered for type: %s", name)
	}
	return l, nil
}

// Launchers lists registered launcher names.
func Launchers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CmdLauncher writes a Windows batch file that fails early when the runtime is
// not on PATH.
type CmdLauncher struct{}

func (CmdLauncher) FileName() string { return "runner.cmd" }

func (CmdLauncher) Render(runtime, scriptPath string, interactive bool) []byte {
	var b strings.Builder
	b.WriteString("@echo off\r\n")
	b.WriteString("setlocal\r\n")
	fmt.Fprintf(&b, "where %s >nul 2>nul\r\n", runtime)
	b.WriteString("IF %ERRORLEVEL% NEQ 0 (\r\n")
	fmt.Fprintf(&b, "  echo %s was not found on PATH. Edit runner.cmd to point at the interpreter.\r\n", runtime)
	b.WriteString("  exit /b 1\r\n")
	b.WriteString(")\r\n")
	fmt.Fprintf(&b, "%s \"%s\"", runtime, scriptPath)
	if interactive {
		b.WriteString(" " + InteractiveFlag)
	}
	b.WriteString("\r\n")
	b.WriteString("endlocal\r\n")
	return []byte(b.String())
}

// ShLauncher writes a POSIX shell wrapper.
type ShLauncher struct{}

func (ShLauncher) FileName() string { return "runner.sh" }

func (ShLauncher) Render(runtime, scriptPath string, interactive bool) []byte {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "if ! command -v %s >/dev/null 2>&1; then\n", runtime)
	fmt.Fprintf(&b, "  echo \"%s was not found on PATH. Edit runner.sh to point at the interpreter.\" >&2\n", runtime)
	b.WriteString("  exit 1\n")
	b.WriteString("fi\n")
	fmt.Fprintf(&b, "cd \"$(dirname \"$0\")\" || exit 1\n")
	fmt.Fprintf(&b, "exec %s '%s'", runtime, strings.ReplaceAll(scriptPath, "'", `'\''`))
	if interactive {
		b.WriteString(" " + InteractiveFlag)
	}
	b.WriteString("\n")
	return []byte(b.String())
}
