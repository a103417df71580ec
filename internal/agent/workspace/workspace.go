// Package workspace materializes a job's script and launcher on disk.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloudwego/hertz/pkg/common/hlog"
)

// TempDirPrefix names freshly allocated working directories.
const TempDirPrefix = "bot_job_"

// Manager writes workspaces. Root is where fresh directories are allocated; an
// empty Root means the OS temp dir.
type Manager struct {
	Root     string
	Runtime  string
	launcher Launcher
}

// NewManager resolves the named launcher.
func NewManager(root, runtime, launcher string) (*Manager, error) {
	l, err := GetLauncher(launcher)
	if err != nil {
		return nil, err
	}
	if runtime == "" {
		return nil, fmt.Errorf("runtime must not be empty")
	}
	return &Manager{Root: root, Runtime: runtime, launcher: l}, nil
}

// Workspace is a prepared working directory.
type Workspace struct {
	Dir          string
	ScriptPath   string
	LauncherPath string
	// Fresh is true when Prepare allocated Dir itself.
	Fresh bool
}

// Prepare writes script and the launcher into workingDir, or into a fresh
// temporary directory when workingDir is nil or empty. Returned paths are absolute.
func (m *Manager) Prepare(workingDir *string, script []byte, interactive bool) (*Workspace, error) {
	ws := &Workspace{}
	if workingDir != nil && *workingDir != "" {
		dir, err := filepath.Abs(*workingDir)
		if err != nil {
			return nil, fmt.Errorf("resolve working directory %s: %w", *workingDir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create working directory %s: %w", dir, err)
		}
		ws.Dir = dir
	} else {
		if m.Root != "" {
			if err := os.MkdirAll(m.Root, 0o755); err != nil {
				return nil, fmt.Errorf("create workdir root %s: %w", m.Root, err)
			}
		}
		dir, err := os.MkdirTemp(m.Root, TempDirPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to create temp directory: %w", err)
		}
		if dir, err = filepath.Abs(dir); err != nil {
			return nil, fmt.Errorf("resolve temp directory: %w", err)
		}
		ws.Dir = dir
		ws.Fresh = true
	}

	ws.ScriptPath = filepath.Join(ws.Dir, ScriptFileName)
	if err := os.WriteFile(ws.ScriptPath, script, 0o644); err != nil {
		ws.Discard()
		return nil, fmt.Errorf("failed to write script: %w", err)
	}

	ws.LauncherPath = filepath.Join(ws.Dir, m.launcher.FileName())
	content := m.launcher.Render(m.Runtime, ws.ScriptPath, interactive)
	if err := os.WriteFile(ws.LauncherPath, content, 0o755); err != nil {
		ws.Discard()
		return nil, fmt.Errorf("failed to write launcher: %w", err)
	}
	hlog.Debugf("workspace prepared in %s (fresh=%t)", ws.Dir, ws.Fresh)
	return ws, nil
}

// Discard removes the directory if Prepare allocated it. Caller-supplied
// directories are left alone.
func (w *Workspace) Discard() {
	if w == nil || !w.Fresh {
		return
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		hlog.Warnf("failed to remove workspace %s: %v", w.Dir, err)
	}
}
