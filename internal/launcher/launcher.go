// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package launcher starts the browser child process for launch-mode sessions
// and owns the filesystem side of session teardown: waiting for the debug
// socket, terminating the child and removing temporary profiles.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/config"
)

// ErrLaunchTimeout is returned when the debug socket does not open within the
// launch wait.
var ErrLaunchTimeout = errors.New("timeout waiting for the debug server to start")

const (
	// terminateWait bounds how long Terminate waits for the child to exit.
	terminateWait = 1 * time.Second
	// cleanupGrace is the delay before temporary profile removal, giving the
	// browser time to release its profile lock.
	cleanupGrace = 500 * time.Millisecond
)

// Launcher owns one launched browser process.
type Launcher struct {
	log logr.Logger

	cmd        *exec.Cmd
	profileDir string
	tmpProfile bool
	done       chan struct{}
}

// New creates a launcher.
func New(log logr.Logger) *Launcher {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Launcher{log: log}
}

// TempProfileDir creates a fresh temporary profile directory.
func TempProfileDir() (string, error) {
	dir := filepath.Join(os.TempDir(), "vscode-firefox-debug-profile-"+uuid.New().String())
	if mkdirErr := os.MkdirAll(dir, 0o700); mkdirErr != nil {
		return "", fmt.Errorf("failed to create temporary profile directory: %w", mkdirErr)
	}
	return dir, nil
}

// Launch starts the browser child process described by the launch config.
func (l *Launcher) Launch(ctx context.Context, launch *config.LaunchConfig) error {
	if launch == nil || launch.Executable == "" {
		return fmt.Errorf("no browser executable configured")
	}

	cmd := exec.Command(launch.Executable, launch.Args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if startErr := cmd.Start(); startErr != nil {
		return fmt.Errorf("failed to launch %s: %w", launch.Executable, startErr)
	}

	l.cmd = cmd
	l.profileDir = launch.ProfileDir
	l.tmpProfile = launch.TmpProfile
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		_ = cmd.Wait()
	}()

	l.log.Info("Launched browser", "executable", launch.Executable, "pid", cmd.Process.Pid)
	return nil
}

// Running reports whether a launched child is still alive.
func (l *Launcher) Running() bool {
	if l.cmd == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// WaitForSocket polls the debug port until it accepts a connection or the
// timeout elapses. The accepted probe connection is closed immediately; the
// caller dials its own.
func WaitForSocket(ctx context.Context, address string, timeout time.Duration, log logr.Logger) error {
	policy := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxInterval(500*time.Millisecond),
		backoff.WithMaxElapsedTime(timeout),
	)

	operation := func() error {
		var d net.Dialer
		conn, dialErr := d.DialContext(ctx, "tcp", address)
		if dialErr != nil {
			return dialErr
		}
		conn.Close()
		return nil
	}

	if waitErr := backoff.Retry(operation, backoff.WithContext(policy, ctx)); waitErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Info("Debug server did not open its socket in time", "address", address, "timeout", timeout.String())
		return ErrLaunchTimeout
	}
	return nil
}

// Terminate signals the launched child and waits up to one second for it to
// exit. A timeout is logged, not fatal; the caller falls back to the
// terminator addon.
func (l *Launcher) Terminate() bool {
	if l.cmd == nil || !l.Running() {
		return true
	}

	if signalErr := l.cmd.Process.Signal(os.Interrupt); signalErr != nil {
		l.log.Info("Failed to signal browser process", "error", signalErr.Error())
		_ = l.cmd.Process.Kill()
	}

	select {
	case <-l.done:
		return true
	case <-time.After(terminateWait):
		l.log.Info("Browser did not exit within the terminate wait")
		return false
	}
}

// Cleanup removes the temporary profile directory after a grace period.
func (l *Launcher) Cleanup() {
	if !l.tmpProfile || l.profileDir == "" {
		return
	}

	time.Sleep(cleanupGrace)

	if removeErr := os.RemoveAll(l.profileDir); removeErr != nil {
		l.log.Info("Failed to remove temporary profile", "dir", l.profileDir, "error", removeErr.Error())
	} else {
		l.log.V(1).Info("Removed temporary profile", "dir", l.profileDir)
	}
}
