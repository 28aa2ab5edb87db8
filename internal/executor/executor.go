// Package executor launches a subprocess, enforces a wall-clock deadline,
// and classifies its outcome, per spec §4.3. It is the only component that
// spawns processes; it never writes files and retains no state between calls.
package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// gracePeriod is how long a timed-out child is given to exit cleanly after
// SIGTERM before SIGKILL is sent, per spec §4.3.
const gracePeriod = 1 * time.Second

// Outcome is the result of running a single command line.
type Outcome struct {
	ReturnCode   int
	Output       string
	EarlyTimeout bool
	Start        time.Time
	Finish       time.Time
}

// shellMeta are the characters whose presence routes the command line
// through the host shell instead of a direct argv exec, matching the
// original's shell-metacharacter detection.
const shellMeta = ";&|<>$`(){}*?[]~#\"'\\"

// Run executes commandLine under timeout and returns its classified
// outcome. It never returns an error for a failed or timed-out check —
// those are normal outcomes (ReturnCode 2 or 3) per the error-handling
// design; err is non-nil only if the caller-supplied context is already
// done before the command could be started.
func Run(ctx context.Context, commandLine string, timeout time.Duration) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := buildCommand(commandLine)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()

	if err := cmd.Start(); err != nil {
		return Outcome{
			ReturnCode: 3,
			Output:     "(Could Not Start Check Process)",
			Start:      start,
			Finish:     time.Now(),
		}, nil
	}

	waitErr := waitWithGrace(runCtx, cmd)
	finish := time.Now()

	if runCtx.Err() == context.DeadlineExceeded {
		return Outcome{
			ReturnCode:   2, // CRITICAL
			Output:       "(Check Timed Out)",
			EarlyTimeout: true,
			Start:        start,
			Finish:       finish,
		}, nil
	}

	return Outcome{
		ReturnCode: classify(waitErr),
		Output:     formatOutput(out.Bytes()),
		Start:      start,
		Finish:     finish,
	}, nil
}

// buildCommand routes through the host shell when commandLine contains
// shell metacharacters, otherwise performs a direct argv exec — matching
// the original's naive tokenizer. The command is not bound to a context:
// waitWithGrace alone handles the deadline, so the SIGTERM grace period is
// not cut short by an immediate kill.
func buildCommand(commandLine string) *exec.Cmd {
	if strings.ContainsAny(commandLine, shellMeta) || strings.Contains(commandLine, " && ") {
		return exec.Command("/bin/sh", "-c", commandLine)
	}
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return exec.Command("/bin/sh", "-c", commandLine)
	}
	return exec.Command(fields[0], fields[1:]...)
}

// waitWithGrace waits for cmd to exit. If the deadline fires first, it
// signals the child's whole process group with SIGTERM and, after
// gracePeriod, SIGKILL.
func waitWithGrace(ctx context.Context, cmd *exec.Cmd) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		pgid := cmd.Process.Pid
		_ = syscall.Kill(-pgid, syscall.SIGTERM)

		select {
		case err := <-done:
			return err
		case <-time.After(gracePeriod):
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
			<-done
			return ctx.Err()
		}
	}
}

// classify maps a wait error onto the host's exit-status convention: normal
// exit passes through WEXITSTATUS, a signal s maps to 128+s, and any other
// failure to start/wait maps to 3 (spawn failure).
func classify(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}

	return 3
}

// formatOutput merges stdout/stderr (already merged by the shared buffer)
// and strips trailing whitespace. Newline escaping happens uniformly for
// every envelope value at encode time (internal/envelope), so it is not
// duplicated here.
func formatOutput(raw []byte) string {
	return strings.TrimRight(string(raw), " \t\r\n")
}
