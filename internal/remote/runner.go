// Package remote is the boundary to the command-execution collaborator.
// Probes depend on nothing richer than Run: a command, a timeout, and the
// resulting exit code and output.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/vibewp/vps-audit/internal/models"
)

// DefaultTimeout applies when a caller passes a zero timeout.
const DefaultTimeout = 30 * time.Second

// Runner executes a shell command on the audit target. A non-zero exit code
// is a normal outcome (err is nil); err is reserved for the channel itself
// failing or the deadline expiring.
type Runner interface {
	Run(ctx context.Context, command string, timeout time.Duration) (exitCode int, stdout, stderr string, err error)
}

// SSHRunner executes commands on the target over the system ssh client.
type SSHRunner struct {
	Host string
	User string
	Port int
}

// NewSSHRunner builds a runner for user@host. Port 0 means 22.
func NewSSHRunner(host, user string, port int) *SSHRunner {
	if user == "" {
		user = "root"
	}
	if port == 0 {
		port = 22
	}
	return &SSHRunner{Host: host, User: user, Port: port}
}

// Run executes command on the target and returns its exit code and trimmed
// output. Timeouts map to ErrProbeTimeout, spawn failures to
// ErrProbeTransport.
func (r *SSHRunner) Run(ctx context.Context, command string, timeout time.Duration) (int, string, string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		"-p", strconv.Itoa(r.Port),
		fmt.Sprintf("%s@%s", r.User, r.Host),
		command,
	}
	cmd := exec.CommandContext(ctx, "ssh", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := strings.TrimSpace(stdout.String())
	errOut := strings.TrimSpace(stderr.String())

	// A cancelled or expired context kills the ssh process; its -1 exit code
	// is an artifact of the kill, not command output, and must never reach a
	// check as data.
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return 0, out, errOut, fmt.Errorf("%w after %s: %s", models.ErrProbeTimeout, timeout, command)
		}
		return 0, out, errOut, fmt.Errorf("command interrupted: %w", ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), out, errOut, nil
	}
	if err != nil {
		return 0, out, errOut, fmt.Errorf("%w: %w", models.ErrProbeTransport, err)
	}
	return 0, out, errOut, nil
}

// Check verifies the target is reachable before an audit starts.
func (r *SSHRunner) Check(ctx context.Context) error {
	_, _, _, err := r.Run(ctx, "true", 10*time.Second)
	return err
}
