// Package privilege implements §5's shared-resource policy for privilege
// elevation: a process-wide mutex serializing concurrent re-exec-as-root
// attempts, a fixed whitelist of operations allowed to elevate, and a
// --yes-driven choice between non-interactive and interactive sudo.
package privilege

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"sync"
	"time"

	"github.com/PyRo1121/omg-sub002/internal/paths"
	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// allowedOps is §5's "fixed whitelist of operations" that may re-exec as
// root. Anything else is rejected before a single sudo process is spawned.
var allowedOps = map[string]bool{
	"install": true,
	"remove":  true,
	"upgrade": true,
	"update":  true,
	"sync":    true,
	"clean":   true,
}

// elevationMutex serializes concurrent elevation attempts so two goroutines
// racing to re-exec as root don't both spawn a sudo prompt at once (§5,
// §9 Global state: "the privilege mutex is process-wide ... no teardown
// routine").
var elevationMutex sync.Mutex

// interactiveTimeout bounds how long an interactive sudo prompt is given to
// collect a password before the elevation attempt is abandoned.
const interactiveTimeout = 30 * time.Second

// Checker abstracts root-detection and re-exec so callers can inject a test
// double instead of exercising a real sudo prompt.
type Checker interface {
	IsRoot() bool
	Elevate(ctx context.Context, operation string, yes bool, args []string) error
}

// systemChecker is the production Checker: real euid check, real sudo
// re-exec.
type systemChecker struct{}

// System is the default, process-wide Checker.
var System Checker = systemChecker{}

func (systemChecker) IsRoot() bool {
	return os.Geteuid() == 0
}

// Elevate re-execs as root under sudo and, on success, terminates this
// process with os.Exit(0): the elevated child already did the work, so
// falling back through to the caller would run the same operation twice,
// once unprivileged. This mirrors the original Rust implementation's
// process::exit(0) after a successful re-exec, standing in for exec()'s
// process-replacement semantics (Go has no direct equivalent of exec(3)
// that also waits for sudo's own setup).
func (systemChecker) Elevate(ctx context.Context, operation string, yes bool, args []string) error {
	if err := runSelfSudo(ctx, operation, yes, args); err != nil {
		return err
	}
	os.Exit(0)
	return nil
}

// ElevateForOperation re-execs the current process under sudo if it isn't
// already root, but only for operation names in the §5 whitelist. args are
// the arguments to re-invoke the executable with (typically os.Args[1:]).
func ElevateForOperation(ctx context.Context, checker Checker, operation string, yes bool, args []string) error {
	if !allowedOps[operation] {
		return omgerrors.PermissionDenied(operation)
	}
	return ElevateIfNeeded(ctx, checker, operation, yes, args)
}

// ElevateIfNeeded re-execs as root if the process isn't already root. In
// OMG_TEST_MODE it is a deliberate no-op (§5: "test mode disables privilege
// elevation ... so unit tests can exercise the in-process path
// deterministically") — unit tests exercise ElevateForOperation's whitelist
// logic directly instead, via a Checker double.
func ElevateIfNeeded(ctx context.Context, checker Checker, operation string, yes bool, args []string) error {
	if checker == nil {
		checker = System
	}
	if checker.IsRoot() {
		return nil
	}
	if paths.TestMode() {
		return nil
	}

	elevationMutex.Lock()
	defer elevationMutex.Unlock()

	// Re-check under the lock: another goroutine may have already elevated
	// (and, for the real Checker, this process would have been replaced by
	// exec anyway, but a mock Checker in tests can legitimately flip state).
	if checker.IsRoot() {
		return nil
	}

	return checker.Elevate(ctx, operation, yes, args)
}

// runSelfSudo re-execs the current binary under sudo. It always tries
// non-interactive sudo first (`sudo -n`); with yes set, a failure there is
// final and produces the NOPASSWD remediation message, since --yes promises
// the caller no password prompt will ever appear. Without yes, a non-zero
// exit from `sudo -n` falls back to an interactive `sudo` bounded by
// interactiveTimeout.
func runSelfSudo(ctx context.Context, operation string, yes bool, args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return omgerrors.Internal("failed to resolve executable path for privilege elevation", err)
	}

	if err := runSudo(ctx, exe, args, true, 0); err == nil {
		return nil
	} else if yes {
		return nopasswdRemediation(operation, exe, err)
	}

	return runSudo(ctx, exe, args, false, interactiveTimeout)
}

func runSudo(ctx context.Context, exe string, args []string, nonInteractive bool, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sudoArgs := []string{}
	if nonInteractive {
		sudoArgs = append(sudoArgs, "-n")
	}
	sudoArgs = append(sudoArgs, "--", exe)
	sudoArgs = append(sudoArgs, args...)

	cmd := exec.CommandContext(ctx, "sudo", sudoArgs...)
	cmd.Env = append(os.Environ(), "OMG_ELEVATED=1")
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

// nopasswdRemediation builds the detailed sudoers configuration hint §5
// promises when --yes collides with a password prompt, reusing
// pkg/errors' existing PermissionDenied remediation text as the stable,
// machine-readable half of the message and appending the sudoers stanza the
// operator needs to paste.
func nopasswdRemediation(operation, exe string, cause error) error {
	username := "username"
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
	}

	base := omgerrors.PermissionDenied(operation)
	base.Message = fmt.Sprintf(
		"%s: --yes requires passwordless sudo, but sudo -n failed (%v). "+
			"Run 'sudo visudo' and add:\n  %s ALL=(ALL) NOPASSWD: %s\nor re-run without --yes to enter your password once.",
		base.Message, cause, username, exe,
	)
	return base
}
