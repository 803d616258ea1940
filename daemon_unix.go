//go:build !windows

package inspirer

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/pkg/errors"
)

// daemonEnvVar is set in the environment of a daemonized child so it does
// not fork again.
const daemonEnvVar = "INSPIRER_DAEMONIZED"

// spawnDaemon re-executes the running binary with the same arguments in a new
// session, with stdio attached to the null device.
func spawnDaemon() (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, errors.Wrap(err, "failed to locate executable")
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonEnvVar+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, errors.Wrap(err, "failed to start daemon")
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return 0, errors.Wrap(err, "failed to release daemon")
	}
	return pid, nil
}
