// Package guest runs a command chrooted into a freshly bootstrapped root,
// per spec.md §4.7: bind-mount the host's live pseudo-filesystems in, fork
// and exec with a minimal environment, then tear every mount back down on
// every exit path.
package guest

import (
	"fmt"
	"os"

	"github.com/rootstrap/rootstrap/internal/log"
)

// bindMounts lists, in mount order, the host filesystems bind-mounted into
// the guest root. Teardown unmounts in the reverse of this order.
var bindMounts = []string{"/dev", "/dev/pts", "/proc", "/sys", "/run"}

// guestEnv builds the environment the guest process execs with, per
// spec.md §6: PATH and LANG are reset to fixed values, DEBIAN_FRONTEND is
// forced noninteractive, and TERM is inherited from the host so an
// interactive install script run from an actual terminal still sees one.
func guestEnv() []string {
	return []string{
		"PATH=/usr/bin:/bin:/usr/sbin:/sbin",
		"TERM=" + os.Getenv("TERM"),
		"LANG=C.UTF-8",
		"DEBIAN_FRONTEND=noninteractive",
	}
}

// RunInGuest executes argv with targetDir as its root. It returns only the
// process's exit status (wrapped in an error for non-zero exits); mount
// teardown is guaranteed on every return path, including a panic unwinding
// through this call.
func RunInGuest(targetDir string, argv []string, logger log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	if len(argv) == 0 {
		return fmt.Errorf("run_in_guest requires a non-empty argv")
	}

	teardown, err := mountAll(targetDir, logger)
	if err != nil {
		return err
	}
	defer teardown()

	return execChrooted(targetDir, argv, guestEnv())
}
