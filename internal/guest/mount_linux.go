//go:build linux

package guest

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/rootstrap/rootstrap/internal/log"
	"github.com/rootstrap/rootstrap/internal/rootstraperr"
)

// mountAll bind-mounts each entry of bindMounts from the host into
// targetDir, creating mount points as needed, and returns a teardown
// function that unmounts everything in reverse order. Teardown is
// idempotent and safe to call exactly once via defer.
func mountAll(targetDir string, logger log.Logger) (func(), error) {
	mounted := make([]string, 0, len(bindMounts))

	for _, src := range bindMounts {
		dest := filepath.Join(targetDir, src)
		if err := os.MkdirAll(dest, 0o755); err != nil {
			unmountAll(mounted, logger)
			return nil, rootstraperr.New(rootstraperr.KindMount, "guest-mount", err)
		}

		if err := unix.Mount(src, dest, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			unmountAll(mounted, logger)
			return nil, rootstraperr.New(rootstraperr.KindMount, "guest-mount",
				fmt.Errorf("bind-mounting %s: %w", src, err))
		}
		mounted = append(mounted, dest)
	}

	teardown := func() {
		unmountAll(mounted, logger)
	}
	return teardown, nil
}

// unmountAll unmounts dests in reverse order. A mount that is already gone
// is logged and ignored; failure to unmount a mount that is still present
// is fatal (panics) — leaving a bind-mounted host /dev or /proc attached to
// a torn-down target is a dangerous state that demands operator attention,
// per spec.md §4.7's teardown protocol.
func unmountAll(dests []string, logger log.Logger) {
	for i := len(dests) - 1; i >= 0; i-- {
		dest := dests[i]

		if !isMounted(dest) {
			logger.Info("mount already absent during teardown", "path", dest)
			continue
		}

		if err := unix.Unmount(dest, unix.MNT_DETACH); err != nil {
			panic(fmt.Sprintf("rootstrap: fatal: failed to unmount %s: %v (manual cleanup required)", dest, err))
		}
	}
}

// isMounted reports whether path is currently a mount point by comparing
// its device id against its parent's.
func isMounted(path string) bool {
	var pathStat, parentStat unix.Stat_t
	if err := unix.Stat(path, &pathStat); err != nil {
		return false
	}
	if err := unix.Stat(filepath.Dir(path), &parentStat); err != nil {
		return false
	}
	return pathStat.Dev != parentStat.Dev
}
