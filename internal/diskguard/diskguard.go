// Package diskguard verifies that a target filesystem has enough free space
// before a bootstrap phase begins, per spec.md §4.4.
package diskguard

import (
	"golang.org/x/sys/unix"

	"github.com/rootstrap/rootstrap/internal/rootstraperr"
)

// Check reads the free space available on the filesystem containing
// targetPath and fails if it is strictly less than requiredKB. A negative or
// zero requirement is treated as 0 — callers (notably the solver's signed
// installed-size delta) may legitimately compute a negative requirement when
// packages are already present.
func Check(requiredKB int64, targetPath string) error {
	if requiredKB < 0 {
		requiredKB = 0
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(targetPath, &stat); err != nil {
		return rootstraperr.New(rootstraperr.KindDiskSpace, "disk-check", err)
	}

	availableKB := int64(stat.Bavail) * int64(stat.Bsize) / 1024

	if availableKB < requiredKB {
		return &rootstraperr.DiskSpaceError{
			Phase:       "disk-check",
			RequiredKB:  requiredKB,
			AvailableKB: availableKB,
		}
	}

	return nil
}
