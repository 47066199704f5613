//go:build !linux

package guest

import (
	"fmt"

	"github.com/rootstrap/rootstrap/internal/log"
)

func mountAll(targetDir string, logger log.Logger) (func(), error) {
	return nil, fmt.Errorf("guest execution requires Linux (bind-mounts, chroot, mknod are Linux-specific)")
}
