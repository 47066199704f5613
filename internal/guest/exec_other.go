//go:build !linux

package guest

import "fmt"

func execChrooted(targetDir string, argv []string, env []string) error {
	return fmt.Errorf("guest execution requires Linux")
}
