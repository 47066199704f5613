package guest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunInGuest_RejectsEmptyArgv(t *testing.T) {
	err := RunInGuest(t.TempDir(), nil, nil)
	assert.Error(t, err)
}

func TestBindMounts_OrderIsFixed(t *testing.T) {
	want := []string{"/dev", "/dev/pts", "/proc", "/sys", "/run"}
	assert.Equal(t, want, bindMounts)
}
