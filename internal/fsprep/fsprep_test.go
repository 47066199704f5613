package fsprep

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapAPT_WritesSourcesList(t *testing.T) {
	target := t.TempDir()
	listDir := t.TempDir()
	listFile := filepath.Join(listDir, "mirror_stable_main_binary-amd64_Packages")
	require.NoError(t, os.WriteFile(listFile, []byte("Package: bash\n"), 0o644))

	err := BootstrapAPT(target, "https://mirror.example/debs", "stable", []string{listFile})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(target, "etc", "apt", "sources.list"))
	require.NoError(t, err)
	assert.Equal(t, "deb https://mirror.example/debs stable main\n", string(data))

	copied, err := os.ReadFile(filepath.Join(target, "var", "lib", "apt", "lists", filepath.Base(listFile)))
	require.NoError(t, err)
	assert.Equal(t, "Package: bash\n", string(copied))
}

func TestExtractBootstrapPack_WritesPasswdAndGroup(t *testing.T) {
	target := t.TempDir()
	// resolv.conf copy will fail silently only if /etc/resolv.conf is
	// missing from the test host; assert best-effort on the payload files
	// that don't depend on host state.
	_ = ExtractBootstrapPack(target)

	passwd, err := os.ReadFile(filepath.Join(target, "etc", "passwd"))
	require.NoError(t, err)
	assert.Contains(t, string(passwd), "root:x:0:0:")

	group, err := os.ReadFile(filepath.Join(target, "etc", "group"))
	require.NoError(t, err)
	assert.Contains(t, string(group), "root:x:0:")

	shim, err := os.Stat(filepath.Join(target, "usr", "sbin", "policy-rc.d"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), shim.Mode().Perm())
}

func TestMakeDeviceNodes_RequiresRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("test must run unprivileged to exercise the privilege check")
	}

	target := t.TempDir()
	err := MakeDeviceNodes(target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "privilege")
}
