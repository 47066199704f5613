package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAPITimeout(t *testing.T) {
	t.Run("default when unset", func(t *testing.T) {
		t.Setenv(EnvAPITimeout, "")
		assert.Equal(t, DefaultAPITimeout, GetAPITimeout())
	})

	t.Run("valid override", func(t *testing.T) {
		t.Setenv(EnvAPITimeout, "5s")
		assert.Equal(t, 5*time.Second, GetAPITimeout())
	})

	t.Run("clamps too low", func(t *testing.T) {
		t.Setenv(EnvAPITimeout, "100ms")
		assert.Equal(t, 1*time.Second, GetAPITimeout())
	})

	t.Run("clamps too high", func(t *testing.T) {
		t.Setenv(EnvAPITimeout, "1h")
		assert.Equal(t, 10*time.Minute, GetAPITimeout())
	})

	t.Run("invalid falls back to default", func(t *testing.T) {
		t.Setenv(EnvAPITimeout, "not-a-duration")
		assert.Equal(t, DefaultAPITimeout, GetAPITimeout())
	})
}

func TestGetMaxParallelDownloads(t *testing.T) {
	t.Setenv(EnvMaxParallelDownloads, "")
	assert.Equal(t, DefaultMaxParallelDownloads, GetMaxParallelDownloads())

	t.Setenv(EnvMaxParallelDownloads, "16")
	assert.Equal(t, 16, GetMaxParallelDownloads())

	t.Setenv(EnvMaxParallelDownloads, "0")
	assert.Equal(t, DefaultMaxParallelDownloads, GetMaxParallelDownloads())

	t.Setenv(EnvMaxParallelDownloads, "1000")
	assert.Equal(t, 64, GetMaxParallelDownloads())
}

func TestGetRetryMaxAttempts(t *testing.T) {
	t.Setenv(EnvRetryMaxAttempts, "")
	assert.Equal(t, DefaultRetryMaxAttempts, GetRetryMaxAttempts())

	t.Setenv(EnvRetryMaxAttempts, "5")
	assert.Equal(t, 5, GetRetryMaxAttempts())

	t.Setenv(EnvRetryMaxAttempts, "1")
	assert.Equal(t, DefaultRetryMaxAttempts, GetRetryMaxAttempts())
}

func TestLoadBootstrapConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
stub_packages = ["dpkg", "bash"]
base_packages = ["apt", "systemd"]
`), 0o644))

	cfg, err := LoadBootstrapConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"dpkg", "bash"}, cfg.StubPackages)
	assert.Equal(t, []string{"apt", "systemd"}, cfg.BasePackages)
}

func TestLoadBootstrapConfig_MissingStubPackages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.toml")
	require.NoError(t, os.WriteFile(path, []byte(`base_packages = ["apt"]`), 0o644))

	_, err := LoadBootstrapConfig(path)
	assert.Error(t, err)
}

func TestLoadBootstrapConfig_MissingFile(t *testing.T) {
	_, err := LoadBootstrapConfig("/nonexistent/bootstrap.toml")
	assert.Error(t, err)
}

func TestCollectPackagesFromLists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extra.txt")
	require.NoError(t, os.WriteFile(path, []byte("# header\n\nbash\n  zsh  \n#zsh\n"), 0o644))

	packages, err := CollectPackagesFromLists([]string{path})
	require.NoError(t, err)
	assert.Equal(t, []string{"bash", "zsh"}, packages)
}

func TestCollectPackagesFromLists_MultipleFiles(t *testing.T) {
	dir := t.TempDir()
	path1 := filepath.Join(dir, "a.txt")
	path2 := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(path1, []byte("foo\n"), 0o644))
	require.NoError(t, os.WriteFile(path2, []byte("bar\n"), 0o644))

	packages, err := CollectPackagesFromLists([]string{path1, path2})
	require.NoError(t, err)
	assert.Equal(t, []string{"foo", "bar"}, packages)
}

func TestCollectPackagesFromLists_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trimmed.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree"), 0o644))

	packages, err := CollectPackagesFromLists([]string{path})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, packages)
}
