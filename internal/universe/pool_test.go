package universe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePackages = `Package: bash
Version: 5.1-6
Architecture: amd64
Filename: pool/main/b/bash/bash_5.1-6_amd64.deb
Size: 1234567
Installed-Size: 4000
SHA256: aaaa
Depends: libc6 (>= 2.34), base-files

Package: libc6
Version: 2.34-1
Architecture: amd64
Filename: pool/main/g/glibc/libc6_2.34-1_amd64.deb
Size: 200
Installed-Size: 500
SHA256: bbbb
Provides: libc6-provider

Package: base-files
Version: 12
Architecture: amd64
Filename: pool/main/b/base-files/base-files_12_amd64.deb
Size: 50
Installed-Size: 10
SHA256: cccc
`

func writeFixture(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "Packages")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestPoolPopulate(t *testing.T) {
	path := writeFixture(t, samplePackages)
	p := NewPool()
	require.NoError(t, p.Populate([]string{path}))

	require.Len(t, p.byName["bash"], 1)
	sv := p.byName["bash"][0]
	require.Equal(t, "5.1-6", sv.version)
	require.Equal(t, int64(1234567), sv.sizeBytes)
	require.Equal(t, int64(4000), sv.installedSizeKB)
	require.Equal(t, "aaaa", sv.checksum)

	require.Len(t, sv.depends, 2)
	require.Equal(t, "libc6", sv.depends[0][0].name)
	require.Equal(t, ">=", sv.depends[0][0].op)
	require.Equal(t, "2.34", sv.depends[0][0].ver)
	require.Equal(t, "base-files", sv.depends[1][0].name)

	require.Contains(t, p.provides, "libc6-provider")
	require.Equal(t, []string{"libc6"}, p.provides["libc6-provider"])
}

func TestParseDepField_Alternatives(t *testing.T) {
	groups := parseDepField("bash | dash, libfoo (= 1.0)")
	require.Len(t, groups, 2)
	require.Len(t, groups[0], 2)
	require.Equal(t, "bash", groups[0][0].name)
	require.Equal(t, "dash", groups[0][1].name)
	require.Equal(t, "libfoo", groups[1][0].name)
	require.Equal(t, "=", groups[1][0].op)
}

func TestParseDepField_Empty(t *testing.T) {
	require.Nil(t, parseDepField(""))
	require.Nil(t, parseDepField("  "))
}

func TestParseDepField_ArchQualifierStripped(t *testing.T) {
	groups := parseDepField("libfoo:any")
	require.Len(t, groups, 1)
	require.Equal(t, "libfoo", groups[0][0].name)
}
