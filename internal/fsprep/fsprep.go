// Package fsprep prepares the skeleton of the target root filesystem before
// stub packages are extracted into it, per spec.md §4.5: APT source/lists
// wiring, the embedded bootstrap pack, and device node creation.
package fsprep

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/rootstrap/rootstrap/internal/rootstraperr"
)

//go:embed all:bootstrappack
var bootstrapPack embed.FS

const bootstrapPackRoot = "bootstrappack"

// BootstrapAPT writes {target}/etc/apt/sources.list referencing mirror and
// branch, and copies the fetcher's downloaded manifests into
// {target}/var/lib/apt/lists so the in-guest APT finds them without
// re-downloading.
func BootstrapAPT(target, mirrorBase, branch string, listFiles []string) error {
	aptDir := filepath.Join(target, "etc", "apt")
	if err := os.MkdirAll(aptDir, 0o755); err != nil {
		return rootstraperr.New(rootstraperr.KindExtraction, "fsprep", err)
	}

	sourcesLine := fmt.Sprintf("deb %s %s main\n", mirrorBase, branch)
	sourcesPath := filepath.Join(aptDir, "sources.list")
	if err := os.WriteFile(sourcesPath, []byte(sourcesLine), 0o644); err != nil {
		return rootstraperr.New(rootstraperr.KindExtraction, "fsprep", err)
	}

	listsDir := filepath.Join(target, "var", "lib", "apt", "lists")
	if err := os.MkdirAll(listsDir, 0o755); err != nil {
		return rootstraperr.New(rootstraperr.KindExtraction, "fsprep", err)
	}

	for _, src := range listFiles {
		if err := copyFile(src, filepath.Join(listsDir, filepath.Base(src))); err != nil {
			return rootstraperr.New(rootstraperr.KindExtraction, "fsprep", err)
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := out.ReadFrom(in); err != nil {
		return err
	}
	return nil
}

// ExtractBootstrapPack extracts the embedded minimal payload — a skeleton
// /etc/passwd, /etc/group, and startup shims the stub packages alone can't
// provide — into target, then copies the host's /etc/resolv.conf so
// in-guest DNS resolution works during stage 2.
func ExtractBootstrapPack(target string) error {
	err := fs.WalkDir(bootstrapPack, bootstrapPackRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(bootstrapPackRoot, path)
		if err != nil || rel == "." {
			return nil
		}

		destPath := filepath.Join(target, rel)
		if d.IsDir() {
			return os.MkdirAll(destPath, 0o755)
		}

		data, err := bootstrapPack.ReadFile(path)
		if err != nil {
			return err
		}

		mode := os.FileMode(0o644)
		if filepath.Dir(rel) == "usr/sbin" {
			mode = 0o755
		}
		return os.WriteFile(destPath, data, mode)
	})
	if err != nil {
		return rootstraperr.New(rootstraperr.KindExtraction, "fsprep", err)
	}

	if err := copyResolvConf(target); err != nil {
		return rootstraperr.New(rootstraperr.KindExtraction, "fsprep", err)
	}

	return nil
}

func copyResolvConf(target string) error {
	etcDir := filepath.Join(target, "etc")
	if err := os.MkdirAll(etcDir, 0o755); err != nil {
		return err
	}
	return copyFile("/etc/resolv.conf", filepath.Join(etcDir, "resolv.conf"))
}

type deviceNode struct {
	name       string
	major, min uint32
	mode       uint32
}

var deviceNodes = []deviceNode{
	{"null", 1, 3, 0o666},
	{"zero", 1, 5, 0o666},
	{"full", 1, 7, 0o666},
	{"random", 1, 8, 0o666},
	{"urandom", 1, 9, 0o666},
	{"tty", 5, 0, 0o600},
	{"console", 5, 1, 0o600},
	{"ptmx", 5, 2, 0o666},
}

// MakeDeviceNodes creates the character devices a minimal bootable root
// needs under {target}/dev. Idempotent: a pre-existing node with the
// correct major/minor/mode is left alone. Requires CAP_MKNOD (root); fails
// fast before any mutation if the caller isn't privileged.
func MakeDeviceNodes(target string) error {
	if os.Geteuid() != 0 {
		return rootstraperr.Newf(rootstraperr.KindPrivilege, "fsprep",
			"device node creation requires root privileges, running as uid %d", os.Getuid())
	}

	devDir := filepath.Join(target, "dev")
	if err := os.MkdirAll(devDir, 0o755); err != nil {
		return rootstraperr.New(rootstraperr.KindExtraction, "fsprep", err)
	}

	for _, dn := range deviceNodes {
		path := filepath.Join(devDir, dn.name)
		if ok, err := nodeMatches(path, dn); err != nil {
			return rootstraperr.New(rootstraperr.KindExtraction, "fsprep", err)
		} else if ok {
			continue
		}

		dev := unix.Mkdev(dn.major, dn.min)
		if err := unix.Mknod(path, unix.S_IFCHR|dn.mode, int(dev)); err != nil {
			return rootstraperr.New(rootstraperr.KindExtraction, "fsprep",
				fmt.Errorf("mknod %s: %w", path, err))
		}
		// mknod applies the umask; set the mode explicitly so the node
		// matches dn.mode and a later call leaves it alone.
		if err := unix.Chmod(path, dn.mode); err != nil {
			return rootstraperr.New(rootstraperr.KindExtraction, "fsprep",
				fmt.Errorf("chmod %s: %w", path, err))
		}
	}

	return nil
}

// nodeMatches reports whether path already exists as a character device
// with the given major/minor/mode.
func nodeMatches(path string, dn deviceNode) (bool, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	stat, ok := info.Sys().(*unix.Stat_t)
	if !ok {
		return false, nil
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return false, nil
	}

	major := uint32(unix.Major(uint64(stat.Rdev)))
	minor := uint32(unix.Minor(uint64(stat.Rdev)))
	mode := uint32(stat.Mode) & 0o777

	return major == dn.major && minor == dn.min && mode == dn.mode, nil
}
