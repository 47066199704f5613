package functional

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// fixturePackage describes one synthetic .deb the fixture mirror serves.
type fixturePackage struct {
	name, version, arch, depends string
	sizeBytes, installedSizeKB   int64
}

var fixtureUniverse = []fixturePackage{
	{name: "libc6", version: "2.36", arch: "amd64", sizeBytes: 4, installedSizeKB: 1000},
	{name: "bash", version: "5.2", arch: "amd64", depends: "libc6 (>= 2.34)", sizeBytes: 4, installedSizeKB: 1200},
	{name: "base-files", version: "12", arch: "amd64", depends: "libc6", sizeBytes: 4, installedSizeKB: 50},
}

// fixtureBlobBody is served verbatim for every package's .deb Filename; it
// does not need to be a real ar/tar archive for the download-only
// scenarios, which never extract it.
const fixtureBlobBody = "test"

func fixtureChecksum() string {
	sum := sha256.Sum256([]byte(fixtureBlobBody))
	return hex.EncodeToString(sum[:])
}

func poolPath(name string) string {
	return fmt.Sprintf("pool/main/%c/%s/%s_deb.deb", name[0], name, name)
}

// fixturePackages returns the "/dists/stable/main/binary-<arch>/Packages"
// bodies the mirror serves, keyed by URL path, one stanza per fixture
// package sharing that architecture.
func fixturePackages() map[string]string {
	byArch := make(map[string]string)
	checksum := fixtureChecksum()
	for _, pkg := range fixtureUniverse {
		stanza := fmt.Sprintf("Package: %s\nVersion: %s\nArchitecture: %s\nFilename: %s\nSize: %d\nInstalled-Size: %d\nSHA256: %s\n",
			pkg.name, pkg.version, pkg.arch, poolPath(pkg.name), pkg.sizeBytes, pkg.installedSizeKB, checksum)
		if pkg.depends != "" {
			stanza += fmt.Sprintf("Depends: %s\n", pkg.depends)
		}
		byArch[pkg.arch] += stanza + "\n"
	}

	paths := map[string]string{
		"/dists/stable/main/binary-all/Packages": "", // fixture universe has no arch:all packages
	}
	for arch, body := range byArch {
		paths["/dists/stable/main/binary-"+arch+"/Packages"] = body
	}
	return paths
}

// fixtureBlobs returns the .deb payload bytes served at each fixture
// package's pool path, keyed by URL path.
func fixtureBlobs() map[string][]byte {
	blobs := make(map[string][]byte)
	for _, pkg := range fixtureUniverse {
		blobs["/"+poolPath(pkg.name)] = []byte(fixtureBlobBody)
	}
	return blobs
}
