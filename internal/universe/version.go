package universe

import (
	"strconv"
	"strings"
)

// compareVersions orders two Debian package version strings per Debian
// policy: epoch, then upstream version, then Debian revision, each compared
// by alternating runs of non-digit and digit characters. Debian versions
// aren't semver (arbitrary-precision numeric runs, epochs, the "~"
// sort-before-everything rule), so this can't be delegated to a semver
// library; it's hand-rolled and kept deliberately small. Returns -1, 0, or 1.
func compareVersions(a, b string) int {
	aEpoch, aRest := splitEpoch(a)
	bEpoch, bRest := splitEpoch(b)
	if aEpoch != bEpoch {
		return cmpInt(aEpoch, bEpoch)
	}

	aUpstream, aRevision := splitRevision(aRest)
	bUpstream, bRevision := splitRevision(bRest)

	if c := compareVersionPart(aUpstream, bUpstream); c != 0 {
		return c
	}
	return compareVersionPart(aRevision, bRevision)
}

func splitEpoch(v string) (int, string) {
	if i := strings.Index(v, ":"); i != -1 {
		n, err := strconv.Atoi(v[:i])
		if err == nil {
			return n, v[i+1:]
		}
	}
	return 0, v
}

func splitRevision(v string) (upstream, revision string) {
	if i := strings.LastIndex(v, "-"); i != -1 {
		return v[:i], v[i+1:]
	}
	return v, ""
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareVersionPart compares two upstream-version or revision strings
// using Debian's alternating-run algorithm: split into runs of digits and
// non-digits, compare non-digit runs lexically (with "~" sorting before
// everything, including the empty string) and digit runs numerically.
func compareVersionPart(a, b string) int {
	ai, bi := 0, 0
	for ai < len(a) || bi < len(b) {
		aAlpha, aNext := takeNonDigits(a, ai)
		bAlpha, bNext := takeNonDigits(b, bi)
		if c := compareAlphaRun(aAlpha, bAlpha); c != 0 {
			return c
		}
		ai, bi = aNext, bNext

		aNum, aNext2 := takeDigits(a, ai)
		bNum, bNext2 := takeDigits(b, bi)
		if c := compareNumRun(aNum, bNum); c != 0 {
			return c
		}
		ai, bi = aNext2, bNext2
	}
	return 0
}

func takeNonDigits(s string, i int) (string, int) {
	start := i
	for i < len(s) && !isDigit(s[i]) {
		i++
	}
	return s[start:i], i
}

func takeDigits(s string, i int) (string, int) {
	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[start:i], i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// compareAlphaRun compares two non-digit runs character by character using
// Debian's ordering: "~" sorts before everything including the string end,
// letters sort before other characters, and the empty run sorts before any
// non-empty run that doesn't start with "~".
func compareAlphaRun(a, b string) int {
	i := 0
	for i < len(a) || i < len(b) {
		var ac, bc byte
		if i < len(a) {
			ac = a[i]
		}
		if i < len(b) {
			bc = b[i]
		}
		if ac == bc {
			i++
			continue
		}
		return cmpInt(debianCharOrder(ac), debianCharOrder(bc))
	}
	return 0
}

// debianCharOrder maps a byte (0 meaning "end of string") to Debian's
// comparison order: "~" < end-of-string < letters < other characters.
func debianCharOrder(c byte) int {
	switch {
	case c == '~':
		return -1
	case c == 0:
		return 0
	case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		return 1000 + int(c)
	default:
		return 2000 + int(c)
	}
}

func compareNumRun(a, b string) int {
	an, _ := strconv.Atoi(strings.TrimLeft(a, "0"))
	bn, _ := strconv.Atoi(strings.TrimLeft(b, "0"))
	return cmpInt(an, bn)
}

// versionSatisfies reports whether candidateVersion satisfies op+ver (e.g.
// op=">=" ver="2.34"). An empty op always satisfies (unconstrained).
func versionSatisfies(candidateVersion, op, ver string) bool {
	if op == "" {
		return true
	}
	c := compareVersions(candidateVersion, ver)
	switch op {
	case "=":
		return c == 0
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	case ">>":
		return c > 0
	case "<<":
		return c < 0
	default:
		return true
	}
}
