// Package rootstraperr defines the distinguished error kinds the bootstrap
// core must surface per spec.md §7, each carrying the pipeline phase that
// produced it so the CLI can report "phase=<STATE> kind=<Kind>: <message>"
// and select an exit code.
package rootstraperr

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Kind classifies a bootstrap failure.
type Kind string

const (
	KindConfig     Kind = "config"
	KindNetwork    Kind = "network"
	KindResolution Kind = "resolution"
	KindDiskSpace  Kind = "disk_space"
	KindExtraction Kind = "extraction"
	KindPrivilege  Kind = "privilege"
	KindGuest      Kind = "guest"
	KindMount      Kind = "mount"
)

// Error is a phase-tagged, kind-classified bootstrap failure.
type Error struct {
	Kind  Kind
	Phase string // the spec.md §4.8 state that produced this error
	Err   error
}

func (e *Error) Error() string {
	if e.Phase == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("phase=%s kind=%s: %v", e.Phase, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as a rootstraperr.Error of the given kind and phase.
func New(kind Kind, phase string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Phase: phase, Err: err}
}

// Newf is New with a formatted message instead of a wrapped error.
func Newf(kind Kind, phase, format string, args ...any) error {
	return &Error{Kind: kind, Phase: phase, Err: fmt.Errorf(format, args...)}
}

// DiskSpaceError reports a disk-space guard failure with required,
// available, and deficit amounts in human-readable units, per spec.md §4.4.
type DiskSpaceError struct {
	Phase       string
	RequiredKB  int64
	AvailableKB int64
}

func (e *DiskSpaceError) Error() string {
	deficit := e.RequiredKB - e.AvailableKB
	return fmt.Sprintf("phase=%s kind=%s: insufficient disk space: required %s, available %s, deficit %s",
		e.Phase, KindDiskSpace, humanKB(e.RequiredKB), humanKB(e.AvailableKB), humanKB(deficit))
}

func humanKB(kb int64) string {
	if kb < 0 {
		kb = 0
	}
	return humanize.IBytes(uint64(kb) * 1024)
}

// ResolutionError reports a dependency-resolution invariant violation —
// notably the stub-subset-of-full check in spec.md §9, which must fail
// loudly rather than be silently assumed.
type ResolutionError struct {
	Phase   string
	Message string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("phase=%s kind=%s: %s", e.Phase, KindResolution, e.Message)
}
