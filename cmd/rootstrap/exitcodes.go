package main

import (
	"errors"
	"os"

	"github.com/rootstrap/rootstrap/internal/rootstraperr"
)

// Exit codes let calling scripts distinguish bootstrap failure modes
// without parsing stderr.
const (
	ExitSuccess    = 0
	ExitGeneral    = 1
	ExitUsage      = 2
	ExitConfig     = 3
	ExitNetwork    = 4
	ExitResolution = 5
	ExitDiskSpace  = 6
	ExitExtraction = 7
	ExitPrivilege  = 8
	ExitGuest      = 9
	ExitMount      = 10
	ExitCancelled  = 130
)

func exitWithCode(code int) {
	os.Exit(code)
}

// exitCodeForError maps a rootstraperr.Kind to its exit code, falling back
// to ExitGeneral for errors the pipeline didn't classify.
func exitCodeForError(err error) int {
	var dsErr *rootstraperr.DiskSpaceError
	if errors.As(err, &dsErr) {
		return ExitDiskSpace
	}

	var resErr *rootstraperr.ResolutionError
	if errors.As(err, &resErr) {
		return ExitResolution
	}

	var rsErr *rootstraperr.Error
	if errors.As(err, &rsErr) {
		switch rsErr.Kind {
		case rootstraperr.KindConfig:
			return ExitConfig
		case rootstraperr.KindNetwork:
			return ExitNetwork
		case rootstraperr.KindResolution:
			return ExitResolution
		case rootstraperr.KindDiskSpace:
			return ExitDiskSpace
		case rootstraperr.KindExtraction:
			return ExitExtraction
		case rootstraperr.KindPrivilege:
			return ExitPrivilege
		case rootstraperr.KindGuest:
			return ExitGuest
		case rootstraperr.KindMount:
			return ExitMount
		}
	}

	return ExitGeneral
}
