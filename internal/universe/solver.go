package universe

import (
	"fmt"
	"strings"
)

// Solve computes the transitive dependency closure of requestedNames
// against pool, honoring Depends, Pre-Depends, Recommends (as hard),
// Conflicts, and Provides per spec.md §4.2. Suggests is ignored entirely
// (it is never parsed into a depGroup). archPriority is the caller's
// --arch list; the first entry is preferred when multiple architectures of
// the same package name satisfy a request.
func (p *Pool) Solve(requestedNames []string, archPriority []string) (*ResolvedSet, error) {
	s := &solveState{
		pool:         p,
		archPriority: archPriority,
		selected:     make(map[string]*solvable),
		order:        nil,
	}

	for _, name := range requestedNames {
		if err := s.resolve(name, []string{name}); err != nil {
			return nil, err
		}
	}

	var totalKB int64
	metas := make([]PackageMeta, 0, len(s.order))
	for _, sv := range s.order {
		metas = append(metas, PackageMeta{
			Name:     sv.name,
			Path:     sv.path,
			Size:     sv.sizeBytes,
			Checksum: sv.checksum,
			Version:  sv.version,
		})
		totalKB += sv.installedSizeKB
	}

	return &ResolvedSet{Packages: metas, installedSizeKB: totalKB}, nil
}

type solveState struct {
	pool         *Pool
	archPriority []string
	selected     map[string]*solvable
	order        []*solvable
}

// resolve selects a candidate for name (or a dependency alternative), then
// recursively resolves its Pre-Depends, Depends, and Recommends before
// appending it to the emission order — giving dependency-first ordering.
// chain tracks the current resolution path for unresolvable-dependency
// error messages.
func (s *solveState) resolve(name string, chain []string) error {
	if _, ok := s.selected[name]; ok {
		return nil
	}

	sv, err := s.pick(name, "", "")
	if err != nil {
		return fmt.Errorf("unresolved dependency chain %s: %w", strings.Join(chain, " -> "), err)
	}

	if err := s.checkConflicts(sv); err != nil {
		return err
	}

	s.selected[sv.name] = sv

	for _, group := range [][]depGroup{sv.preDepends, sv.depends, sv.recommends} {
		for _, alt := range group {
			if err := s.resolveGroup(alt, chain); err != nil {
				return err
			}
		}
	}

	s.order = append(s.order, sv)
	return nil
}

// resolveGroup resolves one dependency alternation: "a | b | c" is
// satisfied by resolving whichever alternative the pool can provide,
// preferring one already selected, then the first alternative the pool
// can satisfy at all.
func (s *solveState) resolveGroup(group depGroup, chain []string) error {
	for _, alt := range group {
		if sv, ok := s.selected[alt.name]; ok && versionSatisfies(sv.version, alt.op, alt.ver) {
			return nil
		}
	}

	var lastErr error
	for _, alt := range group {
		sv, err := s.pick(alt.name, alt.op, alt.ver)
		if err != nil {
			lastErr = err
			continue
		}
		return s.resolve(sv.name, append(chain, alt.name))
	}

	names := make([]string, len(group))
	for i, alt := range group {
		names[i] = alt.name
	}
	return fmt.Errorf("unresolved dependency chain %s: none of [%s] is available: %w",
		strings.Join(chain, " -> "), strings.Join(names, "|"), lastErr)
}

// pick selects the best candidate for name matching the optional version
// constraint, resolving virtual Provides names when no real package of that
// name exists. Ties are broken by highest version, then by the candidate
// whose architecture matches the earliest entry in archPriority.
func (s *solveState) pick(name, op, ver string) (*solvable, error) {
	candidates := s.pool.byName[name]
	if len(candidates) == 0 {
		for _, provider := range s.pool.provides[name] {
			candidates = append(candidates, s.pool.byName[provider]...)
		}
	}

	var best *solvable
	for _, sv := range candidates {
		if op != "" && !versionSatisfies(sv.version, op, ver) {
			continue
		}
		if best == nil || s.betterCandidate(sv, best) {
			best = sv
		}
	}

	if best == nil {
		return nil, fmt.Errorf("no package satisfies %q", constraintString(name, op, ver))
	}
	return best, nil
}

func (s *solveState) betterCandidate(candidate, current *solvable) bool {
	if c := compareVersions(candidate.version, current.version); c != 0 {
		return c > 0
	}
	return s.archRank(candidate.arch) < s.archRank(current.arch)
}

func (s *solveState) archRank(arch string) int {
	for i, a := range s.archPriority {
		if a == arch {
			return i
		}
	}
	return len(s.archPriority)
}

// checkConflicts fails the solve if sv conflicts with an already-selected
// package, or vice versa.
func (s *solveState) checkConflicts(sv *solvable) error {
	for _, group := range sv.conflicts {
		for _, alt := range group {
			if other, ok := s.selected[alt.name]; ok && versionSatisfies(other.version, alt.op, alt.ver) {
				return fmt.Errorf("package %s conflicts with already-selected package %s", sv.name, other.name)
			}
		}
	}
	for selectedName, other := range s.selected {
		for _, group := range other.conflicts {
			for _, alt := range group {
				if alt.name == sv.name && versionSatisfies(sv.version, alt.op, alt.ver) {
					return fmt.Errorf("package %s conflicts with already-selected package %s", sv.name, selectedName)
				}
			}
		}
	}
	return nil
}

func constraintString(name, op, ver string) string {
	if op == "" {
		return name
	}
	return fmt.Sprintf("%s (%s %s)", name, op, ver)
}
