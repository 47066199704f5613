package universe

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// solvable is one parsed stanza from a Packages index: a candidate the
// solver may select to satisfy a name.
type solvable struct {
	name            string
	version         string
	arch            string
	path            string
	sizeBytes       int64
	installedSizeKB int64
	checksum        string
	depends         []depGroup
	preDepends      []depGroup
	recommends      []depGroup
	conflicts       []depGroup
	provides        []string
}

// depGroup is a comma-separated dependency entry: a list of alternatives
// joined by "|", any one of which satisfies the group.
type depGroup []depAlt

type depAlt struct {
	name string
	op   string // "", "=", ">=", "<=", ">>", "<<"
	ver  string
}

// Pool carries the parsed universe of packages from all populated
// manifests. Single-writer; may be solved multiple times against different
// requested sets within one run (spec.md §3).
type Pool struct {
	// byName maps a real package name to every candidate solvable parsed
	// for it (duplicates across architectures are preserved as distinct
	// solvables per spec.md §4.2).
	byName map[string][]*solvable

	// provides maps a virtual package name to the real package names that
	// declare it in their Provides field.
	provides map[string][]string
}

// NewPool creates an empty Pool.
func NewPool() *Pool {
	return &Pool{
		byName:   make(map[string][]*solvable),
		provides: make(map[string][]string),
	}
}

// Populate parses each Packages file in paths and inserts every described
// package into the pool.
func (p *Pool) Populate(paths []string) error {
	for _, path := range paths {
		if err := p.populateOne(path); err != nil {
			return fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
	}
	return nil
}

func (p *Pool) populateOne(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, stanza := range splitStanzas(f) {
		sv, err := parseStanza(stanza)
		if err != nil {
			return err
		}
		if sv == nil {
			continue
		}
		p.byName[sv.name] = append(p.byName[sv.name], sv)
		for _, virtual := range sv.provides {
			p.provides[virtual] = append(p.provides[virtual], sv.name)
		}
	}

	return nil
}

// splitStanzas splits a Packages file into deb822 stanzas (blank-line
// separated groups of "Key: value" fields with RFC822-style continuation
// lines beginning with whitespace).
func splitStanzas(f *os.File) []string {
	var stanzas []string
	var cur strings.Builder

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if cur.Len() > 0 {
				stanzas = append(stanzas, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
	}
	if cur.Len() > 0 {
		stanzas = append(stanzas, cur.String())
	}

	return stanzas
}

// parseStanza parses one deb822 stanza into a solvable. Returns nil, nil if
// the stanza has no Package field (defensive; real indices never omit it).
func parseStanza(stanza string) (*solvable, error) {
	fields := make(map[string]string)
	var lastKey string

	for _, line := range strings.Split(stanza, "\n") {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && lastKey != "" {
			fields[lastKey] += "\n" + strings.TrimSpace(line)
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		fields[key] = strings.TrimSpace(value)
		lastKey = key
	}

	name := fields["Package"]
	if name == "" {
		return nil, nil
	}

	sv := &solvable{
		name:     name,
		version:  fields["Version"],
		arch:     fields["Architecture"],
		path:     fields["Filename"],
		checksum: strings.ToLower(fields["SHA256"]),
	}

	if v, err := strconv.ParseInt(fields["Size"], 10, 64); err == nil {
		sv.sizeBytes = v
	}
	if v, err := strconv.ParseInt(fields["Installed-Size"], 10, 64); err == nil {
		sv.installedSizeKB = v
	}

	sv.depends = parseDepField(fields["Depends"])
	sv.preDepends = parseDepField(fields["Pre-Depends"])
	sv.recommends = parseDepField(fields["Recommends"])
	sv.conflicts = parseDepField(fields["Conflicts"])
	sv.provides = parseNameList(fields["Provides"])

	return sv, nil
}

// parseDepField parses a comma-separated dependency field such as:
//
//	libc6 (>= 2.34), bash | dash, libfoo
func parseDepField(field string) []depGroup {
	field = strings.ReplaceAll(field, "\n", " ")
	if strings.TrimSpace(field) == "" {
		return nil
	}

	var groups []depGroup
	for _, entry := range strings.Split(field, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		var group depGroup
		for _, alt := range strings.Split(entry, "|") {
			if da, ok := parseDepAlt(alt); ok {
				group = append(group, da)
			}
		}
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}
	return groups
}

// parseDepAlt parses one alternative, e.g. "libc6 (>= 2.34)" or
// "libfoo:any" or plain "bash".
func parseDepAlt(alt string) (depAlt, bool) {
	alt = strings.TrimSpace(alt)
	if alt == "" {
		return depAlt{}, false
	}

	name := alt
	op, ver := "", ""
	if i := strings.Index(alt, "("); i != -1 {
		name = strings.TrimSpace(alt[:i])
		constraint := strings.TrimSuffix(strings.TrimSpace(alt[i+1:]), ")")
		parts := strings.Fields(constraint)
		if len(parts) == 2 {
			op, ver = parts[0], parts[1]
		}
	}

	// Drop any ":arch" qualifier on the package name itself.
	if i := strings.Index(name, ":"); i != -1 {
		name = name[:i]
	}

	return depAlt{name: name, op: op, ver: ver}, true
}

func parseNameList(field string) []string {
	field = strings.ReplaceAll(field, "\n", " ")
	if strings.TrimSpace(field) == "" {
		return nil
	}
	var names []string
	for _, n := range strings.Split(field, ",") {
		n = strings.TrimSpace(n)
		if i := strings.Index(n, "("); i != -1 {
			n = strings.TrimSpace(n[:i])
		}
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}
