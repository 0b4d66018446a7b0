// pattern: Imperative Shell

package explorer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	DefaultDecisionSuffix = ".dmn"
	DefaultFixtureSuffix  = "-tests"
)

// ErrNotDecision is returned when a path does not name a decision entry
// directly under the workspace root.
var ErrNotDecision = errors.New("not a decision entry of the workspace")

// Source lists decision entries of one workspace root.
type Source struct {
	root           string
	decisionSuffix string
	fixtureSuffix  string
}

// Option configures a Source.
type Option func(*Source)

// WithDecisionSuffix sets the name suffix that marks decision entries.
func WithDecisionSuffix(suffix string) Option {
	return func(s *Source) {
		if suffix != "" {
			s.decisionSuffix = suffix
		}
	}
}

// WithFixtureSuffix sets the suffix appended to a decision's base name to
// form its fixture directory.
func WithFixtureSuffix(suffix string) Option {
	return func(s *Source) {
		if suffix != "" {
			s.fixtureSuffix = suffix
		}
	}
}

func NewSource(root string, opts ...Option) *Source {
	s := &Source{
		root:           root,
		decisionSuffix: DefaultDecisionSuffix,
		fixtureSuffix:  DefaultFixtureSuffix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the workspace root this source scans.
func (s *Source) Root() string {
	return s.root
}

// FixtureSuffix returns the configured fixture directory suffix.
func (s *Source) FixtureSuffix() string {
	return s.fixtureSuffix
}

// Roots lists the decision entries of the workspace root: directories
// first, then files, each group in byte-wise name order.
func (s *Source) Roots() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read workspace %s: %w", s.root, err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		name := de.Name()
		if !strings.HasSuffix(name, s.decisionSuffix) {
			continue
		}
		path := filepath.Join(s.root, name)
		entries = append(entries, Entry{
			Path:  path,
			Name:  name,
			Kind:  statKind(path, de),
			Class: ClassDecision,
		})
	}

	SortEntries(entries)
	return entries, nil
}

// Children lists the fixture directory of a decision entry verbatim, in
// the order os.ReadDir returns (by file name, directories not grouped).
// ok is false when the directory is absent or cannot be read; fixture
// entries never have children.
func (s *Source) Children(e Entry) (children []Entry, ok bool) {
	if e.Class != ClassDecision {
		return nil, false
	}

	dir := s.FixtureDir(e)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, false
	}

	children = make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		path := filepath.Join(dir, de.Name())
		children = append(children, Entry{
			Path:  path,
			Name:  de.Name(),
			Kind:  statKind(path, de),
			Class: ClassFixture,
		})
	}
	return children, true
}

// FixtureDir returns the conventional fixture directory of a decision
// entry: its name without the final extension plus the fixture suffix,
// next to the entry.
func (s *Source) FixtureDir(e Entry) string {
	base := strings.TrimSuffix(e.Name, filepath.Ext(e.Name))
	return filepath.Join(filepath.Dir(e.Path), base+s.fixtureSuffix)
}

// Tree returns every decision entry with its fixtures.
func (s *Source) Tree() ([]Node, error) {
	roots, err := s.Roots()
	if err != nil {
		return nil, err
	}

	nodes := make([]Node, 0, len(roots))
	for _, r := range roots {
		children, ok := s.Children(r)
		nodes = append(nodes, Node{Entry: r, Children: children, HasFixtures: ok})
	}
	return nodes, nil
}

// Lookup resolves a path to the decision entry it names. Relative paths
// are taken relative to the workspace root.
func (s *Source) Lookup(path string) (Entry, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	path = filepath.Clean(path)

	if filepath.Dir(path) != filepath.Clean(s.root) {
		return Entry{}, fmt.Errorf("%s: %w", path, ErrNotDecision)
	}
	name := filepath.Base(path)
	if !strings.HasSuffix(name, s.decisionSuffix) {
		return Entry{}, fmt.Errorf("%s: %w", path, ErrNotDecision)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", path, err)
	}
	kind := KindFile
	if info.IsDir() {
		kind = KindDirectory
	}
	return Entry{Path: path, Name: name, Kind: kind, Class: ClassDecision}, nil
}

// ParentOf returns the decision entry whose fixture directory holds the
// given fixture entry.
func (s *Source) ParentOf(fixture Entry) (Entry, error) {
	if fixture.Class != ClassFixture {
		return Entry{}, fmt.Errorf("%s is not a fixture", fixture.Path)
	}
	dirName := filepath.Base(filepath.Dir(fixture.Path))
	if !strings.HasSuffix(dirName, s.fixtureSuffix) {
		return Entry{}, fmt.Errorf("%s: unexpected fixture directory %s", fixture.Path, dirName)
	}
	base := strings.TrimSuffix(dirName, s.fixtureSuffix)

	roots, err := s.Roots()
	if err != nil {
		return Entry{}, err
	}
	for _, r := range roots {
		if strings.TrimSuffix(r.Name, filepath.Ext(r.Name)) == base {
			return r, nil
		}
	}
	return Entry{}, fmt.Errorf("no decision entry for %s: %w", fixture.Path, ErrNotDecision)
}

// SortEntries orders entries directories first, then by name.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind == KindDirectory
		}
		return entries[i].Name < entries[j].Name
	})
}

// statKind follows symlinks so a linked directory sorts as a directory.
func statKind(path string, de os.DirEntry) Kind {
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return KindDirectory
		}
		return KindFile
	}
	if de.IsDir() {
		return KindDirectory
	}
	return KindFile
}
