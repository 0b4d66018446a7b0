// pattern: Functional Core

package explorer

// Kind is the filesystem kind of an entry.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// Class tags an entry as a decision file or one of its test fixtures.
type Class int

const (
	ClassDecision Class = iota
	ClassFixture
)

func (c Class) String() string {
	if c == ClassFixture {
		return "fixture"
	}
	return "decision"
}

// Entry references one filesystem location shown in the tree.
// Entries are rebuilt on every scan and never cached.
type Entry struct {
	Path  string // Absolute path
	Name  string // Base name, used for display and ordering
	Kind  Kind
	Class Class
}

// IsDecision reports whether the entry is a root decision entry.
func (e Entry) IsDecision() bool {
	return e.Class == ClassDecision
}

// Node is a decision entry together with its fixtures.
type Node struct {
	Entry
	Children    []Entry
	HasFixtures bool // false when the fixture directory is absent or unreadable
}
