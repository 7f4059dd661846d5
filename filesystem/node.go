package filesystem

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/brettbedarf/stashfs"
)

// RootName is the name carried by the root directory
const RootName = "/"

// Node is a directory or a file, tagged by kind.
// Directory fields are only meaningful for KindDir and content only for KindFile.
//
// The id, name, kind, createdAt and parent fields never change once a node is
// attached, so [stashfs.NodeInfo] methods are safe without locks. Everything
// else is guarded by the owning [FileSystem].
type Node struct {
	id        uint64
	kind      stashfs.Kind
	name      string
	parent    *Node // non-owning back-reference; nil for root
	createdAt time.Time

	children   map[string]*Node
	order      []string // child names in insertion order
	visitCount uint64
	lastVisit  time.Time

	content []byte
}

var _ stashfs.NodeInfo = (*Node)(nil)

// NewDirectory creates a detached, empty directory.
// Its visit time starts at createdAt.
func NewDirectory(name string, createdAt time.Time) *Node {
	return &Node{
		kind:      stashfs.KindDir,
		name:      name,
		createdAt: createdAt,
		children:  make(map[string]*Node),
		lastVisit: createdAt,
	}
}

// NewFile creates a detached file holding a private copy of content
func NewFile(name string, content []byte, createdAt time.Time) *Node {
	return &Node{
		kind:      stashfs.KindFile,
		name:      name,
		createdAt: createdAt,
		content:   cloneBytes(content),
	}
}

func (n *Node) Name() string { return n.name }

// NodeID returns the session-unique id; 0 until the node joins a [FileSystem]
func (n *Node) NodeID() uint64 { return n.id }

func (n *Node) Kind() stashfs.Kind { return n.kind }

func (n *Node) IsDir() bool { return n.kind == stashfs.KindDir }

func (n *Node) CreatedAt() time.Time { return n.createdAt }

// Parent returns the owning directory or nil for the root
func (n *Node) Parent() *Node { return n.parent }

// Path returns the absolute path to the node, "/" for the root.
// A removed node keeps reporting the path it had when it was detached.
func (n *Node) Path() string {
	if n.parent == nil {
		return RootName
	}
	var names []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		names = append(names, cur.name)
	}
	slices.Reverse(names)
	return "/" + strings.Join(names, "/")
}

// VisitCount returns how often the directory became the current directory
func (n *Node) VisitCount() uint64 { return n.visitCount }

func (n *Node) LastVisitedAt() time.Time { return n.lastVisit }

// SetVisits overwrites the visit bookkeeping, used when restoring state
func (n *Node) SetVisits(count uint64, at time.Time) {
	n.visitCount = count
	n.lastVisit = at
}

func (n *Node) visit(at time.Time) {
	n.visitCount++
	n.lastVisit = at
}

// Child returns the named child. Files never have children.
func (n *Node) Child(name string) (*Node, bool) {
	if n.kind != stashfs.KindDir {
		return nil, false
	}
	child, ok := n.children[name]
	return child, ok
}

// Children returns the children in insertion order in a new slice
func (n *Node) Children() []*Node {
	children := make([]*Node, 0, len(n.order))
	for _, name := range n.order {
		children = append(children, n.children[name])
	}
	return children
}

// AddChild attaches child under n and sets the child's parent to n
func (n *Node) AddChild(child *Node) error {
	if n.kind != stashfs.KindDir {
		return fmt.Errorf("add %q to %q: %w", child.name, n.name, stashfs.ErrNotADirectory)
	}
	if _, exists := n.children[child.name]; exists {
		return fmt.Errorf("add %q to %q: %w", child.name, n.name, stashfs.ErrAlreadyExists)
	}
	n.children[child.name] = child
	n.order = append(n.order, child.name)
	child.parent = n
	return nil
}

// RemoveChild detaches the named child, dropping the only owning reference
// to its subtree
func (n *Node) RemoveChild(name string) (*Node, bool) {
	child, ok := n.Child(name)
	if !ok {
		return nil, false
	}
	delete(n.children, name)
	if i := slices.Index(n.order, name); i >= 0 {
		n.order = slices.Delete(n.order, i, i+1)
	}
	return child, true
}

// Content returns a copy of the file's content, never nil
func (n *Node) Content() []byte {
	return cloneBytes(n.content)
}

// Size returns the content length of a file or the child count of a directory
func (n *Node) Size() int {
	if n.kind == stashfs.KindDir {
		return len(n.children)
	}
	return len(n.content)
}

func (n *Node) setContent(content []byte) {
	n.content = cloneBytes(content)
}

func cloneBytes(b []byte) []byte {
	return append(make([]byte, 0, len(b)), b...)
}

// walk visits n and its descendants in pre-order, children in insertion order.
// Returning false from fn skips the node's subtree.
func (n *Node) walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, name := range n.order {
		n.children[name].walk(fn)
	}
}
