package stashfs

import "time"

// Kind tags the two node variants of the tree
type Kind uint8

const (
	KindDir Kind = iota
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// NodeInfo provides read-only access to node information for external consumers
type NodeInfo interface {
	// Name returns the node's name (last path component)
	Name() string

	// NodeID returns the session-unique node identifier
	NodeID() uint64

	// Path returns the absolute path to the node
	Path() string

	Kind() Kind

	CreatedAt() time.Time

	// Size returns the content length for files and the number of children
	// for directories
	Size() int
}
