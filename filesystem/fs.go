package filesystem

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brettbedarf/stashfs"
	"github.com/brettbedarf/stashfs/internal/util"
)

// FileSystem is an in-memory tree with a current directory cursor.
//
// Every operation takes the filesystem lock, exclusive for mutations and
// navigation, shared for reads, so a concurrent reader such as the FUSE view
// always observes a consistent tree.
type FileSystem struct {
	mu         sync.RWMutex
	root       *Node         // Root of node tree
	cwd        *Node         // Current directory; always a directory reachable from root
	lastNodeID atomic.Uint64 // Last NodeID assigned; incremented when new nodes are created
	now        func() time.Time
}

// Entry is a snapshot of a node's metadata
type Entry struct {
	ID            uint64
	Name          string
	Path          string
	Kind          stashfs.Kind
	Size          int
	CreatedAt     time.Time
	VisitCount    uint64
	LastVisitedAt time.Time
}

type Option func(*FileSystem)

// WithClock replaces time.Now as the source of creation and visit times
func WithClock(now func() time.Time) Option {
	return func(fs *FileSystem) {
		fs.now = now
	}
}

// New creates a filesystem holding only an empty root directory
func New(opts ...Option) *FileSystem {
	fs := newFS(opts)
	root := NewDirectory(RootName, fs.now())
	fs.adopt(root)
	return fs
}

// NewFromRoot creates a filesystem around an already built tree, e.g. one
// restored from persisted state. Node ids are (re)assigned in pre-order and
// the current directory starts at root.
func NewFromRoot(root *Node, opts ...Option) (*FileSystem, error) {
	if root == nil || !root.IsDir() {
		return nil, fmt.Errorf("root must be a directory: %w", stashfs.ErrNotADirectory)
	}
	if root.parent != nil {
		return nil, fmt.Errorf("root %q must not have a parent", root.name)
	}
	fs := newFS(opts)
	fs.adopt(root)
	return fs, nil
}

func newFS(opts []Option) *FileSystem {
	fs := &FileSystem{now: time.Now}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

func (fs *FileSystem) adopt(root *Node) {
	root.walk(func(n *Node) bool {
		n.id = fs.lastNodeID.Add(1)
		return true
	})
	fs.root = root
	fs.cwd = root
}

// Root returns the root directory
func (fs *FileSystem) Root() stashfs.NodeInfo {
	return fs.root
}

// Cwd returns the current directory
func (fs *FileSystem) Cwd() stashfs.NodeInfo {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.cwd
}

// View runs fn with the root under the shared lock. fn must not retain
// nodes or call back into fs.
func (fs *FileSystem) View(fn func(root *Node) error) error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fn(fs.root)
}

// Resolve resolves path from the current directory
func (fs *FileSystem) Resolve(path string) (stashfs.NodeInfo, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return Resolve(fs.root, fs.cwd, path)
}

// Stat returns a snapshot of the node at path
func (fs *FileSystem) Stat(path string) (Entry, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	node, ok := walk(fs.root, fs.cwd, path)
	if !ok {
		return Entry{}, &stashfs.PathError{Op: "stat", Path: path, Err: stashfs.ErrPathNotFound}
	}
	return newEntry(node), nil
}

// MakeDirectory creates an empty directory at path.
// The parent must already exist; intermediate directories are not created.
func (fs *FileSystem) MakeDirectory(path string) (stashfs.NodeInfo, error) {
	logger := util.GetLogger("FS.MakeDirectory")

	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, name, err := fs.createTarget("mkdir", path)
	if err != nil {
		return nil, err
	}
	node := NewDirectory(name, fs.now())
	fs.attach(parent, node)
	logger.Debug().Str("path", node.Path()).Uint64("nodeID", node.id).Msg("Created directory")
	return node, nil
}

// MakeFile creates an empty file at path
func (fs *FileSystem) MakeFile(path string) (stashfs.NodeInfo, error) {
	logger := util.GetLogger("FS.MakeFile")

	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, name, err := fs.createTarget("mkfile", path)
	if err != nil {
		return nil, err
	}
	node := NewFile(name, nil, fs.now())
	fs.attach(parent, node)
	logger.Debug().Str("path", node.Path()).Uint64("nodeID", node.id).Msg("Created file")
	return node, nil
}

// createTarget locates the directory a new node named by path is created in.
// A bare name always targets the current directory without resolution.
func (fs *FileSystem) createTarget(op, path string) (*Node, string, error) {
	parentPath, name := splitParent(path)
	if name == "" || name == parentSegment {
		return nil, "", &stashfs.PathError{Op: op, Path: path, Err: stashfs.ErrInvalidName}
	}

	parent := fs.cwd
	if parentPath != "" {
		var ok bool
		if parent, ok = walk(fs.root, fs.cwd, parentPath); !ok {
			return nil, "", &stashfs.PathError{Op: op, Path: path, Err: stashfs.ErrPathNotFound}
		}
	}
	if !parent.IsDir() {
		return nil, "", &stashfs.PathError{Op: op, Path: parentPath, Err: stashfs.ErrNotADirectory}
	}
	if _, exists := parent.children[name]; exists {
		return nil, "", &stashfs.PathError{Op: op, Path: path, Err: stashfs.ErrAlreadyExists}
	}
	return parent, name, nil
}

// attach links a freshly created node; the name is known to be free
func (fs *FileSystem) attach(parent, node *Node) {
	node.id = fs.lastNodeID.Add(1)
	parent.children[node.name] = node
	parent.order = append(parent.order, node.name)
	node.parent = parent
}

// RemoveDirectory removes the named directory and its whole subtree from
// the current directory. name is never resolved as a path.
func (fs *FileSystem) RemoveDirectory(name string) error {
	return fs.remove("rmdir", name, stashfs.KindDir)
}

// RemoveFile removes the named file from the current directory.
// name is never resolved as a path.
func (fs *FileSystem) RemoveFile(name string) error {
	return fs.remove("rmfile", name, stashfs.KindFile)
}

func (fs *FileSystem) remove(op, name string, kind stashfs.Kind) error {
	logger := util.GetLogger("FS.Remove")

	fs.mu.Lock()
	defer fs.mu.Unlock()

	child, ok := fs.cwd.Child(name)
	if !ok {
		return &stashfs.PathError{Op: op, Path: name, Err: stashfs.ErrNotFound}
	}
	if child.kind != kind {
		err := stashfs.ErrNotAFile
		if kind == stashfs.KindDir {
			err = stashfs.ErrNotADirectory
		}
		return &stashfs.PathError{Op: op, Path: name, Err: err}
	}
	fs.cwd.RemoveChild(name)
	logger.Debug().Str("op", op).Str("path", child.Path()).Msg("Removed node")
	return nil
}

// List returns the children of the directory at path in insertion order.
// An empty path lists the current directory.
func (fs *FileSystem) List(path string) ([]Entry, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	dir, ok := walk(fs.root, fs.cwd, path)
	if !ok {
		return nil, &stashfs.PathError{Op: "ls", Path: path, Err: stashfs.ErrPathNotFound}
	}
	if !dir.IsDir() {
		return nil, &stashfs.PathError{Op: "ls", Path: path, Err: stashfs.ErrNotADirectory}
	}
	entries := make([]Entry, 0, len(dir.order))
	for _, child := range dir.Children() {
		entries = append(entries, newEntry(child))
	}
	return entries, nil
}

// ChangeDirectory moves the current directory to path and records a visit
func (fs *FileSystem) ChangeDirectory(path string) (stashfs.NodeInfo, error) {
	logger := util.GetLogger("FS.ChangeDirectory")

	fs.mu.Lock()
	defer fs.mu.Unlock()

	target, ok := walk(fs.root, fs.cwd, path)
	if !ok {
		return nil, &stashfs.PathError{Op: "cd", Path: path, Err: stashfs.ErrPathNotFound}
	}
	if !target.IsDir() {
		return nil, &stashfs.PathError{Op: "cd", Path: path, Err: stashfs.ErrNotADirectory}
	}
	fs.cwd = target
	target.visit(fs.now())
	logger.Trace().Str("cwd", target.Path()).Uint64("visits", target.visitCount).Msg("Changed directory")
	return target, nil
}

// WriteFile replaces the content of the file at path
func (fs *FileSystem) WriteFile(path string, content []byte) error {
	logger := util.GetLogger("FS.WriteFile")

	fs.mu.Lock()
	defer fs.mu.Unlock()

	file, err := fs.fileAt("write", path)
	if err != nil {
		return err
	}
	file.setContent(content)
	logger.Debug().Str("path", file.Path()).Int("size", len(content)).Msg("Wrote file")
	return nil
}

// ReadFile returns a copy of the content of the file at path
func (fs *FileSystem) ReadFile(path string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	file, err := fs.fileAt("read", path)
	if err != nil {
		return nil, err
	}
	return file.Content(), nil
}

func (fs *FileSystem) fileAt(op, path string) (*Node, error) {
	node, ok := walk(fs.root, fs.cwd, path)
	if !ok {
		return nil, &stashfs.PathError{Op: op, Path: path, Err: stashfs.ErrPathNotFound}
	}
	if node.IsDir() {
		return nil, &stashfs.PathError{Op: op, Path: path, Err: stashfs.ErrNotAFile}
	}
	return node, nil
}

func newEntry(n *Node) Entry {
	return Entry{
		ID:            n.id,
		Name:          n.name,
		Path:          n.Path(),
		Kind:          n.kind,
		Size:          n.Size(),
		CreatedAt:     n.createdAt,
		VisitCount:    n.visitCount,
		LastVisitedAt: n.lastVisit,
	}
}
