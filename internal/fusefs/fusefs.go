// Package fusefs exposes a [filesystem.FileSystem] as a read-only FUSE mount.
// Every kernel request is answered from a fresh snapshot of the tree, so
// changes made through the shell show up on the next lookup.
package fusefs

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/brettbedarf/stashfs"
	"github.com/brettbedarf/stashfs/config"
	"github.com/brettbedarf/stashfs/filesystem"
	"github.com/brettbedarf/stashfs/internal/util"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

var ErrInvalidMountPoint = errors.New("invalid mount point")

// Server mounts and serves one filesystem
type Server struct {
	tree   *filesystem.FileSystem
	opts   config.MountOptions
	mu     sync.Mutex
	server *fuse.Server
}

func New(tree *filesystem.FileSystem, opts config.MountOptions) *Server {
	return &Server{tree: tree, opts: opts}
}

// Mount mounts the tree at mountPoint and serves it in the background.
// It returns once the kernel has acknowledged the mount.
func (s *Server) Mount(mountPoint string) error {
	logger := util.GetLogger("Fuse.Mount")
	if mountPoint == "" {
		return ErrInvalidMountPoint
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("already mounted")
	}

	// the tree changes underneath the kernel, so nothing is cached
	var noCache time.Duration
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName:  s.opts.FsName,
			Name:    s.opts.Name,
			Debug:   s.opts.Debug,
			Logger:  util.NewLogLogger("FuseServer", util.TraceLevel),
			Options: []string{"ro"},
		},
		EntryTimeout:    &noCache,
		AttrTimeout:     &noCache,
		NegativeTimeout: &noCache,
		UID:             uint32(os.Getuid()),
		GID:             uint32(os.Getgid()),
	}

	server, err := fs.Mount(mountPoint, &node{tree: s.tree, path: filesystem.RootName}, opts)
	if err != nil {
		logger.Error().Err(err).Str("mountpoint", mountPoint).Msg("Failed to mount")
		return err
	}
	s.server = server
	logger.Info().Str("mountpoint", mountPoint).Msg("Mounted read-only view")
	return nil
}

// Wait blocks until the filesystem is unmounted
func (s *Server) Wait() {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server != nil {
		server.Wait()
	}
}

// Unmount cleanly unmounts the filesystem. It is a no-op when not mounted.
func (s *Server) Unmount() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	if err := s.server.Unmount(); err != nil {
		return err
	}
	s.server = nil
	return nil
}

// node is a directory or file of the tree, addressed by absolute path
type node struct {
	fs.Inode
	tree *filesystem.FileSystem
	path string
}

var _ = (fs.NodeLookuper)((*node)(nil))
var _ = (fs.NodeReaddirer)((*node)(nil))
var _ = (fs.NodeGetattrer)((*node)(nil))
var _ = (fs.NodeOpener)((*node)(nil))

func (n *node) childPath(name string) string {
	if n.path == filesystem.RootName {
		return "/" + name
	}
	return n.path + "/" + name
}

// Lookup implements fs.NodeLookuper.
func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child, errno := n.lookup(name, &out.Attr)
	if errno != fs.OK {
		return nil, errno
	}
	stable := fs.StableAttr{Mode: out.Attr.Mode & syscall.S_IFMT, Ino: out.Attr.Ino}
	return n.NewInode(ctx, child, stable), fs.OK
}

func (n *node) lookup(name string, out *fuse.Attr) (*node, syscall.Errno) {
	path := n.childPath(name)
	e, err := n.tree.Stat(path)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(e, out)
	return &node{tree: n.tree, path: path}, fs.OK
}

// Readdir implements fs.NodeReaddirer.
func (n *node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.tree.List(n.path)
	if err != nil {
		return nil, toErrno(err)
	}
	result := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		result = append(result, fuse.DirEntry{
			Name: e.Name,
			Ino:  e.ID,
			Mode: fileMode(e.Kind),
		})
	}
	return fs.NewListDirStream(result), fs.OK
}

// Getattr implements fs.NodeGetattrer.
func (n *node) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	e, err := n.tree.Stat(n.path)
	if err != nil {
		return toErrno(err)
	}
	fillAttr(e, &out.Attr)
	return fs.OK
}

// Open implements fs.NodeOpener. The handle serves the content as it was
// when the file was opened.
func (n *node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&syscall.O_ACCMODE != syscall.O_RDONLY {
		return nil, 0, syscall.EROFS
	}
	data, err := n.tree.ReadFile(n.path)
	if err != nil {
		return nil, 0, toErrno(err)
	}
	return &handle{data: data}, fuse.FOPEN_DIRECT_IO, fs.OK
}

type handle struct {
	data []byte
}

var _ = (fs.FileReader)((*handle)(nil))

func (h *handle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off >= int64(len(h.data)) {
		return fuse.ReadResultData(nil), fs.OK
	}
	end := min(off+int64(len(dest)), int64(len(h.data)))
	return fuse.ReadResultData(h.data[off:end]), fs.OK
}

func fileMode(kind stashfs.Kind) uint32 {
	if kind == stashfs.KindDir {
		return fuse.S_IFDIR
	}
	return fuse.S_IFREG
}

func fillAttr(e filesystem.Entry, out *fuse.Attr) {
	out.Ino = e.ID
	out.Owner = fuse.Owner{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}
	out.Blksize = 4096
	created := e.CreatedAt
	accessed := created

	if e.Kind == stashfs.KindDir {
		out.Mode = fuse.S_IFDIR | 0o555
		out.Nlink = 2
		accessed = e.LastVisitedAt
	} else {
		out.Mode = fuse.S_IFREG | 0o444
		out.Nlink = 1
		out.Size = uint64(e.Size)
		out.Blocks = (out.Size + 511) / 512
	}
	out.SetTimes(&accessed, &created, &created)
}

func toErrno(err error) syscall.Errno {
	switch {
	case errors.Is(err, stashfs.ErrPathNotFound), errors.Is(err, stashfs.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, stashfs.ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, stashfs.ErrNotAFile):
		return syscall.EISDIR
	default:
		return syscall.EIO
	}
}
