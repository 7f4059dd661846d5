package fusefs

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"

	"github.com/brettbedarf/stashfs"
	"github.com/brettbedarf/stashfs/config"
	"github.com/brettbedarf/stashfs/filesystem"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkFUSEAvailable skips the test when the host cannot mount FUSE
func checkFUSEAvailable(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skipf("skipping test: FUSE tests not supported on %s", runtime.GOOS)
	}
	if _, err := os.Stat("/dev/fuse"); os.IsNotExist(err) {
		t.Skip("skipping test: FUSE is not available (/dev/fuse not found)")
	}
}

func newTree(t *testing.T) *filesystem.FileSystem {
	t.Helper()
	tree := filesystem.New()
	_, err := tree.MakeDirectory("docs")
	require.NoError(t, err)
	_, err = tree.MakeFile("docs/readme.md")
	require.NoError(t, err)
	require.NoError(t, tree.WriteFile("docs/readme.md", []byte("# stash\n")))
	_, err = tree.MakeFile("top.txt")
	require.NoError(t, err)
	return tree
}

func rootNode(tree *filesystem.FileSystem) *node {
	return &node{tree: tree, path: filesystem.RootName}
}

func readAll(t *testing.T, h fs.FileHandle, chunk int) []byte {
	t.Helper()
	reader := h.(fs.FileReader)
	var out []byte
	buf := make([]byte, chunk)
	for off := int64(0); ; {
		res, errno := reader.Read(context.Background(), buf, off)
		require.Equal(t, fs.OK, errno)
		data, status := res.Bytes(buf)
		require.Equal(t, fuse.OK, status)
		if len(data) == 0 {
			return out
		}
		out = append(out, data...)
		off += int64(len(data))
	}
}

func TestNode_Getattr(t *testing.T) {
	t.Parallel()
	tree := newTree(t)

	var out fuse.AttrOut
	require.Equal(t, fs.OK, rootNode(tree).Getattr(context.Background(), nil, &out))
	assert.Equal(t, uint32(fuse.S_IFDIR|0o555), out.Mode)
	assert.Equal(t, uint64(1), out.Ino)

	file := &node{tree: tree, path: "/docs/readme.md"}
	require.Equal(t, fs.OK, file.Getattr(context.Background(), nil, &out))
	assert.Equal(t, uint32(fuse.S_IFREG|0o444), out.Mode)
	assert.Equal(t, uint64(len("# stash\n")), out.Size)

	gone := &node{tree: tree, path: "/nope"}
	assert.Equal(t, syscall.ENOENT, gone.Getattr(context.Background(), nil, &out))
}

func TestNode_Lookup(t *testing.T) {
	t.Parallel()
	tree := newTree(t)
	root := rootNode(tree)

	var attr fuse.Attr
	docs, errno := root.lookup("docs", &attr)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, "/docs", docs.path)
	assert.Equal(t, uint32(fuse.S_IFDIR), attr.Mode&syscall.S_IFMT)

	readme, errno := docs.lookup("readme.md", &attr)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, "/docs/readme.md", readme.path)
	assert.Equal(t, uint32(fuse.S_IFREG), attr.Mode&syscall.S_IFMT)

	_, errno = root.lookup("missing", &attr)
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestNode_Readdir(t *testing.T) {
	t.Parallel()
	tree := newTree(t)

	stream, errno := rootNode(tree).Readdir(context.Background())
	require.Equal(t, fs.OK, errno)
	defer stream.Close()

	var names []string
	var modes []uint32
	for stream.HasNext() {
		e, errno := stream.Next()
		require.Equal(t, fs.OK, errno)
		names = append(names, e.Name)
		modes = append(modes, e.Mode)
	}
	assert.Equal(t, []string{"docs", "top.txt"}, names)
	assert.Equal(t, []uint32{fuse.S_IFDIR, fuse.S_IFREG}, modes)

	file := &node{tree: tree, path: "/top.txt"}
	_, errno = file.Readdir(context.Background())
	assert.Equal(t, syscall.ENOTDIR, errno)
}

func TestNode_OpenRead(t *testing.T) {
	t.Parallel()
	tree := newTree(t)
	file := &node{tree: tree, path: "/docs/readme.md"}

	h, flags, errno := file.Open(context.Background(), syscall.O_RDONLY)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, uint32(fuse.FOPEN_DIRECT_IO), flags)

	// later writes do not affect an open handle
	require.NoError(t, tree.WriteFile("/docs/readme.md", []byte("changed")))
	assert.Equal(t, []byte("# stash\n"), readAll(t, h, 3))

	h, _, errno = file.Open(context.Background(), syscall.O_RDONLY)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, []byte("changed"), readAll(t, h, 64))
}

func TestNode_OpenRejects(t *testing.T) {
	t.Parallel()
	tree := newTree(t)

	tests := []struct {
		name  string
		path  string
		flags uint32
		want  syscall.Errno
	}{
		{"WriteOnly", "/top.txt", syscall.O_WRONLY, syscall.EROFS},
		{"ReadWrite", "/top.txt", syscall.O_RDWR, syscall.EROFS},
		{"Directory", "/docs", syscall.O_RDONLY, syscall.EISDIR},
		{"Missing", "/gone.txt", syscall.O_RDONLY, syscall.ENOENT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, errno := (&node{tree: tree, path: tt.path}).Open(context.Background(), tt.flags)
			assert.Equal(t, tt.want, errno)
		})
	}
}

func TestToErrno(t *testing.T) {
	t.Parallel()
	pathErr := func(err error) error {
		return &stashfs.PathError{Op: "stat", Path: "/x", Err: err}
	}

	assert.Equal(t, syscall.ENOENT, toErrno(pathErr(stashfs.ErrPathNotFound)))
	assert.Equal(t, syscall.ENOENT, toErrno(pathErr(stashfs.ErrNotFound)))
	assert.Equal(t, syscall.ENOTDIR, toErrno(pathErr(stashfs.ErrNotADirectory)))
	assert.Equal(t, syscall.EISDIR, toErrno(pathErr(stashfs.ErrNotAFile)))
	assert.Equal(t, syscall.EIO, toErrno(os.ErrClosed))
}

func TestServer_MountErrors(t *testing.T) {
	t.Parallel()
	s := New(filesystem.New(), config.MountOptions{})

	require.ErrorIs(t, s.Mount(""), ErrInvalidMountPoint)
	assert.NoError(t, s.Unmount(), "unmount without mount is a no-op")
}

func TestServer_Mount(t *testing.T) {
	checkFUSEAvailable(t)
	tree := newTree(t)
	mnt := t.TempDir()
	s := New(tree, config.MountOptions{FsName: "stashfs", Name: "stashfs"})

	if err := s.Mount(mnt); err != nil {
		t.Skipf("skipping test: mount failed (%v)", err)
	}
	defer func() {
		assert.NoError(t, s.Unmount())
	}()

	entries, err := os.ReadDir(mnt)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "docs", entries[0].Name())
	assert.True(t, entries[0].IsDir())

	data, err := os.ReadFile(filepath.Join(mnt, "docs", "readme.md"))
	require.NoError(t, err)
	assert.Equal(t, "# stash\n", string(data))

	// new nodes are visible without remounting
	_, err = tree.MakeDirectory("/later")
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(mnt, "later"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	err = os.WriteFile(filepath.Join(mnt, "top.txt"), []byte("x"), 0o644)
	assert.Error(t, err, "the mount is read-only")
}
