package persist

import (
	"sync"
	"testing"
	"time"

	"github.com/brettbedarf/stashfs"
	"github.com/brettbedarf/stashfs/filesystem"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: epoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sampleFS builds a small tree with visits and file content:
//
//	/docs/notes.txt  "hello"
//	/docs/drafts/
//	/media/
//	/empty.bin
func sampleFS(t *testing.T) *filesystem.FileSystem {
	t.Helper()
	clock := newTestClock()
	fs := filesystem.New(filesystem.WithClock(clock.Now))

	steps := []func() error{
		func() error { _, err := fs.MakeDirectory("docs"); return err },
		func() error { _, err := fs.MakeDirectory("/media"); return err },
		func() error { _, err := fs.MakeFile("empty.bin"); return err },
		func() error { _, err := fs.MakeFile("docs/notes.txt"); return err },
		func() error { return fs.WriteFile("/docs/notes.txt", []byte("hello")) },
		func() error { _, err := fs.MakeDirectory("docs/drafts"); return err },
		func() error { _, err := fs.ChangeDirectory("docs"); return err },
		func() error { _, err := fs.ChangeDirectory("drafts"); return err },
		func() error { _, err := fs.ChangeDirectory("/docs"); return err },
	}
	for i, step := range steps {
		clock.Advance(1500 * time.Millisecond)
		require.NoError(t, step(), "step %d", i)
	}
	return fs
}

func marshalFS(t *testing.T, fs *filesystem.FileSystem) []byte {
	t.Helper()
	var data []byte
	require.NoError(t, fs.View(func(root *filesystem.Node) error {
		var err error
		data, err = Marshal(root)
		return err
	}))
	return data
}

type nodeSnapshot struct {
	Path          string
	Kind          string
	Size          int
	Content       string
	CreatedAt     time.Time
	VisitCount    uint64
	LastVisitedAt time.Time
}

// snapshot flattens fs in pre-order, dropping ids and normalizing times
func snapshot(t *testing.T, fs *filesystem.FileSystem) []nodeSnapshot {
	t.Helper()
	norm := func(ts time.Time) time.Time {
		if ts.IsZero() {
			return ts
		}
		return ts.UTC().Round(time.Millisecond)
	}

	var out []nodeSnapshot
	var visit func(e filesystem.Entry)
	visit = func(e filesystem.Entry) {
		s := nodeSnapshot{
			Path:          e.Path,
			Kind:          e.Kind.String(),
			Size:          e.Size,
			CreatedAt:     norm(e.CreatedAt),
			VisitCount:    e.VisitCount,
			LastVisitedAt: norm(e.LastVisitedAt),
		}
		if e.Kind == stashfs.KindFile {
			content, err := fs.ReadFile(e.Path)
			require.NoError(t, err)
			s.Content = string(content)
			out = append(out, s)
			return
		}
		out = append(out, s)
		children, err := fs.List(e.Path)
		require.NoError(t, err)
		for _, child := range children {
			visit(child)
		}
	}

	root, err := fs.Stat("/")
	require.NoError(t, err)
	visit(root)
	return out
}
