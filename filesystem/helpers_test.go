package filesystem

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testClock is a manually advanced clock
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

func newTestFS(t *testing.T) (*FileSystem, *testClock) {
	t.Helper()
	clock := newTestClock()
	return New(WithClock(clock.Now)), clock
}

// mkdirs creates each path in order, failing the test on error
func mkdirs(t *testing.T, fs *FileSystem, paths ...string) {
	t.Helper()
	for _, p := range paths {
		_, err := fs.MakeDirectory(p)
		require.NoError(t, err, "mkdir %s", p)
	}
}

func cwdPath(fs *FileSystem) string {
	return fs.Cwd().Path()
}
