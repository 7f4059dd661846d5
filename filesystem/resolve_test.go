package filesystem

import (
	"math/rand/v2"
	"testing"

	"github.com/brettbedarf/stashfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTree returns root with /this/is/a/test and /this/notes.txt
func buildTree(t *testing.T) (root, this, is, a, test, notes *Node) {
	t.Helper()
	root = NewDirectory(RootName, epoch)
	this = NewDirectory("this", epoch)
	is = NewDirectory("is", epoch)
	a = NewDirectory("a", epoch)
	test = NewDirectory("test", epoch)
	notes = NewFile("notes.txt", []byte("n"), epoch)
	require.NoError(t, root.AddChild(this))
	require.NoError(t, this.AddChild(is))
	require.NoError(t, this.AddChild(notes))
	require.NoError(t, is.AddChild(a))
	require.NoError(t, a.AddChild(test))
	return
}

func TestResolve(t *testing.T) {
	t.Parallel()

	root, this, is, a, test, notes := buildTree(t)

	tests := []struct {
		name  string
		start *Node
		path  string
		want  *Node
	}{
		{"Root", a, "/", root},
		{"Absolute", test, "/this/is", is},
		{"Relative", this, "is/a", a},
		{"Parent", a, "..", is},
		{"ParentAtRoot", root, "..", root},
		{"ParentChainBeyondRoot", test, "../../../../../..", root},
		{"ParentThenChild", a, "../../notes.txt", notes},
		{"DoubleSlash", root, "/this/is//a", a},
		{"TrailingSlash", root, "this/is/", is},
		{"LeadingAndTrailing", test, "//this//", this},
		{"EmptyIsStart", is, "", is},
		{"AbsoluteIgnoresStart", test, "/this", this},
		{"File", root, "/this/notes.txt", notes},
		{"Mixed", root, "this/is/../is/a/test/..", a},
		{"FileThenParent", root, "/this/notes.txt/..", this},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Resolve(root, tt.start, tt.path)
			require.NoError(t, err)
			assert.Same(t, tt.want, got)
		})
	}
}

func TestResolve_NotFound(t *testing.T) {
	t.Parallel()

	root, this, _, _, _, _ := buildTree(t)

	tests := []struct {
		name  string
		start *Node
		path  string
	}{
		{"MissingChild", root, "missing"},
		{"MissingIntermediate", root, "/this/nope/a"},
		{"ThroughFile", root, "/this/notes.txt/x"},
		{"RelativeFromWrongStart", this, "this"},
		{"CaseSensitive", root, "/This"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Resolve(root, tt.start, tt.path)
			assert.Nil(t, got)
			require.ErrorIs(t, err, stashfs.ErrPathNotFound)

			var pathErr *stashfs.PathError
			require.ErrorAs(t, err, &pathErr)
			assert.Equal(t, tt.path, pathErr.Path, "error must name the full original path")
		})
	}
}

// TestResolve_MatchesManualWalk resolves random paths of existing names and
// ".." and compares them with walking the tree by hand.
func TestResolve_MatchesManualWalk(t *testing.T) {
	t.Parallel()

	root, _, _, _, test, _ := buildTree(t)
	rng := rand.New(rand.NewPCG(1, 2))

	for range 500 {
		start := root
		if rng.IntN(2) == 0 {
			start = test
		}
		expected := start
		var segs []string
		for range rng.IntN(8) {
			dirs := make([]*Node, 0)
			for _, c := range expected.Children() {
				if c.IsDir() {
					dirs = append(dirs, c)
				}
			}
			if len(dirs) == 0 || rng.IntN(3) == 0 {
				segs = append(segs, "..")
				if expected.Parent() != nil {
					expected = expected.Parent()
				}
				continue
			}
			next := dirs[rng.IntN(len(dirs))]
			segs = append(segs, next.Name())
			expected = next
		}
		path := ""
		for i, s := range segs {
			if i > 0 {
				path += "/"
			}
			path += s
		}

		got, err := Resolve(root, start, path)
		require.NoError(t, err, "path %q", path)
		assert.Same(t, expected, got, "path %q from %s", path, start.Path())
	}
}

func TestSplitParent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path, parent, name string
	}{
		{"x", "", "x"},
		{"x/", "", "x"},
		{"/x", "/", "x"},
		{"a/b/c", "a/b", "c"},
		{"/a/b/c", "/a/b", "c"},
		{"a//b", "a/", "b"},
		{"../x", "..", "x"},
		{"/", "/", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		parent, name := splitParent(tt.path)
		assert.Equal(t, tt.parent, parent, "parent of %q", tt.path)
		assert.Equal(t, tt.name, name, "name of %q", tt.path)
	}
}
