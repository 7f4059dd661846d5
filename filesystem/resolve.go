package filesystem

import (
	"strings"

	"github.com/brettbedarf/stashfs"
)

const parentSegment = ".."

// Resolve walks path from start, or from root when path is absolute.
//
//   - "/" is the root itself
//   - the path is split on "/" after trimming outer slashes; empty segments are skipped
//   - ".." moves to the parent and is a no-op at the root
//   - any other segment must name a child of the current node
//
// Resolution never partially succeeds: a missing segment fails the whole
// path with a *stashfs.PathError wrapping [stashfs.ErrPathNotFound].
func Resolve(root, start *Node, path string) (*Node, error) {
	if node, ok := walk(root, start, path); ok {
		return node, nil
	}
	return nil, &stashfs.PathError{Op: "resolve", Path: path, Err: stashfs.ErrPathNotFound}
}

func walk(root, start *Node, path string) (*Node, bool) {
	if path == "/" {
		return root, true
	}
	cur := start
	if strings.HasPrefix(path, "/") {
		cur = root
	}
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		switch seg {
		case "":
		case parentSegment:
			if cur.parent != nil {
				cur = cur.parent
			}
		default:
			child, ok := cur.Child(seg)
			if !ok {
				return nil, false
			}
			cur = child
		}
	}
	return cur, true
}

// splitParent splits path into the path of the parent directory and the
// final name. An absolute path keeps its leading "/" on the parent so a
// top-level name resolves against the root; a bare name has no parent path.
func splitParent(path string) (parent, name string) {
	trimmed := strings.Trim(path, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		parent, name = trimmed[:i], trimmed[i+1:]
	} else {
		name = trimmed
	}
	if strings.HasPrefix(path, "/") {
		parent = "/" + parent
	}
	return parent, name
}
