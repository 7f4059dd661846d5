// Package persist converts a filesystem tree to and from its JSON document and
// stores that document sealed behind a [stashfs.Cipher] in a [stashfs.Store].
//
// A directory is encoded as
//
//	{"name": "...", "visitCount": 0, "lastVisitedAt": 0.0, "createdAt": 0.0, "children": {...}}
//
// and a file as
//
//	{"name": "...", "createdAt": 0.0, "content": "<base64>"}
//
// A document carrying a "content" key is a file, anything else is a
// directory. Timestamps are seconds since the Unix epoch. Documents using the
// older visit_count, last_visit and when_created keys are still accepted.
package persist

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/brettbedarf/stashfs"
	"github.com/brettbedarf/stashfs/filesystem"
	"github.com/brettbedarf/stashfs/internal/util"
)

type document struct {
	Name          *string   `json:"name,omitempty"`
	VisitCount    *uint64   `json:"visitCount,omitempty"`
	LastVisitedAt *float64  `json:"lastVisitedAt,omitempty"`
	CreatedAt     *float64  `json:"createdAt,omitempty"`
	Children      *children `json:"children,omitempty"`
	Content       *string   `json:"content,omitempty"`

	// Older key names, read only
	LegacyVisitCount *uint64  `json:"visit_count,omitempty"`
	LegacyLastVisit  *float64 `json:"last_visit,omitempty"`
	LegacyCreated    *float64 `json:"when_created,omitempty"`
}

type namedDocument struct {
	key string
	doc *document
}

// children is a JSON object that keeps its key order
type children []namedDocument

func (c children) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, child := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(child.key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(child.doc)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *children) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("children must be an object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		doc := &document{}
		if err := dec.Decode(doc); err != nil {
			return err
		}
		*c = append(*c, namedDocument{key: key, doc: doc})
	}
	_, err = dec.Token()
	return err
}

// Marshal encodes the tree below root. The tree must not be mutated
// concurrently; use [filesystem.FileSystem.View] for a live filesystem.
func Marshal(root *filesystem.Node) ([]byte, error) {
	if root == nil {
		return nil, errors.New("nil root")
	}
	data, err := json.Marshal(toDocument(root))
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return data, nil
}

func toDocument(n *filesystem.Node) *document {
	doc := &document{
		Name:      util.Pointer(n.Name()),
		CreatedAt: util.Pointer(toUnix(n.CreatedAt())),
	}
	if !n.IsDir() {
		doc.Content = util.Pointer(base64.StdEncoding.EncodeToString(n.Content()))
		return doc
	}

	doc.VisitCount = util.Pointer(n.VisitCount())
	doc.LastVisitedAt = util.Pointer(toUnix(n.LastVisitedAt()))
	kids := n.Children()
	c := make(children, 0, len(kids))
	for _, child := range kids {
		c = append(c, namedDocument{key: child.Name(), doc: toDocument(child)})
	}
	doc.Children = &c
	return doc
}

// Unmarshal rebuilds a detached tree from data. Missing visit counters
// default to zero and missing timestamps to the current time. Every failure
// wraps [stashfs.ErrCorruptState].
func Unmarshal(data []byte) (*filesystem.Node, error) {
	return unmarshalAt(data, time.Now())
}

func unmarshalAt(data []byte, now time.Time) (*filesystem.Node, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", stashfs.ErrCorruptState, err)
	}
	if doc.Content != nil {
		return nil, fmt.Errorf("%w: root is a file", stashfs.ErrCorruptState)
	}
	return doc.toNode("", now)
}

// toNode converts d, whose parent sits at parentPath ("" for the root)
func (d *document) toNode(parentPath string, now time.Time) (*filesystem.Node, error) {
	if d.Name == nil {
		return nil, fmt.Errorf("%w: missing name below %q", stashfs.ErrCorruptState, displayPath(parentPath))
	}
	name := *d.Name
	isRoot := parentPath == ""
	if !isRoot && !validChildName(name) {
		return nil, fmt.Errorf("%w: invalid name %q below %q", stashfs.ErrCorruptState, name, displayPath(parentPath))
	}
	path := "/"
	if !isRoot {
		path = strings.TrimSuffix(parentPath, "/") + "/" + name
	}

	createdAt := fromUnix(firstOf(d.CreatedAt, d.LegacyCreated), now)

	if d.Content != nil {
		content, err := base64.StdEncoding.DecodeString(*d.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: content of %q: %v", stashfs.ErrCorruptState, path, err)
		}
		return filesystem.NewFile(name, content, createdAt), nil
	}

	dir := filesystem.NewDirectory(name, createdAt)
	visits := util.ValueOrDefault(firstOf(d.VisitCount, d.LegacyVisitCount), 0)
	dir.SetVisits(visits, fromUnix(firstOf(d.LastVisitedAt, d.LegacyLastVisit), now))

	if d.Children == nil {
		return dir, nil
	}
	for _, child := range *d.Children {
		node, err := child.doc.toNode(path, now)
		if err != nil {
			return nil, err
		}
		if err := dir.AddChild(node); err != nil {
			return nil, fmt.Errorf("%w: %v", stashfs.ErrCorruptState, err)
		}
	}
	return dir, nil
}

func validChildName(name string) bool {
	return name != "" && name != ".." && !strings.Contains(name, "/")
}

func displayPath(parentPath string) string {
	if parentPath == "" {
		return "(root)"
	}
	return parentPath
}

func firstOf[T any](ptrs ...*T) *T {
	for _, p := range ptrs {
		if p != nil {
			return p
		}
	}
	return nil
}

func toUnix(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// fromUnix converts seconds since the epoch, using def when sec is nil
func fromUnix(sec *float64, def time.Time) time.Time {
	if sec == nil {
		return def
	}
	whole, frac := math.Modf(*sec)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9)))
}
