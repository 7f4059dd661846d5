package store

import (
	"bytes"

	"github.com/brettbedarf/stashfs"
	"github.com/puzpuzpuz/xsync/v4"
)

var _ stashfs.Store = (*Memory)(nil)

// Memory is a process-local store. Values are copied on the way in and out.
type Memory struct {
	entries *xsync.Map[string, []byte]
}

func NewMemory() *Memory {
	return &Memory{entries: xsync.NewMap[string, []byte]()}
}

func (m *Memory) Load(key string) ([]byte, bool, error) {
	v, ok := m.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (m *Memory) Save(key string, value []byte) error {
	m.entries.Store(key, bytes.Clone(value))
	return nil
}

func (m *Memory) Delete(key string) {
	m.entries.Delete(key)
}

func (m *Memory) Len() int {
	return m.entries.Size()
}
