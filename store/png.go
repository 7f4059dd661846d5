package store

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/brettbedarf/stashfs"
	"github.com/brettbedarf/stashfs/internal/util"
)

// maxKeywordLen is the PNG limit for text chunk keywords
const maxKeywordLen = 79

var _ stashfs.Store = (*PNG)(nil)

// PNG keeps values in the text metadata of a PNG image. The image pixels and
// every other chunk are left untouched.
type PNG struct {
	mu       sync.Mutex
	path     string
	compress bool
}

type PNGOption func(*PNG)

// WithCompression stores values in zTXt chunks instead of tEXt
func WithCompression(compress bool) PNGOption {
	return func(p *PNG) {
		p.compress = compress
	}
}

func NewPNG(path string, opts ...PNGOption) *PNG {
	p := &PNG{path: path}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PNG) Path() string {
	return p.path
}

// Load returns the text stored under key. A missing image or a missing
// keyword is reported as ok == false without error.
func (p *PNG) Load(key string) ([]byte, bool, error) {
	logger := util.GetLogger("PNG.Load")
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug().Str("path", p.path).Msg("Image does not exist")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read image: %w", err)
	}

	chunks, err := decodeChunks(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse %s: %w", p.path, err)
	}
	for _, c := range chunks {
		if kw, ok := textKeyword(c); !ok || kw != key {
			continue
		}
		value, err := textValue(c)
		if err != nil {
			return nil, false, fmt.Errorf("failed to decode %s chunk %q: %w", c.typ, key, err)
		}
		logger.Debug().Str("key", key).Str("chunk", c.typ).Int("size", len(value)).Msg("Loaded value")
		return value, true, nil
	}

	logger.Debug().Str("key", key).Msg("Key not present")
	return nil, false, nil
}

// Save replaces any text chunk under key with value. A missing image is
// created as a 1x1 cover image first.
func (p *PNG) Save(key string, value []byte) error {
	logger := util.GetLogger("PNG.Save")
	if err := validateText(key, value); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info().Str("path", p.path).Msg("Creating cover image")
		data, err = coverImage()
	}
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	chunks, err := decodeChunks(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", p.path, err)
	}
	text, err := newTextChunk(key, value, p.compress)
	if err != nil {
		return fmt.Errorf("failed to build text chunk: %w", err)
	}

	out := make([]chunk, 0, len(chunks)+1)
	for _, c := range chunks {
		if kw, ok := textKeyword(c); ok && kw == key {
			continue
		}
		if c.typ == typeIEND {
			out = append(out, text)
		}
		out = append(out, c)
	}

	var buf bytes.Buffer
	if err := encodeChunks(&buf, out); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	if err := writeFileAtomic(p.path, buf.Bytes()); err != nil {
		return err
	}

	logger.Debug().Str("key", key).Str("chunk", text.typ).Int("size", len(value)).Msg("Saved value")
	return nil
}

func validateText(key string, value []byte) error {
	if key == "" || len(key) > maxKeywordLen {
		return fmt.Errorf("invalid keyword %q: must be 1-%d bytes", key, maxKeywordLen)
	}
	if bytes.IndexByte([]byte(key), 0) >= 0 {
		return fmt.Errorf("invalid keyword %q: contains NUL", key)
	}
	if bytes.IndexByte(value, 0) >= 0 {
		return errors.New("value contains NUL")
	}
	return nil
}

func coverImage() ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeFileAtomic writes through a temp file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace image: %w", err)
	}
	return nil
}
