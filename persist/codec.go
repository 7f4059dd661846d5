package persist

import (
	"time"

	"github.com/brettbedarf/stashfs"
	"github.com/brettbedarf/stashfs/filesystem"
	"github.com/brettbedarf/stashfs/internal/util"
)

// LoadStatus describes where a loaded tree came from
type LoadStatus int

const (
	// LoadFresh means no state was stored and a new tree was created
	LoadFresh LoadStatus = iota
	// LoadDecrypted means the stored state was opened with the cipher
	LoadDecrypted
	// LoadLegacy means the stored state was plain, unencrypted JSON
	LoadLegacy
	// LoadRecovered means the stored state was unusable and a new tree was created
	LoadRecovered
)

func (s LoadStatus) String() string {
	switch s {
	case LoadFresh:
		return "fresh"
	case LoadDecrypted:
		return "decrypted"
	case LoadLegacy:
		return "legacy"
	case LoadRecovered:
		return "recovered"
	default:
		return "unknown"
	}
}

// LoadResult reports the outcome of [Codec.Load]. Err holds the failure that
// was recovered from, if any.
type LoadResult struct {
	Status LoadStatus
	Err    error
}

// Codec saves and loads a filesystem under a single store key
type Codec struct {
	cipher stashfs.Cipher
	store  stashfs.Store
	key    string
	now    func() time.Time
}

type CodecOption func(*Codec)

// WithNow sets the clock used for timestamps missing from a loaded document
func WithNow(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

func NewCodec(cipher stashfs.Cipher, store stashfs.Store, key string, opts ...CodecOption) *Codec {
	c := &Codec{
		cipher: cipher,
		store:  store,
		key:    key,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Save seals the whole tree and writes it to the store. Cipher and store
// failures are returned unchanged.
func (c *Codec) Save(fs *filesystem.FileSystem) error {
	logger := util.GetLogger("Codec.Save")

	var data []byte
	err := fs.View(func(root *filesystem.Node) error {
		var err error
		data, err = Marshal(root)
		return err
	})
	if err != nil {
		return err
	}

	token, err := c.cipher.Encrypt(data)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encrypt state")
		return err
	}
	if err := c.store.Save(c.key, token); err != nil {
		logger.Error().Err(err).Str("key", c.key).Msg("Failed to store state")
		return err
	}

	logger.Debug().Str("key", c.key).Int("plain", len(data)).Int("sealed", len(token)).Msg("Saved state")
	return nil
}

// Load restores the stored tree. It never fails: a missing entry yields an
// empty tree, bytes the cipher rejects are tried as plain JSON, and anything
// unreadable is replaced by an empty tree. opts configure the returned
// filesystem.
func (c *Codec) Load(opts ...filesystem.Option) (*filesystem.FileSystem, LoadResult) {
	logger := util.GetLogger("Codec.Load")

	raw, ok, err := c.store.Load(c.key)
	if err != nil {
		logger.Warn().Err(err).Str("key", c.key).Msg("Failed to read stored state, starting empty")
		return filesystem.New(opts...), LoadResult{Status: LoadRecovered, Err: err}
	}
	if !ok {
		logger.Info().Str("key", c.key).Msg("No stored state, starting empty")
		return filesystem.New(opts...), LoadResult{Status: LoadFresh}
	}

	status := LoadDecrypted
	data, err := c.cipher.Decrypt(raw)
	if err != nil {
		logger.Debug().Err(err).Msg("Stored state did not decrypt, trying plain JSON")
		status = LoadLegacy
		data = raw
	}

	root, err := unmarshalAt(data, c.now())
	if err != nil {
		logger.Warn().Err(err).Str("key", c.key).Msg("Stored state is unreadable, starting empty")
		return filesystem.New(opts...), LoadResult{Status: LoadRecovered, Err: err}
	}
	fs, err := filesystem.NewFromRoot(root, opts...)
	if err != nil {
		logger.Warn().Err(err).Msg("Stored tree was rejected, starting empty")
		return filesystem.New(opts...), LoadResult{Status: LoadRecovered, Err: err}
	}

	logger.Info().Str("status", status.String()).Msg("Loaded state")
	return fs, LoadResult{Status: status}
}
