// Package session ties a filesystem to its sealed, persisted state and to an
// optional read-only FUSE mount.
package session

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brettbedarf/stashfs"
	"github.com/brettbedarf/stashfs/config"
	"github.com/brettbedarf/stashfs/filesystem"
	"github.com/brettbedarf/stashfs/internal/fusefs"
	"github.com/brettbedarf/stashfs/internal/util"
	"github.com/brettbedarf/stashfs/persist"
	"github.com/brettbedarf/stashfs/seal"
	"github.com/brettbedarf/stashfs/store"
)

// Session owns the filesystem for the lifetime of one program run
type Session struct {
	*filesystem.FileSystem
	id     uuid.UUID
	cfg    *config.Config
	codec  *persist.Codec
	server *fusefs.Server
	loaded persist.LoadResult
}

// Open derives the cipher from secret, opens the configured store and loads
// the persisted tree. Only configuration errors are returned; unreadable
// state yields an empty tree.
func Open(cfg *config.Config, secret string) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	salt, err := cfg.Salt()
	if err != nil {
		return nil, err
	}
	cipher, err := seal.NewFromPassword(secret, salt, cfg.KDFIterations)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return New(cfg, cipher, NewStore(cfg)), nil
}

// NewStore builds the store selected by cfg.StoreKind
func NewStore(cfg *config.Config) stashfs.Store {
	if cfg.StoreKind == config.MemoryStore {
		return store.NewMemory()
	}
	return store.NewPNG(cfg.ImagePath, store.WithCompression(cfg.CompressState))
}

// New loads the tree stored under cfg.StateKey using the given collaborators
func New(cfg *config.Config, cipher stashfs.Cipher, st stashfs.Store) *Session {
	s := &Session{
		id:    uuid.New(),
		cfg:   cfg,
		codec: persist.NewCodec(cipher, st, cfg.StateKey),
	}
	logger := s.logger("Open")

	s.FileSystem, s.loaded = s.codec.Load()
	s.server = fusefs.New(s.FileSystem, cfg.MountOptions)

	ev := logger.Info().Str("status", s.loaded.Status.String())
	if s.loaded.Err != nil {
		ev = ev.AnErr("recovered", s.loaded.Err)
	}
	ev.Msg("Session opened")
	return s
}

func (s *Session) logger(method string) zerolog.Logger {
	return util.GetLogger("Session."+method).With().Str("session", s.id.String()).Logger()
}

// ID identifies this session in logs
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Loaded reports how the tree was obtained when the session was opened
func (s *Session) Loaded() persist.LoadResult {
	return s.loaded
}

// QuickAccess ranks directories using the configured result size
func (s *Session) QuickAccess() []filesystem.Ranked {
	return s.FileSystem.QuickAccess(s.cfg.QuickAccessSize)
}

// Save persists the current tree
func (s *Session) Save() error {
	logger := s.logger("Save")
	if err := s.codec.Save(s.FileSystem); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	logger.Debug().Msg("State saved")
	return nil
}

// Serve mounts the read-only view of the tree at mountPoint
func (s *Session) Serve(mountPoint string) error {
	return s.server.Mount(mountPoint)
}

// ServeAsync mounts in the background; the channel yields the mount result
func (s *Session) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- s.Serve(mountPoint)
		close(done)
	}()

	return done
}

// Unmount cleanly unmounts the view if it is mounted
func (s *Session) Unmount() error {
	return s.server.Unmount()
}

// Close unmounts the view and saves the tree. The save is attempted even if
// unmounting fails.
func (s *Session) Close() error {
	logger := s.logger("Close")
	unmountErr := s.Unmount()
	if unmountErr != nil {
		logger.Error().Err(unmountErr).Msg("Failed to unmount filesystem")
	}
	if err := s.Save(); err != nil {
		return err
	}
	logger.Info().Msg("Session closed")
	return unmountErr
}
