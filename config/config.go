package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brettbedarf/stashfs/internal/util"
)

// CLI verbosity values accepted by [ConfigOverride.LogLvl]
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Store kinds
const (
	PNGStore    = "png"
	MemoryStore = "memory"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultLogLvl = util.InfoLevel

	// DefaultImagePath is the carrier image of the persisted state
	DefaultImagePath = "puppy_picture.png"

	// DefaultStateKey is the PNG text keyword the state is stored under
	DefaultStateKey = "vfs_state"

	DefaultStoreKind = PNGStore

	DefaultCompressState = false

	// DefaultKDFIterations is the PBKDF2 round count used to derive the state key
	DefaultKDFIterations = 100_000

	// DefaultKDFSalt is 16 zero bytes, hex encoded. The salt has to be stable
	// across sessions for the same password to open an earlier state.
	DefaultKDFSalt = "00000000000000000000000000000000"

	// DefaultQuickAccessSize is the number of directories offered by quick access
	DefaultQuickAccessSize = 5

	DefaultFsName = "stashfs"
	DefaultName   = "stashfs"
)

// Config contains runtime configuration values for a StashFS session.
type Config struct {
	MountOptions

	LogLvl          util.LogLevel // Internal log level (Default Info)
	ImagePath       string        // Path of the PNG holding the state (Default puppy_picture.png)
	StateKey        string        // Metadata key of the state (Default vfs_state)
	StoreKind       string        // "png" or "memory" (Default png)
	CompressState   bool          // Store the state in a compressed zTXt chunk (Default false)
	KDFIterations   int           // PBKDF2 iterations (Default 100000)
	KDFSalt         string        // Hex encoded PBKDF2 salt (Default 16 zero bytes)
	QuickAccessSize int           // Number of ranked directories shown by quick access (Default 5)
}

// Salt decodes [Config.KDFSalt]
func (c *Config) Salt() ([]byte, error) {
	salt, err := hex.DecodeString(c.KDFSalt)
	if err != nil {
		return nil, fmt.Errorf("invalid kdf salt: %w", err)
	}
	return salt, nil
}

// Validate reports the first invalid field
func (c *Config) Validate() error {
	switch c.StoreKind {
	case PNGStore:
		if c.ImagePath == "" {
			return fmt.Errorf("image path is required for the %s store", PNGStore)
		}
	case MemoryStore:
	default:
		return fmt.Errorf("unknown store kind: %q", c.StoreKind)
	}
	if c.StateKey == "" {
		return fmt.Errorf("state key must not be empty")
	}
	if c.KDFIterations < 1 {
		return fmt.Errorf("kdf iterations must be positive, got %d", c.KDFIterations)
	}
	if _, err := c.Salt(); err != nil {
		return err
	}
	if c.QuickAccessSize < 1 {
		return fmt.Errorf("quick access size must be positive, got %d", c.QuickAccessSize)
	}
	return nil
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	// LogLvl is a CLI verbosity between 1 (error) and 5 (trace), clamped
	LogLvl          *int    `yaml:"verbose,omitempty" json:"verbose,omitempty"`
	ImagePath       *string `yaml:"image_path,omitempty" json:"image_path,omitempty"`
	StateKey        *string `yaml:"state_key,omitempty" json:"state_key,omitempty"`
	StoreKind       *string `yaml:"store,omitempty" json:"store,omitempty"`
	CompressState   *bool   `yaml:"compress_state,omitempty" json:"compress_state,omitempty"`
	KDFIterations   *int    `yaml:"kdf_iterations,omitempty" json:"kdf_iterations,omitempty"`
	KDFSalt         *string `yaml:"kdf_salt,omitempty" json:"kdf_salt,omitempty"`
	QuickAccessSize *int    `yaml:"quick_access_size,omitempty" json:"quick_access_size,omitempty"`
	Debug           *bool   `yaml:"fuse_debug,omitempty" json:"fuse_debug,omitempty"`
	FsName          *string `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name            *string `yaml:"name,omitempty" json:"name,omitempty"`
}

// NewConfig creates a Config from defaults with override applied.
// A nil override yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		LogLvl:          DefaultLogLvl,
		ImagePath:       DefaultImagePath,
		StateKey:        DefaultStateKey,
		StoreKind:       DefaultStoreKind,
		CompressState:   DefaultCompressState,
		KDFIterations:   DefaultKDFIterations,
		KDFSalt:         DefaultKDFSalt,
		QuickAccessSize: DefaultQuickAccessSize,
	}
}

// verboseToLogLvl maps CLI verbosity (1 error .. 5 trace) to internal log levels
func verboseToLogLvl(verbose int) util.LogLevel {
	logLvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	return logLvls[util.Clamp(verbose, ErrorVerbose, TraceVerbose)-1]
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.LogLvl != nil {
		c.LogLvl = verboseToLogLvl(*override.LogLvl)
	}
	if override.ImagePath != nil {
		c.ImagePath = *override.ImagePath
	}
	if override.StateKey != nil {
		c.StateKey = *override.StateKey
	}
	if override.StoreKind != nil {
		c.StoreKind = *override.StoreKind
	}
	if override.CompressState != nil {
		c.CompressState = *override.CompressState
	}
	if override.KDFIterations != nil {
		c.KDFIterations = *override.KDFIterations
	}
	if override.KDFSalt != nil {
		c.KDFSalt = *override.KDFSalt
	}
	if override.QuickAccessSize != nil {
		c.QuickAccessSize = *override.QuickAccessSize
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfig(override), nil
}
