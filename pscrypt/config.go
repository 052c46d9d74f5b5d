package pscrypt

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/TheusHen/pscrypt/pscrypt/schedule"
)

// Duration is a time.Duration that decodes from strings such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "pscrypt: parse duration %q", text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config configures a Deriver and, for the worker program, a mix server.
type Config struct {
	// MaxThreads bounds the number of concurrent workers per derivation.
	MaxThreads int `toml:"max_threads"`
	// DisableParallel forces the sequential path.
	DisableParallel bool `toml:"disable_parallel"`
	// UnitTimeout bounds the mixing of a single block. Zero disables it.
	UnitTimeout Duration `toml:"unit_timeout"`

	Remote RemoteConfig `toml:"remote"`
	Server ServerConfig `toml:"server"`
}

// RemoteConfig selects a remote mix server.
type RemoteConfig struct {
	Addr   string `toml:"addr"`
	PeerID string `toml:"peer_id"` // hex; empty accepts any server
}

// ServerConfig configures a mix server.
type ServerConfig struct {
	Listen          string   `toml:"listen"`
	MaxScratchBytes int      `toml:"max_scratch_bytes"`
	MaxStreams      int      `toml:"max_streams"`
	AllowedPeers    []string `toml:"allowed_peers"` // hex PeerIDs; empty allows all
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		MaxThreads: schedule.DefaultMaxThreads,
		Server: ServerConfig{
			Listen:          "127.0.0.1:7914",
			MaxScratchBytes: 256 << 20,
			MaxStreams:      16,
		},
	}
}

// LoadConfig reads a TOML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "pscrypt: load config %s", path)
	}
	return cfg, nil
}

// DecodeConfig parses TOML text over DefaultConfig.
func DecodeConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "pscrypt: decode config")
	}
	return cfg, nil
}

func (c Config) scheduleOptions(maxThreads int, stats *schedule.Stats) schedule.Options {
	if maxThreads <= 0 {
		maxThreads = c.MaxThreads
	}
	return schedule.Options{
		MaxThreads:  maxThreads,
		UnitTimeout: c.UnitTimeout.Duration,
		Stats:       stats,
	}
}
