package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// EnvPrefix is prepended to every environment override, e.g. PLSYNC_SERVER_PORT.
const EnvPrefix = "PLSYNC_"

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Spotify  SpotifyConfig  `toml:"spotify" envPrefix:"SPOTIFY_"`
	Server   ServerConfig   `toml:"server" envPrefix:"SERVER_"`
	Engine   EngineConfig   `toml:"engine" envPrefix:"ENGINE_"`
	Jobs     JobsConfig     `toml:"jobs" envPrefix:"JOBS_"`
	Database DatabaseConfig `toml:"database" envPrefix:"DATABASE_"`
	Log      LogConfig      `toml:"log" envPrefix:"LOG_"`
}

// SpotifyConfig contains Spotify Web API settings.
type SpotifyConfig struct {
	ClientID          string        `toml:"client_id" env:"CLIENT_ID"`
	TokenURL          string        `toml:"token_url" env:"TOKEN_URL"`
	APIBaseURL        string        `toml:"api_base_url" env:"API_BASE_URL"`
	RequestsPerSecond float64       `toml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Timeout           time.Duration `toml:"timeout" env:"TIMEOUT"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host           string   `toml:"host" env:"HOST"`
	Port           int      `toml:"port" env:"PORT"`
	AllowedOrigins []string `toml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// EngineConfig tunes job execution.
type EngineConfig struct {
	SavedTracksDelay       time.Duration `toml:"saved_tracks_delay" env:"SAVED_TRACKS_DELAY"`
	FollowForeignPlaylists bool          `toml:"follow_foreign_playlists" env:"FOLLOW_FOREIGN_PLAYLISTS"`
}

// JobsConfig selects the job store backend.
type JobsConfig struct {
	Backend string `toml:"backend" env:"BACKEND"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"PATH"`
	MaxOpenConns int    `toml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns int    `toml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
}

// LogConfig contains process log settings.
type LogConfig struct {
	Level string `toml:"level" env:"LEVEL"`
}

// Validate checks values that would otherwise fail deep inside the engine.
func (c *Config) Validate() error {
	switch c.Jobs.Backend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("%w: unknown jobs backend %q", ErrInvalidConfig, c.Jobs.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Engine.SavedTracksDelay < 0 {
		return fmt.Errorf("%w: saved_tracks_delay must not be negative", ErrInvalidConfig)
	}
	if c.Spotify.APIBaseURL == "" || c.Spotify.TokenURL == "" {
		return fmt.Errorf("%w: spotify api_base_url and token_url are required", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their defaults from the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// ResolveConfig loads the config file at path when it exists (defaults otherwise),
// then applies .env and environment overrides and validates the result.
func ResolveConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		loaded, err := LoadConfig(path)
		switch {
		case err == nil:
			config = loaded
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overlays environment variables (and a .env file in the working directory, if present) onto config.
//
// Unset variables leave the existing value alone. SPOTIFY_CLIENT_ID without prefix is honored as a fallback.
func ApplyEnv(config *Config) error {
	_ = godotenv.Load()

	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if config.Spotify.ClientID == "" {
		config.Spotify.ClientID = os.Getenv("SPOTIFY_CLIENT_ID")
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
