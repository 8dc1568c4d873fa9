package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Duration decodes TOML duration strings like "30m" or "10s". The
// toml package hands string values to encoding.TextUnmarshaler, which
// time.Duration itself does not implement.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Network  NetworkConfig  `toml:"network"`
	Session  SessionConfig  `toml:"session"`
	AI       AIConfig       `toml:"ai"`
	Logging  LoggingConfig  `toml:"logging"`
}

type ServerConfig struct {
	Name      string `toml:"name"`
	StartTime int64  // set at boot, not from config
}

// DatabaseConfig is populated from the .env file (DB_* keys) with pool
// tuning from the toml file.
type DatabaseConfig struct {
	Name            string
	User            string
	Password        string
	Host            string
	Port            string
	MaxOpenConns    int      `toml:"max_open_conns"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
}

// DSN renders the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&connect_timeout=5",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NetworkConfig struct {
	BindAddress     string   `toml:"bind_address"`
	WriteTimeout    Duration `toml:"write_timeout"`
	MaxHandshakeLen int      `toml:"max_handshake_len"`
	MaxPayloadLen   int      `toml:"max_payload_len"`
}

type SessionConfig struct {
	Timeout       Duration `toml:"timeout"`
	SweepInterval Duration `toml:"sweep_interval"`
}

type AIConfig struct {
	DefaultDepth int    `toml:"default_depth"`
	ScriptPath   string `toml:"script_path"`
	BookPath     string `toml:"book_path"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Load reads the toml config at path (a missing file falls back to
// defaults), then overlays database settings from .env per LoadEnv.
func Load(path string) (*Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	LoadEnv(cfg)
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

// LoadEnv loads .env (ignored when absent) and applies the recognised
// DB_* keys onto cfg. Unknown keys in the file are ignored.
func LoadEnv(cfg *Config) {
	_ = godotenv.Load()
	cfg.Database.Name = envOr("DB_NAME", cfg.Database.Name)
	cfg.Database.User = envOr("DB_USER", cfg.Database.User)
	cfg.Database.Password = envOr("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Host = envOr("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = envOr("DB_PORT", cfg.Database.Port)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "chess-server",
		},
		Database: DatabaseConfig{
			Name:            "chess-app",
			User:            "postgres",
			Password:        "",
			Host:            "localhost",
			Port:            "5432",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(30 * time.Minute),
		},
		Network: NetworkConfig{
			BindAddress:     "0.0.0.0:8080",
			WriteTimeout:    Duration(10 * time.Second),
			MaxHandshakeLen: 8192,
			MaxPayloadLen:   10 * 1024 * 1024,
		},
		Session: SessionConfig{
			Timeout:       Duration(1800 * time.Second),
			SweepInterval: Duration(60 * time.Second),
		},
		AI: AIConfig{
			DefaultDepth: 2,
			ScriptPath:   "scripts/eval.lua",
			BookPath:     "data/yaml/openings.yaml",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
