// Package config loads parcelwatch settings from a TOML or YAML file, a .env
// file and the process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Paths locates the flat-file state.
type Paths struct {
	Current   string `toml:"current" yaml:"current"`
	Baseline  string `toml:"baseline" yaml:"baseline"`
	Summary   string `toml:"summary" yaml:"summary"`
	Watchlist string `toml:"watchlist" yaml:"watchlist"`
	Offset    string `toml:"offset" yaml:"offset"`
}

// IndexConfig selects the key and compared fields.
type IndexConfig struct {
	KeyField string   `toml:"key_field" yaml:"key_field"`
	Fields   []string `toml:"fields" yaml:"fields"`
}

// GISConfig drives the ArcGIS fetch.
type GISConfig struct {
	City         string  `toml:"city" yaml:"city"`
	BoundaryURL  string  `toml:"boundary_url" yaml:"boundary_url"`
	ParcelURL    string  `toml:"parcel_url" yaml:"parcel_url"`
	ChunkSize    int     `toml:"chunk_size" yaml:"chunk_size"`
	PauseSeconds float64 `toml:"pause_seconds" yaml:"pause_seconds"`
}

// TelegramConfig holds the bot credentials. Both are normally supplied via
// TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID.
type TelegramConfig struct {
	Token  string `toml:"token" yaml:"token"`
	ChatID string `toml:"chat_id" yaml:"chat_id"`
	Title  string `toml:"title" yaml:"title"`
}

// Config is the top-level configuration.
type Config struct {
	Paths      Paths          `toml:"paths" yaml:"paths"`
	Index      IndexConfig    `toml:"index" yaml:"index"`
	SampleSize int            `toml:"sample_size" yaml:"sample_size"`
	Watchlist  []string       `toml:"watchlist" yaml:"watchlist"` // inline keys, merged with Paths.Watchlist
	GIS        GISConfig      `toml:"gis" yaml:"gis"`
	Telegram   TelegramConfig `toml:"telegram" yaml:"telegram"`
	Listen     string         `toml:"listen" yaml:"listen"`
	LogLevel   string         `toml:"log_level" yaml:"log_level"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{SampleSize: -1}
	c.applyDefaults()
	return c
}

// Load reads path (TOML for .toml, YAML for .yaml/.yml), loads .env from the
// working directory when present, then applies environment overrides and
// defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{SampleSize: -1}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse TOML %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse YAML %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config %s: unsupported extension (want .toml, .yaml or .yml)", path)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.Token)
	str("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)
	str("PARCELWATCH_CURRENT", &c.Paths.Current)
	str("PARCELWATCH_BASELINE", &c.Paths.Baseline)
	str("PARCELWATCH_SUMMARY", &c.Paths.Summary)
	str("PARCELWATCH_WATCHLIST", &c.Paths.Watchlist)
	str("PARCELWATCH_OFFSET", &c.Paths.Offset)
	str("PARCELWATCH_KEY_FIELD", &c.Index.KeyField)
	str("PARCELWATCH_CITY", &c.GIS.City)
	str("PARCELWATCH_LISTEN", &c.Listen)
	str("PARCELWATCH_LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup("PARCELWATCH_FIELDS"); ok && v != "" {
		c.Index.Fields = splitList(v)
	}
	if v, ok := lookup("PARCELWATCH_SAMPLE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PARCELWATCH_SAMPLE_SIZE: %w", err)
		}
		c.SampleSize = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Paths.Current == "" {
		c.Paths.Current = "data/plain_city_parcels.geojson"
	}
	if c.Paths.Baseline == "" {
		c.Paths.Baseline = "data/plain_city_parcels_last.geojson"
	}
	if c.Paths.Summary == "" {
		c.Paths.Summary = "data/plain_city_changes_summary.json"
	}
	if c.Paths.Watchlist == "" {
		c.Paths.Watchlist = "data/watched_parcels.txt"
	}
	if c.Paths.Offset == "" {
		c.Paths.Offset = "data/telegram_offset.txt"
	}
	if c.Index.KeyField == "" {
		c.Index.KeyField = "PARCEL_ID"
	}
	if len(c.Index.Fields) == 0 {
		c.Index.Fields = []string{"STREET", "CITY_STATE", "ZIPCODE", "PROP_STREET", "PROP_CITY", "PROP_ZIP", "NAME_ONE"}
	}
	if c.SampleSize < 0 {
		c.SampleSize = 10
	}
	if c.GIS.City == "" {
		c.GIS.City = "Plain City"
	}
	if c.GIS.ChunkSize < 1 {
		c.GIS.ChunkSize = 400
	}
	if c.GIS.PauseSeconds < 0 {
		c.GIS.PauseSeconds = 0
	}
	if c.Telegram.Title == "" {
		c.Telegram.Title = "Plain City parcel change summary"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
