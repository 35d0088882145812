package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Settings SettingsConfig `koanf:"settings"`
	Bus      BusConfig      `koanf:"bus"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type UpstreamConfig struct {
	// BaseURL is the chat backend the proxy fronts.
	BaseURL string `koanf:"base_url"`
}

type SettingsConfig struct {
	// Path is the SQLite file holding user preferences.
	Path string `koanf:"path"`
}

type BusConfig struct {
	// Origin scopes bus messages; receivers drop foreign origins.
	Origin string `koanf:"origin"`
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try to load from config.yaml file first
	if err := k.Load(file.Provider("config.yaml"), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider("CHATSTAMP_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CHATSTAMP_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("upstream.base_url") {
		k.Set("upstream.base_url", "https://chatgpt.com")
	}
	if !k.Exists("settings.path") {
		k.Set("settings.path", "./data/settings.db")
	}
	if !k.Exists("bus.origin") {
		k.Set("bus.origin", "chatstamp")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
