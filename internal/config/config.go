// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads patch-hub's configuration from a TOML file and
// environment variables, and implements the L0 configuration actor.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/patchlore/patch-hub/internal/actor"
)

// LogLevel is one of patch-hub's enumerated log_level config values.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "Info"
	LogLevelWarning LogLevel = "Warning"
	LogLevelError   LogLevel = "Error"
)

// Renderer is one of patch-hub's enumerated patch_renderer config values.
type Renderer string

const (
	RendererNone  Renderer = "None"
	RendererBat   Renderer = "Bat"
	RendererDelta Renderer = "Delta"
)

// Config is patch-hub's full set of user-configurable options.
type Config struct {
	CachePath     string        `toml:"cache_path"`
	LogDir        string        `toml:"log_dir"`
	LogLevel      LogLevel      `toml:"log_level"`
	Timeout       time.Duration `toml:"-"`
	TimeoutSecs   int           `toml:"timeout"`
	MaxAge        int           `toml:"max_age"`
	PatchRenderer Renderer      `toml:"patch_renderer"`
}

// rawConfig mirrors the TOML file; unknown keys are ignored by
// BurntSushi/toml's decoder by default, and missing keys fall back to
// the zero value, which envOrDefault*/the literals below turn into
// patch-hub's documented defaults.
type rawConfig struct {
	CachePath     string `toml:"cache_path"`
	LogDir        string `toml:"log_dir"`
	LogLevel      string `toml:"log_level"`
	Timeout       int    `toml:"timeout"`
	MaxAge        int    `toml:"max_age"`
	PatchRenderer string `toml:"patch_renderer"`
}

// ConfigPath returns the default TOML config location.
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "patch-hub", "config.toml"), nil
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cache/patch-hub"
	}
	return filepath.Join(home, ".cache", "patch-hub")
}

// Load reads path (if it exists) and layers environment variable
// overrides and defaults on top, exactly the "file is optional, env and
// defaults fill gaps" policy the teacher's Load() follows. A missing
// file is the expected cold-start path and is not an error.
func Load(path string) (*Config, error) {
	var raw rawConfig

	if data, err := os.ReadFile(path); err == nil {
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{
		CachePath:     firstNonEmpty(envOrDefault("PATCH_HUB_CACHE_PATH", ""), raw.CachePath, defaultCachePath()),
		LogDir:        firstNonEmpty(envOrDefault("PATCH_HUB_LOG_DIR", ""), raw.LogDir, defaultCachePath()),
		LogLevel:      LogLevel(firstNonEmpty(envOrDefault("PATCH_HUB_LOG_LEVEL", ""), raw.LogLevel, string(LogLevelInfo))),
		PatchRenderer: Renderer(firstNonEmpty(envOrDefault("PATCH_HUB_RENDERER", ""), raw.PatchRenderer, string(RendererNone))),
		TimeoutSecs:   envOrDefaultInt("PATCH_HUB_TIMEOUT", firstNonZero(raw.Timeout, 30)),
		MaxAge:        envOrDefaultInt("PATCH_HUB_MAX_AGE", raw.MaxAge),
	}
	cfg.Timeout = time.Duration(cfg.TimeoutSecs) * time.Second

	return cfg, nil
}

// Save writes cfg to path as TOML, creating parent directories as
// needed; a missing parent directory is self-healed rather than
// treated as an error.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()

	raw := rawConfig{
		CachePath:     cfg.CachePath,
		LogDir:        cfg.LogDir,
		LogLevel:      string(cfg.LogLevel),
		Timeout:       cfg.TimeoutSecs,
		MaxAge:        cfg.MaxAge,
		PatchRenderer: string(cfg.PatchRenderer),
	}

	if err := toml.NewEncoder(f).Encode(raw); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

// Handle is the dual (live/stub) contract every patch-hub actor exposes
// for its configuration dependency: a cheap-to-clone read of the
// resolved Config.
type Handle interface {
	Get(ctx context.Context) (Config, error)
}

type getRequest struct{}

// liveHandle serves Get over an actor.Mailbox backed by a goroutine
// holding the loaded Config; patch-hub treats configuration as
// read-mostly, so the actor never mutates it after Load.
type liveHandle struct {
	mb actor.Mailbox[getRequest, Config]
}

// NewLive spawns the configuration actor, pre-loaded with cfg, and
// returns a Handle. The actor never blocks on I/O: Load/Save happen
// once at startup, before the actor is spawned.
func NewLive(ctx context.Context, cfg Config) Handle {
	mb := actor.NewMailbox[getRequest, Config](32)
	go actor.Loop(ctx, mb, func(getRequest) Config {
		return cfg
	})
	return &liveHandle{mb: mb}
}

func (h *liveHandle) Get(ctx context.Context) (Config, error) {
	return actor.Ask(ctx, h.mb, getRequest{})
}

// stubHandle serves Get synchronously against seeded state, for tests.
type stubHandle struct {
	cfg Config
}

// NewStub returns a Handle that always answers with cfg, without
// spawning a goroutine.
func NewStub(cfg Config) Handle {
	return &stubHandle{cfg: cfg}
}

func (h *stubHandle) Get(context.Context) (Config, error) {
	return h.cfg, nil
}
