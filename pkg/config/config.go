/*
Package config manages TOML configuration for the IME engine.

InitConfig handles automatic config file creation and loading with fallback
to defaults. LoadConfig and SaveConfig provide direct fs access for runtime
changes. UpdateLLM allows targeted parameter changes with persistence.
*/
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

// Config holds the entire engine configuration.
type Config struct {
	Dict     DictConfig     `toml:"dict"`
	Scheme   SchemeConfig   `toml:"scheme"`
	LLM      LLMConfig      `toml:"llm"`
	UserDict UserDictConfig `toml:"user_dict"`
	Diag     DiagConfig     `toml:"diag"`
}

// DictConfig holds dictionary store options.
type DictConfig struct {
	SourceDir              string `toml:"source_dir"`
	CacheDir               string `toml:"cache_dir"`
	ConversionPath         string `toml:"conversion_path"`
	MaxResidentChunks      int    `toml:"max_resident_chunks"`
	ChunkSize              int    `toml:"chunk_size"`
	MaxWordCountValidation int    `toml:"max_word_count_validation"`
	HotCacheWords          int    `toml:"hot_cache_words"`
}

// SchemeConfig holds input scheme defaults.
type SchemeConfig struct {
	Default        string `toml:"default"`
	CompositionCap int    `toml:"composition_cap"`
	MaxCandidates  int    `toml:"max_candidates"`
}

// LLMConfig holds the LLM re-ranking bridge's options.
type LLMConfig struct {
	Enabled       bool   `toml:"enabled"`
	Endpoint      string `toml:"endpoint"`
	Transport     string `toml:"transport"` // "http" or "msgpack_unix"
	SocketPath    string `toml:"socket_path"`
	TimeoutMS     int    `toml:"timeout_ms"`
	TopK          int    `toml:"top_k"`
	MaxContextLen int    `toml:"max_context_len"`
}

// UserDictConfig holds the C6 user dictionary's options.
type UserDictConfig struct {
	Backend string `toml:"backend"` // "json" (default) or "badger"
	Path    string `toml:"path"`
}

// DiagConfig holds diagnostics/metrics options.
type DiagConfig struct {
	Verbose          bool `toml:"verbose"`
	LatencyWindow    int  `toml:"latency_window"`
	LlmHistoryWindow int  `toml:"llm_history_window"`
}

// DefaultConfig returns a Config with default values, per the spec's
// documented SLOs (2000ms LLM deadline, 9-candidate display default,
// 64-atom composition cap).
func DefaultConfig() *Config {
	return &Config{
		Dict: DictConfig{
			SourceDir:              "data/sources",
			CacheDir:               "data/cache",
			ConversionPath:         "data/sources/conversion.json",
			MaxResidentChunks:      8,
			ChunkSize:              10000,
			MaxWordCountValidation: 1_000_000,
			HotCacheWords:          2000,
		},
		Scheme: SchemeConfig{
			Default:        "bopomofo",
			CompositionCap: 64,
			MaxCandidates:  9,
		},
		LLM: LLMConfig{
			Enabled:       false,
			Endpoint:      "http://127.0.0.1:8787/rerank",
			Transport:     "http",
			SocketPath:    "",
			TimeoutMS:     2000,
			TopK:          10,
			MaxContextLen: 200,
		},
		UserDict: UserDictConfig{
			Backend: "json",
			Path:    "data/user_dict.json",
		},
		Diag: DiagConfig{
			Verbose:          false,
			LatencyWindow:    200,
			LlmHistoryWindow: 50,
		},
	}
}

// InitConfig loads config from file or creates a default one if missing.
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, err
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, configPath); err != nil {
			return nil, err
		}
		log.Debugf("created default config file at: ( %s )", configPath)
		return cfg, nil
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("failed to load config, using defaults: %v", err)
		return DefaultConfig(), nil
	}
	return cfg, nil
}

// LoadConfig loads a Config from a TOML file.
func LoadConfig(configPath string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		log.Errorf("failed to decode config file: %v", err)
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig saves a Config into a TOML file.
func SaveConfig(cfg *Config, configPath string) error {
	file, err := os.Create(configPath)
	if err != nil {
		log.Errorf("failed to create config file: %v", err)
		return err
	}
	defer file.Close()
	encoder := toml.NewEncoder(file)
	return encoder.Encode(cfg)
}

// UpdateLLM changes the LLM section and persists it, mirroring
// set_llm_enabled/set_llm_timeout at the config layer so a restart picks
// up the same runtime values.
func (c *Config) UpdateLLM(configPath string, enabled *bool, timeoutMS *int) error {
	if enabled != nil {
		c.LLM.Enabled = *enabled
	}
	if timeoutMS != nil {
		c.LLM.TimeoutMS = *timeoutMS
	}
	return SaveConfig(c, configPath)
}
