package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration.
type Config struct {
	Remote  RemoteConfig
	Audio   AudioConfig
	Lexicon LexiconConfig
	Log     LogConfig
	Diag    DiagConfig
}

type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	ChunkSize       int
	RecordLimit     time.Duration
	PlayerCommand   string
}

type LexiconConfig struct {
	Path           string
	IterationLimit int
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

type DiagConfig struct {
	// Addr is the diagnostics listen address; empty disables the server.
	Addr string
}

// fileConfig mirrors the optional YAML file. Environment variables win over it.
type fileConfig struct {
	API struct {
		Base      string `yaml:"base"`
		TimeoutMS int    `yaml:"timeout_ms"`
	} `yaml:"api"`
	Audio struct {
		FFmpegCommand string `yaml:"ffmpeg_command"`
		InputFormat   string `yaml:"input_format"`
		InputDevice   string `yaml:"input_device"`
		SampleRate    int    `yaml:"sample_rate"`
		Channels      int    `yaml:"channels"`
		ChunkSize     int    `yaml:"chunk_size"`
		RecordLimitMS int    `yaml:"record_limit_ms"`
		PlayerCommand string `yaml:"player_command"`
	} `yaml:"audio"`
	Lexicon struct {
		File           string `yaml:"file"`
		IterationLimit int    `yaml:"iteration_limit"`
	} `yaml:"lexicon"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`
	Diag struct {
		Addr string `yaml:"addr"`
	} `yaml:"diag"`
}

// Load resolves configuration from a .env file, an optional YAML file,
// environment variables and defaults, in increasing order of precedence.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	configDir := filepath.Join(home, ".config", "lumen")

	configPath := envOrDefault("LUMEN_CONFIG_FILE", filepath.Join(configDir, "config.yaml"))
	file, err := readFileConfig(configPath)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Remote: RemoteConfig{
			BaseURL: strings.TrimRight(envOrDefault("LUMEN_API_BASE", firstNonEmpty(file.API.Base, "http://localhost:8000")), "/"),
			Timeout: millis(envOrDefaultInt("LUMEN_REMOTE_TIMEOUT_MS", positiveOr(file.API.TimeoutMS, 30000))),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("LUMEN_FFMPEG_COMMAND", firstNonEmpty(file.Audio.FFmpegCommand, "ffmpeg")),
			InputFormat:     envOrDefault("LUMEN_AUDIO_INPUT_FORMAT", firstNonEmpty(file.Audio.InputFormat, "pulse")),
			InputDevice:     envOrDefault("LUMEN_AUDIO_INPUT_DEVICE", firstNonEmpty(file.Audio.InputDevice, "default")),
			SampleRate:      envOrDefaultInt("LUMEN_SAMPLE_RATE", positiveOr(file.Audio.SampleRate, 16000)),
			Channels:        envOrDefaultInt("LUMEN_CHANNELS", positiveOr(file.Audio.Channels, 1)),
			ChunkSize:       envOrDefaultInt("LUMEN_AUDIO_CHUNK_SIZE", positiveOr(file.Audio.ChunkSize, 4096)),
			RecordLimit:     millis(envOrDefaultInt("LUMEN_RECORD_LIMIT_MS", positiveOr(file.Audio.RecordLimitMS, 6000))),
			PlayerCommand:   envOrDefault("LUMEN_PLAYER_COMMAND", firstNonEmpty(file.Audio.PlayerCommand, "ffplay")),
		},
		Lexicon: LexiconConfig{
			Path:           envOrDefault("LUMEN_LEXICON_FILE", firstNonEmpty(file.Lexicon.File, filepath.Join(configDir, "pronunciation.rules"))),
			IterationLimit: envOrDefaultInt("LUMEN_LEXICON_ITERATION_LIMIT", positiveOr(file.Lexicon.IterationLimit, 30)),
		},
		Log: LogConfig{
			Level:  envOrDefault("LUMEN_LOG_LEVEL", firstNonEmpty(file.Log.Level, "info")),
			Format: envOrDefault("LUMEN_LOG_FORMAT", firstNonEmpty(file.Log.Format, "console")),
			File:   envOrDefault("LUMEN_LOG_FILE", file.Log.File),
		},
		Diag: DiagConfig{
			Addr: envOrDefault("LUMEN_DIAG_ADDR", file.Diag.Addr),
		},
	}

	if cfg.Remote.Timeout <= 0 {
		cfg.Remote.Timeout = 30 * time.Second
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}
	if cfg.Audio.RecordLimit <= 0 {
		cfg.Audio.RecordLimit = 6 * time.Second
	}
	if cfg.Lexicon.IterationLimit <= 0 {
		cfg.Lexicon.IterationLimit = 30
	}

	return cfg, nil
}

// loadDotEnv exports variables from path without overriding ones already set.
// A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func readFileConfig(path string) (fileConfig, error) {
	var file fileConfig
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return file, nil
	}
	if err != nil {
		return file, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return file, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return file, nil
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func positiveOr(value int, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
