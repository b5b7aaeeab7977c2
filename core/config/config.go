package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// AdminID is the legacy single-admin setting; merged into AdminIDs.
	AdminID  int64   `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	AdminIDs []int64 `yaml:"admin_ids" envconfig:"TELEGRAM_ADMIN_IDS"`
	RunMode  string  `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings. Listen/Port also bind the
// health and status endpoints.
type WebhookConfig struct {
	URL         string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen      string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port        int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	SecretToken string `yaml:"secret_token" envconfig:"WEBHOOK_SECRET_TOKEN"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateCommand identifies slash-command messages for rate limit exclusions.
	UpdateCommand = "command"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "command": messages starting with "/"
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

const (
	// StateBackendFile keeps the snapshot in a JSON file.
	StateBackendFile = "file"
	// StateBackendPostgres keeps the snapshot in a single postgres row.
	StateBackendPostgres = "postgres"
)

// StateConfig selects where the bot state snapshot lives.
type StateConfig struct {
	Backend string `yaml:"backend" envconfig:"STATE_BACKEND"`
	Path    string `yaml:"path" envconfig:"STATE_PATH"`
}

// DatabaseConfig holds postgres connection settings for the postgres state backend.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// SpeechConfig configures the voice synthesis provider.
type SpeechConfig struct {
	BaseURL        string   `yaml:"base_url" envconfig:"SPEECH_BASE_URL"`
	ModelID        string   `yaml:"model_id" envconfig:"SPEECH_MODEL_ID"`
	DefaultVoiceID string   `yaml:"default_voice_id" envconfig:"SPEECH_DEFAULT_VOICE_ID"`
	APIKeys        []string `yaml:"api_keys" envconfig:"SPEECH_API_KEYS"`
	TempDir        string   `yaml:"temp_dir" envconfig:"SPEECH_TEMP_DIR"`
	TimeoutSeconds int      `yaml:"timeout_seconds" envconfig:"SPEECH_TIMEOUT_SECONDS"`
}

// RelayConfig tunes the text-to-speech request forms and pacing.
type RelayConfig struct {
	DirectPrefix     string `yaml:"direct_prefix" envconfig:"RELAY_DIRECT_PREFIX"`
	AttributedPrefix string `yaml:"attributed_prefix" envconfig:"RELAY_ATTRIBUTED_PREFIX"`
	MaxTextLength    int    `yaml:"max_text_length" envconfig:"RELAY_MAX_TEXT_LENGTH"`
	MinDelayMS       int    `yaml:"min_delay_ms" envconfig:"RELAY_MIN_DELAY_MS"`
	MaxDelayMS       int    `yaml:"max_delay_ms" envconfig:"RELAY_MAX_DELAY_MS"`
}

// Config aggregates the bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	State     StateConfig     `yaml:"state"`
	Database  DatabaseConfig  `yaml:"database"`
	Speech    SpeechConfig    `yaml:"speech"`
	Relay     RelayConfig     `yaml:"relay"`
}

// Defaults applied by Normalize when values are left empty.
const (
	DefaultStatePath      = "data/state.json"
	DefaultSpeechBaseURL  = "https://api.elevenlabs.io"
	DefaultSpeechModelID  = "eleven_multilingual_v2"
	DefaultVoiceID        = "21m00Tcm4TlvDzK8ykWM"
	DefaultSpeechTimeout  = 60
	DefaultDirectPrefix   = "tts"
	DefaultAttrPrefix     = "voiceme"
	DefaultMaxTextLength  = 1000
	DefaultMinDelayMS     = 2000
	DefaultMaxDelayMS     = 5000
	DefaultMigrationsDir  = "migrations"
	DefaultMaxConnections = 4
)

// LoadEnvFile loads KEY=VALUE pairs from an optional dotenv file.
// Variables already present in the environment win.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from a YAML file and environment variables.
// A missing file is tolerated so that env-only deployments work.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	cfg.Telegram.AdminIDs = mergeAdminIDs(cfg.Telegram.AdminID, cfg.Telegram.AdminIDs)

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateCommand:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, command, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if err := normalizeState(cfg); err != nil {
		return err
	}
	normalizeSpeech(&cfg.Speech)
	return normalizeRelay(&cfg.Relay)
}

func normalizeState(cfg *Config) error {
	backend := strings.ToLower(strings.TrimSpace(cfg.State.Backend))
	if backend == "" {
		backend = StateBackendFile
	}
	switch backend {
	case StateBackendFile:
		if strings.TrimSpace(cfg.State.Path) == "" {
			cfg.State.Path = DefaultStatePath
		}
	case StateBackendPostgres:
		if cfg.Database.Host == "" || cfg.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required when state.backend is 'postgres'")
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = DefaultMaxConnections
		}
		if cfg.Database.MigrationsDir == "" {
			cfg.Database.MigrationsDir = DefaultMigrationsDir
		}
	default:
		return fmt.Errorf("invalid state.backend %q; allowed: file, postgres", cfg.State.Backend)
	}
	cfg.State.Backend = backend
	return nil
}

func normalizeSpeech(s *SpeechConfig) {
	if s.BaseURL == "" {
		s.BaseURL = DefaultSpeechBaseURL
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	if s.ModelID == "" {
		s.ModelID = DefaultSpeechModelID
	}
	if s.DefaultVoiceID == "" {
		s.DefaultVoiceID = DefaultVoiceID
	}
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = DefaultSpeechTimeout
	}
	keys := s.APIKeys[:0]
	for _, k := range s.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	s.APIKeys = keys
}

func normalizeRelay(r *RelayConfig) error {
	r.DirectPrefix = strings.ToLower(strings.TrimSpace(r.DirectPrefix))
	if r.DirectPrefix == "" {
		r.DirectPrefix = DefaultDirectPrefix
	}
	r.AttributedPrefix = strings.ToLower(strings.TrimSpace(r.AttributedPrefix))
	if r.AttributedPrefix == "" {
		r.AttributedPrefix = DefaultAttrPrefix
	}
	if r.DirectPrefix == r.AttributedPrefix {
		return fmt.Errorf("relay.direct_prefix and relay.attributed_prefix must differ")
	}
	if r.MaxTextLength <= 0 {
		r.MaxTextLength = DefaultMaxTextLength
	}
	if r.MinDelayMS == 0 && r.MaxDelayMS == 0 {
		r.MinDelayMS, r.MaxDelayMS = DefaultMinDelayMS, DefaultMaxDelayMS
	}
	if r.MinDelayMS < 0 || r.MaxDelayMS < r.MinDelayMS {
		return fmt.Errorf("relay delay range [%d, %d) is invalid", r.MinDelayMS, r.MaxDelayMS)
	}
	return nil
}

func mergeAdminIDs(single int64, list []int64) []int64 {
	seen := make(map[int64]struct{}, len(list)+1)
	out := make([]int64, 0, len(list)+1)
	add := func(id int64) {
		if id == 0 {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(single)
	for _, id := range list {
		add(id)
	}
	return out
}

// PacingRange returns the configured pacing delay bounds.
func (r RelayConfig) PacingRange() (time.Duration, time.Duration) {
	return time.Duration(r.MinDelayMS) * time.Millisecond, time.Duration(r.MaxDelayMS) * time.Millisecond
}

// SpeechTimeout returns the HTTP timeout for synthesis calls.
func (s SpeechConfig) SpeechTimeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}
