package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type CleanConfig struct {
	StripPageNumbers   bool `yaml:"strip_page_numbers"`
	StripHeadersFooter bool `yaml:"strip_headers_footers"`
	MinLineLength      int  `yaml:"min_line_length"`
}

type ChunkConfig struct {
	MaxChars int `yaml:"max_chars"`
}

type TTSConfig struct {
	Mode           string  `yaml:"mode"` // mock, exec, openai
	Command        string  `yaml:"command"`
	Voice          string  `yaml:"voice"`
	Endpoint       string  `yaml:"endpoint"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	Speed          float64 `yaml:"speed"`
	Format         string  `yaml:"format"`
	RequestTimeout int     `yaml:"request_timeout_ms"`
}

type OrchestratorConfig struct {
	Concurrency int `yaml:"concurrency"`
	MaxAttempts int `yaml:"max_attempts"`
	BackoffBase int `yaml:"backoff_base_ms"`
	BackoffMax  int `yaml:"backoff_max_ms"`
	JobTimeout  int `yaml:"job_timeout_ms"`
}

type JobStoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type PowerConfig struct {
	Enabled bool `yaml:"enabled"`
}

type UpdateConfig struct {
	Enabled bool   `yaml:"enabled"`
	Repo    string `yaml:"repo"`
}

type Config struct {
	AppName      string             `yaml:"app_name"`
	Environment  string             `yaml:"environment"`
	HTTP         HTTPConfig         `yaml:"http"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Clean        CleanConfig        `yaml:"clean"`
	Chunk        ChunkConfig        `yaml:"chunk"`
	TTS          TTSConfig          `yaml:"tts"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	JobStore     JobStoreConfig     `yaml:"job_store"`
	Bus          BusConfig          `yaml:"bus"`
	Power        PowerConfig        `yaml:"power"`
	Update       UpdateConfig       `yaml:"update"`
}

func Default() Config {
	return Config{
		AppName:     "textwave",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: false,
			Bind:    "127.0.0.1",
			Port:    8390,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Clean: CleanConfig{
			StripPageNumbers:   true,
			StripHeadersFooter: false,
			MinLineLength:      2,
		},
		Chunk: ChunkConfig{
			MaxChars: 1000,
		},
		TTS: TTSConfig{
			Mode:           "exec",
			Command:        "edge-tts",
			Voice:          "en-US-AvaMultilingualNeural",
			Endpoint:       "https://api.openai.com/v1/audio/speech",
			Model:          "tts-1",
			Speed:          1.0,
			Format:         "mp3",
			RequestTimeout: 60000,
		},
		Orchestrator: OrchestratorConfig{
			Concurrency: 3,
			MaxAttempts: 3,
			BackoffBase: 1000,
			BackoffMax:  30000,
			JobTimeout:  0,
		},
		JobStore: JobStoreConfig{
			Enabled: true,
			Path:    "./data/textwave-jobs.db",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Power: PowerConfig{
			Enabled: true,
		},
		Update: UpdateConfig{
			Enabled: false,
			Repo:    "textwave/textwave",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.AppName, "TEXTWAVE_APP_NAME")
	overrideString(&cfg.Environment, "TEXTWAVE_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "TEXTWAVE_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "TEXTWAVE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "TEXTWAVE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "TEXTWAVE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "TEXTWAVE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "TEXTWAVE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Clean.StripPageNumbers, "TEXTWAVE_CLEAN_STRIP_PAGE_NUMBERS")
	overrideBool(&cfg.Clean.StripHeadersFooter, "TEXTWAVE_CLEAN_STRIP_HEADERS_FOOTERS")
	overrideInt(&cfg.Clean.MinLineLength, "TEXTWAVE_CLEAN_MIN_LINE_LENGTH")
	overrideInt(&cfg.Chunk.MaxChars, "TEXTWAVE_CHUNK_MAX_CHARS")
	overrideString(&cfg.TTS.Mode, "TEXTWAVE_TTS_MODE")
	overrideString(&cfg.TTS.Command, "TEXTWAVE_TTS_COMMAND")
	overrideString(&cfg.TTS.Voice, "TEXTWAVE_TTS_VOICE")
	overrideString(&cfg.TTS.Endpoint, "TEXTWAVE_TTS_ENDPOINT")
	overrideString(&cfg.TTS.APIKey, "TEXTWAVE_TTS_API_KEY")
	overrideString(&cfg.TTS.Model, "TEXTWAVE_TTS_MODEL")
	overrideFloat(&cfg.TTS.Speed, "TEXTWAVE_TTS_SPEED")
	overrideString(&cfg.TTS.Format, "TEXTWAVE_TTS_FORMAT")
	overrideInt(&cfg.TTS.RequestTimeout, "TEXTWAVE_TTS_REQUEST_TIMEOUT_MS")
	overrideInt(&cfg.Orchestrator.Concurrency, "TEXTWAVE_ORCHESTRATOR_CONCURRENCY")
	overrideInt(&cfg.Orchestrator.MaxAttempts, "TEXTWAVE_ORCHESTRATOR_MAX_ATTEMPTS")
	overrideInt(&cfg.Orchestrator.BackoffBase, "TEXTWAVE_ORCHESTRATOR_BACKOFF_BASE_MS")
	overrideInt(&cfg.Orchestrator.BackoffMax, "TEXTWAVE_ORCHESTRATOR_BACKOFF_MAX_MS")
	overrideInt(&cfg.Orchestrator.JobTimeout, "TEXTWAVE_ORCHESTRATOR_JOB_TIMEOUT_MS")
	overrideBool(&cfg.JobStore.Enabled, "TEXTWAVE_JOB_STORE_ENABLED")
	overrideString(&cfg.JobStore.Path, "TEXTWAVE_JOB_STORE_PATH")
	overrideBool(&cfg.Bus.Enabled, "TEXTWAVE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "TEXTWAVE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "TEXTWAVE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "TEXTWAVE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "TEXTWAVE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "TEXTWAVE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "TEXTWAVE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "TEXTWAVE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "TEXTWAVE_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Power.Enabled, "TEXTWAVE_POWER_ENABLED")
	overrideBool(&cfg.Update.Enabled, "TEXTWAVE_UPDATE_ENABLED")
	overrideString(&cfg.Update.Repo, "TEXTWAVE_UPDATE_REPO")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.AppName == "" {
		return errors.New("app_name must not be empty")
	}
	if cfg.HTTP.Enabled {
		if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
			return errors.New("http.port must be between 1 and 65535")
		}
	}
	if cfg.Chunk.MaxChars <= 0 {
		return errors.New("chunk.max_chars must be positive")
	}
	if cfg.Clean.MinLineLength < 0 {
		return errors.New("clean.min_line_length must be >= 0")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec", "openai":
	default:
		return errors.New("tts.mode must be one of mock|exec|openai")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.Mode == "openai" && cfg.TTS.Endpoint == "" {
		return errors.New("tts.endpoint must be set when mode=openai")
	}
	if cfg.TTS.Voice == "" {
		return errors.New("tts.voice must not be empty")
	}
	if cfg.TTS.RequestTimeout <= 0 {
		return errors.New("tts.request_timeout_ms must be positive")
	}
	if cfg.Orchestrator.Concurrency <= 0 {
		return errors.New("orchestrator.concurrency must be >= 1")
	}
	if cfg.Orchestrator.MaxAttempts <= 0 {
		return errors.New("orchestrator.max_attempts must be >= 1")
	}
	if cfg.Orchestrator.BackoffBase <= 0 {
		return errors.New("orchestrator.backoff_base_ms must be positive")
	}
	if cfg.Orchestrator.BackoffMax < cfg.Orchestrator.BackoffBase {
		return errors.New("orchestrator.backoff_max_ms must be >= backoff_base_ms")
	}
	if cfg.Orchestrator.JobTimeout < 0 {
		return errors.New("orchestrator.job_timeout_ms must be >= 0")
	}
	if cfg.JobStore.Enabled && cfg.JobStore.Path == "" {
		return errors.New("job_store.path must not be empty when job store is enabled")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Update.Enabled && cfg.Update.Repo == "" {
		return errors.New("update.repo must not be empty when update checks are enabled")
	}
	return nil
}
