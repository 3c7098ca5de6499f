package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultModel   = "gemini-2.5-pro-exp-03-25"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	DefaultInstruction = "You are a helpful coding assistant specialized in Python. Based on the following question and context, " +
		"provide only the Python code snippet as the answer, formatted using Markdown code blocks (e.g., ```python ... ```). " +
		"Keep explanations minimal and strictly outside the code block."
	DefaultSeparator = "\n\n--- Combined User Input ---\n"
)

type Config struct {
	Server struct {
		Listen         string `yaml:"listen"`
		ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
		WriteTimeoutMs int    `yaml:"write_timeout_ms"`
		PidFile        string `yaml:"pid_file"`
	} `yaml:"server"`

	Gemini struct {
		APIKey     string `yaml:"api_key"`
		Model      string `yaml:"model"`
		BaseURL    string `yaml:"base_url"`
		TimeoutMs  int    `yaml:"timeout_ms"`
		HTTPProxy  string `yaml:"http_proxy"`
		HTTPSProxy string `yaml:"https_proxy"`
		NoProxy    string `yaml:"no_proxy"`
	} `yaml:"gemini"`

	Prompt struct {
		Instruction string `yaml:"instruction"`
		Separator   string `yaml:"separator"`
	} `yaml:"prompt"`

	Extract struct {
		// RulesFile is an optional YAML file with the fallback prefixes. It is watched for changes.
		RulesFile    string `yaml:"rules_file"`
		PreviewRunes int    `yaml:"preview_runes"`
	} `yaml:"extract"`

	Clipboard struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"clipboard"`

	TrafficDump struct {
		Enabled     bool   `yaml:"enabled"`
		Dir         string `yaml:"dir"`
		FilePath    string `yaml:"file_path"`
		MaxBytes    int    `yaml:"max_bytes"`
		MaskSecrets *bool  `yaml:"mask_secrets"`
	} `yaml:"traffic_dump"`

	Logging struct {
		Level         string `yaml:"level"`
		Debug         bool   `yaml:"debug"`
		AccessLog     *bool  `yaml:"access_log"`
		AccessLogPath string `yaml:"access_log_path"`
	} `yaml:"logging"`

	Telemetry struct {
		TraceStdout bool   `yaml:"trace_stdout"`
		ServiceName string `yaml:"service_name"`
	} `yaml:"telemetry"`
}

// Load reads the optional .env file and the YAML config at path, then applies defaults and
// environment overrides. A missing config file is not an error; a missing API key is.
func Load(path string) (*Config, error) {
	cfg, err := LoadUnvalidated(path)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated is Load without validation. Client-side commands use it to find the relay
// address without requiring the upstream credential.
func LoadUnvalidated(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	var cfg Config
	path = strings.TrimSpace(path)
	if path != "" {
		// #nosec G304 -- config path comes from trusted flag.
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %q: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	// Load never overrides variables that are already set.
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// ClipboardEnabled reports whether the relay should write to the system clipboard.
func (c *Config) ClipboardEnabled() bool {
	return c.Clipboard.Enabled == nil || *c.Clipboard.Enabled
}

// AccessLogEnabled defaults to true for local debugging.
func (c *Config) AccessLogEnabled() bool {
	return c.Logging.AccessLog == nil || *c.Logging.AccessLog
}

func (c *Config) MaskDumpSecrets() bool {
	return c.TrafficDump.MaskSecrets == nil || *c.TrafficDump.MaskSecrets
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = "127.0.0.1:5000"
	}
	if cfg.Server.ReadTimeoutMs <= 0 {
		cfg.Server.ReadTimeoutMs = 30000
	}
	if cfg.Gemini.TimeoutMs <= 0 {
		cfg.Gemini.TimeoutMs = 180000
	}
	// The write deadline has to outlive the upstream call.
	if cfg.Server.WriteTimeoutMs <= 0 {
		cfg.Server.WriteTimeoutMs = cfg.Gemini.TimeoutMs + 10000
	}
	if strings.TrimSpace(cfg.Gemini.Model) == "" {
		cfg.Gemini.Model = DefaultModel
	}
	if strings.TrimSpace(cfg.Gemini.BaseURL) == "" {
		cfg.Gemini.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cfg.Prompt.Instruction) == "" {
		cfg.Prompt.Instruction = DefaultInstruction
	}
	if cfg.Prompt.Separator == "" {
		cfg.Prompt.Separator = DefaultSeparator
	}
	if cfg.Extract.PreviewRunes <= 0 {
		cfg.Extract.PreviewRunes = 100
	}
	if strings.TrimSpace(cfg.TrafficDump.Dir) == "" {
		cfg.TrafficDump.Dir = "./dumps"
	}
	if strings.TrimSpace(cfg.TrafficDump.FilePath) == "" {
		cfg.TrafficDump.FilePath = "{{.request_id}}.log"
	}
	if cfg.TrafficDump.MaxBytes == 0 {
		cfg.TrafficDump.MaxBytes = 1 * 1024 * 1024
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if strings.TrimSpace(cfg.Telemetry.ServiceName) == "" {
		cfg.Telemetry.ServiceName = "snippet-relay"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("SNR_MODEL")); v != "" {
		cfg.Gemini.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("SNR_GEMINI_BASE_URL")); v != "" {
		cfg.Gemini.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SNR_LISTEN")); v != "" {
		cfg.Server.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("SNR_TIMEOUT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Gemini.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SNR_RULES_FILE")); v != "" {
		cfg.Extract.RulesFile = v
	}
	// FLASK_DEBUG is honoured for existing launch scripts.
	cfg.Logging.Debug = envBool("FLASK_DEBUG", cfg.Logging.Debug)
	cfg.Logging.Debug = envBool("SNR_DEBUG", cfg.Logging.Debug)
	if cfg.Logging.Debug {
		cfg.Logging.Level = "debug"
	}
	if v := strings.TrimSpace(os.Getenv("SNR_CLIPBOARD_ENABLED")); v != "" {
		b := envBool("SNR_CLIPBOARD_ENABLED", cfg.ClipboardEnabled())
		cfg.Clipboard.Enabled = &b
	}
	cfg.TrafficDump.Enabled = envBool("SNR_TRAFFIC_DUMP_ENABLED", cfg.TrafficDump.Enabled)
	if v := strings.TrimSpace(os.Getenv("SNR_TRAFFIC_DUMP_DIR")); v != "" {
		cfg.TrafficDump.Dir = v
	}
	cfg.Telemetry.TraceStdout = envBool("SNR_TRACE_STDOUT", cfg.Telemetry.TraceStdout)
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Gemini.APIKey) == "" {
		return errors.New("gemini.api_key is required (or set GEMINI_API_KEY)")
	}
	if cfg.TrafficDump.MaxBytes < 0 {
		return errors.New("traffic_dump.max_bytes must be non-negative")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is invalid (debug|info|warn|error)", cfg.Logging.Level)
	}
	return nil
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}
