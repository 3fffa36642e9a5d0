// Package config loads the assistant configuration from flags, environment,
// .env files and an optional config file using viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hupe1980/weathermesh/logging"
	"github.com/hupe1980/weathermesh/tool"
)

// EnvPrefix is prepended to every configuration key when read from the environment.
const EnvPrefix = "WEATHERMESH"

// Supported backends.
const (
	ProviderAzure     = "azure"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the fully resolved configuration.
type Config struct {
	Provider   string `mapstructure:"provider"`
	Endpoint   string `mapstructure:"endpoint"`
	APIVersion string `mapstructure:"api-version"`
	Model      string `mapstructure:"model"` // deployment name for azure
	APIKey     string `mapstructure:"api-key"`

	Seed        int64   `mapstructure:"seed"`
	MaxTokens   int64   `mapstructure:"max-tokens"`
	Temperature float64 `mapstructure:"temperature"`
	Stream      bool    `mapstructure:"stream"`

	Instructions     string        `mapstructure:"instructions"`
	MaxIterations    int           `mapstructure:"max-iterations"`
	ToolTimeout      time.Duration `mapstructure:"tool-timeout"`
	MaxParallelTools int           `mapstructure:"max-parallel-tools"`
	History          string        `mapstructure:"history"`
	MaxHistoryTurns  int           `mapstructure:"max-history-turns"`
	Tools            tool.Policy   `mapstructure:"tools"`
	HomeLocation     string        `mapstructure:"home-location"`

	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Verbose   bool            `mapstructure:"verbose"`
	NoColor   bool            `mapstructure:"no-color"`
}

// LogConfig selects log level and handler format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Telemetry exporters.
const (
	TelemetryNone   = "none"
	TelemetryStdout = "stdout"
)

// TelemetryConfig selects where spans and metrics go. File is only used by
// the stdout exporter; empty writes to stderr.
type TelemetryConfig struct {
	Exporter string `mapstructure:"exporter"`
	File     string `mapstructure:"file"`
}

// envAliases maps keys to additional environment variable names understood
// for compatibility with existing deployments.
var envAliases = map[string][]string{
	"endpoint":          {"AOAI_API_BASE", "AZURE_OPENAI_ENDPOINT"},
	"api-version":       {"AOAI_API_VERSION", "OPENAI_API_VERSION"},
	"model":             {"AOAI_LLM_DEPLOYMENT"},
	"azure-api-key":     {"AOAI_API_KEY", "AZURE_OPENAI_API_KEY"},
	"openai-api-key":    {"OPENAI_API_KEY"},
	"anthropic-api-key": {"ANTHROPIC_API_KEY"},
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderAzure)
	v.SetDefault("api-version", "2024-10-21")
	v.SetDefault("seed", 42)
	v.SetDefault("max-tokens", 16000)
	v.SetDefault("temperature", 0.0)
	v.SetDefault("stream", true)
	v.SetDefault("max-iterations", 10)
	v.SetDefault("tool-timeout", 15*time.Second)
	v.SetDefault("max-parallel-tools", 4)
	v.SetDefault("history", "thread")
	v.SetDefault("max-history-turns", 0)
	v.SetDefault("home-location", "Seattle")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("telemetry.exporter", TelemetryNone)
}

// AddFlags defines the command line flags. Bind them with v.BindPFlags.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("provider", ProviderAzure, "Model backend: azure, openai or anthropic")
	fs.String("endpoint", "", "Azure OpenAI endpoint or custom base URL")
	fs.String("api-version", "2024-10-21", "Azure OpenAI API version")
	fs.String("model", "", "Model name (deployment name for azure)")
	fs.String("api-key", "", "API key (azure falls back to DefaultAzureCredential when empty)")
	fs.Int64("seed", 42, "Sampling seed")
	fs.Int64("max-tokens", 16000, "Maximum tokens per model reply")
	fs.Float64("temperature", 0, "Sampling temperature")
	fs.Bool("stream", true, "Use the streaming API")
	fs.String("instructions", "", "Override the system instructions")
	fs.Int("max-iterations", 10, "Maximum model calls per exchange")
	fs.Duration("tool-timeout", 15*time.Second, "Timeout for a single tool call (0 disables)")
	fs.Int("max-parallel-tools", 4, "Maximum concurrent tool calls")
	fs.String("history", "thread", "History mode: thread keeps the conversation, prompt resets it every exchange")
	fs.Int("max-history-turns", 0, "Send only the most recent turns (0 sends everything)")
	fs.StringSlice("tools-include", nil, "Only advertise these tools")
	fs.StringSlice("tools-exclude", nil, "Never advertise these tools")
	fs.String("home-location", "Seattle", "Location returned by get_user_location")
	fs.String("log-level", "warn", "Log level: debug, info, warn, error")
	fs.String("log-format", "text", "Log format: text or json")
	fs.String("telemetry", TelemetryNone, "Telemetry exporter: none or stdout")
	fs.String("telemetry-file", "", "Write telemetry to this file instead of stderr")
	fs.BoolP("verbose", "v", false, "Print tool calls and results")
	fs.Bool("no-color", false, "Disable colored output")
}

// BindFlags binds the flags from AddFlags to their configuration keys.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return err
	}
	nested := map[string]string{
		"tools.include":      "tools-include",
		"tools.exclude":      "tools-exclude",
		"log.level":          "log-level",
		"log.format":         "log-format",
		"telemetry.exporter": "telemetry",
		"telemetry.file":     "telemetry-file",
	}
	for key, flag := range nested {
		if f := fs.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadDotEnv loads the given .env files, overriding variables already set.
// Missing files are skipped.
func LoadDotEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Overload(existing...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// Load resolves the configuration from v. cfgFile is optional.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	for key, aliases := range envAliases {
		names := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, err
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.APIKey == "" {
		cfg.APIKey = v.GetString(cfg.Provider + "-api-key")
	}

	return &cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case ProviderAzure:
		if c.Endpoint == "" {
			errs = append(errs, errors.New("endpoint is required for azure (AOAI_API_BASE)"))
		}
		if c.Model == "" {
			errs = append(errs, errors.New("model is required for azure (AOAI_LLM_DEPLOYMENT)"))
		}
		if c.APIVersion == "" {
			errs = append(errs, errors.New("api-version is required for azure (AOAI_API_VERSION)"))
		}
	case ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}

	if c.MaxTokens <= 0 {
		errs = append(errs, errors.New("max-tokens must be positive"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, errors.New("temperature must be within [0, 2]"))
	}
	if c.MaxIterations <= 0 {
		errs = append(errs, errors.New("max-iterations must be positive"))
	}
	if c.ToolTimeout < 0 {
		errs = append(errs, errors.New("tool-timeout must not be negative"))
	}
	if c.MaxParallelTools < 0 {
		errs = append(errs, errors.New("max-parallel-tools must not be negative"))
	}
	if c.History != "thread" && c.History != "prompt" {
		errs = append(errs, fmt.Errorf("history must be thread or prompt, got %q", c.History))
	}
	if len(c.Tools.Include) > 0 && len(c.Tools.Exclude) > 0 {
		errs = append(errs, errors.New("tools.include and tools.exclude are mutually exclusive"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	switch c.Telemetry.Exporter {
	case "", TelemetryNone, TelemetryStdout:
	default:
		errs = append(errs, fmt.Errorf("telemetry.exporter must be none or stdout, got %q", c.Telemetry.Exporter))
	}

	return errors.Join(errs...)
}

// LoggingConfig converts the log section for logging.NewLogger.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if lvl, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = lvl
	}
	cfg.Format = c.Log.Format
	return cfg
}
