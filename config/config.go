package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the circuit review service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Recognize RecognizeConfig `mapstructure:"recognize"`
	Search    SearchConfig    `mapstructure:"search"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Prompts   PromptsConfig   `mapstructure:"prompts"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains upstream model call settings
type LLMConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	APIKey             string        `mapstructure:"api_key"`
	Model              string        `mapstructure:"model"`
	VisionModel        string        `mapstructure:"vision_model"`
	ConsolidationModel string        `mapstructure:"consolidation_model"`
	Timeout            time.Duration `mapstructure:"timeout"`
	FetchRetries       int           `mapstructure:"fetch_retries"`
}

// RecognizeConfig contains multi-pass recognition settings
type RecognizeConfig struct {
	Passes           int  `mapstructure:"passes"`
	EnrichDatasheets bool `mapstructure:"enrich_datasheets"`
}

// SearchConfig contains datasheet/web search settings
type SearchConfig struct {
	Provider string `mapstructure:"provider"` // brave, serper, scrape
	APIKey   string `mapstructure:"api_key"`
	TopN     int    `mapstructure:"top_n"`
}

// ProgressConfig selects the timeline store backing
type ProgressConfig struct {
	Redis RedisConfig   `mapstructure:"redis"`
	TTL   time.Duration `mapstructure:"ttl"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a Redis backing is configured at all.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

// ArtifactsConfig contains artifact store settings
type ArtifactsConfig struct {
	Dir           string        `mapstructure:"dir"`
	BaseURL       string        `mapstructure:"base_url"`
	RetentionCron string        `mapstructure:"retention_cron"`
	RetentionAge  time.Duration `mapstructure:"retention_age"`
}

// PromptsConfig contains prompt loading settings
type PromptsConfig struct {
	Dir    string `mapstructure:"dir"`
	Lang   string `mapstructure:"lang"`
	Strict bool   `mapstructure:"strict"`
}

// SessionsConfig contains saved-session storage settings
type SessionsConfig struct {
	Dir string `mapstructure:"dir"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthHeader renders the configured credential as a request header value.
func (c LLMConfig) AuthHeader() string {
	if c.APIKey == "" {
		return ""
	}
	if strings.HasPrefix(c.APIKey, "Bearer ") {
		return c.APIKey
	}
	return "Bearer " + c.APIKey
}

func (c LLMConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if c.FetchRetries < 0 {
		return fmt.Errorf("llm.fetch_retries must not be negative")
	}
	return nil
}

// LoadConfig loads config from file, falling back to defaults when no file exists
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":10080")
	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.model", "gpt-4o")
	viper.SetDefault("llm.vision_model", "gpt-4o")
	viper.SetDefault("llm.timeout", 30*time.Minute)
	viper.SetDefault("llm.fetch_retries", 2)
	viper.SetDefault("recognize.passes", 5)
	viper.SetDefault("recognize.enrich_datasheets", true)
	viper.SetDefault("search.provider", "scrape")
	viper.SetDefault("search.top_n", 3)
	viper.SetDefault("progress.ttl", 2*time.Hour)
	viper.SetDefault("artifacts.dir", "./data/artifacts")
	viper.SetDefault("artifacts.base_url", "/artifacts")
	viper.SetDefault("artifacts.retention_age", 7*24*time.Hour)
	viper.SetDefault("prompts.dir", "./prompts")
	viper.SetDefault("prompts.lang", "zh")
	viper.SetDefault("sessions.dir", "./data/sessions")
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("CIRCUITREVIEW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	applyEnvOverrides(&config)

	if err := config.LLM.Validate(); err != nil {
		panic(err)
	}
	return &config
}

// applyEnvOverrides honors the well-known environment variables that predate
// the CIRCUITREVIEW_* scheme.
func applyEnvOverrides(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if v := os.Getenv("LLM_FETCH_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.LLM.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("LLM_FETCH_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.LLM.FetchRetries = n
		}
	}
}
