package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"
)

const (
	BackendAuto     = "auto"
	BackendJSONBin  = "jsonbin"
	BackendLocal    = "local"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"

	DefaultJSONBinURL     = "https://api.jsonbin.io/v3/b"
	DefaultPollInterval   = 3 * time.Second
	DefaultWriteCoolDown  = 600 * time.Millisecond
	DefaultHorizonDays    = 180
	DefaultLocalDBPath    = ".overlap/overlap.db"
	DefaultShareBaseURL   = "http://localhost:8080/"
	DefaultListen         = ":8080"
	DefaultAssistantModel = "gemini-2.0-flash"
	DefaultSuggestionsTab = "Suggestions"
)

// RecurringMark is a rule applied by `overlap recur --saved`
type RecurringMark struct {
	RRule  string `yaml:"rrule" validate:"required"`
	Action string `yaml:"action,omitempty" validate:"omitempty,oneof=fill clear"`
}

// Secrets are read from the environment, never from the config file
type Secrets struct {
	JSONBinToken  string
	APIKey        string
	PostgresURL   string
	RedisAddr     string
	RedisPassword string
}

// Config represents the application configuration
type Config struct {
	StoreBackend       string          `yaml:"storeBackend,omitempty" validate:"omitempty,oneof=auto jsonbin local postgres redis"`
	JSONBinURL         string          `yaml:"jsonbinURL,omitempty" validate:"omitempty,url"`
	RequestsPerSecond  float64         `yaml:"requestsPerSecond,omitempty" validate:"gte=0"`
	PollInterval       time.Duration   `yaml:"pollInterval,omitempty" validate:"gte=0"`
	WriteCoolDown      time.Duration   `yaml:"writeCoolDown,omitempty" validate:"gte=0"`
	HorizonDays        int             `yaml:"horizonDays,omitempty" validate:"omitempty,min=1,max=730"`
	LocalDBPath        string          `yaml:"localDBPath,omitempty"`
	ShareBaseURL       string          `yaml:"shareBaseURL,omitempty" validate:"omitempty,url"`
	Listen             string          `yaml:"listen,omitempty"`
	AssistantModel     string          `yaml:"assistantModel,omitempty"`
	GmailSender        string          `yaml:"gmailSender,omitempty" validate:"omitempty,email"`
	SuggestionsSheetID string          `yaml:"suggestionsSheetID,omitempty"`
	SuggestionsTab     string          `yaml:"suggestionsTab,omitempty"`
	RecurringMarks     []RecurringMark `yaml:"recurringMarks,omitempty" validate:"dive"`

	Secrets Secrets `yaml:"-"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Default returns the configuration used when no config file exists
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads overlap_config.yaml, falling back to defaults when absent
func Load() (*Config, error) {
	return LoadWithEnv("")
}

// LoadWithEnv loads the configuration for an environment. For example,
// env="test" looks for "overlap_config.test.yaml". A missing file is not
// an error; secrets are always read from the environment and .env.
func LoadWithEnv(env string) (*Config, error) {
	var cfg *Config

	configPath, err := findConfigFile(env)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = Default()
	case err != nil:
		return nil, fmt.Errorf("failed to find config file: %w", err)
	default:
		cfg, err = LoadFromPath(configPath)
		if err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.Secrets = SecretsFromEnv()
	return cfg, nil
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// SecretsFromEnv reads credentials from the process environment
func SecretsFromEnv() Secrets {
	return Secrets{
		JSONBinToken:  os.Getenv("JSONBIN_TOKEN"),
		APIKey:        os.Getenv("API_KEY"),
		PostgresURL:   os.Getenv("POSTGRES_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}
}

// Validate validates the configuration struct and checks rrule syntax
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	for i, mark := range cfg.RecurringMarks {
		if _, err := rrule.StrToRRule(mark.RRule); err != nil {
			return fmt.Errorf("invalid rrule in recurringMarks[%d]: %w", i, err)
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.StoreBackend == "" {
		c.StoreBackend = BackendAuto
	}
	if c.JSONBinURL == "" {
		c.JSONBinURL = DefaultJSONBinURL
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.WriteCoolDown == 0 {
		c.WriteCoolDown = DefaultWriteCoolDown
	}
	if c.HorizonDays == 0 {
		c.HorizonDays = DefaultHorizonDays
	}
	if c.LocalDBPath == "" {
		c.LocalDBPath = DefaultLocalDBPath
	}
	if c.ShareBaseURL == "" {
		c.ShareBaseURL = DefaultShareBaseURL
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.AssistantModel == "" {
		c.AssistantModel = DefaultAssistantModel
	}
	if c.SuggestionsTab == "" {
		c.SuggestionsTab = DefaultSuggestionsTab
	}
	for i := range c.RecurringMarks {
		if c.RecurringMarks[i].Action == "" {
			c.RecurringMarks[i].Action = "fill"
		}
	}
}

// ResolveBackend turns "auto" into a concrete backend: the remote store
// when its credential is present, otherwise the single-device local store
func (c *Config) ResolveBackend() string {
	if c.StoreBackend != BackendAuto && c.StoreBackend != "" {
		return c.StoreBackend
	}
	if c.Secrets.JSONBinToken != "" {
		return BackendJSONBin
	}
	return BackendLocal
}

// findConfigFile searches for overlap_config.yaml in the current directory
// and then the home directory. If env is provided it is added as an
// extension (e.g. "overlap_config.test.yaml").
func findConfigFile(env string) (string, error) {
	configFileName := "overlap_config.yaml"
	if env != "" {
		configFileName = "overlap_config." + env + ".yaml"
	}

	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("%s not found in current directory or home directory: %w", configFileName, fs.ErrNotExist)
}
