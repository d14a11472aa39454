package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "NOVELBOARD"
	defaultHTTPAddress         = "0.0.0.0:8080"
	defaultDatabaseDriver      = "sqlite"
	defaultDatabasePath        = "novelboard.db"
	defaultLogLevel            = "info"
	defaultTokenTTLMinutes     = 720
	defaultLoginRatePerMinute  = 20
	defaultCacheTTLMinutes     = 5
	minFirstPublishedLayout    = "2006-01-02"
	defaultMinFirstPublished   = "2024-02-01"
	defaultAllowedOriginsValue = "*"
)

var defaultRequiredKeywords = []string{"ネトコン14", "ネトコン１４"}

// AppConfig captures runtime configuration for the API server and CLI.
type AppConfig struct {
	HTTPAddress        string
	AllowedOrigins     []string
	DatabaseDriver     string
	DatabasePath       string
	DatabaseDSN        string
	LogLevel           string
	SigningSecret      string
	SharedPassword     string
	TokenTTL           time.Duration
	LoginRatePerMinute int
	Reviewers          []string
	PrimaryReviewers   []string
	CacheTTL           time.Duration
	WorkbookPath       string
	RequiredKeywords   []string
	MinFirstPublished  *time.Time
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", defaultAllowedOriginsValue)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("auth.login_rate_per_minute", defaultLoginRatePerMinute)
	configViper.SetDefault("cache.ttl_minutes", defaultCacheTTLMinutes)
	configViper.SetDefault("catalog.required_keywords", strings.Join(defaultRequiredKeywords, ","))
	configViper.SetDefault("catalog.min_first_published", defaultMinFirstPublished)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		AllowedOrigins:     splitList(configViper.GetString("http.allowed_origins")),
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:       configViper.GetString("database.path"),
		DatabaseDSN:        configViper.GetString("database.dsn"),
		LogLevel:           configViper.GetString("log.level"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		SharedPassword:     configViper.GetString("auth.password"),
		TokenTTL:           time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		LoginRatePerMinute: configViper.GetInt("auth.login_rate_per_minute"),
		Reviewers:          splitList(configViper.GetString("reviewers.all")),
		PrimaryReviewers:   splitList(configViper.GetString("reviewers.primary")),
		CacheTTL:           time.Duration(configViper.GetInt("cache.ttl_minutes")) * time.Minute,
		WorkbookPath:       configViper.GetString("catalog.workbook_path"),
		RequiredKeywords:   splitList(configViper.GetString("catalog.required_keywords")),
	}

	if raw := strings.TrimSpace(configViper.GetString("catalog.min_first_published")); raw != "" {
		parsed, err := time.Parse(minFirstPublishedLayout, raw)
		if err != nil {
			return AppConfig{}, fmt.Errorf("catalog.min_first_published must be YYYY-MM-DD: %w", err)
		}
		cfg.MinFirstPublished = &parsed
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadStorage parses only the keys the offline commands need.
func LoadStorage(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabaseDriver:   strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:     configViper.GetString("database.path"),
		DatabaseDSN:      configViper.GetString("database.dsn"),
		LogLevel:         configViper.GetString("log.level"),
		Reviewers:        splitList(configViper.GetString("reviewers.all")),
		PrimaryReviewers: splitList(configViper.GetString("reviewers.primary")),
		WorkbookPath:     configViper.GetString("catalog.workbook_path"),
	}
	if err := cfg.validateStorage(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.SharedPassword) == "" {
		return fmt.Errorf("auth.password is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.LoginRatePerMinute <= 0 {
		return fmt.Errorf("auth.login_rate_per_minute must be positive")
	}
	if len(c.Reviewers) == 0 && len(c.PrimaryReviewers) == 0 {
		return fmt.Errorf("reviewers.all is required")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache.ttl_minutes must be positive")
	}
	return nil
}

func (c AppConfig) validateStorage() error {
	switch c.DatabaseDriver {
	case "sqlite":
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case "mysql":
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for mysql")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or mysql, got %q", c.DatabaseDriver)
	}
	return nil
}

func splitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	values := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
