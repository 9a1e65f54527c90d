package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "PUSULA"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "pusula.db"
	defaultLogLevel      = "info"
	defaultTokenTTL      = 8 * time.Hour
	defaultFetchTimeout  = 30 * time.Second
	defaultAgentCronSpec = "0 0 7 * * *"
	defaultGeminiModel   = "gemini-2.5-flash"

	// Default workplace geofence: office coordinate plus radius in meters.
	defaultWorkplaceLatitude  = 40.9923
	defaultWorkplaceLongitude = 29.0275
	defaultWorkplaceRadiusM   = 250.0
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	AuthSigningSecret  string
	AuthIssuer         string
	AuthAudience       string
	AuthTokenTTL       time.Duration
	ERPBaseURL         string
	ERPAPIToken        string
	ERPFetchTimeout    time.Duration
	AgentCronSpec      string
	GeminiAPIKey       string
	GeminiModel        string
	WorkplaceLatitude  float64
	WorkplaceLongitude float64
	WorkplaceRadiusM   float64
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
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", "pusula-auth")
	configViper.SetDefault("auth.audience", "pusula-api")
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
	configViper.SetDefault("erp.fetch_timeout", defaultFetchTimeout)
	configViper.SetDefault("agent.cron", defaultAgentCronSpec)
	configViper.SetDefault("gemini.model", defaultGeminiModel)
	configViper.SetDefault("workplace.latitude", defaultWorkplaceLatitude)
	configViper.SetDefault("workplace.longitude", defaultWorkplaceLongitude)
	configViper.SetDefault("workplace.radius_m", defaultWorkplaceRadiusM)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		AuthSigningSecret:  configViper.GetString("auth.signing_secret"),
		AuthIssuer:         configViper.GetString("auth.issuer"),
		AuthAudience:       configViper.GetString("auth.audience"),
		AuthTokenTTL:       configViper.GetDuration("auth.token_ttl"),
		ERPBaseURL:         configViper.GetString("erp.base_url"),
		ERPAPIToken:        configViper.GetString("erp.api_token"),
		ERPFetchTimeout:    configViper.GetDuration("erp.fetch_timeout"),
		AgentCronSpec:      configViper.GetString("agent.cron"),
		GeminiAPIKey:       configViper.GetString("gemini.api_key"),
		GeminiModel:        configViper.GetString("gemini.model"),
		WorkplaceLatitude:  configViper.GetFloat64("workplace.latitude"),
		WorkplaceLongitude: configViper.GetFloat64("workplace.longitude"),
		WorkplaceRadiusM:   configViper.GetFloat64("workplace.radius_m"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.ERPBaseURL) == "" {
		return fmt.Errorf("erp.base_url is required")
	}
	if c.ERPFetchTimeout <= 0 {
		return fmt.Errorf("erp.fetch_timeout must be positive")
	}
	if c.WorkplaceRadiusM <= 0 {
		return fmt.Errorf("workplace.radius_m must be positive")
	}
	return nil
}
