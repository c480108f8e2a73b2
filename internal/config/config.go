package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Upstream       UpstreamConfig       `yaml:"upstream"`
	Persona        PersonaConfig        `yaml:"persona"`
	Tools          ToolsConfig          `yaml:"tools"`
	Database       DatabaseConfig       `yaml:"database"`
	Logging        LoggingConfig        `yaml:"logging"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        string   `yaml:"port"`
	AppName     string   `yaml:"app_name"`
	CorsOrigins []string `yaml:"cors_origins"`
}

// UpstreamConfig selects the provider endpoint. BaseURL overrides the Vertex
// AI URL assembled from ProjectID and Location, which is how tests point the
// gateway at a local server.
type UpstreamConfig struct {
	APIKey    string `yaml:"api_key"`
	ProjectID string `yaml:"project_id"`
	Location  string `yaml:"location"`
	BaseURL   string `yaml:"base_url"`
}

type PersonaConfig struct {
	Text string `yaml:"text"`
}

type ToolsConfig struct {
	PaymentBaseURL  string `yaml:"payment_base_url"`
	ResultCacheSize int    `yaml:"result_cache_size"`
}

type DatabaseConfig struct {
	EnablePersistence bool   `yaml:"enable_persistence"`
	URL               string `yaml:"url"`
	Host              string `yaml:"host"`
	Port              string `yaml:"port"`
	User              string `yaml:"user"`
	Password          string `yaml:"password"`
	Name              string `yaml:"name"`
	SSLMode           string `yaml:"ssl_mode"`
	Workers           int    `yaml:"workers"`
	BufferSize        int    `yaml:"buffer_size"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	ReportCaller bool   `yaml:"report_caller"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	SuccessThreshold uint32        `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests"`
}

// LoadYAML loads configuration from YAML file with environment variable overrides
func LoadYAML(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	config := getDefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		yamlFile, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in YAML content
		expandedYAML := os.ExpandEnv(string(yamlFile))

		if err := yaml.Unmarshal([]byte(expandedYAML), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		logrus.WithField("config_file", configPath).Info("Loaded configuration from YAML file")
	} else {
		logrus.WithField("config_file", configPath).Warn("Config file not found, using defaults and environment variables")
	}

	config = applyEnvironmentOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// getDefaultConfig returns a configuration with sensible defaults
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        "8000",
			AppName:     "CourtVision Gateway",
			CorsOrigins: []string{"*"},
		},
		Upstream: UpstreamConfig{
			Location: "us-central1",
		},
		Persona: PersonaConfig{
			Text: "You are CourtVision VR's CoachBot, an AI-powered basketball analysis assistant. " +
				"Help coaches, analysts and referees review plays, answer tactical questions, and " +
				"adjudicate fouls and flops with clear, evidence-based reasoning. Keep answers " +
				"concise, jargon-friendly and grounded in spatial-temporal evidence.",
		},
		Tools: ToolsConfig{
			PaymentBaseURL:  "https://pay.example.com",
			ResultCacheSize: 256,
		},
		Database: DatabaseConfig{
			EnablePersistence: false,
			Host:              "localhost",
			Port:              "5432",
			User:              "courtvision",
			Name:              "courtvision",
			SSLMode:           "disable",
			Workers:           5,
			BufferSize:        1000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "auto",
			ReportCaller: false,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          60 * time.Second,
			MaxRequests:      3,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(config *Config) *Config {
	// Server overrides
	if val := os.Getenv("HOST"); val != "" {
		config.Server.Host = val
	}
	if val := os.Getenv("PORT"); val != "" {
		config.Server.Port = val
	}
	if val := os.Getenv("APP_NAME"); val != "" {
		config.Server.AppName = val
	}
	if val := os.Getenv("CORS_ORIGINS"); val != "" {
		config.Server.CorsOrigins = strings.Split(val, ",")
		for i := range config.Server.CorsOrigins {
			config.Server.CorsOrigins[i] = strings.TrimSpace(config.Server.CorsOrigins[i])
		}
	}

	// Upstream overrides
	if val := os.Getenv("GEMINI_API_KEY"); val != "" {
		config.Upstream.APIKey = val
	}
	if val := os.Getenv("GCP_PROJECT_ID"); val != "" {
		config.Upstream.ProjectID = val
	}
	if val := os.Getenv("LOCATION"); val != "" {
		config.Upstream.Location = val
	}
	if val := os.Getenv("UPSTREAM_BASE_URL"); val != "" {
		config.Upstream.BaseURL = val
	}

	// Persona overrides
	if val := os.Getenv("PERSONA_TEXT"); val != "" {
		config.Persona.Text = val
	}

	// Tools overrides
	if val := os.Getenv("PAYMENT_BASE_URL"); val != "" {
		config.Tools.PaymentBaseURL = val
	}
	if val := os.Getenv("TOOL_RESULT_CACHE_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Tools.ResultCacheSize = i
		}
	}

	// Database overrides
	if val := os.Getenv("ENABLE_PERSISTENCE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Database.EnablePersistence = b
		}
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		config.Database.URL = val
	}
	if val := os.Getenv("DATABASE_HOST"); val != "" {
		config.Database.Host = val
	}
	if val := os.Getenv("DATABASE_PORT"); val != "" {
		config.Database.Port = val
	}
	if val := os.Getenv("DATABASE_USER"); val != "" {
		config.Database.User = val
	}
	if val := os.Getenv("DATABASE_PASSWORD"); val != "" {
		config.Database.Password = val
	}
	if val := os.Getenv("DATABASE_NAME"); val != "" {
		config.Database.Name = val
	}
	if val := os.Getenv("DATABASE_SSL_MODE"); val != "" {
		config.Database.SSLMode = val
	}

	// Logging overrides
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("LOG_REPORT_CALLER"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Logging.ReportCaller = b
		}
	}

	// Circuit breaker overrides
	if val := os.Getenv("CIRCUIT_BREAKER_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.CircuitBreaker.Enabled = b
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.FailureThreshold = uint32(i)
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_SUCCESS_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.SuccessThreshold = uint32(i)
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.CircuitBreaker.Timeout = d
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_MAX_REQUESTS"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.MaxRequests = uint32(i)
		}
	}

	return config
}

// validateConfig validates the configuration and returns errors for invalid values.
// Missing credentials are fatal here, at startup, never at request time.
func validateConfig(config *Config) error {
	var errors []string

	if config.Upstream.APIKey == "" {
		errors = append(errors, "GEMINI_API_KEY is required")
	}

	if config.Upstream.BaseURL == "" && config.Upstream.ProjectID == "" {
		errors = append(errors, "GCP_PROJECT_ID is required when UPSTREAM_BASE_URL is not set")
	}

	if config.Persona.Text == "" {
		errors = append(errors, "persona text must not be empty")
	}

	if config.Tools.ResultCacheSize <= 0 {
		errors = append(errors, fmt.Sprintf("TOOL_RESULT_CACHE_SIZE must be positive (current: %d)", config.Tools.ResultCacheSize))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// UpstreamURL returns the fully assembled provider endpoint, including the
// API key query parameter the Vertex OpenAPI endpoint expects.
func (c *Config) UpstreamURL() string {
	if c.Upstream.BaseURL != "" {
		return fmt.Sprintf("%s?key=%s", strings.TrimRight(c.Upstream.BaseURL, "/"), c.Upstream.APIKey)
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/endpoints/openapi:predict?key=%s",
		c.Upstream.Location,
		c.Upstream.ProjectID,
		c.Upstream.Location,
		c.Upstream.APIKey,
	)
}

// GetDatabaseDSN constructs the database connection string
func (c *Config) GetDatabaseDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Load reads configuration from the default location.
func Load() (*Config, error) {
	return LoadYAML("")
}
