/*
Package config provides configuration management for the blog generation backend.

Settings are read from the environment, after loading an optional .env file,
and grouped per component so each one receives its own typed configuration.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Nexora-Open-Source/blog-generator-backend/browser"
	"github.com/Nexora-Open-Source/blog-generator-backend/container"
	"github.com/Nexora-Open-Source/blog-generator-backend/generation"
	"github.com/Nexora-Open-Source/blog-generator-backend/jobs"
	"github.com/Nexora-Open-Source/blog-generator-backend/llm"
	"github.com/Nexora-Open-Source/blog-generator-backend/middleware"
	"github.com/Nexora-Open-Source/blog-generator-backend/scraper"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all application configuration
type Config struct {
	ProjectID      string
	LogLevel       string
	ServerPort     string
	JaegerEndpoint string
	// Rate limiting configuration
	RateLimitRequestsPerMinute float64
	RateLimitBurst             int
	ClientCleanupInterval      time.Duration
	CORSConfig                 CORSConfig

	Storage    StorageConfig
	Scraper    scraper.Config
	Browser    browser.Options
	LLM        llm.Config
	Generation GenerationConfig
	Jobs       jobs.Config
	// JobRetention is how long finished jobs stay queryable. Zero keeps them forever.
	JobRetention time.Duration
}

// StorageConfig locates the artifact directories
type StorageConfig struct {
	ContentDir string
	ArticleDir string
}

// GenerationConfig parameterizes summarization and article writing
type GenerationConfig struct {
	TokenBudget          int
	AvgTokensPerDocument int
	BrandName            string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	// Environment-specific settings
	Environment string
	// Allowed origins based on environment
	DevelopmentOrigins []string
	StagingOrigins     []string
	ProductionOrigins  []string
	// Additional CORS settings
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
	// Dynamic origin validation
	AllowSubdomains bool
	AllowedDomains  []string
}

// Services holds all service dependencies
type Services struct {
	Container *container.Container
	Logger    *logrus.Logger
}

// AppConfig holds both configuration and services
type AppConfig struct {
	Config   *Config
	Services *Services
}

// LoadEnvFile loads variables from path into the environment. A missing file
// is not an error and variables already set are kept.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// NewConfig creates a new configuration instance
func NewConfig() *Config {
	environment := getEnv("ENVIRONMENT", "development")
	defaults := scraper.DefaultConfig()

	azureEndpoint := getEnv("AZURE_OPENAI_ENDPOINT", "")
	model := getEnv("OPENAI_MODEL", "gpt-4o")
	if azureEndpoint != "" {
		model = getEnv("AZURE_OPENAI_DEPLOYMENT", "gpt-4o")
	}

	return &Config{
		ProjectID:      getEnv("PROJECT_ID", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		ServerPort:     getEnv("SERVER_PORT", "8000"),
		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		// Rate limiting defaults (10 requests per minute, burst of 5)
		RateLimitRequestsPerMinute: getEnvFloat("RATE_LIMIT_RPM", 10.0),
		RateLimitBurst:             getEnvInt("RATE_LIMIT_BURST", 5),
		ClientCleanupInterval:      getEnvDuration("CLIENT_CLEANUP_INTERVAL", 1*time.Minute),
		CORSConfig: CORSConfig{
			Environment: environment,
			DevelopmentOrigins: getEnvSlice("DEV_CORS_ORIGINS", []string{
				"http://localhost:3000",
				"http://127.0.0.1:3000",
				"http://localhost:8501",
				"http://localhost:8000",
			}),
			StagingOrigins: getEnvSlice("STAGING_CORS_ORIGINS", []string{
				"https://staging.yourdomain.com",
			}),
			ProductionOrigins: getEnvSlice("PROD_CORS_ORIGINS", []string{
				"https://yourdomain.com",
				"https://www.yourdomain.com",
			}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{
				"GET", "POST", "OPTIONS",
			}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{
				"Content-Type", "Authorization", "X-Requested-With",
				"X-Request-ID", "Accept", "Origin",
			}),
			ExposedHeaders: getEnvSlice("CORS_EXPOSED_HEADERS", []string{
				"X-Request-ID",
			}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getEnvInt("CORS_MAX_AGE", 86400), // 24 hours
			AllowSubdomains:  getEnvBool("CORS_ALLOW_SUBDOMAINS", false),
			AllowedDomains:   getEnvSlice("CORS_ALLOWED_DOMAINS", []string{}),
		},
		Storage: StorageConfig{
			ContentDir: getEnv("CONTENT_DIR", "files"),
			ArticleDir: getEnv("ARTICLE_DIR", "blogs"),
		},
		Scraper: scraper.Config{
			SearchURL:       getEnv("SEARCH_URL", defaults.SearchURL),
			MaxResults:      getEnvInt("SCRAPE_MAX_RESULTS", defaults.MaxResults),
			MaxRetries:      getEnvInt("SCRAPE_MAX_RETRIES", defaults.MaxRetries),
			PageLoadTimeout: getEnvDuration("PAGE_LOAD_TIMEOUT", defaults.PageLoadTimeout),
			Stagger:         getEnvDuration("SCRAPE_STAGGER", defaults.Stagger),
			ScrollPause:     getEnvDuration("SCRAPE_SCROLL_PAUSE", defaults.ScrollPause),
			Settle:          getEnvDuration("SCRAPE_SETTLE", defaults.Settle),
			BackPause:       getEnvDuration("SCRAPE_BACK_PAUSE", defaults.BackPause),
		},
		Browser: browser.Options{
			Headless:  getEnvBool("CHROME_HEADLESS", true),
			RemoteURL: getEnv("CHROME_REMOTE_URL", ""),
			UserAgent: getEnv("CHROME_USER_AGENT", ""),
		},
		LLM: llm.Config{
			APIKey:        getEnv("AZURE_OPENAI_API_KEY", getEnv("OPENAI_API_KEY", "")),
			AzureEndpoint: azureEndpoint,
			APIVersion:    getEnv("OPENAI_API_VERSION", "2023-03-15-preview"),
			Model:         model,
			BaseURL:       getEnv("OPENAI_BASE_URL", ""),
			Timeout:       getEnvDuration("LLM_TIMEOUT", 2*time.Minute),
			Temperature:   float32(getEnvFloat("LLM_TEMPERATURE", 0.7)),
		},
		Generation: GenerationConfig{
			TokenBudget:          getEnvInt("SUMMARY_TOKEN_BUDGET", generation.DefaultTokenBudget),
			AvgTokensPerDocument: getEnvInt("AVG_TOKENS_PER_DOCUMENT", generation.DefaultAvgTokensPerDocument),
			BrandName:            getEnv("BRAND_NAME", generation.DefaultBrand),
		},
		Jobs: jobs.Config{
			Workers:       getEnvInt("JOB_WORKERS", 3),
			QueueSize:     getEnvInt("JOB_QUEUE_SIZE", 50),
			SubmitTimeout: getEnvDuration("JOB_SUBMIT_TIMEOUT", 5*time.Second),
			JobTimeout:    getEnvDuration("JOB_TIMEOUT", 0),
		},
		JobRetention: getEnvDuration("JOB_RETENTION", 0),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("AZURE_OPENAI_API_KEY or OPENAI_API_KEY environment variable is required"))
	}
	if c.Jobs.Workers < 1 {
		errs = append(errs, fmt.Errorf("JOB_WORKERS must be positive, got %d", c.Jobs.Workers))
	}
	if c.Jobs.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("JOB_QUEUE_SIZE must be positive, got %d", c.Jobs.QueueSize))
	}
	if c.Jobs.SubmitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("JOB_SUBMIT_TIMEOUT must be positive"))
	}
	if c.Scraper.MaxResults < 1 {
		errs = append(errs, fmt.Errorf("SCRAPE_MAX_RESULTS must be at least 1, got %d", c.Scraper.MaxResults))
	}
	if c.Scraper.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("SCRAPE_MAX_RETRIES must not be negative, got %d", c.Scraper.MaxRetries))
	}
	return errors.Join(errs...)
}

// ArchiveEnabled reports whether articles are archived to Datastore
func (c *Config) ArchiveEnabled() bool {
	return c.ProjectID != ""
}

// NewServices creates and initializes all service dependencies using DI container
func NewServices(config *Config) (*Services, error) {
	logger := middleware.Logger
	if logger == nil {
		logger = middleware.InitLogger(config.LogLevel)
	}

	diContainer := container.NewContainer()
	err := diContainer.InitializeServices(container.Settings{
		ProjectID:    config.ProjectID,
		ContentDir:   config.Storage.ContentDir,
		ArticleDir:   config.Storage.ArticleDir,
		Scraper:      config.Scraper,
		Browser:      config.Browser,
		LLM:          config.LLM,
		BatchSize:    generation.BatchSize(config.Generation.TokenBudget, config.Generation.AvgTokensPerDocument),
		BrandName:    config.Generation.BrandName,
		Jobs:         config.Jobs,
		JobRetention: config.JobRetention,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dependency container: %w", err)
	}

	return &Services{
		Container: diContainer,
		Logger:    logger,
	}, nil
}

// NewAppConfig creates a new application configuration with all dependencies
func NewAppConfig() (*AppConfig, error) {
	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}

	config := NewConfig()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	services, err := NewServices(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &AppConfig{
		Config:   config,
		Services: services,
	}, nil
}

// Close gracefully closes all service connections
func (s *Services) Close() error {
	if s.Container != nil {
		return s.Container.Close()
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as float64 with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as time.Duration with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as bool with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvSlice gets an environment variable as a string slice with a default value
func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
