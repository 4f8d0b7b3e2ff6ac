// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "quill-dev-secret-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env            string `mapstructure:"APP_ENV"`
	Port           string `mapstructure:"PORT"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	JWTTTLHours    int    `mapstructure:"JWT_TTL_HOURS"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`

	DBDriver     string `mapstructure:"DB_DRIVER"`
	DBHost       string `mapstructure:"DB_HOST"`
	DBPort       string `mapstructure:"DB_PORT"`
	DBUser       string `mapstructure:"DB_USER"`
	DBPassword   string `mapstructure:"DB_PASSWORD"`
	DBName       string `mapstructure:"DB_NAME"`
	DBSSLMode    string `mapstructure:"DB_SSLMODE"`
	DBSQLitePath string `mapstructure:"DB_SQLITE_PATH"`

	RedisURL string `mapstructure:"REDIS_URL"`

	PostsPerPage            int `mapstructure:"POSTS_PER_PAGE"`
	ProfilesPerPage         int `mapstructure:"PROFILES_PER_PAGE"`
	CommentMaxDepth         int `mapstructure:"COMMENT_MAX_DEPTH"`
	ScheduleGraceSeconds    int `mapstructure:"SCHEDULE_GRACE_SECONDS"`
	SlugMaxAttempts         int `mapstructure:"SLUG_MAX_ATTEMPTS"`
	CategoryCacheTTLSeconds int `mapstructure:"CATEGORY_CACHE_TTL_SECONDS"`

	MediaDir           string `mapstructure:"MEDIA_DIR"`
	AvatarMaxDimension int    `mapstructure:"AVATAR_MAX_DIMENSION"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional; environment variables alone are enough.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults(viper.GetViper())

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8375")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_TTL_HOURS", 72)
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:8375,http://127.0.0.1:8375")
	v.SetDefault("FEATURE_FLAGS", "")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "quill")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_SQLITE_PATH", "quill.db")
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("POSTS_PER_PAGE", 10)
	v.SetDefault("PROFILES_PER_PAGE", 20)
	v.SetDefault("COMMENT_MAX_DEPTH", 5)
	v.SetDefault("SCHEDULE_GRACE_SECONDS", 5)
	v.SetDefault("SLUG_MAX_ATTEMPTS", 10)
	v.SetDefault("CATEGORY_CACHE_TTL_SECONDS", 60)
	v.SetDefault("MEDIA_DIR", "media")
	v.SetDefault("AVATAR_MAX_DIMENSION", 256)
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_EXPORTER", "stdout")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	v.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
}

// IsProduction reports whether the production profile is active.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// ScheduleGrace is the tolerance for scheduled times slightly in the past.
func (c *Config) ScheduleGrace() time.Duration {
	return time.Duration(c.ScheduleGraceSeconds) * time.Second
}

// CategoryCacheTTL is how long the category listing stays cached.
func (c *Config) CategoryCacheTTL() time.Duration {
	return time.Duration(c.CategoryCacheTTLSeconds) * time.Second
}

// JWTTTL is the lifetime of issued session tokens.
func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLHours) * time.Hour
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.CommentMaxDepth < 1 {
		return errors.New("COMMENT_MAX_DEPTH must be at least 1")
	}
	if c.PostsPerPage < 1 || c.PostsPerPage > 100 {
		return errors.New("POSTS_PER_PAGE must be between 1 and 100")
	}
	if c.ProfilesPerPage < 1 || c.ProfilesPerPage > 100 {
		return errors.New("PROFILES_PER_PAGE must be between 1 and 100")
	}
	if c.ScheduleGraceSeconds < 0 {
		return errors.New("SCHEDULE_GRACE_SECONDS must not be negative")
	}
	if c.SlugMaxAttempts < 1 {
		return errors.New("SLUG_MAX_ATTEMPTS must be at least 1")
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBDriver == "postgres" && (c.DBPassword == "password" || c.DBPassword == "") {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
