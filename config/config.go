package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries everything the service reads from the environment. It is
// loaded once in main and passed down explicitly.
type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string

	JWTSecret      string
	ServerPort     string
	AllowedOrigins []string

	// Base URL the verification harness points its HTTP calls at.
	APIBaseURL string
}

// Load reads a .env file when present and falls back to process environment
// variables, applying the documented defaults for anything unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "movie_recommendation_app"),
		JWTSecret:  os.Getenv("JWT_SECRET"),
		ServerPort: getEnv("PORT", "3000"),
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:3000"),
	}

	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:4200")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET must be set")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// DSN builds the MySQL connection string for the application database.
// parseTime makes TIMESTAMP columns scan into time.Time.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:3306)/%s?parseTime=true", c.DBUser, c.DBPassword, c.DBHost, c.DBName)
}

// AdminDSN is the same connection without a database selected, used by the
// harness before the database exists.
func (c *Config) AdminDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:3306)/?parseTime=true", c.DBUser, c.DBPassword, c.DBHost)
}

func (c *Config) GetJWTSecret() string { return c.JWTSecret }

func (c *Config) GetServerPort() string { return c.ServerPort }

func (c *Config) GetAllowedOrigins() []string { return c.AllowedOrigins }
