package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                   string
	DBUrl                  string
	JWTSecret              string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	AppEnv                 string
	DefaultTraineeEmail    string
	DefaultTraineePassword string
	DefaultCoachEmail      string
	DefaultCoachPassword   string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		Port:                   getEnv("PORT", "8080"),
		DBUrl:                  getEnv("DB_URL", ""),
		JWTSecret:              jwtSecret,
		RedisAddr:              getEnv("REDIS_ADDR", ""),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisDB:                getEnvInt("REDIS_DB", 0),
		AppEnv:                 normalizeEnv(getEnv("APP_ENV", "production")),
		DefaultTraineeEmail:    getEnv("DEFAULT_TRAINEE_EMAIL", ""),
		DefaultTraineePassword: getEnv("DEFAULT_TRAINEE_PASSWORD", ""),
		DefaultCoachEmail:      getEnv("DEFAULT_COACH_EMAIL", ""),
		DefaultCoachPassword:   getEnv("DEFAULT_COACH_PASSWORD", ""),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) RedisEnabled() bool {
	return c != nil && c.RedisAddr != ""
}
