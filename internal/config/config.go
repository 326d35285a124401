package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	SNS    SNSConfig
	OTP    OTPConfig
	Token  TokenConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type SNSConfig struct {
	Region   string
	Endpoint string
}

type OTPConfig struct {
	Expiry        time.Duration
	PendingExpiry time.Duration
	CountryCode   string
}

type TokenConfig struct {
	SecretKey string
	Expiry    time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SNS: SNSConfig{
			Region:   getEnv("AWS_REGION", "us-east-1"),
			Endpoint: getEnv("SNS_ENDPOINT", ""),
		},
		OTP: OTPConfig{
			Expiry:        getEnvAsDuration("OTP_EXPIRY", 5*time.Minute),
			PendingExpiry: getEnvAsDuration("PENDING_OTP_EXPIRY", 10*time.Minute),
			CountryCode:   getEnv("COUNTRY_CODE", "+91"),
		},
		Token: TokenConfig{
			SecretKey: getEnv("TOKEN_SECRET_KEY", ""),
			Expiry:    getEnvAsDuration("TOKEN_EXPIRY", 15*time.Minute),
		},
	}

	if cfg.Token.SecretKey == "" {
		return nil, fmt.Errorf("TOKEN_SECRET_KEY environment variable is required")
	}

	if len(cfg.Token.SecretKey) < 32 {
		return nil, fmt.Errorf("TOKEN_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
