package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvFeeTablePath     = "ARBENGINE_FEE_TABLE"
	EnvSnapshotPath     = "ARBENGINE_SNAPSHOT"
	EnvCommitmentSecret = "ARBENGINE_COMMITMENT_SECRET"
)

// LoadEnv loads environment variables from .env file
func LoadEnv() error {
	return godotenv.Load()
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// applyEnv layers env overrides on top of file settings.
func applyEnv(cfg *Config) {
	cfg.FeeTablePath = GetEnvWithDefault(EnvFeeTablePath, cfg.FeeTablePath)
	cfg.SnapshotPath = GetEnvWithDefault(EnvSnapshotPath, cfg.SnapshotPath)
	cfg.CommitmentSecret = GetEnvWithDefault(EnvCommitmentSecret, cfg.CommitmentSecret)
}
