package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// loadDotEnv populates the process environment from path without overriding
// variables that are already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

func lookupEnv(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// applyEnvOverrides lets deployments keep secrets out of config.yml.
func applyEnvOverrides(cfg *AppConfig) {
	if v, ok := lookupEnv("PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v, ok := lookupEnv("ENV"); ok {
		cfg.Env = v
	}
	if v, ok := lookupEnv("DSN"); ok {
		cfg.Database.DSN = v
	}
	if v, ok := lookupEnv("REDIS_URL"); ok {
		cfg.Redis.URL = v
	}
	if v, ok := lookupEnv("JWT_SECRET"); ok {
		cfg.JWTSecret = v
	}
	if v, ok := lookupEnv("ADMIN_IDS"); ok {
		cfg.AdminIDs = strings.Split(v, ",")
	}
	if v, ok := lookupEnv("S3_ACCESS_KEY_ID"); ok {
		cfg.Storage.S3.AccessKeyID = v
	}
	if v, ok := lookupEnv("S3_SECRET_ACCESS_KEY"); ok {
		cfg.Storage.S3.SecretAccessKey = v
	}

	// PAPERGRADE_AI_<PROVIDER_ID>_API_KEY, e.g. PAPERGRADE_AI_ANTHROPIC_API_KEY.
	for i := range cfg.AI.Providers {
		id := strings.TrimSpace(cfg.AI.Providers[i].ID)
		if id == "" {
			id = cfg.AI.Providers[i].Type
		}
		name := "AI_" + envKey(id) + "_API_KEY"
		if v, ok := lookupEnv(name); ok {
			cfg.AI.Providers[i].APIKey = v
		}
	}
}

func envKey(id string) string {
	upper := strings.ToUpper(strings.TrimSpace(id))
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
}
