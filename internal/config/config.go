package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"` // "development" | "production"
	DSN            string                `yaml:"-"`
	RedisURL       string                `yaml:"-"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Paths          RuntimePathsConfig    `yaml:"paths"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	JWTSecret      string                `yaml:"jwt_secret"`
	AdminIDs       []string              `yaml:"admin_ids"`
	Timezone       string                `yaml:"timezone"`
	AI             AIConfig              `yaml:"ai"`
	Storage        StorageConfig         `yaml:"storage"`
	Grading        GradingConfig         `yaml:"grading"`
}

type rawAppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"`
	DSN            string                `yaml:"dsn"`
	RedisURL       string                `yaml:"redis_url"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Paths          RuntimePathsConfig    `yaml:"paths"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	JWTSecret      string                `yaml:"jwt_secret"`
	AdminIDs       []string              `yaml:"admin_ids"`
	Timezone       string                `yaml:"timezone"`
	AI             AIConfig              `yaml:"ai"`
	Storage        StorageConfig         `yaml:"storage"`
	Grading        GradingConfig         `yaml:"grading"`
}

// Load reads the YAML config at configPath, loads .env next to it when present,
// and applies PAPERGRADE_* environment overrides. A missing config file is not
// an error; defaults plus environment are used instead.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	if dir, err := filepath.Abs(filepath.Dir(path)); err == nil {
		SetBaseDir(dir)
	}
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	raw := rawAppConfig{}
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg := defaultAppConfig()
	applyRawAppConfig(&cfg, raw)
	applyEnvOverrides(&cfg)
	finalize(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w in %q", err, path)
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Storage: StorageConfig{Driver: defaultStorage},
		Grading: GradingConfig{
			MaxPages:        defaultMaxPages,
			MaxUploadMB:     defaultMaxUploadMB,
			MaxImageEdge:    defaultMaxEdge,
			AnalyzerTimeout: defaultAnalyzerTTL,
			RateLimit:       defaultRateLimit,
		},
	}
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}

	db := raw.Database
	if db.Host != "" {
		cfg.Database.Host = db.Host
	}
	if db.Port != 0 {
		cfg.Database.Port = db.Port
	}
	if db.User != "" {
		cfg.Database.User = db.User
	}
	if db.Password != "" {
		cfg.Database.Password = db.Password
	}
	if db.Name != "" {
		cfg.Database.Name = db.Name
	}
	if db.Charset != "" {
		cfg.Database.Charset = db.Charset
	}
	if db.Loc != "" {
		cfg.Database.Loc = db.Loc
	}
	if db.Params != nil {
		cfg.Database.Params = db.Params
	}
	cfg.Database.DSN = db.DSN
	cfg.Database.URL = db.URL
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.Database.DSN = v
	}

	rd := raw.Redis
	if rd.Host != "" {
		cfg.Redis.Host = rd.Host
	}
	if rd.Port != 0 {
		cfg.Redis.Port = rd.Port
	}
	if rd.DB != 0 {
		cfg.Redis.DB = rd.DB
	}
	cfg.Redis.Username = rd.Username
	cfg.Redis.Password = rd.Password
	cfg.Redis.TLS = rd.TLS
	cfg.Redis.URL = rd.URL
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.Redis.URL = v
	}

	cfg.Paths = raw.Paths
	if raw.AllowedOrigins != nil {
		cfg.AllowedOrigins = raw.AllowedOrigins
	}
	cfg.JWTSecret = strings.TrimSpace(raw.JWTSecret)
	cfg.AdminIDs = raw.AdminIDs
	cfg.Timezone = strings.TrimSpace(raw.Timezone)
	cfg.AI = raw.AI

	if raw.Storage.Driver != "" {
		cfg.Storage.Driver = raw.Storage.Driver
	}
	cfg.Storage.S3 = raw.Storage.S3

	g := raw.Grading
	if g.MaxPages != 0 {
		cfg.Grading.MaxPages = g.MaxPages
	}
	if g.MaxUploadMB != 0 {
		cfg.Grading.MaxUploadMB = g.MaxUploadMB
	}
	if g.MaxImageEdge != 0 {
		cfg.Grading.MaxImageEdge = g.MaxImageEdge
	}
	if g.AnalyzerTimeout != 0 {
		cfg.Grading.AnalyzerTimeout = g.AnalyzerTimeout
	}
	if g.RateLimit != 0 {
		cfg.Grading.RateLimit = g.RateLimit
	}
}

func finalize(cfg *AppConfig) {
	cfg.Env = normalizeEnv(cfg.Env)
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)
	cfg.Storage = normalizeStorageConfig(cfg.Storage)
	cfg.Grading = normalizeGradingConfig(cfg.Grading)
	cfg.AI = normalizeAIConfig(cfg.AI)
	cfg.AdminIDs = normalizeIDs(cfg.AdminIDs)
	cfg.AllowedOrigins = normalizeIDs(cfg.AllowedOrigins)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
}

func (c *AppConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", c.Port)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database.port %d, expected 1-65535", c.Database.Port)
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d, expected 1-65535", c.Redis.Port)
	}
	if c.Storage.Driver == "s3" && c.Storage.S3.Bucket == "" {
		return errors.New("storage.s3.bucket is required when storage.driver is s3")
	}
	return nil
}

func (c *AppConfig) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// IsAdmin reports whether userID is on the admin allow-list.
func (c *AppConfig) IsAdmin(userID string) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *AppConfig) LogDir() string {
	return ResolveRuntimePath(c.Paths.Logs, "logs")
}

func (c *AppConfig) UploadDir() string {
	return ResolveRuntimePath(c.Paths.Uploads, filepath.Join("tmp", "uploads"))
}

func (c *AppConfig) StorageDir() string {
	return ResolveRuntimePath(c.Paths.Storage, "storage")
}

func (c *AppConfig) AnalyzerTimeout() time.Duration {
	return time.Duration(c.Grading.AnalyzerTimeout) * time.Second
}

func (c *AppConfig) MaxUploadBytes() int64 {
	return int64(c.Grading.MaxUploadMB) * 1024 * 1024
}
