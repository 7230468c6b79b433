package config

import (
	"strings"

	"gopkg.in/yaml.v3"
)

type DatabaseRuntimeConfig struct {
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type RedisRuntimeConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

type RuntimePathsConfig struct {
	Logs    string `yaml:"logs"`
	Uploads string `yaml:"uploads"`
	Storage string `yaml:"storage"`
}

// StorageConfig selects where uploaded images are kept once a grading or paper is stored.
type StorageConfig struct {
	Driver string    `yaml:"driver"` // local | s3
	S3     S3Options `yaml:"s3"`
}

type S3Options struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	CustomDomain    string `yaml:"custom_domain"`
	PathStyleAccess bool   `yaml:"path_style_access"`
}

type GradingConfig struct {
	MaxPages        int `yaml:"max_pages"`
	MaxUploadMB     int `yaml:"max_upload_mb"`
	MaxImageEdge    int `yaml:"max_image_edge"`
	AnalyzerTimeout int `yaml:"analyzer_timeout"` // seconds per analyzer call
	RateLimit       int `yaml:"rate_limit"`       // grading requests per IP per minute, 0 disables
}

type AIConfig struct {
	Providers   []AIProvider       `yaml:"providers"`
	VisionModel *AIModelAssignment `yaml:"vision_model"`
	TextModel   *AIModelAssignment `yaml:"text_model"`
	// EnableSummary allows the chapter summary endpoint to generate on cache miss.
	EnableSummary bool `yaml:"enable_summary"`
}

type AIModelAssignment struct {
	ProviderID string `yaml:"provider_id"`
	Model      string `yaml:"model"`
}

type AIProvider struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"` // anthropic | openai | openai-compatible | openrouter | gemini
	APIKey       string `yaml:"api_key"`
	Endpoint     string `yaml:"endpoint"`
	DefaultModel string `yaml:"default_model"`
	Enabled      bool   `yaml:"enabled"`
}

// UnmarshalYAML accepts either a mapping or a bare "provider/model" string.
func (a *AIModelAssignment) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		raw := strings.TrimSpace(node.Value)
		if raw == "" {
			return nil
		}
		if provider, model, ok := strings.Cut(raw, "/"); ok {
			a.ProviderID = strings.TrimSpace(provider)
			a.Model = strings.TrimSpace(model)
			return nil
		}
		a.Model = raw
		return nil
	}

	var raw struct {
		ProviderID string `yaml:"provider_id"`
		Provider   string `yaml:"provider"`
		Model      string `yaml:"model"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	a.ProviderID = strings.TrimSpace(raw.ProviderID)
	if a.ProviderID == "" {
		a.ProviderID = strings.TrimSpace(raw.Provider)
	}
	a.Model = strings.TrimSpace(raw.Model)
	return nil
}
