package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileOverlay is the optional YAML file that tunes the gateway and prompt.
type FileOverlay struct {
	Gateway struct {
		Labels        []string `yaml:"labels"`
		BlockLabels   []string `yaml:"block_labels"`
		MinConfidence *float64 `yaml:"min_confidence"`
	} `yaml:"gateway"`
	Prompt struct {
		Template string `yaml:"template"`
	} `yaml:"prompt"`
	Retrieval struct {
		TopK    int `yaml:"top_k"`
		MaxTopK int `yaml:"max_top_k"`
	} `yaml:"retrieval"`
}

// LoadDotEnv loads variables from a .env file without overriding the environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadAll reads .env, the environment and the optional YAML overlay.
func LoadAll() (Config, error) {
	if err := LoadDotEnv(os.Getenv("DOTENV_PATH")); err != nil {
		return Config{}, err
	}
	cfg := Load()
	if cfg.ConfigFile == "" {
		return cfg, nil
	}
	return ApplyFile(cfg, cfg.ConfigFile)
}

func ApplyFile(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	var overlay FileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if len(overlay.Gateway.Labels) > 0 {
		cfg.GatewayLabels = overlay.Gateway.Labels
	}
	if len(overlay.Gateway.BlockLabels) > 0 {
		cfg.GatewayBlockLabels = overlay.Gateway.BlockLabels
	}
	if overlay.Gateway.MinConfidence != nil {
		cfg.GatewayMinConfidence = *overlay.Gateway.MinConfidence
	}
	if overlay.Prompt.Template != "" {
		cfg.PromptTemplate = overlay.Prompt.Template
	}
	if overlay.Retrieval.TopK > 0 {
		cfg.RAGTopK = overlay.Retrieval.TopK
	}
	if overlay.Retrieval.MaxTopK > 0 {
		cfg.RAGMaxTopK = overlay.Retrieval.MaxTopK
	}
	return cfg, nil
}
