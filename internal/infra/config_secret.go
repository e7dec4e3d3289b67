package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SecretConfig matches secrets/price.yaml. Kept out of config.yaml so the
// main file can be committed.
type SecretConfig struct {
	PriceService struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"price_service"`
}

// LoadSecretConfig loads the price service key from a separate yaml file.
// It returns error if file is missing (Fail Fast).
func LoadSecretConfig(path string) (*SecretConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret config: %w", err)
	}

	var cfg SecretConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse secret config: %w", err)
	}

	return &cfg, nil
}

// ApplySecrets copies secrets into cfg unless the environment already set them.
func ApplySecrets(cfg *Config, secrets *SecretConfig) {
	if os.Getenv("XRPQR_PRICE_API_KEY") != "" {
		return
	}
	if secrets.PriceService.APIKey != "" {
		cfg.PriceService.APIKey = secrets.PriceService.APIKey
	}
}
