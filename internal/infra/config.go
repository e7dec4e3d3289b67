package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"xrpl_qr/internal/domain"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// DefaultConfig 위에 YAML 파일, .env, XRPQR_* 환경 변수 순서로 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Network struct {
		Scheme          string `yaml:"scheme"`
		NativeCode      string `yaml:"native_code"`
		NativePrecision int32  `yaml:"native_precision"`
		NativePriceID   string `yaml:"native_price_id"` // CoinGecko id
	} `yaml:"network"`

	Token struct {
		Code        string `yaml:"code"`
		Issuer      string `yaml:"issuer"`
		PegCurrency string `yaml:"peg_currency"`
		Precision   int32  `yaml:"precision"`
	} `yaml:"token"`

	PriceService struct {
		URL              string `yaml:"url"`
		APIKey           string `yaml:"api_key"`
		ReferenceAssetID string `yaml:"reference_asset_id"`
		TimeoutSec       int    `yaml:"timeout_sec"`
		CacheTTLSec      int    `yaml:"cache_ttl_sec"` // 0 disables the cache
		RequestsPerMin   int    `yaml:"requests_per_min"`
		Burst            int    `yaml:"burst"`
		Breaker          struct {
			FailureThreshold int `yaml:"failure_threshold"`
			SuccessThreshold int `yaml:"success_threshold"`
			CooldownSec      int `yaml:"cooldown_sec"`
		} `yaml:"breaker"`
	} `yaml:"price_service"`

	// Fallback maps a currency code to its approximate quotes.
	Fallback map[string]FallbackConfig `yaml:"fallback"`

	Storage struct {
		Driver string `yaml:"driver"` // "sqlite" or "bolt"
		Path   string `yaml:"path"`   // Empty: workspace data dir
	} `yaml:"storage"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	QR struct {
		Size int `yaml:"size"`
	} `yaml:"qr"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // "text" or "json"
	} `yaml:"logging"`
}

// FallbackConfig is one row of the static rate table, as decimal strings.
type FallbackConfig struct {
	NativePrice string `yaml:"native_price"`
	USDRate     string `yaml:"usd_rate"`
}

// DefaultConfig returns a configuration that works without any file.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = AppName
	cfg.App.Version = "0.1.0"

	cfg.Network.Scheme = "xrpl"
	cfg.Network.NativeCode = "XRP"
	cfg.Network.NativePrecision = 6
	cfg.Network.NativePriceID = "ripple"

	cfg.Token.Code = "RLUSD"
	cfg.Token.Issuer = "rMxCKbEDwqr76QuheSUMdEGf4B9xJ8m5De"
	cfg.Token.PegCurrency = "USD"
	cfg.Token.Precision = 2

	cfg.PriceService.URL = "https://api.coingecko.com/api/v3"
	cfg.PriceService.ReferenceAssetID = "ripple"
	cfg.PriceService.TimeoutSec = 8
	cfg.PriceService.CacheTTLSec = 30
	cfg.PriceService.RequestsPerMin = 20
	cfg.PriceService.Burst = 5
	cfg.PriceService.Breaker.FailureThreshold = 3
	cfg.PriceService.Breaker.SuccessThreshold = 1
	cfg.PriceService.Breaker.CooldownSec = 30

	cfg.Fallback = map[string]FallbackConfig{
		"USD": {NativePrice: "0.52", USDRate: "1"},
		"EUR": {NativePrice: "0.45", USDRate: "1.09"},
	}

	cfg.Storage.Driver = "sqlite"
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.QR.Size = 200
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
// A missing file is not an error unless required is set; defaults apply.
func LoadConfig(path string, required bool) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Fallback rows in the file replace the defaults wholesale.
		var fileCfg struct {
			Fallback map[string]FallbackConfig `yaml:"fallback"`
		}
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if len(fileCfg.Fallback) > 0 {
			cfg.Fallback = nil
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	loadDotEnv(filepath.Dir(path))
	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Network.Scheme == "" {
		return fmt.Errorf("network scheme is required")
	}
	if c.Network.NativePriceID == "" {
		return fmt.Errorf("native price id is required")
	}
	if c.Network.NativePrecision < 0 || c.Token.Precision < 0 {
		return fmt.Errorf("precision must not be negative")
	}
	if c.Token.Code == "" {
		return fmt.Errorf("token code is required")
	}
	if !domain.ValidateAddress(c.Token.Issuer) {
		return fmt.Errorf("invalid token issuer: %q", c.Token.Issuer)
	}
	if _, err := domain.ParseFiatCurrency(c.Token.PegCurrency); err != nil {
		return fmt.Errorf("invalid peg currency: %w", err)
	}
	if _, ok := c.Fallback[strings.ToUpper(c.Token.PegCurrency)]; !ok {
		return fmt.Errorf("fallback table has no row for peg currency %s", c.Token.PegCurrency)
	}
	if !strings.HasPrefix(c.PriceService.URL, "http://") && !strings.HasPrefix(c.PriceService.URL, "https://") {
		return fmt.Errorf("invalid price service URL: %s", c.PriceService.URL)
	}
	if c.PriceService.TimeoutSec <= 0 {
		return fmt.Errorf("price service timeout must be positive")
	}
	if len(c.Fallback) == 0 {
		return fmt.Errorf("fallback table must not be empty")
	}
	switch c.Storage.Driver {
	case "sqlite", "bolt":
	default:
		return fmt.Errorf("unknown storage driver: %s", c.Storage.Driver)
	}
	if c.QR.Size < 64 {
		return fmt.Errorf("qr size must be at least 64 pixels")
	}
	return nil
}

// loadDotEnv loads .env next to the config file, then from the working
// directory. Existing environment variables always win.
func loadDotEnv(dir string) {
	for _, p := range []string{filepath.Join(dir, ".env"), ".env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("XRPQR_PRICE_URL"); v != "" {
		cfg.PriceService.URL = v
	}
	if v := os.Getenv("XRPQR_PRICE_API_KEY"); v != "" {
		cfg.PriceService.APIKey = v
	}
	if v := os.Getenv("XRPQR_PRICE_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PriceService.TimeoutSec = n
		}
	}
	if v := os.Getenv("XRPQR_TOKEN_ISSUER"); v != "" {
		cfg.Token.Issuer = v
	}
	if v := os.Getenv("XRPQR_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("XRPQR_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("XRPQR_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("XRPQR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
