package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		if strings.TrimSpace(u) == "" {
			d.Duration = 0
			return nil
		}
		dd, err := time.ParseDuration(u)
		if err != nil {
			return err
		}
		d.Duration = dd
		return nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a JSON string like \"30s\" or an int nanoseconds: %w", err)
	}
	d.Duration = time.Duration(n)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			MaxRequestBytes:   4 << 20,
		},
		Upstream: UpstreamConfig{
			BaseURL:             "https://openrouter.ai/api",
			ChatCompletionsPath: "/v1/chat/completions",
			ModelsPath:          "/v1/models",
			Timeout:             Duration{Duration: 60 * time.Second},
		},
		Catalog: CatalogConfig{
			CacheTTL: Duration{Duration: 5 * time.Minute},
		},
		Store: StoreConfig{
			Path: "tandem.db",
		},
		Defaults: TurnDefaults{
			Model:       "openai/gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   1024,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("TANDEM_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "config.json")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}

	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		var loaded Config
		if err := json.Unmarshal(b, &loaded); err != nil {
			return nil, err
		}
		*cfg = loaded
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("LOG_MODE")); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(os.Getenv("TANDEM_HTTP_ADDR")); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("TANDEM_ALLOWED_ORIGINS")); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		cfg.HTTP.AllowedOrigins = origins
	}
	if v := strings.TrimSpace(os.Getenv("TANDEM_UPSTREAM_BASE_URL")); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TANDEM_UPSTREAM_API_KEY")); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("TANDEM_DB_PATH")); v != "" {
		cfg.Store.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Catalog.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("TANDEM_DEFAULT_MODEL")); v != "" {
		cfg.Defaults.Model = v
	}
}

func validate(cfg *Config) error {
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.MaxRequestBytes <= 0 {
		cfg.HTTP.MaxRequestBytes = 4 << 20
	}

	cfg.Upstream.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Upstream.BaseURL), "/")
	if cfg.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required")
	}
	if strings.TrimSpace(cfg.Upstream.ChatCompletionsPath) == "" {
		cfg.Upstream.ChatCompletionsPath = "/v1/chat/completions"
	}
	if strings.TrimSpace(cfg.Upstream.ModelsPath) == "" {
		cfg.Upstream.ModelsPath = "/v1/models"
	}
	if cfg.Upstream.Timeout.Duration <= 0 {
		cfg.Upstream.Timeout = Duration{Duration: 60 * time.Second}
	}
	if cfg.Upstream.StreamTimeout.Duration < 0 {
		return errors.New("upstream.stream_timeout must not be negative")
	}

	if cfg.Catalog.CacheTTL.Duration < 0 {
		return errors.New("catalog.cache_ttl must not be negative")
	}
	if cfg.Catalog.CacheTTL.Duration == 0 {
		cfg.Catalog.CacheTTL = Duration{Duration: 5 * time.Minute}
	}

	if strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = "tandem.db"
	}
	if strings.TrimSpace(cfg.Defaults.Model) == "" {
		return errors.New("defaults.model is required")
	}
	if cfg.Defaults.MaxTokens <= 0 {
		cfg.Defaults.MaxTokens = 1024
	}
	return nil
}
