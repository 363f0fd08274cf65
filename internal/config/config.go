package config

import "time"

type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `json:"addr"`
	ReadHeaderTimeout Duration `json:"read_header_timeout"`
	IdleTimeout       Duration `json:"idle_timeout"`
	ShutdownTimeout   Duration `json:"shutdown_timeout"`
	MaxRequestBytes   int64    `json:"max_request_bytes"`

	// AllowedOrigins is the CORS allowlist for the browser client.
	// Empty means same-origin only.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

type UpstreamConfig struct {
	// BaseURL is the OpenAI-compatible completion provider (OpenRouter by default).
	BaseURL string `json:"base_url"`

	// APIKey is sent as `Authorization: Bearer <api_key>`.
	APIKey string `json:"api_key,omitempty"`

	ChatCompletionsPath string `json:"chat_completions_path,omitempty"`
	ModelsPath          string `json:"models_path,omitempty"`

	// AppURL/AppName are forwarded as HTTP-Referer / X-Title attribution
	// headers, which OpenRouter uses for ranking. Optional.
	AppURL  string `json:"app_url,omitempty"`
	AppName string `json:"app_name,omitempty"`

	Timeout       Duration `json:"timeout,omitempty"`
	StreamTimeout Duration `json:"stream_timeout,omitempty"`
}

type CatalogConfig struct {
	// CacheTTL bounds how long a fetched model catalog may satisfy capability
	// checks across turns. Within a single turn the catalog is always fetched
	// at most once regardless of this value.
	CacheTTL Duration `json:"cache_ttl,omitempty"`

	// RedisAddr enables a shared catalog cache across instances. Empty means
	// a per-process in-memory cache.
	RedisAddr string `json:"redis_addr,omitempty"`
}

type StoreConfig struct {
	// Path is the sqlite database file. ":memory:" is accepted for tests.
	Path string `json:"path"`
}

type TurnDefaults struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type Config struct {
	Env      string         `json:"env"`
	HTTP     HTTPConfig     `json:"http"`
	Upstream UpstreamConfig `json:"upstream"`
	Catalog  CatalogConfig  `json:"catalog"`
	Store    StoreConfig    `json:"store"`
	Defaults TurnDefaults   `json:"defaults"`
}
