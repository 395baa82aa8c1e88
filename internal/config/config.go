// Package config loads and validates all runtime configuration for the
// orchestrator.
//
// Configuration is read from environment variables (preferred for
// containers) or from a config.yaml file in the working directory.
// Environment variables take precedence over the YAML file.
//
// Naming convention: env vars use UPPER_SNAKE_CASE; the YAML file uses the
// same names in lower_snake_case.
//
// Only one provider API key is strictly required for the orchestrator to
// start, unless AllowClientAPIKeys is set.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
)

// Config is the top-level configuration container, mirroring spec.md §6's
// AI.Orchestration.* / AI.Providers.<Name>.* configuration surface.
type Config struct {
	Port     int
	LogLevel string

	Orchestration OrchestrationConfig

	// Providers holds one ProviderConfiguration per configured adapter,
	// keyed by adapter name ("openai", "anthropic", "bedrock", "ollama", ...).
	// A provider absent from this map, or present with IsEnabled=false, is
	// never registered.
	Providers map[string]orchestrator.ProviderConfiguration

	Redis      RedisConfig
	ClickHouse ClickHouseConfig
	Cache      CacheExclusionConfig

	CORSOrigins []string

	// WatsonProjectID is passed through to adapters that need it (spec.md §6).
	WatsonProjectID string

	// AllowClientAPIKeys enables forwarding client-supplied Authorization
	// headers directly to the upstream provider instead of the configured key.
	AllowClientAPIKeys bool
}

// OrchestrationConfig controls the orchestrator-level feature toggles of
// spec.md §6.
type OrchestrationConfig struct {
	EnableQuotaManagement   bool
	EnableAuditLogging      bool
	EnableCaching           bool
	EnableMetricsCollection bool

	// FallbackOrder overrides the registry's default priority-based ordering
	// with an explicit provider-name sequence. Empty means "use Priority".
	FallbackOrder []string
}

// RedisConfig holds connection settings shared by the cache and rate limiter.
type RedisConfig struct {
	URL string
}

// ClickHouseConfig holds connection settings for the SQL-backed quota,
// audit, and metrics sinks (spec.md §6's "persisted state" tables).
type ClickHouseConfig struct {
	DSN string
}

// CacheExclusionConfig lists models that never participate in response
// caching, applied across every provider (spec.md §4.6).
type CacheExclusionConfig struct {
	ExcludeExactModels  []string
	ExcludeModelPattern []string
}

// providerSpec is the static metadata needed to load one adapter's
// configuration from environment variables: the section name used in
// AI_PROVIDERS_<NAME>_* env vars, and a default base URL/model when the
// adapter has a well-known one.
type providerSpec struct {
	name           string
	envPrefix      string
	defaultBaseURL string
	defaultModel   string
	local          bool // no API key required
}

var knownProviders = []providerSpec{
	{name: "openai", envPrefix: "OPENAI", defaultModel: "gpt-4o"},
	{name: "anthropic", envPrefix: "ANTHROPIC", defaultModel: "claude-3-5-sonnet-20241022"},
	{name: "gemini", envPrefix: "GEMINI", defaultModel: "gemini-1.5-pro"},
	{name: "vertexai", envPrefix: "VERTEXAI", defaultModel: "gemini-1.5-pro"},
	{name: "mistral", envPrefix: "MISTRAL", defaultBaseURL: "https://api.mistral.ai/v1", defaultModel: "mistral-large-latest"},
	{name: "bedrock", envPrefix: "BEDROCK", defaultModel: "anthropic.claude-3-5-sonnet-20241022-v2:0"},
	{name: "azure", envPrefix: "AZURE", defaultModel: "azure-gpt-4o"},
	{name: "xai", envPrefix: "XAI", defaultBaseURL: "https://api.x.ai/v1", defaultModel: "grok-2"},
	{name: "deepseek", envPrefix: "DEEPSEEK", defaultBaseURL: "https://api.deepseek.com/v1", defaultModel: "deepseek-chat"},
	{name: "groq", envPrefix: "GROQ", defaultBaseURL: "https://api.groq.com/openai/v1", defaultModel: "llama-3.3-70b-versatile"},
	{name: "together", envPrefix: "TOGETHER", defaultBaseURL: "https://api.together.xyz/v1", defaultModel: "meta-llama/Llama-3.3-70B-Instruct-Turbo"},
	{name: "perplexity", envPrefix: "PERPLEXITY", defaultBaseURL: "https://api.perplexity.ai", defaultModel: "sonar"},
	{name: "cerebras", envPrefix: "CEREBRAS", defaultBaseURL: "https://api.cerebras.ai/v1", defaultModel: "llama-3.3-70b"},
	{name: "moonshot", envPrefix: "MOONSHOT", defaultBaseURL: "https://api.moonshot.cn/v1", defaultModel: "moonshot-v1-8k"},
	{name: "minimax", envPrefix: "MINIMAX", defaultBaseURL: "https://api.minimax.chat/v1", defaultModel: "abab6.5-chat"},
	{name: "qwen", envPrefix: "QWEN", defaultBaseURL: "https://dashscope-intl.aliyuncs.com/compatible-mode/v1", defaultModel: "qwen-max"},
	{name: "nebius", envPrefix: "NEBIUS", defaultBaseURL: "https://api.studio.nebius.ai/v1", defaultModel: "meta-llama/Llama-3.3-70B-Instruct"},
	{name: "novita", envPrefix: "NOVITA", defaultBaseURL: "https://api.novita.ai/v3/openai", defaultModel: "meta-llama/llama-3.3-70b-instruct"},
	{name: "bytedance", envPrefix: "BYTEDANCE", defaultBaseURL: "https://ark.cn-beijing.volces.com/api/v3"},
	{name: "zai", envPrefix: "ZAI", defaultBaseURL: "https://api.z.ai/api/openai/v1"},
	{name: "canopywave", envPrefix: "CANOPYWAVE", defaultBaseURL: "https://api.canopywave.com/v1"},
	{name: "inference", envPrefix: "INFERENCE", defaultBaseURL: "https://api.inference.net/v1"},
	{name: "nanogpt", envPrefix: "NANOGPT", defaultBaseURL: "https://nano-gpt.com/api/v1"},
	{name: "ollama", envPrefix: "OLLAMA", defaultBaseURL: "http://localhost:11434", defaultModel: "llama3.2:3b", local: true},
	{name: "whispercpp", envPrefix: "WHISPERCPP", local: true},
}

// Load reads configuration from environment variables and (optionally) from
// config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", []string{"*"})
	v.SetDefault("AI_ORCHESTRATION_ENABLE_QUOTA_MANAGEMENT", false)
	v.SetDefault("AI_ORCHESTRATION_ENABLE_AUDIT_LOGGING", false)
	v.SetDefault("AI_ORCHESTRATION_ENABLE_CACHING", true)
	v.SetDefault("AI_ORCHESTRATION_ENABLE_METRICS_COLLECTION", true)
	v.SetDefault("ALLOW_CLIENT_API_KEYS", false)
	for _, spec := range knownProviders {
		v.SetDefault("AI_PROVIDERS_"+spec.envPrefix+"_ENABLE_CACHING", true)
		v.SetDefault("AI_PROVIDERS_"+spec.envPrefix+"_ENABLE_RATE_LIMITING", true)
		v.SetDefault("AI_PROVIDERS_"+spec.envPrefix+"_REQUESTS_PER_MINUTE", 60)
	}

	cfg := &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),

		Orchestration: OrchestrationConfig{
			EnableQuotaManagement:   v.GetBool("AI_ORCHESTRATION_ENABLE_QUOTA_MANAGEMENT"),
			EnableAuditLogging:      v.GetBool("AI_ORCHESTRATION_ENABLE_AUDIT_LOGGING"),
			EnableCaching:           v.GetBool("AI_ORCHESTRATION_ENABLE_CACHING"),
			EnableMetricsCollection: v.GetBool("AI_ORCHESTRATION_ENABLE_METRICS_COLLECTION"),
			FallbackOrder:           v.GetStringSlice("AI_ORCHESTRATION_FALLBACK_ORDER"),
		},

		Providers: make(map[string]orchestrator.ProviderConfiguration, len(knownProviders)),

		Redis:      RedisConfig{URL: v.GetString("REDIS_URL")},
		ClickHouse: ClickHouseConfig{DSN: v.GetString("CLICKHOUSE_DSN")},
		Cache: CacheExclusionConfig{
			ExcludeExactModels:  v.GetStringSlice("CACHE_EXCLUDE_EXACT_MODELS"),
			ExcludeModelPattern: v.GetStringSlice("CACHE_EXCLUDE_MODEL_PATTERNS"),
		},

		CORSOrigins:     v.GetStringSlice("CORS_ORIGINS"),
		WatsonProjectID: v.GetString("WATSON_PROJECT_ID"),

		AllowClientAPIKeys: v.GetBool("ALLOW_CLIENT_API_KEYS"),
	}

	for _, spec := range knownProviders {
		pc := loadProviderConfiguration(v, spec)
		if pc.IsEnabled {
			cfg.Providers[spec.name] = pc
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadProviderConfiguration builds one adapter's ProviderConfiguration from
// AI_PROVIDERS_<PREFIX>_* environment variables, per spec.md §6. Remote
// providers are enabled by a non-empty API key; local providers (ollama,
// whispercpp) are enabled by an explicit IS_ENABLED=true since they need no
// key.
func loadProviderConfiguration(v *viper.Viper, spec providerSpec) orchestrator.ProviderConfiguration {
	prefix := "AI_PROVIDERS_" + spec.envPrefix + "_"

	apiKey := v.GetString(prefix + "API_KEY")
	enabled := v.GetBool(prefix + "IS_ENABLED")
	if !spec.local && apiKey != "" {
		enabled = true
	}
	if v.IsSet(prefix+"IS_ENABLED") && !v.GetBool(prefix+"IS_ENABLED") {
		enabled = false
	}

	baseURL := v.GetString(prefix + "BASE_URL")
	if baseURL == "" {
		baseURL = spec.defaultBaseURL
	}
	model := v.GetString(prefix + "MODEL")
	if model == "" {
		model = spec.defaultModel
	}

	timeoutSeconds := v.GetInt(prefix + "TIMEOUT_SECONDS")
	maxRetries := v.GetInt(prefix + "MAX_RETRIES")
	if maxRetries == 0 {
		maxRetries = 3
	}
	cbFailures := v.GetInt(prefix + "CIRCUIT_BREAKER_FAILURES_BEFORE_BREAKING")
	if cbFailures == 0 {
		cbFailures = 5
	}
	cbDuration := v.GetInt(prefix + "CIRCUIT_BREAKER_DURATION_SECONDS")
	if cbDuration == 0 {
		cbDuration = 30
	}
	cacheDuration := v.GetInt(prefix + "CACHE_DURATION_MINUTES")
	if cacheDuration == 0 {
		cacheDuration = 60
	}
	rpm := v.GetInt(prefix + "REQUESTS_PER_MINUTE")

	return orchestrator.ProviderConfiguration{
		Name:                                 spec.name,
		Model:                                model,
		BaseURL:                              baseURL,
		APIKey:                               apiKey,
		IsEnabled:                            enabled,
		TimeoutSeconds:                       timeoutSeconds,
		MaxRetries:                           maxRetries,
		CircuitBreakerFailuresBeforeBreaking: cbFailures,
		CircuitBreakerDurationSeconds:        cbDuration,
		EnableCaching:                        v.GetBool(prefix + "ENABLE_CACHING"),
		CacheDurationMinutes:                 cacheDuration,
		EnableRateLimiting:                   v.GetBool(prefix + "ENABLE_RATE_LIMITING"),
		RequestsPerMinute:                    rpm,
		AdditionalSettings:                   additionalSettings(v, prefix, spec),
	}
}

// additionalSettings collects the handful of per-provider settings that
// don't fit the common ProviderConfiguration shape (region, project,
// deployment endpoint, server URL) into the catch-all map adapters read from.
func additionalSettings(v *viper.Viper, prefix string, spec providerSpec) map[string]any {
	out := map[string]any{}
	switch spec.name {
	case "vertexai":
		out["project"] = v.GetString(prefix + "PROJECT")
		out["location"] = v.GetString(prefix + "LOCATION")
	case "bedrock":
		out["region"] = v.GetString(prefix + "REGION")
		out["endpointUrl"] = v.GetString(prefix + "ENDPOINT_URL")
	case "azure":
		out["apiVersion"] = v.GetString(prefix + "API_VERSION")
	case "whispercpp":
		out["serverUrl"] = v.GetString(prefix + "SERVER_URL")
		if sr := v.GetInt(prefix + "SAMPLE_RATE"); sr > 0 {
			out["sampleRate"] = sr
		}
	}
	return out
}

// validate checks semantic constraints that cannot be expressed as defaults.
func (c *Config) validate() error {
	if !c.AllowClientAPIKeys && len(c.Providers) == 0 {
		return fmt.Errorf(
			"config: at least one provider must be configured (an AI_PROVIDERS_<NAME>_API_KEY, " +
				"or AI_PROVIDERS_OLLAMA_IS_ENABLED=true / AI_PROVIDERS_WHISPERCPP_IS_ENABLED=true for " +
				"local adapters). Set ALLOW_CLIENT_API_KEYS=true to require clients to supply their own keys.",
		)
	}

	if c.Orchestration.EnableQuotaManagement || c.Orchestration.EnableAuditLogging {
		if c.ClickHouse.DSN == "" {
			return fmt.Errorf("config: CLICKHOUSE_DSN is required when quota management or audit logging is enabled")
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error", c.LogLevel)
	}

	return nil
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}

// cacheTTL converts a provider's CacheDurationMinutes into a time.Duration,
// defaulting to one hour. Nothing in this package calls it; the adapter base
// computes each ResponseCache TTL itself.
func cacheTTL(pc orchestrator.ProviderConfiguration) time.Duration {
	if pc.CacheDurationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(pc.CacheDurationMinutes) * time.Minute
}
