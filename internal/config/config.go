package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root configuration for AgriBot.
type Config struct {
	General  GeneralConfig  `json:"general"`
	LLM      LLMConfig      `json:"llm"`
	Handlers HandlersConfig `json:"handlers"`
	Memory   MemoryConfig   `json:"memory"`
	Channels ChannelsConfig `json:"channels"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	Workspace             string `json:"workspace"`
	LogLevel              string `json:"logLevel"`
	LogFile               string `json:"logFile,omitempty"`
	DefaultLanguage       string `json:"defaultLanguage"`       // "en" | "hi"
	DefaultLocation       string `json:"defaultLocation"`       // used when the request carries none
	MaxConcurrentRequests int    `json:"maxConcurrentRequests"`
	HandlerTimeoutSeconds int    `json:"handlerTimeoutSeconds"` // per-handler budget inside the coordinator
}

// LLMConfig configures the text-generation completers.
type LLMConfig struct {
	Default        string                     `json:"default"`
	FailoverChain  []string                   `json:"failoverChain,omitempty"` // completer names, tried in order
	TimeoutSeconds int                        `json:"timeoutSeconds"`
	MaxRetries     int                        `json:"maxRetries"` // transient-failure retries per request
	Completers     map[string]CompleterConfig `json:"completers"`
}

type CompleterConfig struct {
	Enabled      bool   `json:"enabled"`
	APIBase      string `json:"apiBase,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	DefaultModel string `json:"defaultModel,omitempty"`
}

// HandlersConfig tunes the capability handlers.
type HandlersConfig struct {
	Weather WeatherConfig `json:"weather"`
	Market  MarketConfig  `json:"market"`
	Finance FinanceConfig `json:"finance"`
	Pest    PestConfig    `json:"pest"`
	General HandlerToggle `json:"general"`
}

type HandlerToggle struct {
	Enabled bool `json:"enabled"`
}

type WeatherConfig struct {
	Enabled        bool   `json:"enabled"`
	APIBase        string `json:"apiBase"`
	APIKey         string `json:"apiKey,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type MarketConfig struct {
	Enabled            bool   `json:"enabled"`
	PortalURL          string `json:"portalUrl"`       // eNAM-style commodity price endpoint
	TableURL           string `json:"tableUrl"`        // agmarknet-style commodity table
	CacheTTLMinutes    int    `json:"cacheTtlMinutes"`
	TierTimeoutSeconds int    `json:"tierTimeoutSeconds"`
	NearbyLimit        int    `json:"nearbyLimit"`     // bounded follow-up markets in tier 2
	KnowledgeFile      string `json:"knowledgeFile"`   // YAML price-range catalog
	BrowserFallback    bool   `json:"browserFallback"` // headless-browser pass for JS-rendered portals
	BrowserProfileDir  string `json:"browserProfileDir,omitempty"`
}

type FinanceConfig struct {
	Enabled     bool   `json:"enabled"`
	SchemesFile string `json:"schemesFile"` // YAML scheme catalog
	SearchTopK  int    `json:"searchTopK"`
}

type PestConfig struct {
	Enabled        bool   `json:"enabled"`
	ClassifierURL  string `json:"classifierUrl,omitempty"` // empty = classification unavailable
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type MemoryConfig struct {
	Enabled                   bool   `json:"enabled"`
	DBPath                    string `json:"dbPath"`
	MaxHistoryPerConversation int    `json:"maxHistoryPerConversation"`
	RetentionDays             int    `json:"retentionDays"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	CLI      CLIConfig      `json:"cli"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
	ParseMode string         `json:"parseMode"`
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	// Fallback: array of mixed types
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// DefaultConfigDir returns the default config directory (~/.agribot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agribot"
	}
	return filepath.Join(home, ".agribot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.Workspace = ExpandPath(cfg.General.Workspace)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Memory.DBPath = ExpandPath(cfg.Memory.DBPath)
	cfg.Handlers.Market.KnowledgeFile = ExpandPath(cfg.Handlers.Market.KnowledgeFile)
	cfg.Handlers.Finance.SchemesFile = ExpandPath(cfg.Handlers.Finance.SchemesFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.MaxConcurrentRequests < 1 || cfg.General.MaxConcurrentRequests > 100 {
		errs = append(errs, "general.maxConcurrentRequests must be between 1 and 100")
	}
	if cfg.General.HandlerTimeoutSeconds < 1 {
		errs = append(errs, "general.handlerTimeoutSeconds must be >= 1")
	}
	switch cfg.General.DefaultLanguage {
	case "", "en", "hi":
		// valid
	default:
		errs = append(errs, "general.defaultLanguage must be one of: en, hi")
	}

	if cfg.LLM.TimeoutSeconds < 1 {
		errs = append(errs, "llm.timeoutSeconds must be >= 1")
	}
	if cfg.LLM.MaxRetries < 0 || cfg.LLM.MaxRetries > 10 {
		errs = append(errs, "llm.maxRetries must be between 0 and 10")
	}
	// Validate failover chain references exist in completers.
	for _, name := range cfg.LLM.FailoverChain {
		if _, ok := cfg.LLM.Completers[name]; !ok {
			errs = append(errs, fmt.Sprintf("llm.failoverChain references unknown completer: %s", name))
		}
	}
	for name, cc := range cfg.LLM.Completers {
		if cc.Enabled && cc.APIBase == "" && name != "ollama" {
			errs = append(errs, fmt.Sprintf("llm.completers.%s: apiBase is required", name))
		}
	}

	if cfg.Handlers.Market.CacheTTLMinutes < 1 {
		errs = append(errs, "handlers.market.cacheTtlMinutes must be >= 1")
	}
	if cfg.Handlers.Market.TierTimeoutSeconds < 1 {
		errs = append(errs, "handlers.market.tierTimeoutSeconds must be >= 1")
	}
	if cfg.Handlers.Market.NearbyLimit < 0 || cfg.Handlers.Market.NearbyLimit > 10 {
		errs = append(errs, "handlers.market.nearbyLimit must be between 0 and 10")
	}
	if cfg.Handlers.Finance.SearchTopK < 1 {
		errs = append(errs, "handlers.finance.searchTopK must be >= 1")
	}

	if cfg.Memory.MaxHistoryPerConversation < 1 {
		errs = append(errs, "memory.maxHistoryPerConversation must be >= 1")
	}
	if cfg.Memory.RetentionDays < 1 {
		errs = append(errs, "memory.retentionDays must be >= 1")
	}

	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		errs = append(errs, "metrics.port must be between 0 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
