package config

import (
	"os"
	"path/filepath"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_MaxConcurrentRequests(t *testing.T) {
	cfg := Defaults()
	cfg.General.MaxConcurrentRequests = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxConcurrentRequests=0")
	}

	cfg.General.MaxConcurrentRequests = 101
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxConcurrentRequests=101")
	}

	cfg.General.MaxConcurrentRequests = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("maxConcurrentRequests=1 should be valid: %v", err)
	}
}

func TestValidate_UnknownLanguage(t *testing.T) {
	cfg := Defaults()
	cfg.General.DefaultLanguage = "fr"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unsupported language")
	}
}

func TestValidate_FailoverChainUnknownCompleter(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.FailoverChain = []string{"openai", "nonexistent"}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown completer in failover chain")
	}
}

func TestValidate_MetricsPort(t *testing.T) {
	cfg := Defaults()
	cfg.Metrics.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

// --- Env expansion ---

func TestExpandEnvVars_Set(t *testing.T) {
	t.Setenv("AGRIBOT_TEST_KEY", "sk-secret")
	out := ExpandEnvVars(`{"apiKey": "${AGRIBOT_TEST_KEY}"}`)
	if out != `{"apiKey": "sk-secret"}` {
		t.Fatalf("unexpected expansion: %s", out)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("AGRIBOT_MISSING_VAR")
	out := ExpandEnvVars(`${AGRIBOT_MISSING_VAR:-fallback}`)
	if out != "fallback" {
		t.Fatalf("expected 'fallback', got %q", out)
	}
}

func TestExpandEnvVars_MissingNoDefault(t *testing.T) {
	os.Unsetenv("AGRIBOT_MISSING_VAR")
	out := ExpandEnvVars(`${AGRIBOT_MISSING_VAR}`)
	if out != "${AGRIBOT_MISSING_VAR}" {
		t.Fatalf("expected original text kept, got %q", out)
	}
}

// --- Load / Save roundtrip ---

func TestLoadSave_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Defaults()
	cfg.General.DefaultLocation = "Pune, Maharashtra"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.General.DefaultLocation != "Pune, Maharashtra" {
		t.Fatalf("expected location to roundtrip, got %q", loaded.General.DefaultLocation)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// --- Accessor ---

func TestGetByPath(t *testing.T) {
	cfg := Defaults()
	val, err := GetByPath(cfg, "general.defaultLanguage")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "en" {
		t.Fatalf("expected 'en', got %v", val)
	}
}

func TestSetByPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "handlers.market.nearbyLimit", "5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Handlers.Market.NearbyLimit != 5 {
		t.Fatalf("expected 5, got %d", cfg.Handlers.Market.NearbyLimit)
	}
}

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cc := cfg.LLM.Completers["openai"]
	cc.APIKey = "sk-1234567890abcdef"
	cfg.LLM.Completers["openai"] = cc
	cfg.Channels.Telegram.Token = "12345:telegram-token"

	clean := Sanitize(cfg)
	if clean.LLM.Completers["openai"].APIKey == "sk-1234567890abcdef" {
		t.Fatal("expected API key to be masked")
	}
	if clean.Channels.Telegram.Token == "12345:telegram-token" {
		t.Fatal("expected telegram token to be masked")
	}
	// Original must be untouched
	if cfg.LLM.Completers["openai"].APIKey != "sk-1234567890abcdef" {
		t.Fatal("sanitize must not mutate the original config")
	}
}

// --- FlexStringList ---

func TestFlexStringList_MixedTypes(t *testing.T) {
	var f FlexStringList
	if err := f.UnmarshalJSON([]byte(`["123", 456]`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f) != 2 || f[0] != "123" || f[1] != "456" {
		t.Fatalf("unexpected result: %v", f)
	}
}
