package config_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"tootline/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default("")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.App.Name != "tootline" || len(cfg.App.Scopes) != 3 || cfg.Storage.Backend != config.StorageSQLite {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if d, _ := cfg.Timeout(); d != 15*time.Second {
		t.Fatalf("unexpected timeout %v", d)
	}
	if p := cfg.Policy(); p.Limit != 500 || !p.Enforce {
		t.Fatalf("unexpected policy %+v", p)
	}
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
app:
  name: my-client
  scopes: [read]
composer:
  character_limit: 1000
  enforce_limit: false
rejected_domains: [bad.example]
`))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.App.Name != "my-client" || len(cfg.App.Scopes) != 1 || cfg.App.RedirectURI == "" {
		t.Fatalf("unexpected app section %+v", cfg.App)
	}
	if p := cfg.Policy(); p.Limit != 1000 || p.Enforce {
		t.Fatalf("unexpected policy %+v", p)
	}
	if cfg.HTTP.Timeout != "15s" || len(cfg.RejectedDomains) != 1 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]string{
		"bad timeout":  "http:\n  timeout: soon\n",
		"zero limit":   "composer:\n  character_limit: 0\n",
		"url weight":   "composer:\n  url_weight: 10\n",
		"backend":      "storage:\n  backend: keychain\n",
		"file no env":  "storage:\n  backend: file\n  passphrase_env: \"\"\n",
		"empty domain": "rejected_domains: [\"\"]\n",
		"bad yaml":     "app: [",
	}
	for name, doc := range cases {
		if _, err := config.FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadOptionalAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("load optional without file: %v", err)
	}
	if _, err := config.Load(dir); err == nil || !strings.Contains(err.Error(), "tl config init") {
		t.Fatalf("expected not found hint, got %v", err)
	}
	if err := os.WriteFile(config.Path(dir), []byte(config.GenerateDefault("other")), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = config.Load(dir)
	if err != nil || cfg.App.Name != "other" {
		t.Fatalf("load: %+v %v", cfg, err)
	}
}

func TestWebhookValidation(t *testing.T) {
	cfg, err := config.FromYAML([]byte("webhooks:\n  - url: https://hooks.example/tl\n    events: [auth.sign_out]\n"))
	if err != nil || len(cfg.Webhooks) != 1 || cfg.Webhooks[0].Events[0] != "auth.sign_out" {
		t.Fatalf("webhooks: %+v %v", cfg, err)
	}
	if _, err := config.FromYAML([]byte("webhooks:\n  - url: ftp://x\n")); err == nil {
		t.Fatalf("expected bad webhook url error")
	}
}
