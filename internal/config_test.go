package internal

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.ContentStore.Owner = "club"
	cfg.ContentStore.Repo = "content"
	cfg.ContentStore.Token = "server-token"
	cfg.Identity.APIKey = "key"
	cfg.Directory.SpreadsheetID = "sheet-1"
	cfg.Directory.ServiceAccountKey = `{"client_email":"a@b","private_key":"..."}`
	cfg.Secrets.Passphrase = "passphrase"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestConfigRequiredFields(t *testing.T) {
	cases := []struct {
		name  string
		mutate func(*Config)
	}{
		{"missing owner", func(c *Config) { c.ContentStore.Owner = "" }},
		{"missing repo", func(c *Config) { c.ContentStore.Repo = "" }},
		{"missing token", func(c *Config) { c.ContentStore.Token = "" }},
		{"missing posts dir", func(c *Config) { c.ContentStore.PostsDir = "" }},
		{"missing api key", func(c *Config) { c.Identity.APIKey = "" }},
		{"missing spreadsheet", func(c *Config) { c.Directory.SpreadsheetID = "" }},
		{"missing passphrase", func(c *Config) { c.Secrets.Passphrase = "" }},
		{"bad port", func(c *Config) { c.App.HTTP.Port = 0 }},
		{"bad cache backend", func(c *Config) { c.Cache.Backend = "redis" }},
	}
	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestCacheConfigDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.Backend = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cache.Backend != CacheBackendSQLite {
		t.Errorf("empty backend not normalized: %q", cfg.Cache.Backend)
	}

	cfg.Cache.Backend = CacheBackendBolt
	cfg.Cache.Path = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "path is empty") {
		t.Errorf("expected path error, got %v", err)
	}

	cfg.Cache.Backend = CacheBackendMemory
	if err := cfg.Validate(); err != nil {
		t.Errorf("memory backend should not need a path: %v", err)
	}
}

func TestHTTPAddress(t *testing.T) {
	c := HTTPConfig{Port: 9090}
	if c.Address() != ":9090" {
		t.Errorf("unexpected address %q", c.Address())
	}
}
