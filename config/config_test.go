package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Chunking.Size != 300 || cfg.Chunking.Overlap != 50 {
		t.Fatalf("unexpected chunking defaults: %+v", cfg.Chunking)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Fatalf("top-k default = %d, want 3", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.Threshold != 0.25 {
		t.Fatalf("threshold default = %v, want 0.25", cfg.Retrieval.Threshold)
	}
	if cfg.MaxUploadBytes != 50<<20 {
		t.Fatalf("max upload default = %d, want %d", cfg.MaxUploadBytes, 50<<20)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DOCQA_THRESHOLD", "0.4")
	t.Setenv("DOCQA_TOP_K", "7")
	t.Setenv("DOCQA_CHUNK_SIZE", "120")
	t.Setenv("DOCQA_CHUNK_OVERLAP", "30")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Retrieval.Threshold != 0.4 {
		t.Fatalf("threshold = %v, want 0.4", cfg.Retrieval.Threshold)
	}
	if cfg.Retrieval.TopK != 7 {
		t.Fatalf("top-k = %d, want 7", cfg.Retrieval.TopK)
	}
	if cfg.Chunking.Size != 120 || cfg.Chunking.Overlap != 30 {
		t.Fatalf("unexpected chunking: %+v", cfg.Chunking)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "addr: localhost:9999\nretrieval:\n  top_k: 5\n  threshold: 0.3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Addr != "localhost:9999" {
		t.Fatalf("addr = %q, want localhost:9999", cfg.Addr)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.Threshold != 0.3 {
		t.Fatalf("unexpected retrieval config: %+v", cfg.Retrieval)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chunking.Size != 300 {
		t.Fatalf("chunk size = %d, want default 300", cfg.Chunking.Size)
	}
}

func TestValidateRejectsBadParameters(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero chunk size", mutate: func(c *Config) { c.Chunking.Size = 0 }},
		{name: "overlap at size", mutate: func(c *Config) { c.Chunking.Overlap = c.Chunking.Size }},
		{name: "negative overlap", mutate: func(c *Config) { c.Chunking.Overlap = -1 }},
		{name: "zero top-k", mutate: func(c *Config) { c.Retrieval.TopK = 0 }},
		{name: "threshold above scale", mutate: func(c *Config) { c.Retrieval.Threshold = 1.5 }},
		{name: "threshold below scale", mutate: func(c *Config) { c.Retrieval.Threshold = -2 }},
		{name: "zero upload limit", mutate: func(c *Config) { c.MaxUploadBytes = 0 }},
	}

	for _, tc := range cases {
		cfg := base()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
