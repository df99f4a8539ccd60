package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Embedding: EmbeddingConfig{
			Backend: "onnx",
			ONNX:    ONNXConfig{ModelPath: "models/resnet.onnx"},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			"bad port",
			func(c *Config) { c.HTTP.Port = 0 },
			"http.port",
		},
		{
			"unknown backend",
			func(c *Config) { c.Embedding.Backend = "tensorflow" },
			"embedding.backend",
		},
		{
			"onnx without model path",
			func(c *Config) { c.Embedding.ONNX.ModelPath = "" },
			"model_path",
		},
		{
			"openai without base url",
			func(c *Config) {
				c.Embedding.Backend = "openai"
				c.Embedding.OpenAI = OpenAIConfig{Model: "clip-vit-b-32"}
			},
			"base_url",
		},
		{
			"cache enabled without addrs",
			func(c *Config) { c.Cache.Enabled = true; c.Cache.Addrs = nil },
			"cache.addrs",
		},
		{
			"negative hash tables",
			func(c *Config) { c.Index.NumHashTables = -1 },
			"num_hash_tables",
		},
		{
			"negative hash size",
			func(c *Config) { c.Index.HashSize = -2 },
			"hash_size",
		},
		{
			"negative concurrency",
			func(c *Config) { c.Batch.Concurrency = -4 },
			"concurrency",
		},
		{
			"max_k below default_k",
			func(c *Config) { c.Search.DefaultK = 50; c.Search.MaxK = 10 },
			"max_k",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Index.NumHashTables != 5 {
		t.Errorf("NumHashTables default = %d, want 5", cfg.Index.NumHashTables)
	}
	if cfg.Index.HashSize != 10 {
		t.Errorf("HashSize default = %d, want 10", cfg.Index.HashSize)
	}
	if cfg.Batch.Concurrency != 3 {
		t.Errorf("Concurrency default = %d, want 3", cfg.Batch.Concurrency)
	}
	if cfg.Search.DefaultK != 5 {
		t.Errorf("DefaultK default = %d, want 5", cfg.Search.DefaultK)
	}
	if cfg.Embedding.Backend != "onnx" {
		t.Errorf("Backend default = %q, want onnx", cfg.Embedding.Backend)
	}
	if cfg.Embedding.ONNX.InputSize != 224 {
		t.Errorf("InputSize default = %d, want 224", cfg.Embedding.ONNX.InputSize)
	}
}

func TestApplyDefaults_DoesNotMaskNegatives(t *testing.T) {
	// A negative value is an explicit misconfiguration: defaults only fill
	// zero values, so Validate still sees and rejects it.
	var cfg Config
	cfg.Index.NumHashTables = -3
	cfg.ApplyDefaults()

	if cfg.Index.NumHashTables != -3 {
		t.Fatalf("ApplyDefaults overwrote explicit negative: %d", cfg.Index.NumHashTables)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("VISIM_TEST_KEY", "secret")

	in := []byte("api_key: ${VISIM_TEST_KEY}\nmodel: ${VISIM_TEST_MISSING:-clip-vit-b-32}\n")
	out := string(expandEnvVars(in))

	if !strings.Contains(out, "api_key: secret") {
		t.Errorf("env var not expanded: %q", out)
	}
	if !strings.Contains(out, "model: clip-vit-b-32") {
		t.Errorf("default not applied: %q", out)
	}
}
