package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("queryloom-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Database.MaxOpenConns != 20 {
		t.Fatalf("Database.MaxOpenConns = %d", cfg.Database.MaxOpenConns)
	}
	if cfg.VectorStore.Table != "schema_embeddings" {
		t.Fatalf("VectorStore.Table = %q", cfg.VectorStore.Table)
	}
	if cfg.VectorStore.TopK != 5 {
		t.Fatalf("VectorStore.TopK = %d", cfg.VectorStore.TopK)
	}
	if cfg.Pipeline.MaxRepairAttempts != 2 {
		t.Fatalf("Pipeline.MaxRepairAttempts = %d", cfg.Pipeline.MaxRepairAttempts)
	}
	if cfg.Pipeline.DefaultRowLimit != 200 {
		t.Fatalf("Pipeline.DefaultRowLimit = %d", cfg.Pipeline.DefaultRowLimit)
	}
	if cfg.Cache.Enabled {
		t.Fatal("Cache.Enabled should default to false")
	}
	if cfg.AI.ChatModel != "gpt-4o" {
		t.Fatalf("AI.ChatModel = %q", cfg.AI.ChatModel)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"QUERYLOOM_PROFILE": "prod"})
	cfg, err := Load("queryloom-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"QUERYLOOM_HTTP_ADDR":                    ":9999",
		"QUERYLOOM_DATABASE_DSN":                 "postgres://app@db:5432/movielens",
		"QUERYLOOM_VECTORSTORE_TOP_K":            "8",
		"QUERYLOOM_PIPELINE_MAX_REPAIR_ATTEMPTS": "1",
		"QUERYLOOM_PIPELINE_STATEMENT_TIMEOUT":   "3s",
		"QUERYLOOM_CACHE_ENABLED":                "true",
		"QUERYLOOM_CACHE_TTL":                    "1m",
		"QUERYLOOM_LOG_LEVEL":                    "error",
	})
	cfg, err := Load("queryloom-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Database.DSN != "postgres://app@db:5432/movielens" {
		t.Fatalf("Database.DSN = %q", cfg.Database.DSN)
	}
	if cfg.VectorStore.TopK != 8 {
		t.Fatalf("VectorStore.TopK = %d", cfg.VectorStore.TopK)
	}
	if cfg.Pipeline.MaxRepairAttempts != 1 {
		t.Fatalf("Pipeline.MaxRepairAttempts = %d", cfg.Pipeline.MaxRepairAttempts)
	}
	if cfg.Pipeline.StatementTimeout != 3*time.Second {
		t.Fatalf("Pipeline.StatementTimeout = %v", cfg.Pipeline.StatementTimeout)
	}
	if !cfg.Cache.Enabled {
		t.Fatal("Cache.Enabled should be true")
	}
	if cfg.Cache.TTL != time.Minute {
		t.Fatalf("Cache.TTL = %v", cfg.Cache.TTL)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad profile":     {"QUERYLOOM_PROFILE": "staging"},
		"bad duration":    {"QUERYLOOM_AI_TIMEOUT": "soon"},
		"bad int":         {"QUERYLOOM_VECTORSTORE_TOP_K": "many"},
		"bad bool":        {"QUERYLOOM_CACHE_ENABLED": "yep"},
		"bad log level":   {"QUERYLOOM_LOG_LEVEL": "loud"},
		"zero row limit":  {"QUERYLOOM_PIPELINE_DEFAULT_ROW_LIMIT": "0"},
		"negative budget": {"QUERYLOOM_PIPELINE_MAX_REPAIR_ATTEMPTS": "-1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load("queryloom-api", mapLookup(env)); err == nil {
				t.Fatal("Load() expected error")
			}
		})
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
