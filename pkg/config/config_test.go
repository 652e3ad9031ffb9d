package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Output != OutputYAML {
		t.Errorf("Output = %q, want %q", cfg.Output, OutputYAML)
	}
	if cfg.TestTimeout != 30*time.Second {
		t.Errorf("TestTimeout = %v, want 30s", cfg.TestTimeout)
	}
	if cfg.Interactive {
		t.Error("Interactive defaults to true")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SPECSCRIPT_INTERACTIVE", "true")
	t.Setenv("SPECSCRIPT_OUTPUT", "json")
	t.Setenv("SPECSCRIPT_TRACE", "/tmp/trace.jsonl")
	t.Setenv("SPECSCRIPT_TEST_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Interactive || cfg.Output != OutputJSON || cfg.TraceFile != "/tmp/trace.jsonl" || cfg.TestTimeout != 5*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name, key, value, want string
	}{
		{"bad bool", "SPECSCRIPT_INTERACTIVE", "maybe", "parse env:"},
		{"bad duration", "SPECSCRIPT_TEST_TIMEOUT", "soon", "parse env:"},
		{"bad output", "SPECSCRIPT_OUTPUT", "xml", "unknown output format"},
		{"negative timeout", "SPECSCRIPT_TEST_TIMEOUT", "-1s", "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}
