package relayconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(nil)

	cfg, err := src.Current(context.Background())
	if err != nil || cfg != nil {
		t.Fatalf("Expected no config, got %+v, %v", cfg, err)
	}

	src.Set(&Config{Host: "smtp.provider.test", Active: true})
	cfg, err = src.Current(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Kind != KindSMTP || cfg.Secure != SecureSTARTTLS || cfg.Port != 587 {
		t.Errorf("Expected defaults to be applied, got %+v", cfg)
	}

	cfg.Host = "mutated"
	again, _ := src.Current(context.Background())
	if again.Host != "smtp.provider.test" {
		t.Errorf("Expected callers to get a copy, got host %s", again.Host)
	}
}

func TestFileSourceReadsFreshEachTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	src := NewFileSource(path)

	cfg, err := src.Current(context.Background())
	if err != nil || cfg != nil {
		t.Fatalf("Expected no config for missing file, got %+v, %v", cfg, err)
	}

	write := func(content string) {
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("Failed to write relay file: %v", err)
		}
	}

	write("host: one.test\nsecure: tls\nactive: true\n")
	cfg, err = src.Current(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Host != "one.test" || cfg.Port != 465 || !Usable(cfg) {
		t.Errorf("Unexpected config: %+v", cfg)
	}

	write("host: two.test\nport: 2525\nactive: false\n")
	cfg, err = src.Current(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Host != "two.test" || cfg.Port != 2525 || Usable(cfg) {
		t.Errorf("Expected the updated file to be read, got %+v", cfg)
	}
}

func TestFileSourceInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte("host: [unterminated"), 0600); err != nil {
		t.Fatalf("Failed to write relay file: %v", err)
	}

	if _, err := NewFileSource(path).Current(context.Background()); err == nil {
		t.Error("Expected an error for invalid YAML")
	}
}
