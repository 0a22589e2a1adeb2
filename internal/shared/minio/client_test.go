package objstore

import (
	"testing"

	"memoria/internal/config"
)

func TestExportKey(t *testing.T) {
	if got := ExportKey("sy-2024", "abc"); got != "exports/sy-2024/abc.json" {
		t.Errorf("ExportKey() = %q", got)
	}
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient(config.MinIOConfig{Endpoint: "localhost:9000"}); err == nil {
		t.Error("expected error without credentials")
	}

	c, err := NewClient(config.MinIOConfig{Endpoint: "localhost:9000", AccessKey: "ak", SecretKey: "sk"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.Bucket() != "memoria-exports" {
		t.Errorf("Bucket() = %q", c.Bucket())
	}
}
