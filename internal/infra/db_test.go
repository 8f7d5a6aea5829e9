package infra

import (
	"context"
	"testing"
)

func TestNewDBPoolRequiresURL(t *testing.T) {
	if _, err := NewDBPool(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := NewDBPool(context.Background(), &Config{}); err == nil || err.Error() != "DATABASE_URL is required" {
		t.Fatalf("expected missing url error, got %v", err)
	}
	if _, err := NewDBPool(context.Background(), &Config{DatabaseURL: "postgres://%zz"}); err == nil {
		t.Fatal("expected parse error")
	}
}
