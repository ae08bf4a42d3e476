package cache

import (
	"context"
	"testing"
	"time"
)

func TestExtractionKey_Deterministic(t *testing.T) {
	a := ExtractionKey("abc123", "UK")
	b := ExtractionKey("abc123", "UK")
	if a != b {
		t.Errorf("keys differ: %s vs %s", a, b)
	}
	if a == ExtractionKey("abc123", "US") {
		t.Error("jurisdiction should change the key")
	}
	if a == ExtractionKey("def456", "UK") {
		t.Error("content hash should change the key")
	}
}

func TestMemoryCache_RoundTrip(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	val, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(val) != "v" {
		t.Errorf("value = %q", val)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemory()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	if err := c.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Hour)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("expected entry to expire")
	}
}
