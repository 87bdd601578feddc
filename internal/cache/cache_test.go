package cache

import (
	"testing"
	"time"
)

func TestGetSetRoundTrip(t *testing.T) {
	c, err := New(16, time.Minute, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.Set("k1", "v1", []string{"tagA"}, 0)

	got, ok := c.Get("k1")
	if !ok || got != "v1" {
		t.Fatalf("expected v1, got %v (%v)", got, ok)
	}
}

func TestExpiredEntryIsMiss(t *testing.T) {
	c, err := New(16, time.Millisecond, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.Set("k1", "v1", nil, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("k1"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestInvalidateTag(t *testing.T) {
	c, err := New(16, time.Minute, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.Set("s1:a", "v1", []string{"session:s1"}, 0)
	c.Set("s1:b", "v2", []string{"session:s1"}, 0)
	c.Set("s2:a", "v3", []string{"session:s2"}, 0)

	c.InvalidateTag("session:s1")

	if _, ok := c.Get("s1:a"); ok {
		t.Fatal("expected s1:a invalidated")
	}
	if _, ok := c.Get("s1:b"); ok {
		t.Fatal("expected s1:b invalidated")
	}
	if _, ok := c.Get("s2:a"); !ok {
		t.Fatal("expected s2:a to survive")
	}
}

func TestInvalidatePattern(t *testing.T) {
	c, err := New(16, time.Minute, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.Set("dom:s1:page1", "v1", nil, 0)
	c.Set("dom:s1:page2", "v2", nil, 0)
	c.Set("dom:s2:page1", "v3", nil, 0)

	c.InvalidatePattern("dom:s1:*")

	if _, ok := c.Get("dom:s1:page1"); ok {
		t.Fatal("expected dom:s1:page1 invalidated")
	}
	if _, ok := c.Get("dom:s2:page1"); !ok {
		t.Fatal("expected dom:s2:page1 to survive")
	}
}

func TestHitRatio(t *testing.T) {
	c, err := New(16, time.Minute, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.Set("k1", "v1", nil, 0)
	c.Get("k1")
	c.Get("missing")

	if ratio := c.HitRatio(); ratio != 0.5 {
		t.Fatalf("expected 0.5 hit ratio, got %v", ratio)
	}
}

func TestExternalStoreFallback(t *testing.T) {
	ext := NewMemStore()
	c, err := New(16, time.Minute, ext)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.Set("k1", "v1", nil, 0)

	// Simulate in-process eviction by building a second cache sharing the
	// same external store.
	c2, err := New(16, time.Minute, ext)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, ok := c2.Get("k1")
	if !ok || got != "v1" {
		t.Fatalf("expected external-store fallback hit, got %v (%v)", got, ok)
	}
}
