package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCacheHitRatio(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	if ratio := m.CacheHitRatio(); ratio != 0 {
		t.Fatalf("expected 0 ratio with no samples, got %v", ratio)
	}

	m.CacheHits.Add(3)
	m.CacheMisses.Add(1)

	if ratio := m.CacheHitRatio(); ratio != 0.75 {
		t.Fatalf("expected 0.75 ratio, got %v", ratio)
	}
}

func TestPoolGaugesRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.PoolIdle.Set(2)
	m.PoolBound.Set(1)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatal("expected registered metric families")
	}
}
