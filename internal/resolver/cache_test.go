package resolver

import (
	"testing"
	"time"

	"sitefoundry.io/foreman/internal/domain"
)

func TestCacheGetHonorsTTL(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := NewCache()
	c.now = func() time.Time { return now }

	recipients := []domain.Recipient{{UserID: "u1", IsActive: true}}
	c.Set("c1", "", recipients, 0, 5*time.Minute)

	got, dedup, ok := c.Get("c1", "")
	if !ok {
		t.Fatal("Get() miss right after Set()")
	}
	if len(got) != 1 || got[0].UserID != "u1" || dedup != 0 {
		t.Fatalf("Get() = (%+v, %d), want cached entry", got, dedup)
	}

	// One tick past expiry: lazily evicted on lookup.
	now = now.Add(5*time.Minute + time.Second)
	if _, _, ok := c.Get("c1", ""); ok {
		t.Fatal("Get() hit after TTL elapsed")
	}
	if c.Size() != 0 {
		t.Fatalf("Size() = %d after lazy eviction, want 0", c.Size())
	}
}

func TestCacheKeyIncludesProject(t *testing.T) {
	t.Parallel()

	c := NewCache()
	c.Set("c1", "", []domain.Recipient{{UserID: "tenant-wide"}}, 0, time.Minute)
	c.Set("c1", "p1", []domain.Recipient{{UserID: "project-scoped"}}, 0, time.Minute)

	got, _, ok := c.Get("c1", "p1")
	if !ok || got[0].UserID != "project-scoped" {
		t.Fatalf("Get(c1,p1) = (%+v, %v)", got, ok)
	}
	got, _, ok = c.Get("c1", "")
	if !ok || got[0].UserID != "tenant-wide" {
		t.Fatalf("Get(c1,) = (%+v, %v)", got, ok)
	}
}

func TestCacheClearScoped(t *testing.T) {
	t.Parallel()

	c := NewCache()
	c.Set("c1", "", nil, 0, time.Minute)
	c.Set("c1", "p1", nil, 0, time.Minute)
	c.Set("c2", "", nil, 0, time.Minute)

	if n := c.Clear("c1"); n != 2 {
		t.Fatalf("Clear(c1) = %d, want 2", n)
	}
	if _, _, ok := c.Get("c2", ""); !ok {
		t.Fatal("Clear(c1) removed an unrelated tenant entry")
	}

	if n := c.Clear(""); n != 1 {
		t.Fatalf("Clear(\"\") = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Fatalf("Size() = %d after full clear, want 0", c.Size())
	}
}
