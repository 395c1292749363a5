package cache

import (
	"path/filepath"
	"testing"

	"ReviewPulse/internal/domain"
	"ReviewPulse/internal/ports"
)

func TestCacheRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := Open(filepath.Join(t.TempDir(), "nested", "sentiment_cache.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer c.Close()

	if _, ok, err := c.Get("absent"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	want := ports.SentimentResult{Score: 0.73, Label: domain.SentimentPositive}
	if err := c.Put("hash-1", want); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, ok, err := c.Get("hash-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit")
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestCacheUpsert(t *testing.T) {
	t.Parallel()

	c, err := Open(filepath.Join(t.TempDir(), "sentiment_cache.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer c.Close()

	if err := c.Put("hash-1", ports.SentimentResult{Score: 0.2, Label: domain.SentimentPositive}); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := c.Put("hash-1", ports.SentimentResult{Score: -0.4, Label: domain.SentimentNegative}); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	got, ok, err := c.Get("hash-1")
	if err != nil || !ok {
		t.Fatalf("Get after upsert: ok=%v err=%v", ok, err)
	}
	if got.Score != -0.4 || got.Label != domain.SentimentNegative {
		t.Fatalf("expected the updated entry, got %+v", got)
	}
}

func TestCacheSurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sentiment_cache.db")

	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := c.Put("hash-1", ports.SentimentResult{Score: 0.5, Label: domain.SentimentPositive}); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	_, ok, err := reopened.Get("hash-1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if !ok {
		t.Fatal("expected the entry to survive a reopen")
	}
}
