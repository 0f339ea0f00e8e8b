package clock

import (
	"testing"
	"time"
)

func TestResolverLocation(t *testing.T) {
	r := NewResolver()
	loc, err := r.Location("Europe/Berlin")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if loc.String() != "Europe/Berlin" {
		t.Fatalf("unexpected location %v", loc)
	}
	// second lookup hits the cache and must return the same pointer
	again, err := r.Location("Europe/Berlin")
	if err != nil || again != loc {
		t.Fatalf("cache miss: %v %v", again, err)
	}
	if _, err := r.Location("Not/AZone"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
	if _, err := r.Location(""); err == nil {
		t.Fatal("expected error for empty zone")
	}
}

func TestLocalDate(t *testing.T) {
	loc, _ := time.LoadLocation("Europe/Berlin")
	// 23:30 UTC on Jan 1 is already Jan 2 in Berlin (UTC+1 in winter)
	utc := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	if got := LocalDate(utc, loc); got != "2024-01-02" {
		t.Fatalf("expected 2024-01-02, got %s", got)
	}
	if got := LocalDate(utc, time.UTC); got != "2024-01-01" {
		t.Fatalf("expected 2024-01-01, got %s", got)
	}
}
