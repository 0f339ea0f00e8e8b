// Package clock maps UTC instants to a user's local wall-clock time.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// Resolver loads and caches IANA time zone locations.
type Resolver struct {
	mu    sync.RWMutex
	cache map[string]*time.Location
}

func NewResolver() *Resolver {
	return &Resolver{cache: map[string]*time.Location{}}
}

// Location resolves an IANA zone name, e.g. "Europe/Berlin".
func (r *Resolver) Location(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("clock: empty time zone name")
	}
	r.mu.RLock()
	loc, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("clock: resolve %q: %w", name, err)
	}
	r.mu.Lock()
	r.cache[name] = loc
	r.mu.Unlock()
	return loc, nil
}

// LocalDate returns the calendar date of t in the given location, formatted as
// "2006-01-02". Daily rate windows are keyed by this value.
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
