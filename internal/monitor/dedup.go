package monitor

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultDedupCapacity bounds the number of remembered signatures.
const DefaultDedupCapacity = 10_000

// Dedup remembers recently seen signatures. The least recently added entry is
// evicted once capacity is reached.
type Dedup struct {
	cache *lru.Cache[string, time.Time]
}

// NewDedup creates a dedup set holding up to capacity signatures.
func NewDedup(capacity int) (*Dedup, error) {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	cache, err := lru.New[string, time.Time](capacity)
	if err != nil {
		return nil, fmt.Errorf("create dedup cache: %w", err)
	}
	return &Dedup{cache: cache}, nil
}

// Seen records signature and reports whether it was already present.
func (d *Dedup) Seen(signature string) bool {
	found, _ := d.cache.ContainsOrAdd(signature, time.Now())
	return found
}

// Len returns the number of remembered signatures.
func (d *Dedup) Len() int { return d.cache.Len() }
