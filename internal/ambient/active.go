package ambient

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// ActiveSet tracks conversations that saw activity within a sliding window.
type ActiveSet struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

// NewActiveSet creates a set that forgets conversations idle for longer
// than window.
func NewActiveSet(window time.Duration) *ActiveSet {
	return &ActiveSet{window: window, last: make(map[string]time.Time)}
}

// Touch marks seed active at at. Older timestamps never move a seed back.
func (a *ActiveSet) Touch(seed string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.last[seed]; ok && prev.After(at) {
		return
	}
	a.last[seed] = at
}

// Sweep evicts conversations idle for longer than the window and returns
// them, sorted.
func (a *ActiveSet) Sweep(now time.Time) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var evicted []string
	for seed, at := range a.last {
		if now.Sub(at) > a.window {
			delete(a.last, seed)
			evicted = append(evicted, seed)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// Snapshot returns the active seeds, sorted.
func (a *ActiveSet) Snapshot() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	seeds := make([]string, 0, len(a.last))
	for seed := range a.last {
		seeds = append(seeds, seed)
	}
	sort.Strings(seeds)
	return seeds
}

// Contains reports whether seed is active.
func (a *ActiveSet) Contains(seed string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.last[seed]
	return ok
}

// Len returns the number of active conversations.
func (a *ActiveSet) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.last)
}

// Pick returns a uniformly random active seed.
func (a *ActiveSet) Pick(rng *rand.Rand) (string, bool) {
	return pick(a.Snapshot(), rng)
}

func pick(seeds []string, rng *rand.Rand) (string, bool) {
	if len(seeds) == 0 {
		return "", false
	}
	return seeds[rng.IntN(len(seeds))], true
}
