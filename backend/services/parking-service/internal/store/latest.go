package store

import (
	"errors"
	"sync"

	"parkwise/backend/services/parking-service/internal/models"
)

// ErrSuperseded means a newer request on the same key started before this one finished,
// so its result must not be applied.
var ErrSuperseded = errors.New("superseded by a newer request")

// LatestOnly debounces interactive lookups per key (typically one operator terminal)
// by sequence number. In-flight work is never cancelled; stale results are discarded.
type LatestOnly struct {
	mu  sync.Mutex
	seq map[string]uint64
}

// NewLatestOnly returns an empty sequencer.
func NewLatestOnly() *LatestOnly {
	return &LatestOnly{seq: make(map[string]uint64)}
}

func (l *LatestOnly) begin(key string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq[key]++
	return l.seq[key]
}

func (l *LatestOnly) current(key string, n uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq[key] == n
}

// Latest runs fn and returns its result only if no newer call on key started meanwhile.
func Latest[T any](l *LatestOnly, key string, fn func() (T, error)) (T, error) {
	n := l.begin(key)
	out, err := fn()
	if !l.current(key, n) {
		var zero T
		return zero, ErrSuperseded
	}
	return out, err
}

// inflight rejects a second identical mutation while the first is outstanding.
type inflight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{keys: make(map[string]struct{})}
}

func (g *inflight) acquire(key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.keys[key]; busy {
		return nil, models.ErrOperationInProgress
	}
	g.keys[key] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.keys, key)
		g.mu.Unlock()
	}, nil
}
