package treasury

import (
	"context"
	"sort"
	"sync"
	"time"

	"parkwise/backend/services/parking-service/internal/models"
)

// MemoryLedger keeps payments and closures for the memory-only mode.
type MemoryLedger struct {
	mu       sync.RWMutex
	payments []models.Payment
	closures []models.ShiftClosure
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// RecordPayment appends p.
func (l *MemoryLedger) RecordPayment(p models.Payment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.payments = append(l.payments, p)
}

// RemoveSession drops the payments of a deleted session.
func (l *MemoryLedger) RemoveSession(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.payments[:0]
	for _, p := range l.payments {
		if p.SessionID != sessionID {
			kept = append(kept, p)
		}
	}
	l.payments = kept
}

func (l *MemoryLedger) Payments(_ context.Context, from, to time.Time) ([]models.Payment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Payment, 0)
	for _, p := range l.payments {
		if !p.CreatedAt.Before(from) && p.CreatedAt.Before(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (l *MemoryLedger) LastClosedAt(_ context.Context, from, to time.Time) (*time.Time, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var last *time.Time
	for i := range l.closures {
		at := l.closures[i].ClosedAt
		if at.Before(from) || !at.Before(to) {
			continue
		}
		if last == nil || at.After(*last) {
			t := at
			last = &t
		}
	}
	return last, nil
}

func (l *MemoryLedger) InsertClosure(_ context.Context, c models.ShiftClosure) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closures = append(l.closures, c)
	return nil
}

func (l *MemoryLedger) Closures(_ context.Context, limit int) ([]models.ShiftClosure, error) {
	l.mu.RLock()
	out := make([]models.ShiftClosure, len(l.closures))
	copy(out, l.closures)
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ClosedAt.After(out[j].ClosedAt)
	})
	if limit = models.ClampClosureLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
