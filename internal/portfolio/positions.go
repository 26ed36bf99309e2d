package portfolio

import (
	"sync"

	"quantgate/internal/domain"
)

// PositionBook tracks margin committed per symbol and position type. It
// is the collaborator the allocator reads; the allocator itself never
// mutates it. State lives only for the process lifetime.
type PositionBook struct {
	mu   sync.Mutex
	used UsageSnapshot
}

// NewPositionBook creates an empty book.
func NewPositionBook() *PositionBook {
	return &PositionBook{used: make(UsageSnapshot)}
}

// Commit records margin taken by a new or enlarged position.
func (b *PositionBook) Commit(symbol string, positionType domain.PositionType, margin float64) {
	if margin <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	byType, ok := b.used[symbol]
	if !ok {
		byType = make(map[domain.PositionType]float64)
		b.used[symbol] = byType
	}
	byType[positionType] += margin
}

// Release frees the margin held for (symbol, positionType), removing
// empty maps so snapshots stay minimal.
func (b *PositionBook) Release(symbol string, positionType domain.PositionType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	byType, ok := b.used[symbol]
	if !ok {
		return
	}
	delete(byType, positionType)
	if len(byType) == 0 {
		delete(b.used, symbol)
	}
}

// Snapshot returns a consistent deep copy for one allocation pass.
// Callers within a cycle take a fresh snapshot per symbol, sequentially,
// so committed margin is never double-spent.
func (b *PositionBook) Snapshot() UsageSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(UsageSnapshot, len(b.used))
	for symbol, byType := range b.used {
		cp := make(map[domain.PositionType]float64, len(byType))
		for pt, amt := range byType {
			cp[pt] = amt
		}
		out[symbol] = cp
	}
	return out
}
