package numbering

import (
	"context"
	"sync"
)

// LastNumberStore remembers the most recent invoice number seen by a client.
type LastNumberStore interface {
	LastInvoiceNumber(ctx context.Context) (string, bool, error)
	SetLastInvoiceNumber(ctx context.Context, number string) error
}

// FallbackGenerator produces an invoice number when the server cannot be
// reached. Numbers are optimistic and may collide with one issued by the
// server; a collision surfaces as a conflict when the invoice is submitted.
type FallbackGenerator interface {
	NextFallback(ctx context.Context) (string, error)
}

// CachedFallback derives the next number from the last cached one.
type CachedFallback struct {
	scheme Scheme
	store  LastNumberStore
	mu     sync.Mutex
}

// NewCachedFallback wires a fallback generator over store.
func NewCachedFallback(scheme Scheme, store LastNumberStore) *CachedFallback {
	return &CachedFallback{scheme: scheme, store: store}
}

// NextFallback returns the number after the cached one, or the first number of
// the scheme, and records it as the new last number.
func (g *CachedFallback) NextFallback(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := g.scheme.First()
	last, ok, err := g.store.LastInvoiceNumber(ctx)
	if err != nil {
		return "", err
	}
	if ok {
		if candidate, valid := g.scheme.NextKeepingYear(last); valid {
			next = candidate
		}
	}
	if err := g.store.SetLastInvoiceNumber(ctx, next); err != nil {
		return "", err
	}
	return next, nil
}

// MemoryStore is an in-process LastNumberStore.
type MemoryStore struct {
	mu   sync.Mutex
	last string
}

// LastInvoiceNumber implements LastNumberStore.
func (m *MemoryStore) LastInvoiceNumber(context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.last != "", nil
}

// SetLastInvoiceNumber implements LastNumberStore.
func (m *MemoryStore) SetLastInvoiceNumber(_ context.Context, number string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = number
	return nil
}
