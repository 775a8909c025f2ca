// Package offers tracks the time-boxed order offers made to captains.
package offers

import (
	"context"
	"sort"
	"sync"
	"time"

	"captain-dispatch/internal/domain"
)

// Book stores pending offers. Implementations must be safe for concurrent use.
type Book interface {
	// Put records offers, replacing an earlier offer for the same order and captain.
	Put(ctx context.Context, offers ...domain.Offer) error
	// ForCaptain returns the captain's offers that are still live at now.
	ForCaptain(ctx context.Context, captainID string, now time.Time) ([]domain.Offer, error)
	// HasLive reports whether any captain still holds a live offer for the order.
	HasLive(ctx context.Context, orderID string, now time.Time) (bool, error)
	// DropOrder discards every offer of the order.
	DropOrder(ctx context.Context, orderID string) error
	// Expire removes and returns offers whose deadline is at or before now.
	Expire(ctx context.Context, now time.Time) ([]domain.Offer, error)
}

// MemoryBook is a process-local Book.
type MemoryBook struct {
	mu      sync.Mutex
	byOrder map[string]map[string]domain.Offer
}

// NewMemoryBook returns an empty MemoryBook.
func NewMemoryBook() *MemoryBook {
	return &MemoryBook{byOrder: make(map[string]map[string]domain.Offer)}
}

func (b *MemoryBook) Put(_ context.Context, offers ...domain.Offer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range offers {
		m, ok := b.byOrder[o.OrderID]
		if !ok {
			m = make(map[string]domain.Offer)
			b.byOrder[o.OrderID] = m
		}
		m[o.CaptainID] = o
	}
	return nil
}

func (b *MemoryBook) ForCaptain(_ context.Context, captainID string, now time.Time) ([]domain.Offer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Offer
	for _, m := range b.byOrder {
		if o, ok := m[captainID]; ok && o.Live(now) {
			out = append(out, o)
		}
	}
	sortOffers(out)
	return out, nil
}

func (b *MemoryBook) HasLive(_ context.Context, orderID string, now time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range b.byOrder[orderID] {
		if o.Live(now) {
			return true, nil
		}
	}
	return false, nil
}

func (b *MemoryBook) DropOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byOrder, orderID)
	return nil
}

func (b *MemoryBook) Expire(_ context.Context, now time.Time) ([]domain.Offer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Offer
	for orderID, m := range b.byOrder {
		for captainID, o := range m {
			if o.Live(now) {
				continue
			}
			out = append(out, o)
			delete(m, captainID)
		}
		if len(m) == 0 {
			delete(b.byOrder, orderID)
		}
	}
	sortOffers(out)
	return out, nil
}

// sortOffers orders by deadline, then order id, for stable output.
func sortOffers(offers []domain.Offer) {
	sort.Slice(offers, func(i, j int) bool {
		if !offers[i].ExpiresAt.Equal(offers[j].ExpiresAt) {
			return offers[i].ExpiresAt.Before(offers[j].ExpiresAt)
		}
		if offers[i].OrderID != offers[j].OrderID {
			return offers[i].OrderID < offers[j].OrderID
		}
		return offers[i].CaptainID < offers[j].CaptainID
	})
}

var _ Book = (*MemoryBook)(nil)
