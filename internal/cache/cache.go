package cache

import (
	"context"
	"time"

	"retailpos/backend/internal/domain"
)

// ReceiptCache is a read-through cache for receipt lookups keyed on the
// receipt number. Entries are invalidated whenever a return against the
// underlying sale changes the returnable quantities.
type ReceiptCache interface {
	Get(ctx context.Context, receiptNumber string) (*domain.ReceiptLookup, bool, error)
	Set(ctx context.Context, receiptNumber string, value *domain.ReceiptLookup, ttl time.Duration) error
	Delete(ctx context.Context, receiptNumber string) error
}

type NoopReceiptCache struct{}

func (NoopReceiptCache) Get(_ context.Context, _ string) (*domain.ReceiptLookup, bool, error) {
	return nil, false, nil
}

func (NoopReceiptCache) Set(_ context.Context, _ string, _ *domain.ReceiptLookup, _ time.Duration) error {
	return nil
}

func (NoopReceiptCache) Delete(_ context.Context, _ string) error {
	return nil
}
