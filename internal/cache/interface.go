package cache

import (
	"context"
	"time"
)

type Cache interface {
	Get(ctx context.Context, key string, value any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

func Key(prefix string, id string) string {
	return prefix + ":" + id
}

const (
	// session ledgers, keyed by user id
	CartKeyPrefix = "cart"
	// product catalogue pages fetched from the marketplace API
	ProductKeyPrefix = "products"
	// single listings, keyed by product id
	ProductItemKeyPrefix = "product"
)
