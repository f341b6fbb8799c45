package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a slot holds no value.
var ErrNotFound = errors.New("kv: key not found")

// Store is the durable key-value surface the snapshot and credential stores
// persist through. Values are opaque serialized blobs.
type Store interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}
