package store

import (
	"context"
	"errors"

	"github.com/bytedance/sonic"
)

// Well-known keys
const (
	KeyPlugins       = "plugins"
	KeyKillOnExit    = "outKillPlugin"
	KeyDetachedSizes = "detachedWindowSizes"
)

var ErrClosed = errors.New("store is closed")

// Store is a JSON document store keyed by string
type Store interface {
	// Get decodes the value under key into dst. Reports false when absent.
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Put encodes value and stores it under key
	Put(ctx context.Context, key string, value any) error
	// Delete removes key; absent keys are not an error
	Delete(ctx context.Context, key string) error
	Close() error
}

var api = sonic.ConfigStd

func encode(value any) ([]byte, error) {
	return api.Marshal(value)
}

func decode(data []byte, dst any) error {
	return api.Unmarshal(data, dst)
}
