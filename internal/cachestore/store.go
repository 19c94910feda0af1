package cachestore

import (
	"context"
	"net/http"
	"time"
)

// Response types, mirroring the fetch API classification.
const (
	TypeBasic  = "basic"
	TypeCORS   = "cors"
	TypeOpaque = "opaque"
)

// Entry is a stored response.
type Entry struct {
	Cache    string
	Key      string
	Status   int
	Header   http.Header
	Body     []byte
	Type     string
	Checksum string
	StoredAt time.Time
}

// Storage is the set of cache operations the worker depends on.
type Storage interface {
	Open(ctx context.Context, name string) error
	Names(ctx context.Context) ([]string, error)
	DeleteCache(ctx context.Context, name string) (bool, error)
	Put(ctx context.Context, cache string, e Entry) error
	Match(ctx context.Context, cache, key string) (*Entry, error)
	MatchAny(ctx context.Context, key string) (*Entry, error)
	Delete(ctx context.Context, cache, key string) (bool, error)
	Keys(ctx context.Context, cache string) ([]string, error)
	Close() error
}

// Verify *DB satisfies Storage at compile time.
var _ Storage = (*DB)(nil)
