// Package kv coordinates the in-memory cache tier and the durable store
// tier behind a read-through / write-through policy. The coordinator is
// stateless per request; all state lives in the cache and the pool. It
// never holds a cache lock and a pool slot at the same time: every store
// call completes and releases its slot before the cache is touched.
package kv

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/oriys/quartz/internal/cache"
	"github.com/oriys/quartz/internal/logging"
	"github.com/oriys/quartz/internal/observability"
	"github.com/oriys/quartz/internal/store"
)

// ErrNotFound is returned by Get and Delete when no value is available
// for the key.
var ErrNotFound = errors.New("kv: key not found")

// Source identifies which tier served a read.
type Source string

const (
	SourceCache Source = "cache"
	SourceStore Source = "store"
)

// Storer is the durable-tier contract the coordinator depends on.
// *store.Store satisfies it; tests substitute fakes.
type Storer interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Service implements get/put/delete over both tiers.
type Service struct {
	cache *cache.Cache
	store Storer
}

// New wires a coordinator over the given cache and durable store.
func New(c *cache.Cache, s Storer) *Service {
	return &Service{cache: c, store: s}
}

// Get consults the cache first; on a miss it falls through to the durable
// store and populates the cache on success. Store errors are not
// distinguished from not-found at this boundary; both surface as
// ErrNotFound and the distinction is only logged.
func (s *Service) Get(ctx context.Context, key string) ([]byte, Source, error) {
	ctx, span := observability.StartSpan(ctx, "kv.Get",
		attribute.String("kv.key", key))
	defer span.End()

	if val, ok := s.cache.Get(key); ok {
		span.SetAttributes(attribute.String("kv.source", string(SourceCache)))
		return val, SourceCache, nil
	}

	val, err := s.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		logging.Op().Warn("store get failed", "key", key, "error", err)
		observability.SetSpanError(span, err)
		return nil, "", ErrNotFound
	}

	s.cache.Put(key, val)
	span.SetAttributes(attribute.String("kv.source", string(SourceStore)))
	return val, SourceStore, nil
}

// Put writes the durable store first and touches the cache only if the
// store write succeeded, so the cache never holds a value the store does
// not durably hold.
func (s *Service) Put(ctx context.Context, key string, value []byte) error {
	ctx, span := observability.StartSpan(ctx, "kv.Put",
		attribute.String("kv.key", key),
		attribute.Int("kv.value_size", len(value)))
	defer span.End()

	if err := s.store.Put(ctx, key, value); err != nil {
		observability.SetSpanError(span, err)
		return err
	}
	s.cache.Put(key, value)
	return nil
}

// Delete removes the key from the durable store, then unconditionally
// removes it from the cache regardless of the store outcome: a cache
// entry must never survive a delete attempt, even one the store rejected.
// The store's outcome is what the caller sees.
func (s *Service) Delete(ctx context.Context, key string) error {
	ctx, span := observability.StartSpan(ctx, "kv.Delete",
		attribute.String("kv.key", key))
	defer span.End()

	err := s.store.Delete(ctx, key)
	s.cache.Delete(key)

	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		logging.Op().Warn("store delete failed", "key", key, "error", err)
		observability.SetSpanError(span, err)
		return err
	}
	return nil
}

// Stats exposes the cache counters for the metrics endpoint.
func (s *Service) Stats() cache.Stats {
	return s.cache.Stats()
}
