// Package storage composes the cache layer and a key-value backend into a
// JSON item store.
//
// Error policy: writes (SetItem, RemoveItem, ClearAll) and Load return
// *Error. GetItem and Lookup fail soft: they log and fall back to the
// default or absent result.
//
// Values handed to SetItem are cached as-is and returned by later reads
// without copying, so callers treat read results as immutable.
//
// An item written with a TTL is persisted inside an envelope carrying its
// expiry, so it also disappears from the backend view once stale.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"clinic-booking/internal/cache"
	"clinic-booking/internal/kv"
	"clinic-booking/internal/metrics"
)

type Service struct {
	backend kv.Backend
	cache   *cache.Cache
	log     *logrus.Logger
	now     func() time.Time
}

type Option func(*Service)

// WithClock sets the clock used for TTL envelopes. Give the cache the same
// clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(backend kv.Backend, c *cache.Cache, log *logrus.Logger, opts ...Option) *Service {
	if c == nil {
		c = cache.New()
	}
	s := &Service{backend: backend, cache: c, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

const expiresField = "__expiresAt"

type envelope struct {
	ExpiresAt time.Time       `json:"__expiresAt"`
	Value     json.RawMessage `json:"value"`
}

func backendKey(key string) string { return Namespace + key }

func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.StorageOps.WithLabelValues(op, outcome).Inc()
}

// SetItem encodes value, writes it, then caches the original value with ttl
// (ttl <= 0 means no expiry).
func (s *Service) SetItem(ctx context.Context, key string, value any, ttl time.Duration) (err error) {
	defer func() { observe("set", err) }()

	raw, err := json.Marshal(value)
	if err != nil {
		return NewError("set", key, ErrSerialization, err)
	}
	if ttl > 0 {
		raw, err = json.Marshal(envelope{ExpiresAt: s.now().Add(ttl).UTC(), Value: raw})
		if err != nil {
			return NewError("set", key, ErrSerialization, err)
		}
	}
	if err := s.backend.Set(ctx, backendKey(key), string(raw)); err != nil {
		return NewError("set", key, ErrBackend, err)
	}
	s.cache.Put(key, value, ttl)
	return nil
}

// Load is the fail-loud read: cache, then backend. A backend value is cached
// without TTL unless it was written with one. found is false when the key
// has no value or its TTL has passed.
func Load[T any](ctx context.Context, s *Service, key string) (value T, found bool, err error) {
	defer func() { observe("get", err) }()

	if v, ok := s.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, true, nil
		}
		s.log.WithFields(logrus.Fields{
			"Function": "Load",
			"Key":      key,
		}).Debug("cached value has a different type, reading backend")
	}

	var zero T
	raw, err := s.backend.Get(ctx, backendKey(key))
	if errors.Is(err, kv.ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, NewError("get", key, ErrBackend, err)
	}

	payload := []byte(raw)
	var ttl time.Duration
	if exp := gjson.Get(raw, expiresField); exp.Exists() {
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return zero, false, NewError("get", key, ErrSerialization, err)
		}
		ttl = env.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			if err := s.backend.Remove(ctx, backendKey(key)); err != nil {
				s.log.WithFields(logrus.Fields{
					"Function": "Load",
					"Key":      key,
					"Error":    err,
				}).Warn("failed to drop expired item")
			}
			return zero, false, nil
		}
		payload = env.Value
	}

	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return zero, false, NewError("get", key, ErrSerialization, err)
	}
	s.cache.Put(key, out, ttl)
	return out, true, nil
}

// GetItem returns def when the key is absent or the read fails.
func GetItem[T any](ctx context.Context, s *Service, key string, def T) T {
	v, ok := Lookup[T](ctx, s, key)
	if !ok {
		return def
	}
	return v
}

// Lookup is GetItem with an explicit absent result instead of a default.
func Lookup[T any](ctx context.Context, s *Service, key string) (T, bool) {
	v, found, err := Load[T](ctx, s, key)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"Function": "GetItem",
			"Key":      key,
			"Error":    err,
		}).Warn("read failed, using default")
		var zero T
		return zero, false
	}
	return v, found
}

func (s *Service) RemoveItem(ctx context.Context, key string) (err error) {
	defer func() { observe("remove", err) }()

	if err := s.backend.Remove(ctx, backendKey(key)); err != nil {
		return NewError("remove", key, ErrBackend, err)
	}
	s.cache.Invalidate(key)
	return nil
}

// ClearAll wipes the whole backend, including keys outside the namespace.
func (s *Service) ClearAll(ctx context.Context) (err error) {
	defer func() { observe("clear", err) }()

	if err := s.backend.Clear(ctx); err != nil {
		return NewError("clear", "", ErrBackend, err)
	}
	s.cache.Clear()
	return nil
}

// Invalidate drops the cached copy so the next read goes to the backend.
func (s *Service) Invalidate(key string) { s.cache.Invalidate(key) }

// Keys lists the namespaced keys present in the backend, without prefix.
func (s *Service) Keys(ctx context.Context) ([]string, error) {
	all, err := s.backend.Keys(ctx)
	if err != nil {
		return nil, NewError("keys", "", ErrBackend, err)
	}
	var out []string
	for _, k := range all {
		if rest, ok := strings.CutPrefix(k, Namespace); ok {
			out = append(out, rest)
		}
	}
	return out, nil
}

// HasRawKey reports whether key exists in the backend without the namespace.
func (s *Service) HasRawKey(ctx context.Context, key string) (bool, error) {
	_, err := s.backend.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, NewError("get", key, ErrBackend, err)
	}
	return true, nil
}

func (s *Service) Logger() *logrus.Logger { return s.log }
