package store

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"clinic-booking/internal/storage"
)

// ErrNoRecord is returned by transitions on an unknown id.
var ErrNoRecord = errors.New("record not found")

type record interface {
	Key() string
	Validate() error
}

// collection is one JSON array under one key. mu serializes the
// read-modify-write mutators so concurrent adds cannot drop each other.
//
// Reads hide stored records that fail their shape check. Mutators never
// touch those records and write them back unchanged.
type collection[T record] struct {
	svc *storage.Service
	key string
	mu  sync.Mutex
}

func newCollection[T record](svc *storage.Service, key string) *collection[T] {
	return &collection[T]{svc: svc, key: key}
}

func validOnly[T record](items []T) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if it.Validate() == nil {
			out = append(out, it)
		}
	}
	return out
}

// valid drops records that fail their shape check.
func (c *collection[T]) valid(items []T) []T {
	out := validOnly(items)
	if dropped := len(items) - len(out); dropped > 0 {
		c.svc.Logger().WithFields(logrus.Fields{
			"Function": "collection.valid",
			"Key":      c.key,
			"Dropped":  dropped,
		}).Warn("ignoring invalid stored records")
	}
	return out
}

// all is the fail-soft read.
func (c *collection[T]) all(ctx context.Context) []T {
	return c.valid(storage.GetItem[[]T](ctx, c.svc, c.key, nil))
}

// load is the fail-loud read used by statistics and backup.
func (c *collection[T]) load(ctx context.Context) ([]T, error) {
	items, err := c.raw(ctx)
	if err != nil {
		return nil, err
	}
	return c.valid(items), nil
}

// raw is the fail-loud read used by mutators. Invalid records stay in.
func (c *collection[T]) raw(ctx context.Context) ([]T, error) {
	items, _, err := storage.Load[[]T](ctx, c.svc, c.key)
	return items, err
}

func (c *collection[T]) save(ctx context.Context, items []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked(ctx, items)
}

// saveLocked replaces the whole collection; every record must be valid.
func (c *collection[T]) saveLocked(ctx context.Context, items []T) error {
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return storage.NewError("save", c.key, storage.ErrValidation, err)
		}
	}
	return c.writeLocked(ctx, items)
}

func (c *collection[T]) writeLocked(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	return c.svc.SetItem(ctx, c.key, items, 0)
}

// add appends without an id uniqueness check; callers mint unique ids.
func (c *collection[T]) add(ctx context.Context, item T) error {
	if err := item.Validate(); err != nil {
		return storage.NewError("add", c.key, storage.ErrValidation, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	list, err := c.raw(ctx)
	if err != nil {
		return err
	}
	next := make([]T, 0, len(list)+1)
	next = append(next, list...)
	next = append(next, item)
	return c.writeLocked(ctx, next)
}

// modify applies fn to every valid record that matches. fn may veto the
// whole change by returning an error, in which case nothing is written.
func (c *collection[T]) modify(ctx context.Context, match func(T) bool, fn func(T) (T, error)) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list, err := c.raw(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	next := make([]T, len(list))
	for i, it := range list {
		if it.Validate() == nil && match(it) {
			if it, err = fn(it); err != nil {
				return 0, err
			}
			if err := it.Validate(); err != nil {
				return 0, storage.NewError("update", c.key, storage.ErrValidation, err)
			}
			n++
		}
		next[i] = it
	}
	if n == 0 {
		return 0, nil
	}
	return n, c.writeLocked(ctx, next)
}

// updateWhere applies fn to every matching record and reports how many
// matched. Nothing is written when none match.
func (c *collection[T]) updateWhere(ctx context.Context, match func(T) bool, fn func(T) T) (int, error) {
	return c.modify(ctx, match, func(it T) (T, error) { return fn(it), nil })
}

func (c *collection[T]) update(ctx context.Context, id string, fn func(T) T) (bool, error) {
	n, err := c.updateWhere(ctx, func(it T) bool { return it.Key() == id }, fn)
	return n > 0, err
}

// transition is update with a check that sees the record as stored under
// the lock. It returns the updated record, or ErrNoRecord.
func (c *collection[T]) transition(ctx context.Context, id string, fn func(T) (T, error)) (T, error) {
	var out T
	n, err := c.modify(ctx, func(it T) bool { return it.Key() == id }, func(it T) (T, error) {
		next, err := fn(it)
		if err == nil {
			out = next
		}
		return next, err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if n == 0 {
		return out, ErrNoRecord
	}
	return out, nil
}

// remove filters out every record with id.
func (c *collection[T]) remove(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list, err := c.raw(ctx)
	if err != nil {
		return false, err
	}
	next := make([]T, 0, len(list))
	for _, it := range list {
		if it.Key() != id {
			next = append(next, it)
		}
	}
	if len(next) == len(list) {
		return false, nil
	}
	return true, c.writeLocked(ctx, next)
}
