// Package records persists list-valued faucet records as JSON documents
// under a single key, mutated through optimistic compare-and-swap.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"faucet/internal/kv"
	dErrors "faucet/pkg/domain-errors"
	"faucet/pkg/platform/sentinel"
)

const defaultMaxAttempts = 8

// Document is a JSON-encoded value of type T stored under one key.
type Document[T any] struct {
	store       kv.Store
	key         string
	maxAttempts int
	onConflict  func()
}

type Option func(*options)

type options struct {
	maxAttempts int
	onConflict  func()
}

// WithMaxAttempts bounds the compare-and-swap loop.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithConflictHook is called every time a swap loses to a concurrent writer.
func WithConflictHook(fn func()) Option {
	return func(o *options) {
		o.onConflict = fn
	}
}

func NewDocument[T any](store kv.Store, key string, opts ...Option) *Document[T] {
	o := options{maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	return &Document[T]{
		store:       store,
		key:         key,
		maxAttempts: o.maxAttempts,
		onConflict:  o.onConflict,
	}
}

// Load returns the current value, or the zero value when the key is absent.
func (d *Document[T]) Load(ctx context.Context) (T, error) {
	value, _, err := d.load(ctx)
	return value, err
}

// Update applies fn to the current value and writes the result back only if
// no other writer changed the document in between, retrying on conflict.
// An error from fn aborts the update without writing.
func (d *Document[T]) Update(ctx context.Context, fn func(*T) error) (T, error) {
	var zero T
	for range d.maxAttempts {
		value, raw, err := d.load(ctx)
		if err != nil {
			return zero, err
		}
		if err := fn(&value); err != nil {
			return zero, err
		}
		next, err := json.Marshal(value)
		if err != nil {
			return zero, fmt.Errorf("encode %s: %w", d.key, err)
		}
		swapped, err := d.store.CompareAndSwap(ctx, d.key, raw, next, 0)
		if err != nil {
			return zero, fmt.Errorf("write %s: %w", d.key, err)
		}
		if swapped {
			return value, nil
		}
		if d.onConflict != nil {
			d.onConflict()
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
	}
	return zero, dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "record is being updated concurrently, please retry")
}

func (d *Document[T]) load(ctx context.Context) (T, []byte, error) {
	var value T
	raw, err := d.store.Get(ctx, d.key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return value, nil, nil
	}
	if err != nil {
		return value, nil, fmt.Errorf("read %s: %w", d.key, err)
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, nil, fmt.Errorf("decode %s: %w", d.key, err)
	}
	return value, raw, nil
}
