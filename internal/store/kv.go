package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// KV is the key/value medium every sub-store persists through.
// Values are JSON documents; List returns values whose key starts with
// prefix, ordered by key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Create(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([][]byte, error)
}

// Key prefixes of the persisted state layout
const (
	prefixDeployments     = "deployments/"
	prefixModels          = "models/"
	prefixOptimizedModels = "optimized_models/"
	prefixMetrics         = "metrics/"
	prefixOutcomes        = "outcomes/"
	prefixAccess          = "access/"
	prefixAnalytics       = "analytics/"
)

// collection is a typed view over one key prefix
type collection[T any] struct {
	kv     KV
	prefix string
	noun   string
}

func (c collection[T]) get(ctx context.Context, id string) (*T, error) {
	data, err := c.kv.Get(ctx, c.prefix+id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", c.noun, err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", c.noun, id, err)
	}
	return &v, nil
}

func (c collection[T]) put(ctx context.Context, id string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", c.noun, id, err)
	}
	if err := c.kv.Put(ctx, c.prefix+id, data); err != nil {
		return fmt.Errorf("put %s: %w", c.noun, err)
	}
	return nil
}

func (c collection[T]) create(ctx context.Context, id string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", c.noun, id, err)
	}
	err = c.kv.Create(ctx, c.prefix+id, data)
	if errors.Is(err, ErrConflict) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", c.noun, err)
	}
	return nil
}

func (c collection[T]) delete(ctx context.Context, id string) error {
	err := c.kv.Delete(ctx, c.prefix+id)
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", c.noun, err)
	}
	return nil
}

func (c collection[T]) list(ctx context.Context, subPrefix string) ([]*T, error) {
	values, err := c.kv.List(ctx, c.prefix+subPrefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.noun, err)
	}

	out := make([]*T, 0, len(values))
	for _, data := range values {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c.noun, err)
		}
		out = append(out, &v)
	}
	return out, nil
}
