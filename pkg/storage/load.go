package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/pool"
)

const loadConcurrency = 16

// LoadAll reads every object under prefix concurrently and decodes it with
// decode. Objects removed between List and Read are skipped. Results are in
// no particular order.
func LoadAll[T any](ctx context.Context, s Storage, prefix string, decode func([]byte) (T, error)) ([]T, error) {
	paths, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	p := pool.NewWithResults[*T]().WithContext(ctx).WithMaxGoroutines(loadConcurrency)
	for _, path := range paths {
		p.Go(func(ctx context.Context) (*T, error) {
			data, err := s.Read(ctx, path)
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			v, err := decode(data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", path, err)
			}
			return &v, nil
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}
