package api

import (
	"context"

	"github.com/google/go-github/v57/github"
)

// pageFunc fetches one page of a listing
type pageFunc[T any] func(ctx context.Context, opts github.ListOptions) ([]T, error)

// collect walks numbered pages of PageSize items. It stops on a short page
// or once limit kept items are accumulated (limit <= 0 means no cap).
// keep may be nil; filtered items do not count toward the limit but raw
// page length still decides whether another page exists.
func collect[T any](ctx context.Context, limit int, keep func(T) bool, fetch pageFunc[T]) ([]T, error) {
	var all []T

	for page := 1; ; page++ {
		items, err := fetch(ctx, github.ListOptions{Page: page, PerPage: PageSize})
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			if keep != nil && !keep(item) {
				continue
			}
			all = append(all, item)
			if limit > 0 && len(all) >= limit {
				return all, nil
			}
		}

		if len(items) < PageSize {
			return all, nil
		}
	}
}
