// Package repo defines the generic read-only Repository interface and list
// options. The retrieval engine never mutates graph state; entities are
// written exclusively by the external ingestion job.
package repo

import "context"

// Repository is a generic read-only lookup interface.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
}

// ListOpts controls pagination and filtering for List operations.
type ListOpts struct {
	Offset int
	Limit  int
	Filter map[string]any
}
