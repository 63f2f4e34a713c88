package semantic

import (
	"context"
	"fmt"
	"sort"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
	"github.com/PartSenseAI/partsense-mvp/pkg/fn"
)

// Embedder produces a query embedding in the same space used to build the
// index. The retriever does not own the embedding model lifecycle.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher abstracts the per-collection k-NN call for testing.
type Searcher interface {
	SearchCollection(ctx context.Context, ct domain.ContentType, embedding []float32, topK int) ([]Hit, error)
}

// Retriever embeds a query and searches the collection for a content type.
type Retriever struct {
	embedder Embedder
	store    Searcher
	minScore float32
}

// NewRetriever creates a Retriever. Hits scoring below minScore are dropped
// so low-confidence matches never reach the language model as authoritative.
func NewRetriever(embedder Embedder, store Searcher, minScore float32) *Retriever {
	return &Retriever{embedder: embedder, store: store, minScore: minScore}
}

// Search embeds queryText and returns at most topK hits from the content
// type's collection, ordered by descending score with ties broken by ID.
func (r *Retriever) Search(ctx context.Context, queryText string, ct domain.ContentType, topK int) ([]Hit, error) {
	if !domain.ValidContentTypes[ct] {
		return nil, fmt.Errorf("semantic: unknown content type %q", ct)
	}
	if topK <= 0 {
		topK = 5
	}

	embedding, err := r.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("semantic: %w: %w", domain.ErrEmbeddingFailure, err)
	}

	hits, err := r.store.SearchCollection(ctx, ct, embedding, topK)
	if err != nil {
		return nil, err
	}
	return rankHits(hits, r.minScore, topK), nil
}

// rankHits drops sub-threshold hits and imposes the deterministic ordering:
// score descending, then ID ascending.
func rankHits(hits []Hit, minScore float32, topK int) []Hit {
	kept := fn.Filter(hits, func(h Hit) bool { return h.Score >= minScore })
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].ID < kept[j].ID
	})
	if len(kept) > topK {
		kept = kept[:topK]
	}
	return kept
}
