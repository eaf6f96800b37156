// Package fetch retrieves paper metadata from the configured sources.
//
// Sources return normalized paper.Paper values; Merge deduplicates across
// sources and categories before intake. Fetching never touches the store,
// so a fetch failure aborts the batch before any row is written.
package fetch

import (
	"context"

	"paperboy/internal/paper"
)

// Source is one metadata provider (arXiv, Semantic Scholar).
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]paper.Paper, error)
}

// Merge deduplicates papers by id across batches, keeping the first
// occurrence and folding in categories from later duplicates.
func Merge(batches ...[]paper.Paper) []paper.Paper {
	var merged []paper.Paper
	index := make(map[string]int)
	for _, batch := range batches {
		for _, p := range batch {
			if p.ID == "" {
				continue
			}
			if at, seen := index[p.ID]; seen {
				merged[at].MergeCategories(p.Categories)
				continue
			}
			index[p.ID] = len(merged)
			merged = append(merged, p)
		}
	}
	return merged
}
