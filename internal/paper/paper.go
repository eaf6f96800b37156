// Package paper defines the normalized metadata record shared by every
// fetch source and pipeline stage.
package paper

import "strings"

// Paper is the normalized metadata for one fetched paper. IDs are stable
// across sources: bare arXiv ids (version suffix stripped) for arXiv, and
// prefixed ids such as "semantic_scholar:<hash>" for other sources.
type Paper struct {
	ID         string
	Title      string
	Authors    []string
	Categories []string
	Published  string
	Updated    string
	Abstract   string
	PDFURL     string
	Source     string
}

// MergeCategories folds extra categories into p, preserving order and
// dropping duplicates. Used when the same paper appears under multiple
// arXiv category feeds.
func (p *Paper) MergeCategories(extra []string) {
	seen := make(map[string]struct{}, len(p.Categories)+len(extra))
	for _, c := range p.Categories {
		seen[c] = struct{}{}
	}
	for _, c := range extra {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		p.Categories = append(p.Categories, c)
	}
}
