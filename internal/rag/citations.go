package rag

import (
	"sort"

	"github.com/duc-ai/duc/internal/index"
)

// Citation is a user-facing source reference for one answer. Pages are the
// distinct zero-based pages referenced, ascending; empty for pageless
// formats. Snippet is a preview taken from the best-scoring chunk of the
// file.
type Citation struct {
	Source  string `json:"source"`
	Pages   []int  `json:"pages"`
	Snippet string `json:"snippet"`
}

// buildCitations groups the matches that actually went into the prompt by
// filename. Matches arrive best-first, so the output order is the order each
// filename first appears, and the snippet comes from that first (highest
// scoring) chunk.
func buildCitations(matches []index.Match, snippetLen int) []Citation {
	seen := make(map[string]bool)
	var citations []Citation
	pages := make(map[string]map[int]bool)

	for _, m := range matches {
		name := m.Entry.Filename
		if !seen[name] {
			seen[name] = true
			citations = append(citations, Citation{
				Source:  name,
				Snippet: truncate(m.Entry.Text, snippetLen),
			})
			pages[name] = make(map[int]bool)
		}
		if m.Entry.Page != nil {
			pages[name][*m.Entry.Page] = true
		}
	}

	for i := range citations {
		set := pages[citations[i].Source]
		if len(set) == 0 {
			continue
		}
		ps := make([]int, 0, len(set))
		for p := range set {
			ps = append(ps, p)
		}
		sort.Ints(ps)
		citations[i].Pages = ps
	}
	return citations
}

// truncate bounds a snippet to n runes, appending an ellipsis when cut.
func truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "…"
}
