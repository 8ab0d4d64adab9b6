package rag

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/duc-ai/duc/internal/index"
	"github.com/duc-ai/duc/internal/session"
)

// systemPrompt instructs the model to answer from the labeled context
// passages and to reference documents by filename.
const systemPrompt = `You are Duc, an expert document assistant. You help users understand and retrieve information from their uploaded documents.

Each piece of context below is labeled with [Source: filename, Page: number]. Base your answers on that context, reference documents by their filenames naturally (e.g. "According to Report.pdf..."), and format responses as markdown with clear headings and lists. If the answer is not in the documents, say so clearly.`

// sectionSeparator joins context passages in the prompt.
const sectionSeparator = "\n\n---\n\n"

// promptBuilder assembles the generation prompt and enforces the context
// token budget.
type promptBuilder struct {
	tokenBudget int
	encoder     *tiktoken.Tiktoken
}

// newPromptBuilder creates a builder with the given context token budget.
// Token counts use the cl100k_base encoding; if the encoding is unavailable
// (offline environments) counts are estimated at four characters per token.
func newPromptBuilder(tokenBudget int) *promptBuilder {
	b := &promptBuilder{tokenBudget: tokenBudget}
	if tokenBudget > 0 {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			b.encoder = enc
		}
	}
	return b
}

// countTokens counts or estimates the tokens in a string.
func (b *promptBuilder) countTokens(s string) int {
	if b.encoder != nil {
		return len(b.encoder.Encode(s, nil, nil))
	}
	return len(s) / 4
}

// fit returns the leading matches whose formatted sections stay within the
// token budget. The best match is always kept so retrieval is never silently
// discarded. The returned slice is what citations must be built from: only
// passages the model actually saw may be cited.
func (b *promptBuilder) fit(matches []index.Match) []index.Match {
	if b.tokenBudget <= 0 {
		return matches
	}
	used := 0
	for i, m := range matches {
		used += b.countTokens(formatSection(m))
		if used > b.tokenBudget && i > 0 {
			return matches[:i]
		}
	}
	return matches
}

// formatSection renders one retrieved chunk as a labeled context passage.
func formatSection(m index.Match) string {
	page := "?"
	if m.Entry.Page != nil {
		page = fmt.Sprintf("%d", *m.Entry.Page)
	}
	return fmt.Sprintf("[Source: %s, Page: %s]\n%s", m.Entry.Filename, page, m.Entry.Text)
}

// buildContext joins the kept matches into the prompt's context block.
func buildContext(matches []index.Match) string {
	sections := make([]string, 0, len(matches))
	for _, m := range matches {
		sections = append(sections, formatSection(m))
	}
	return strings.Join(sections, sectionSeparator)
}

// formatHistory renders the bounded conversation history, oldest first.
func formatHistory(turns []session.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString("USER: ")
		sb.WriteString(t.Question)
		sb.WriteString("\nASSISTANT: ")
		sb.WriteString(t.Answer)
		sb.WriteString("\n")
	}
	return sb.String()
}
