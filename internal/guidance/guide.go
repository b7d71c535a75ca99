// Package guidance builds fallback chat replies from a small Markdown
// knowledge base embedded in the binary. Paragraphs are grouped by cycle
// pattern and ranked against the user's message with Jaccard similarity.
package guidance

import (
	_ "embed"
	"strings"

	"github.com/tbourn/cycle-assessment-backend/internal/ai"
)

//go:embed guidance.md
var defaultMarkdown []byte

const (
	replyIntro = "I can't give a full answer right now, but here is some guidance that may help."
	replyOutro = "If anything about your cycle worries you, please talk to a healthcare provider."
)

var stopwords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "can", "do", "does", "for",
	"from", "how", "i", "if", "in", "is", "it", "my", "of", "on", "or", "should", "so",
	"that", "the", "this", "to", "was", "what", "when", "why", "will", "with", "you",
}

// Guide answers from the knowledge base. It is immutable after
// construction and safe for concurrent use.
type Guide struct {
	indexes map[string]Index
	first   map[string]string
}

// New builds a Guide from the embedded knowledge base.
func New() (*Guide, error) {
	return NewFromMarkdown(defaultMarkdown)
}

// NewFromMarkdown builds a Guide from md. Sections are introduced by "## "
// headings named after cycle patterns; text outside any pattern heading is
// general guidance.
func NewFromMarkdown(md []byte) (*Guide, error) {
	sections, err := parseSections(md)
	if err != nil {
		return nil, err
	}
	g := &Guide{indexes: map[string]Index{}, first: map[string]string{}}
	for name, paras := range sections {
		g.indexes[name] = NewIndex(paras, WithStopwords(stopwords))
		for _, p := range paras {
			if strings.TrimSpace(p) != "" {
				g.first[name] = normalizeWhitespace(strings.TrimSpace(p))
				break
			}
		}
	}
	return g, nil
}

// Reply returns a fallback answer for req. The pattern section is searched
// first, then general guidance; with no match the first paragraph of the
// pattern section (or of general guidance) is used.
func (g *Guide) Reply(req ai.Request) string {
	pattern := strings.ToLower(strings.TrimSpace(req.Pattern))
	snippet := g.lookup(pattern, req.Message)
	if snippet == "" {
		snippet = g.first[pattern]
	}
	if snippet == "" {
		snippet = g.first[GeneralSection]
	}
	if snippet == "" {
		return replyIntro + "\n\n" + replyOutro
	}
	return replyIntro + "\n\n" + snippet + "\n\n" + replyOutro
}

func (g *Guide) lookup(pattern, message string) string {
	for _, name := range []string{pattern, GeneralSection} {
		idx, ok := g.indexes[name]
		if !ok {
			continue
		}
		if res := idx.TopK(message, 1); len(res) > 0 {
			return res[0].Snippet
		}
	}
	return ""
}
