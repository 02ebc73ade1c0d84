// Package knowledge selects the course fragments that ground AI prompts.
// Selection is pure: same corpus and topic always yield the same fragments
// in the same order, so audit entries stay reproducible.
package knowledge

import (
	"context"
	"sort"
	"strings"
)

// DefaultMaxFragments bounds prompt size; model quality degrades past a
// handful of fragments long before the token limit does.
const DefaultMaxFragments = 5

// Fragment is a minimal view of one pre-chunked unit of course material.
// Keep this in sync with whatever fields your store uses.
type Fragment struct {
	ID      string
	Tag     string
	Seq     int // original document order, the ranking tie-break
	Content string
}

// FragmentSource is the read surface the grounder needs.
type FragmentSource interface {
	ListFragments(ctx context.Context, courseID string) ([]Fragment, error)
}

// SourceFunc adapts a function to FragmentSource.
type SourceFunc func(ctx context.Context, courseID string) ([]Fragment, error)

func (f SourceFunc) ListFragments(ctx context.Context, courseID string) ([]Fragment, error) {
	return f(ctx, courseID)
}

// Grounding carries the selected fragments plus the provenance fields the
// audit trail records.
type Grounding struct {
	Fragments   []Fragment
	FragmentIDs []string
	Previews    []string
}

// PromptBlock renders the fragments as a labeled context block for
// inclusion in a prompt. Empty when nothing was selected.
func (g Grounding) PromptBlock() string {
	if len(g.Fragments) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Course material:\n")
	for i, f := range g.Fragments {
		b.WriteString("- [")
		b.WriteString(f.Tag)
		b.WriteString("] ")
		b.WriteString(strings.TrimSpace(f.Content))
		if i < len(g.Fragments)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

type Grounder struct {
	src        FragmentSource
	defaultMax int
}

func NewGrounder(src FragmentSource, defaultMax int) *Grounder {
	if defaultMax <= 0 {
		defaultMax = DefaultMaxFragments
	}
	return &Grounder{src: src, defaultMax: defaultMax}
}

// Select ranks the course corpus against the topic and returns at most
// maxFragments (0 means the grounder default). Exact tag matches outrank
// lexical overlap; remaining ties resolve by original document order.
func (g *Grounder) Select(ctx context.Context, courseID, topic string, maxFragments int) (Grounding, error) {
	if maxFragments <= 0 {
		maxFragments = g.defaultMax
	}
	frags, err := g.src.ListFragments(ctx, courseID)
	if err != nil {
		return Grounding{}, err
	}
	if len(frags) == 0 {
		return Grounding{}, nil
	}

	topicNorm := normalize(topic)
	topicTokens := strings.Fields(topicNorm)

	type ranked struct {
		frag     Fragment
		tagMatch bool
		overlap  int
	}
	rs := make([]ranked, 0, len(frags))
	for _, f := range frags {
		r := ranked{frag: f}
		tagNorm := normalize(f.Tag)
		if tagNorm != "" && (tagNorm == topicNorm || containsToken(topicTokens, tagNorm)) {
			r.tagMatch = true
		}
		r.overlap = overlapCount(topicTokens, tokenSet(f.Tag+" "+f.Content))
		rs = append(rs, r)
	}

	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.tagMatch != b.tagMatch {
			return a.tagMatch
		}
		if a.overlap != b.overlap {
			return a.overlap > b.overlap
		}
		return a.frag.Seq < b.frag.Seq
	})

	if len(rs) > maxFragments {
		rs = rs[:maxFragments]
	}
	out := Grounding{
		Fragments:   make([]Fragment, 0, len(rs)),
		FragmentIDs: make([]string, 0, len(rs)),
		Previews:    make([]string, 0, len(rs)),
	}
	for _, r := range rs {
		out.Fragments = append(out.Fragments, r.frag)
		out.FragmentIDs = append(out.FragmentIDs, r.frag.ID)
		out.Previews = append(out.Previews, preview(r.frag.Content, 80))
	}
	return out, nil
}

func containsToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(normalize(s)) {
		set[t] = true
	}
	return set
}

// overlapCount counts distinct topic tokens present in the fragment.
func overlapCount(topicTokens []string, fragTokens map[string]bool) int {
	seen := make(map[string]bool, len(topicTokens))
	n := 0
	for _, t := range topicTokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		if fragTokens[t] {
			n++
		}
	}
	return n
}

func preview(s string, max int) string {
	flat := strings.Join(strings.Fields(s), " ")
	r := []rune(flat)
	if len(r) <= max {
		return flat
	}
	return string(r[:max]) + "…"
}
