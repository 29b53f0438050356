package pipeline

import (
	"sort"
	"strings"

	"github.com/rmarkelov/archivarius/internal/telegram"
)

// ParsedRecord is one surviving message after filtering. Text is omitted
// when no text survives stripping; Photo when the message has no photo. A
// record exists only if at least one of the two is present.
type ParsedRecord struct {
	ID    int64  `json:"id"`
	Date  string `json:"date"`
	Text  string `json:"text,omitempty"`
	Photo string `json:"photo,omitempty"`
}

// Filter applies the garbage spec to normalized messages and accumulates
// the run-scoped n-gram frequency table over surviving text.
type Filter struct {
	spec       *GarbageSpec
	wordOffset int
	ngrams     *NGramTable
}

// NewFilter returns a filter for one pipeline run. wordOffset is the n-gram
// window width in whitespace-separated tokens.
func NewFilter(spec *GarbageSpec, wordOffset int) *Filter {
	return &Filter{
		spec:       spec,
		wordOffset: wordOffset,
		ngrams:     NewNGramTable(),
	}
}

// Apply filters one message. It returns the emitted record, or nil when the
// message is dropped: either its id is marked as garbage, or nothing
// survives phrase stripping and it carries no photo. N-grams accumulate for
// every message with non-empty post-clean text, including ones emitted for
// their photo alone.
func (f *Filter) Apply(msg *telegram.NormalizedMessage) *ParsedRecord {
	if f.spec.HasID(msg.ID) {
		return nil
	}

	text := msg.Text()
	for _, phrase := range f.spec.Phrases {
		text = strings.ReplaceAll(text, phrase, "")
	}
	text = strings.TrimSpace(text)

	if text != "" {
		f.ngrams.Add(text, f.wordOffset)
	}

	if text == "" && msg.Photo == "" {
		return nil
	}

	return &ParsedRecord{
		ID:    msg.ID,
		Date:  msg.Date,
		Text:  text,
		Photo: msg.Photo,
	}
}

// NGrams exposes the accumulated frequency table for end-of-run reporting.
func (f *Filter) NGrams() *NGramTable {
	return f.ngrams
}

// NGramTable counts occurrences of contiguous token windows across all
// surviving records. Keys are the windows' space-joined tokens. Insertion
// order is retained to break count ties first-seen-first.
type NGramTable struct {
	counts map[string]int
	order  []string
}

func NewNGramTable() *NGramTable {
	return &NGramTable{counts: map[string]int{}}
}

// Add splits text on single spaces, discards empty tokens, and increments
// the count of every contiguous window of n tokens.
func (t *NGramTable) Add(text string, n int) {
	if n < 1 {
		return
	}
	fields := strings.Split(text, " ")
	tokens := fields[:0]
	for _, tok := range fields {
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	for i := 0; i+n <= len(tokens); i++ {
		key := strings.Join(tokens[i:i+n], " ")
		if _, seen := t.counts[key]; !seen {
			t.order = append(t.order, key)
		}
		t.counts[key]++
	}
}

// Count returns the occurrence count for key.
func (t *NGramTable) Count(key string) int {
	return t.counts[key]
}

// Len returns the number of distinct keys.
func (t *NGramTable) Len() int {
	return len(t.counts)
}

// Report returns the most frequent keys for curation feedback. It takes the
// top 10+len(exceptions) keys by count, ties broken by first encounter, then
// removes any key in exceptions without backfilling the freed slots.
func (t *NGramTable) Report(exceptions []string) []string {
	top := make([]string, len(t.order))
	copy(top, t.order)
	sort.SliceStable(top, func(i, j int) bool {
		return t.counts[top[i]] > t.counts[top[j]]
	})

	limit := 10 + len(exceptions)
	if len(top) > limit {
		top = top[:limit]
	}

	excluded := make(map[string]struct{}, len(exceptions))
	for _, e := range exceptions {
		excluded[e] = struct{}{}
	}

	report := top[:0]
	for _, key := range top {
		if _, skip := excluded[key]; !skip {
			report = append(report, key)
		}
	}
	return report
}
