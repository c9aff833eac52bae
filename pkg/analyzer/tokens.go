package analyzer

import (
	"cmp"
	"regexp"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

var wordPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

var stopwords = mapset.NewSet(
	"the", "a", "an", "and", "or", "to", "of", "in", "on", "for", "with", "is", "are",
	"it", "this", "that", "i", "we", "you", "they", "my", "our", "your", "as", "at",
	"was", "were", "be", "been", "but", "not", "very", "so", "from", "by", "too",
)

// Tokenize lowercases text and keeps ASCII alphanumeric words of at least
// three characters that are not stopwords.
func Tokenize(text string) []string {
	var out []string
	for _, t := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(t) < 3 || stopwords.Contains(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TermCount is a term with its frequency.
type TermCount struct {
	Term  string
	Count int
}

// termCounter counts terms and remembers the first few reviews that used
// each one.
type termCounter[T any] struct {
	counts   map[string]int
	examples map[string][]T
	limit    int
}

func newTermCounter[T any](exampleLimit int) *termCounter[T] {
	return &termCounter[T]{counts: map[string]int{}, examples: map[string][]T{}, limit: exampleLimit}
}

// add counts every occurrence but records example at most once per term.
func (c *termCounter[T]) add(terms []string, example T) {
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, t := range terms {
		c.counts[t]++
		if seen.Add(t) && len(c.examples[t]) < c.limit {
			c.examples[t] = append(c.examples[t], example)
		}
	}
}

// top returns the n most frequent terms, ties broken by term ascending.
func (c *termCounter[T]) top(n int) []TermCount {
	out := make([]TermCount, 0, len(c.counts))
	for t, n := range c.counts {
		out = append(out, TermCount{Term: t, Count: n})
	}
	slices.SortFunc(out, func(a, b TermCount) int {
		if d := cmp.Compare(b.Count, a.Count); d != 0 {
			return d
		}
		return cmp.Compare(a.Term, b.Term)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
