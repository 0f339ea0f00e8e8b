package policy

import "strings"

// Similarity decides whether a candidate text repeats a previous agent
// message. Exact is the default; Jaccard is the stronger opt-in policy.
type Similarity interface {
	Similar(previous, candidate string) bool
}

// Exact matches texts after case folding and whitespace collapsing.
type Exact struct{}

func (Exact) Similar(previous, candidate string) bool {
	return normalize(previous) == normalize(candidate)
}

// Jaccard matches texts whose word-set overlap exceeds Threshold.
type Jaccard struct {
	Threshold float64 // (0,1]; 0.9 catches near-verbatim repeats
}

func (j Jaccard) Similar(previous, candidate string) bool {
	a := wordSet(normalize(previous))
	b := wordSet(normalize(candidate))
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter)/float64(union) > j.Threshold
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func wordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}
