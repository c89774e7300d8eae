// Package intent guesses which response shape a query wants: a short
// answer, an AI-synthesized answer, or a jump straight to a site.
//
// The heuristic is lexical and deliberately approximate. It compares
// the query against the top result's domain with an edit distance, so
// "facebok" still finds facebook.com. False positives and negatives
// are expected; the thresholds are tunable rather than load-bearing.
package intent

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/nugget/clairevue/internal/search"
)

// Intent is the response shape chosen for a query.
type Intent string

const (
	// Answer: the query is phrased as a question.
	Answer Intent = "ANSWER"
	// AIAnswer: synthesize an answer from the results.
	AIAnswer Intent = "AI_ANSWER"
	// DirectSource: the user most likely wants the top result's site.
	DirectSource Intent = "DIRECT_SOURCE"
)

// Thresholds tune the navigational match.
type Thresholds struct {
	// MaxDistance is the largest edit distance that still counts as a
	// match.
	MaxDistance int
	// MinWordLen: query words and the domain base must be longer than
	// this to be compared word by word.
	MinWordLen int
	// MinJoinedLen: the joined query and the domain base must be
	// longer than this for the concatenation fallback.
	MinJoinedLen int
}

// DefaultThresholds returns distance ≤ 2, words longer than 2 runes,
// joined queries longer than 3 runes.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxDistance: 2, MinWordLen: 2, MinJoinedLen: 3}
}

// Classify runs [Thresholds.Classify] with the default thresholds.
func Classify(query string, results []search.Result) Intent {
	return DefaultThresholds().Classify(query, results)
}

// Classify decides the intent of query given the web results, of which
// only the first is inspected. It is pure and deterministic.
func (t Thresholds) Classify(query string, results []search.Result) Intent {
	q := strings.ToLower(strings.TrimSpace(query))
	if strings.HasSuffix(q, "?") {
		return Answer
	}
	if len(results) == 0 {
		return AIAnswer
	}

	base := DomainBase(results[0].Hostname())
	if t.navigational(strings.Fields(q), base) {
		return DirectSource
	}
	return AIAnswer
}

func (t Thresholds) navigational(words []string, base string) bool {
	baseLen := utf8.RuneCountInString(base)

	if baseLen > t.MinWordLen {
		for _, w := range words {
			if utf8.RuneCountInString(w) <= t.MinWordLen {
				continue
			}
			if levenshtein.ComputeDistance(w, base) <= t.MaxDistance {
				return true
			}
		}
	}

	// "bank of america" vs bankofamerica.com
	if len(words) == 2 || len(words) == 3 {
		joined := strings.Join(words, "")
		if utf8.RuneCountInString(joined) > t.MinJoinedLen && baseLen > t.MinJoinedLen {
			return levenshtein.ComputeDistance(joined, base) <= t.MaxDistance
		}
	}
	return false
}

// DomainBase reduces a hostname to the label most likely to name the
// site: "www.facebook.com" gives "facebook", "fr.wikipedia.org" gives
// "wikipedia", "news.bbc.co.uk" gives "co". The last case is a known
// weakness of picking the second-from-last label on long hosts.
func DomainBase(hostname string) string {
	h := strings.ToLower(strings.TrimSuffix(hostname, "."))
	h = strings.TrimPrefix(h, "www.")
	if h == "" {
		return ""
	}

	labels := strings.Split(h, ".")
	if len(labels) > 2 {
		return labels[len(labels)-2]
	}
	return labels[0]
}
