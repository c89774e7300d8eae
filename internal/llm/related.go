package llm

import (
	"context"
	"regexp"
	"strings"

	"github.com/nugget/clairevue/internal/prompts"
)

// MaxRelatedQuestions caps the follow-up questions kept from a reply.
const MaxRelatedQuestions = 5

// listMarker matches leading bullets and numbering such as "- ", "* ",
// "• ", "1. ", "2) " or "(3) ".
var listMarker = regexp.MustCompile(`^(?:[-*•·]+|\(?\d+[.):]|\d+\s*-)\s*`)

// RelatedQuestions asks model for follow-up questions to query given
// the answer it received. The result holds at most MaxRelatedQuestions
// distinct entries, each ending in a question mark.
func RelatedQuestions(ctx context.Context, client Client, model, query, answer string) ([]string, error) {
	resp, err := client.Chat(ctx, model, []Message{
		{Role: "user", Content: prompts.RelatedQuestionsPrompt(query, answer)},
	})
	if err != nil {
		return nil, err
	}
	return ParseQuestions(resp.Content), nil
}

// ParseQuestions extracts questions from free-form model output, one
// per line. Numbering, bullets and wrapping quotes are stripped; lines
// that do not end in a question mark and case-insensitive duplicates
// are dropped.
func ParseQuestions(text string) []string {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	for _, line := range strings.Split(text, "\n") {
		q := strings.TrimSpace(line)
		q = listMarker.ReplaceAllString(q, "")
		q = strings.Trim(q, "\"'“”«» *_")
		q = strings.TrimSpace(q)
		if !strings.HasSuffix(q, "?") {
			continue
		}
		key := strings.ToLower(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == MaxRelatedQuestions {
			break
		}
	}
	return out
}
