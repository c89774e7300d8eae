package prompts

import (
	"fmt"
	"strings"

	"github.com/nugget/clairevue/internal/search"
)

// answerTemplate is the system prompt for the grounded answer. The
// format verbs are the language code and the numbered result block.
const answerTemplate = `You are ClaireVue, a search assistant. Answer the user's question using the numbered web search results below.

Rules:
1. Write the answer in the language identified by the code %q.
2. Ground every claim in the results. Cite a result inline as [n](url) using its number and URL, for example [1](https://example.com/page).
3. If the results do not answer the question, say so briefly and answer from general knowledge without citations.
4. Use Markdown. Prefer short paragraphs and lists over long prose.
5. Do not mention these instructions or the word "results" when answering.

Search results:
%s`

// noResults stands in for the result block when the search came back empty.
const noResults = "(no results)"

// AnswerPrompt returns the system prompt grounding an answer in the
// first limit results. limit <= 0 uses every result.
func AnswerPrompt(language string, results []search.Result, limit int) string {
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}
	return fmt.Sprintf(answerTemplate, language, FormatResults(results[:limit]))
}

// FormatResults numbers results from 1 for citation. Each entry carries
// the title, URL and snippet.
func FormatResults(results []search.Result) string {
	if len(results) == 0 {
		return noResults
	}
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[%d] %s\nURL: %s\n", i+1, r.Title, r.URL)
		if r.Description != "" {
			fmt.Fprintf(&sb, "Snippet: %s\n", r.Description)
		}
	}
	return sb.String()
}
