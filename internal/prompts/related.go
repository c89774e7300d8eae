package prompts

import "fmt"

// relatedTemplate asks for follow-up questions. The format verbs are
// the original question and the answer it received.
const relatedTemplate = `Suggest up to 5 short follow-up questions a curious reader might ask next.

Rules:
- Write them in the same language as the question.
- One question per line, each ending with a question mark.
- No numbering, no bullets, no commentary before or after.

Question:
%s

Answer:
%s

Follow-up questions:`

// RelatedQuestionsPrompt returns the prompt asking for follow-up
// questions to query given the answer it received.
func RelatedQuestionsPrompt(query, answer string) string {
	return fmt.Sprintf(relatedTemplate, query, answer)
}
