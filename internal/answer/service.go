// ABOUTME: AnswerService contract and result types for knowledge-base queries
// ABOUTME: Sentinel answer id -1 on the first candidate signals no match

package answer

import "context"

// NoMatchID is the reserved answer identifier the knowledge base returns
// when it has no candidate for a query.
const NoMatchID = -1

// Answer is one ranked candidate returned by the knowledge base.
type Answer struct {
	ID        int      `json:"id"`
	Answer    string   `json:"answer"`
	Questions []string `json:"questions"`

	// Prompts lists follow-up question suggestions attached to the answer.
	Prompts []Prompt `json:"prompts,omitempty"`
}

// Prompt is a follow-up suggestion attached to an answer.
type Prompt struct {
	QuestionID  int    `json:"question_id"`
	DisplayText string `json:"display_text"`
}

// QueryResult is the ranked candidate list for one query.
type QueryResult struct {
	Answers []Answer `json:"answers"`
}

// Query carries one knowledge-base request.
type Query struct {
	Question string
	// ExactOnly restricts matching to exact question hits.
	ExactOnly bool
	// PrevQuestionID and PrevQuestionText carry follow-up context from the
	// previously shown answer so the knowledge base can disambiguate.
	PrevQuestionID   string
	PrevQuestionText string
}

// Service is the external knowledge-base answering service.
type Service interface {
	GenerateAnswer(ctx context.Context, q Query) (*QueryResult, error)
}
