// ABOUTME: Turn is the normalized inbound conversational event for helpline
// ABOUTME: Built by the transport adapter, immutable once handed to the router

package turn

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ConversationKind distinguishes one-to-one chats from group surfaces.
// Only KindPersonal turns are processed; everything else is dropped.
type ConversationKind string

const (
	KindPersonal ConversationKind = "personal"
	KindGroup    ConversationKind = "group"
	KindChannel  ConversationKind = "channel"
)

// Card action commands recognized in free text and card submissions.
const (
	CommandAskExpert    = "ask an expert"
	CommandSubmitExpert = "submit expert question"
)

// Turn is one inbound conversational event.
type Turn struct {
	// ID is the platform-assigned message identifier, used for dedupe.
	ID string

	SenderID   string
	SenderName string

	ConversationID string
	Kind           ConversationKind

	// Text is the free text of the turn. May be empty for pure card submits.
	Text string

	// Value is the structured payload carried when this turn responds to a
	// previously sent interactive card. Nil for plain text turns.
	Value *CardValue

	// ReplyToID is set when this turn replies to an earlier message.
	ReplyToID string

	// Timestamp is stamped by the transport adapter on receipt.
	Timestamp time.Time
}

// CardValue is the closed structured payload a card submission carries.
// The transport adapter decodes raw platform JSON into this type before the
// turn reaches the classifier, so the core never inspects loose maps.
type CardValue struct {
	// Text is the command the card action posts back.
	Text string `json:"text"`

	// Question carries submitted or prefilled question text.
	Question string `json:"question,omitempty"`

	// IsPrompt marks a follow-up suggestion selection after an answer.
	IsPrompt bool `json:"is_prompt,omitempty"`

	// PreviousQuestions lists the follow-up candidates that were shown.
	PreviousQuestions []PreviousQuestion `json:"previous_questions,omitempty"`
}

// PreviousQuestion references a knowledge-base question shown on an earlier
// answer card, used to disambiguate the next query.
type PreviousQuestion struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// ClassificationError reports a structured payload that could not be decoded
// into a CardValue. The turn carrying it is logged and dropped.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("malformed card payload: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// ParseCardValue decodes a raw structured payload into a CardValue.
// Returns a *ClassificationError if the payload is not a JSON object with
// the expected field shapes.
func ParseCardValue(raw json.RawMessage) (*CardValue, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v CardValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &ClassificationError{Err: err}
	}
	return &v, nil
}

// Normalize lowercases and trims query text the way commands are matched.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
