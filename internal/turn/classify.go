// ABOUTME: PayloadClassifier maps a Turn onto the closed PayloadShape union
// ABOUTME: Pure and total: unrecognized shapes classify as ShapeUnknown

package turn

// Shape tags the kind of structured payload a turn represents.
type Shape int

const (
	// ShapeUnknown is every payload the classifier does not recognize.
	ShapeUnknown Shape = iota

	// ShapeEscalationRequest means the user wants to reach a human expert.
	ShapeEscalationRequest

	// ShapeEscalationSubmission means the user submitted the expert form.
	ShapeEscalationSubmission

	// ShapeAnswerFollowUp means the user selected a follow-up suggestion
	// after a previous answer.
	ShapeAnswerFollowUp
)

func (s Shape) String() string {
	switch s {
	case ShapeEscalationRequest:
		return "escalation_request"
	case ShapeEscalationSubmission:
		return "escalation_submission"
	case ShapeAnswerFollowUp:
		return "answer_follow_up"
	default:
		return "unknown"
	}
}

// Payload is the classified view of a turn's structured value.
// Exactly one shape applies; the fields beyond Shape are populated only for
// the variant they belong to.
type Payload struct {
	Shape Shape

	// Prefill carries prior question text for re-invocations of the
	// expert request card. EscalationRequest only.
	Prefill string

	// Question is the submitted free-form question. EscalationSubmission only.
	Question string

	// IsPrompt and FollowUp belong to AnswerFollowUp.
	IsPrompt bool
	FollowUp *FollowUpContext
}

// FollowUpContext references the previously shown follow-up question.
// Transient: scoped to a single turn, never persisted.
type FollowUpContext struct {
	QuestionID   int
	QuestionText string
}

// Classify determines which payload shape a turn carries.
//
// Priority order: the expert-request command wins regardless of other fields,
// then the submit command, then anything else with a structured value is a
// follow-up selection. Turns without a structured value classify by free
// text: the expert-request command maps to ShapeEscalationRequest, all other
// text is ShapeUnknown (free-form queries are routed directly, not through
// the classifier).
func Classify(t *Turn) Payload {
	if t.Value == nil {
		if Normalize(t.Text) == CommandAskExpert {
			return Payload{Shape: ShapeEscalationRequest}
		}
		return Payload{Shape: ShapeUnknown}
	}

	switch Normalize(t.Value.Text) {
	case CommandAskExpert:
		return Payload{
			Shape:   ShapeEscalationRequest,
			Prefill: t.Value.Question,
		}
	case CommandSubmitExpert:
		return Payload{
			Shape:    ShapeEscalationSubmission,
			Question: t.Value.Question,
		}
	}

	p := Payload{
		Shape:    ShapeAnswerFollowUp,
		IsPrompt: t.Value.IsPrompt,
	}
	if len(t.Value.PreviousQuestions) > 0 {
		prev := t.Value.PreviousQuestions[0]
		p.FollowUp = &FollowUpContext{
			QuestionID:   prev.ID,
			QuestionText: prev.Text,
		}
	}
	return p
}
