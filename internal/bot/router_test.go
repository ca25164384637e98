// ABOUTME: Tests for the conversation router's dispatch and escalation flow
// ABOUTME: Uses in-memory fakes for store, answerer, escalator and responder

package bot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpline/helpline/internal/answer"
	"github.com/helpline/helpline/internal/cards"
	"github.com/helpline/helpline/internal/escalate"
	"github.com/helpline/helpline/internal/store"
	"github.com/helpline/helpline/internal/turn"
)

type fakeResponder struct {
	typings   []string
	cards     []*cards.Card
	texts     []string
	cardErr   error
	typingErr error
}

func (f *fakeResponder) SendTyping(ctx context.Context, conversationID string) error {
	f.typings = append(f.typings, conversationID)
	return f.typingErr
}

func (f *fakeResponder) SendCard(ctx context.Context, conversationID string, card *cards.Card) (string, error) {
	if f.cardErr != nil {
		return "", f.cardErr
	}
	f.cards = append(f.cards, card)
	return "out-msg-1", nil
}

func (f *fakeResponder) SendText(ctx context.Context, conversationID string, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

type fakeAnswerer struct {
	outcome     answer.Outcome
	err         error
	gotText     string
	gotFollowUp *turn.FollowUpContext
	calls       int
}

func (f *fakeAnswerer) Answer(ctx context.Context, text string, followUp *turn.FollowUpContext) (answer.Outcome, error) {
	f.calls++
	f.gotText = text
	f.gotFollowUp = followUp
	return f.outcome, f.err
}

type fakeEscalator struct {
	handle      *escalate.ConversationHandle
	deliverErr  error
	deliverCard *cards.Card
	deliveries  int
}

func (f *fakeEscalator) BuildTicket(t *turn.Turn, question string) *store.Ticket {
	if question == "" {
		return nil
	}
	return &store.Ticket{
		ID:             "ticket-1",
		RequesterID:    t.SenderID,
		RequesterName:  t.SenderName,
		ConversationID: t.ConversationID,
		Question:       question,
		CreatedAt:      time.Now().UTC(),
	}
}

func (f *fakeEscalator) Deliver(ctx context.Context, card *cards.Card) (*escalate.ConversationHandle, error) {
	f.deliveries++
	f.deliverCard = card
	if f.deliverErr != nil {
		return nil, f.deliverErr
	}
	return f.handle, nil
}

type fakeTickets struct {
	upserts []*store.Ticket
}

func (f *fakeTickets) UpsertTicket(ctx context.Context, ticket *store.Ticket) error {
	copied := *ticket
	f.upserts = append(f.upserts, &copied)
	return nil
}

func (f *fakeTickets) GetTicket(ctx context.Context, id string) (*store.Ticket, error) {
	return nil, store.ErrNotFound
}

func (f *fakeTickets) ListTickets(ctx context.Context, limit int) ([]*store.Ticket, error) {
	return nil, nil
}

type fakeConfig struct {
	entities map[store.ConfigEntityType]string
}

func (f *fakeConfig) GetConfigEntity(ctx context.Context, entity store.ConfigEntityType) (string, error) {
	v, ok := f.entities[entity]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (f *fakeConfig) SetConfigEntity(ctx context.Context, entity store.ConfigEntityType, value string) error {
	return nil
}

type fakeLedger struct {
	events []*store.TurnEvent
}

func (f *fakeLedger) SaveTurnEvent(ctx context.Context, event *store.TurnEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeLedger) ListTurnEvents(ctx context.Context, conversationID string, limit int) ([]*store.TurnEvent, error) {
	return f.events, nil
}

type routerFixture struct {
	router    *ConversationRouter
	responder *fakeResponder
	answerer  *fakeAnswerer
	escalator *fakeEscalator
	tickets   *fakeTickets
	config    *fakeConfig
	ledger    *fakeLedger
}

func newFixture() *routerFixture {
	f := &routerFixture{
		responder: &fakeResponder{},
		answerer:  &fakeAnswerer{},
		escalator: &fakeEscalator{
			handle: &escalate.ConversationHandle{ConversationID: "expert-conv", MessageID: "expert-msg"},
		},
		tickets: &fakeTickets{},
		config:  &fakeConfig{entities: map[store.ConfigEntityType]string{}},
		ledger:  &fakeLedger{},
	}
	f.router = NewRouter(f.tickets, f.config, f.ledger, f.answerer, f.escalator, f.responder, nil)
	return f
}

func personalTurn(text string) *turn.Turn {
	return &turn.Turn{
		ID:             "turn-1",
		SenderID:       "user-1",
		SenderName:     "Alice",
		ConversationID: "conv-1",
		Kind:           turn.KindPersonal,
		Text:           text,
		Timestamp:      time.Now().UTC(),
	}
}

func cardTurn(value *turn.CardValue) *turn.Turn {
	t := personalTurn("")
	t.Value = value
	t.ReplyToID = "out-msg-1"
	return t
}

func TestHandleTurn_NonPersonalDropped(t *testing.T) {
	f := newFixture()
	msg := personalTurn("hello")
	msg.Kind = turn.KindChannel

	require.NoError(t, f.router.HandleTurn(context.Background(), msg))
	assert.Empty(t, f.responder.cards)
	assert.Zero(t, f.answerer.calls)
	assert.Zero(t, f.escalator.deliveries)
}

func TestHandleTurn_TypingSentFirst(t *testing.T) {
	f := newFixture()
	f.answerer.outcome = answer.Outcome{Found: false}

	require.NoError(t, f.router.HandleTurn(context.Background(), personalTurn("anything")))
	assert.Equal(t, []string{"conv-1"}, f.responder.typings)
}

func TestHandleTurn_TypingFailureDoesNotAbort(t *testing.T) {
	f := newFixture()
	f.responder.typingErr = errors.New("connector unreachable")
	f.answerer.outcome = answer.Outcome{
		Found:  true,
		Answer: &answer.Answer{ID: 3, Answer: "An answer."},
	}

	require.NoError(t, f.router.HandleTurn(context.Background(), personalTurn("how do I reset?")))
	assert.Equal(t, 1, f.answerer.calls)
	require.Len(t, f.responder.cards, 1)
}

func TestHandleTurn_AskExpertCommand(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.router.HandleTurn(context.Background(), personalTurn("Ask an Expert")))
	require.Len(t, f.responder.cards, 1)
	assert.Equal(t, cards.KindAskExpert, f.responder.cards[0].Kind)
	assert.Zero(t, f.answerer.calls, "command must not hit the knowledge base")
}

func TestHandleTurn_AskExpertFromCardCarriesPrefill(t *testing.T) {
	f := newFixture()
	msg := cardTurn(&turn.CardValue{Text: turn.CommandAskExpert, Question: "how do I reset my password"})

	require.NoError(t, f.router.HandleTurn(context.Background(), msg))
	require.Len(t, f.responder.cards, 1)
	assert.Equal(t, cards.KindAskExpert, f.responder.cards[0].Kind)
	assert.Equal(t, "how do I reset my password", f.responder.cards[0].Question)
}

func TestHandleTurn_SubmissionPersistsCorrelatedTicketOnce(t *testing.T) {
	f := newFixture()
	msg := cardTurn(&turn.CardValue{Text: turn.CommandSubmitExpert, Question: "urgent question"})

	require.NoError(t, f.router.HandleTurn(context.Background(), msg))

	require.Len(t, f.tickets.upserts, 1)
	stored := f.tickets.upserts[0]
	assert.Equal(t, "expert-msg", stored.NotificationMessageID)
	assert.Equal(t, "expert-conv", stored.ExpertConversationID)
	assert.True(t, stored.Delivered())

	require.NotNil(t, f.escalator.deliverCard)
	assert.Equal(t, cards.KindExpertNotification, f.escalator.deliverCard.Kind)
	assert.Equal(t, "urgent question", f.escalator.deliverCard.Text)

	require.Len(t, f.responder.cards, 1)
	ack := f.responder.cards[0]
	assert.Equal(t, cards.KindAcknowledgment, ack.Kind)
	assert.Equal(t, stored.ID, ack.TicketID, "acknowledgment and stored ticket share identity")
}

func TestHandleTurn_DeliveryFailureStillAcknowledges(t *testing.T) {
	f := newFixture()
	f.escalator.deliverErr = errors.New("expert team unreachable")
	msg := cardTurn(&turn.CardValue{Text: turn.CommandSubmitExpert, Question: "urgent question"})

	require.NoError(t, f.router.HandleTurn(context.Background(), msg))

	assert.Empty(t, f.tickets.upserts, "undelivered ticket must not be persisted")
	require.Len(t, f.responder.cards, 1)
	assert.Equal(t, cards.KindAcknowledgment, f.responder.cards[0].Kind)
}

func TestHandleTurn_EmptySubmissionIsSilent(t *testing.T) {
	f := newFixture()
	msg := cardTurn(&turn.CardValue{Text: turn.CommandSubmitExpert, Question: ""})

	require.NoError(t, f.router.HandleTurn(context.Background(), msg))
	assert.Zero(t, f.escalator.deliveries)
	assert.Empty(t, f.tickets.upserts)
	assert.Empty(t, f.responder.cards)
}

func TestHandleTurn_AnswerFound(t *testing.T) {
	f := newFixture()
	f.answerer.outcome = answer.Outcome{
		Found: true,
		Answer: &answer.Answer{
			ID:        7,
			Answer:    "Use the **reset** link.",
			Questions: []string{"How do I reset my password?"},
		},
	}

	require.NoError(t, f.router.HandleTurn(context.Background(), personalTurn("password reset")))
	require.Len(t, f.responder.cards, 1)
	card := f.responder.cards[0]
	assert.Equal(t, cards.KindAnswer, card.Kind)
	assert.Equal(t, "password reset", f.answerer.gotText)
	assert.Nil(t, f.answerer.gotFollowUp)
	require.Len(t, card.PreviousQuestions, 1)
	assert.Equal(t, 7, card.PreviousQuestions[0].ID)
}

func TestHandleTurn_NoMatchOffersExpert(t *testing.T) {
	f := newFixture()
	f.answerer.outcome = answer.Outcome{Found: false}

	require.NoError(t, f.router.HandleTurn(context.Background(), personalTurn("what is the meaning of life")))
	require.Len(t, f.responder.cards, 1)
	card := f.responder.cards[0]
	assert.Equal(t, cards.KindUnrecognizedInput, card.Kind)
	assert.Equal(t, "what is the meaning of life", card.Question)
}

func TestHandleTurn_FollowUpCarriesContext(t *testing.T) {
	f := newFixture()
	f.answerer.outcome = answer.Outcome{Found: false}
	msg := cardTurn(&turn.CardValue{
		Question: "tell me more",
		IsPrompt: true,
		PreviousQuestions: []turn.PreviousQuestion{
			{ID: 42, Text: "How do I reset my password?"},
		},
	})

	require.NoError(t, f.router.HandleTurn(context.Background(), msg))
	assert.Equal(t, "tell me more", f.answerer.gotText)
	require.NotNil(t, f.answerer.gotFollowUp)
	assert.Equal(t, 42, f.answerer.gotFollowUp.QuestionID)
	assert.Equal(t, "How do I reset my password?", f.answerer.gotFollowUp.QuestionText)
}

func TestHandleTurn_NonPromptSubmissionIgnored(t *testing.T) {
	f := newFixture()
	msg := cardTurn(&turn.CardValue{Question: "some stray submit", IsPrompt: false})

	require.NoError(t, f.router.HandleTurn(context.Background(), msg))
	assert.Zero(t, f.answerer.calls, "non-prompt submissions never reach the knowledge base")
	assert.Empty(t, f.responder.cards)
}

func TestHandleTurn_ValueWithoutReplyIsFreeText(t *testing.T) {
	f := newFixture()
	f.answerer.outcome = answer.Outcome{Found: false}
	msg := cardTurn(&turn.CardValue{Text: turn.CommandSubmitExpert, Question: "urgent question"})
	msg.ReplyToID = ""
	msg.Text = "How Do I Export Data"

	require.NoError(t, f.router.HandleTurn(context.Background(), msg))
	assert.Zero(t, f.escalator.deliveries, "a value outside a reply must not escalate")
	assert.Equal(t, 1, f.answerer.calls)
	assert.Equal(t, "how do i export data", f.answerer.gotText)
}

func TestHandleTurn_QueryTextNormalized(t *testing.T) {
	f := newFixture()
	f.answerer.outcome = answer.Outcome{Found: false}

	require.NoError(t, f.router.HandleTurn(context.Background(), personalTurn("  Why Is The Sky Blue  ")))
	assert.Equal(t, "why is the sky blue", f.answerer.gotText)
}

func TestHandleTurn_AnswerFailureIsFailedTurn(t *testing.T) {
	f := newFixture()
	f.answerer.err = errors.New("knowledge base down")

	err := f.router.HandleTurn(context.Background(), personalTurn("anything"))
	require.Error(t, err)
	assert.Empty(t, f.responder.cards)
	require.Len(t, f.responder.texts, 1, "user gets a best-effort failure notice")
}

func TestHandleTurn_RecordsLedgerBothDirections(t *testing.T) {
	f := newFixture()
	f.answerer.outcome = answer.Outcome{Found: false}

	require.NoError(t, f.router.HandleTurn(context.Background(), personalTurn("hello")))
	require.Len(t, f.ledger.events, 2)
	assert.Equal(t, store.DirectionInbound, f.ledger.events[0].Direction)
	assert.Equal(t, "user-1", f.ledger.events[0].Author)
	assert.Equal(t, store.DirectionOutbound, f.ledger.events[1].Direction)
}

func TestHandleMemberAdded(t *testing.T) {
	t.Run("default welcome text", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.router.HandleMemberAdded(context.Background(), "conv-1"))
		require.Len(t, f.responder.cards, 1)
		assert.Equal(t, cards.KindWelcome, f.responder.cards[0].Kind)
		assert.Equal(t, cards.DefaultWelcomeText, f.responder.cards[0].Text)
	})

	t.Run("configured welcome text", func(t *testing.T) {
		f := newFixture()
		f.config.entities[store.ConfigWelcomeText] = "Welcome to the helpline!"
		require.NoError(t, f.router.HandleMemberAdded(context.Background(), "conv-1"))
		require.Len(t, f.responder.cards, 1)
		assert.Equal(t, "Welcome to the helpline!", f.responder.cards[0].Text)
	})
}

func TestHandleTurn_SubmissionFromRawCardValue(t *testing.T) {
	// End to end through the JSON card value the frontend actually posts.
	raw := json.RawMessage(`{"text":"Submit expert question","question":"  why is it broken  "}`)
	value, err := turn.ParseCardValue(raw)
	require.NoError(t, err)

	f := newFixture()
	require.NoError(t, f.router.HandleTurn(context.Background(), cardTurn(value)))
	assert.Equal(t, 1, f.escalator.deliveries)
}
