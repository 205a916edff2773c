package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"flashquiz-server/internal/domain"
	"flashquiz-server/internal/protocol"
)

// QuestionBank is the read-only topic lookup provided at startup.
type QuestionBank interface {
	Topics(ctx context.Context) ([]string, error)
	Topic(ctx context.Context, name string) (domain.Topic, error)
}

// Options tunes quiz pacing.
type Options struct {
	QuizLength        int           // questions per quiz attempt; defaults to 5
	NextQuestionDelay time.Duration // pause before the next question; defaults to 2s
}

// Engine drives the per-connection state machine, deals questions, scores
// answers, and fans leaderboard updates out to every live connection.
// Transports call Connect, HandleMessage, and Disconnect; everything else is
// internal.
type Engine struct {
	registry   *Registry
	bank       QuestionBank
	quizLength int
	nextDelay  time.Duration

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewEngine(registry *Registry, bank QuestionBank, opts Options) *Engine {
	if opts.QuizLength <= 0 {
		opts.QuizLength = 5
	}
	if opts.NextQuestionDelay <= 0 {
		opts.NextQuestionDelay = 2 * time.Second
	}
	return &Engine{
		registry:   registry,
		bank:       bank,
		quizLength: opts.QuizLength,
		nextDelay:  opts.NextQuestionDelay,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Connect creates an empty session for an accepted connection.
func (e *Engine) Connect(sender Sender) ClientID {
	id := e.registry.Add(sender)
	log.Printf("client %d connected", id)
	return id
}

// Disconnect tears a session down, closes its sender, and rebroadcasts the
// leaderboard to the survivors. It is idempotent; the second caller is a
// no-op, so a manual disconnect followed by the read loop's own teardown is
// harmless.
func (e *Engine) Disconnect(id ClientID) {
	sender, username, ok := e.registry.Remove(id)
	if !ok {
		return
	}
	_ = sender.Close()
	if username == "" {
		username = "unregistered client"
	}
	log.Printf("%s (client %d) disconnected", username, id)
	e.broadcastLeaderboard()
}

// HandleMessage routes one decoded client message through the state machine.
// Messages that are unknown, or known but invalid for the current state,
// produce an error response and never change state.
func (e *Engine) HandleMessage(ctx context.Context, id ClientID, msg protocol.ClientMessage) {
	if msg.Type == protocol.TypeDisconnect {
		e.Disconnect(id)
		return
	}

	state, ok := e.registry.State(id)
	if !ok {
		return
	}

	switch state {
	case StateUnregistered:
		if msg.Type == protocol.TypeRegister {
			e.handleRegister(ctx, id, msg.Username)
			return
		}
		e.rejectMessage(id, state, msg.Type)

	case StateTopicPending:
		switch msg.Type {
		case protocol.TypeTopic:
			e.handleTopic(ctx, id, msg.Topic)
		case protocol.TypeRestart:
			e.handleRestart(ctx, id)
		case protocol.TypeReady:
			// No topic chosen yet; dispatch reports the missing selection.
			e.dispatchQuestion(ctx, id, true)
		default:
			e.rejectMessage(id, state, msg.Type)
		}

	case StateAwaitingAnswer:
		switch msg.Type {
		case protocol.TypeAnswer:
			e.handleAnswer(ctx, id, msg.Answer)
		case protocol.TypeReady:
			// Live re-request: deal a fresh question for the current slot.
			e.dispatchQuestion(ctx, id, true)
		case protocol.TypeRestart:
			e.handleRestart(ctx, id)
		default:
			e.rejectMessage(id, state, msg.Type)
		}

	case StateQuizComplete:
		switch msg.Type {
		case protocol.TypeRestart:
			e.handleRestart(ctx, id)
		case protocol.TypeReady:
			// Re-sends the completion summary.
			e.dispatchQuestion(ctx, id, true)
		default:
			e.rejectMessage(id, state, msg.Type)
		}
	}
}

func (e *Engine) rejectMessage(id ClientID, state SessionState, msgType string) {
	if !protocol.KnownClientType(msgType) {
		e.sendError(id, fmt.Sprintf("Unknown message type: %s", msgType))
		return
	}
	e.sendError(id, fmt.Sprintf("Message type %q not allowed while %s", msgType, state))
}

func (e *Engine) handleRegister(ctx context.Context, id ClientID, username string) {
	username = strings.TrimSpace(username)
	if err := e.registry.Register(id, username); err != nil {
		e.sendError(id, err.Error())
		return
	}

	topics, err := e.bank.Topics(ctx)
	if err != nil {
		log.Printf("list topics: %v", err)
		e.sendError(id, "Topics are unavailable, try again")
		return
	}
	e.sendTo(id, protocol.TopicsMessage{
		Type:    protocol.TypeTopics,
		Topics:  topics,
		Message: fmt.Sprintf("Welcome %s! Please select a topic.", username),
	})
	log.Printf("%s registered as client %d", username, id)
}

func (e *Engine) handleTopic(ctx context.Context, id ClientID, name string) {
	if _, err := e.bank.Topic(ctx, name); err != nil {
		if errors.Is(err, domain.ErrTopicNotFound) {
			e.sendError(id, fmt.Sprintf("Invalid topic: %s", name))
			return
		}
		log.Printf("load topic %q: %v", name, err)
		e.sendError(id, "Topic is unavailable, try again")
		return
	}
	if err := e.registry.SetTopic(id, name); err != nil {
		return
	}

	e.sendTo(id, protocol.TopicConfirmedMessage{
		Type:    protocol.TypeTopicConfirmed,
		Topic:   name,
		Message: fmt.Sprintf("Topic '%s' selected! Get ready for %d questions.", name, e.quizLength),
	})
	if slot, ok := e.registry.Slot(id); ok {
		log.Printf("%s selected topic %s", slot.Username, name)
	}
	e.dispatchQuestion(ctx, id, true)
}

// dispatchQuestion deals the next question, or the completion summary when
// the quiz length is reached. Timer-driven calls pass explicit=false so a
// session that restarted during the delay is skipped silently instead of
// receiving a spurious error.
func (e *Engine) dispatchQuestion(ctx context.Context, id ClientID, explicit bool) {
	slot, ok := e.registry.Slot(id)
	if !ok {
		return
	}
	if slot.Answered >= e.quizLength {
		e.sendQuizComplete(id)
		return
	}
	if slot.Topic == "" {
		if explicit {
			e.sendError(id, domain.ErrNoTopicSelected.Error())
		}
		return
	}

	topic, err := e.bank.Topic(ctx, slot.Topic)
	if err != nil {
		log.Printf("load topic %q: %v", slot.Topic, err)
		e.sendError(id, "Topic is unavailable, try again")
		return
	}
	if len(topic.Questions) == 0 {
		e.sendError(id, fmt.Sprintf("No questions available for topic: %s", slot.Topic))
		return
	}

	question := topic.Questions[e.pick(len(topic.Questions))]
	number, armed := e.registry.ArmQuestion(id, question.Answer)
	if !armed {
		return
	}
	e.sendTo(id, protocol.QuestionMessage{
		Type:           protocol.TypeQuestion,
		Question:       question.Prompt,
		Choices:        question.Choices,
		QuestionNumber: number,
		TotalQuestions: e.quizLength,
	})
	log.Printf("sent question %d/%d to %s", number, e.quizLength, slot.Username)
}

func (e *Engine) handleAnswer(ctx context.Context, id ClientID, submitted string) {
	outcome, err := e.registry.RecordAnswer(id, strings.TrimSpace(submitted), e.quizLength)
	if err != nil {
		e.sendError(id, err.Error())
		return
	}

	e.sendTo(id, protocol.ResultMessage{
		Type:              protocol.TypeResult,
		Correct:           outcome.Correct,
		CorrectAnswer:     outcome.CorrectAnswer,
		YourAnswer:        outcome.Submitted,
		Score:             outcome.Score,
		QuestionsAnswered: outcome.Answered,
	})
	verdict := "wrong"
	if outcome.Correct {
		verdict = "correct"
	}
	log.Printf("%s answered %q (%s, correct: %s)", outcome.Username, outcome.Submitted, verdict, outcome.CorrectAnswer)

	e.broadcastLeaderboard()

	if outcome.Complete {
		e.sendQuizComplete(id)
		return
	}
	e.scheduleNextQuestion(id)
}

// scheduleNextQuestion defers the next question by the configured delay. The
// timer is tracked in the registry so teardown and restart can cancel it.
func (e *Engine) scheduleNextQuestion(id ClientID) {
	t := time.AfterFunc(e.nextDelay, func() {
		e.dispatchQuestion(context.Background(), id, false)
	})
	e.registry.TrackTimer(id, t)
}

func (e *Engine) sendQuizComplete(id ClientID) {
	username, topic, score, ok := e.registry.CompletionView(id)
	if !ok {
		return
	}
	percentage := Percentage(score, e.quizLength)
	e.sendTo(id, protocol.QuizCompleteMessage{
		Type:           protocol.TypeQuizComplete,
		FinalScore:     score,
		TotalQuestions: e.quizLength,
		Percentage:     percentage,
		Topic:          topic,
		Message:        fmt.Sprintf("Quiz completed! Your final score: %d/%d", score, e.quizLength),
		CanRestart:     true,
	})
	log.Printf("%s completed %s quiz with score %d/%d (%.1f%%)", username, topic, score, e.quizLength, percentage)
	e.broadcastLeaderboard()
}

func (e *Engine) handleRestart(ctx context.Context, id ClientID) {
	username, ok := e.registry.Restart(id)
	if !ok {
		return
	}
	topics, err := e.bank.Topics(ctx)
	if err != nil {
		log.Printf("list topics: %v", err)
		e.sendError(id, "Topics are unavailable, try again")
		return
	}
	e.sendTo(id, protocol.TopicsMessage{
		Type:    protocol.TypeTopics,
		Topics:  topics,
		Message: fmt.Sprintf("Welcome back %s! Ready for another challenge?", username),
	})
	log.Printf("%s restarted their quiz", username)
}

func (e *Engine) sendTo(id ClientID, v any) {
	sender, ok := e.registry.Sender(id)
	if !ok {
		return
	}
	if err := sender.Send(v); err != nil {
		log.Printf("send to client %d: %v", id, err)
	}
}

func (e *Engine) sendError(id ClientID, message string) {
	e.sendTo(id, protocol.NewError(message))
}

func (e *Engine) pick(n int) int {
	e.rndMu.Lock()
	defer e.rndMu.Unlock()
	return e.rnd.Intn(n)
}

// Percentage converts a score into a percentage rounded to one decimal place.
func Percentage(score, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(score)/float64(total)*1000) / 10
}
