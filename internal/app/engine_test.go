package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"flashquiz-server/internal/app"
	"flashquiz-server/internal/domain"
	"flashquiz-server/internal/infra/memory"
	"flashquiz-server/internal/protocol"
)

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine()

	alice := newFakeSender()
	id := engine.Connect(alice)

	engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeRegister, Username: "   "})
	if msg := alice.lastError(); msg != domain.ErrEmptyUsername.Error() {
		t.Fatalf("expected empty-username error, got %q", msg)
	}

	engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeRegister, Username: "Alice"})
	topics := alice.messagesOfType(protocol.TypeTopics)
	if len(topics) != 1 {
		t.Fatalf("expected topics message after registration, got %d", len(topics))
	}

	bob := newFakeSender()
	bobID := engine.Connect(bob)
	engine.HandleMessage(ctx, bobID, protocol.ClientMessage{Type: protocol.TypeRegister, Username: "Alice"})
	if msg := bob.lastError(); msg != domain.ErrUsernameTaken.Error() {
		t.Fatalf("expected duplicate-username error, got %q", msg)
	}
}

func TestConcurrentRegistrationExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine()

	const attempts = 8
	senders := make([]*fakeSender, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		senders[i] = newFakeSender()
		id := engine.Connect(senders[i])
		wg.Add(1)
		go func(id app.ClientID) {
			defer wg.Done()
			engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeRegister, Username: "Highlander"})
		}(id)
	}
	wg.Wait()

	winners, losers := 0, 0
	for _, s := range senders {
		if len(s.messagesOfType(protocol.TypeTopics)) > 0 {
			winners++
		}
		if len(s.messagesOfType(protocol.TypeError)) > 0 {
			losers++
		}
	}
	if winners != 1 || losers != attempts-1 {
		t.Fatalf("expected exactly one registration to win, got winners=%d losers=%d", winners, losers)
	}
}

func TestAnswerMatchingIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine()

	sender := newFakeSender()
	id := engine.Connect(sender)
	startQuiz(t, engine, id, sender, "Alice", "Geography")

	for i, submitted := range []string{"Paris", "paris", "PARIS"} {
		engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeAnswer, Answer: submitted})
		results := sender.messagesOfType(protocol.TypeResult)
		if len(results) != i+1 {
			t.Fatalf("expected %d results, got %d", i+1, len(results))
		}
		result := results[i].(protocol.ResultMessage)
		if !result.Correct {
			t.Fatalf("submission %q should be correct", submitted)
		}
		if result.Score != i+1 || result.QuestionsAnswered != i+1 {
			t.Fatalf("expected score=%d answered=%d, got %+v", i+1, i+1, result)
		}
		if i < 2 {
			waitForQuestion(t, sender, i+2)
		}
	}
}

func TestQuizCompletionAndPercentage(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine()

	sender := newFakeSender()
	id := engine.Connect(sender)
	startQuiz(t, engine, id, sender, "Alice", "Geography")

	// Two correct, one wrong; quiz length is 3.
	for i, submitted := range []string{"Paris", "London", "Paris"} {
		engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeAnswer, Answer: submitted})
		if i < 2 {
			waitForQuestion(t, sender, i+2)
		}
	}

	completes := sender.messagesOfType(protocol.TypeQuizComplete)
	if len(completes) != 1 {
		t.Fatalf("expected one completion summary, got %d", len(completes))
	}
	complete := completes[0].(protocol.QuizCompleteMessage)
	if complete.FinalScore != 2 || complete.TotalQuestions != 3 {
		t.Fatalf("expected 2/3, got %+v", complete)
	}
	if complete.Percentage != 66.7 {
		t.Fatalf("expected percentage 66.7, got %v", complete.Percentage)
	}
	if !complete.CanRestart {
		t.Fatalf("expected completion to offer restart")
	}

	// Further answers are rejected without touching the counters.
	engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeAnswer, Answer: "Paris"})
	if sender.lastError() == "" {
		t.Fatalf("expected error answering after completion")
	}
}

func TestPercentageRounding(t *testing.T) {
	if got := app.Percentage(3, 5); got != 60.0 {
		t.Fatalf("Percentage(3,5) = %v, want 60.0", got)
	}
	if got := app.Percentage(1, 3); got != 33.3 {
		t.Fatalf("Percentage(1,3) = %v, want 33.3", got)
	}
	if got := app.Percentage(2, 3); got != 66.7 {
		t.Fatalf("Percentage(2,3) = %v, want 66.7", got)
	}
}

func TestAnswerBeforeQuestionIsRejected(t *testing.T) {
	ctx := context.Background()
	engine, registry := newTestEngine()

	sender := newFakeSender()
	id := engine.Connect(sender)
	engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeRegister, Username: "Alice"})

	engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeAnswer, Answer: "Paris"})
	if sender.lastError() == "" {
		t.Fatalf("expected error for answer without outstanding question")
	}
	entries := registry.Snapshot()
	if len(entries) != 1 || entries[0].Score != 0 || entries[0].Answered != 0 {
		t.Fatalf("score mutated by rejected answer: %+v", entries)
	}
}

func TestUnknownTopicKeepsState(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine()

	sender := newFakeSender()
	id := engine.Connect(sender)
	engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeRegister, Username: "Alice"})

	engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeTopic, Topic: "Astrology"})
	if msg := sender.lastError(); msg != "Invalid topic: Astrology" {
		t.Fatalf("expected invalid-topic error, got %q", msg)
	}

	// Still in topic selection; a valid topic proceeds normally.
	engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeTopic, Topic: "Geography"})
	if len(sender.messagesOfType(protocol.TypeTopicConfirmed)) != 1 {
		t.Fatalf("expected topic confirmation after valid selection")
	}
	waitForQuestion(t, sender, 1)
}

func TestUnknownMessageType(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine()

	sender := newFakeSender()
	id := engine.Connect(sender)
	engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeRegister, Username: "Alice"})

	engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: "teleport"})
	if msg := sender.lastError(); msg != "Unknown message type: teleport" {
		t.Fatalf("expected unknown-type error, got %q", msg)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	registry := app.NewRegistry()

	score := func(name string, correct, wrong int) {
		id := registry.Add(newFakeSender())
		if err := registry.Register(id, name); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
		for i := 0; i < correct; i++ {
			registry.ArmQuestion(id, "yes")
			if _, err := registry.RecordAnswer(id, "yes", 100); err != nil {
				t.Fatalf("answer: %v", err)
			}
		}
		for i := 0; i < wrong; i++ {
			registry.ArmQuestion(id, "yes")
			if _, err := registry.RecordAnswer(id, "no", 100); err != nil {
				t.Fatalf("answer: %v", err)
			}
		}
	}

	score("A", 3, 2) // score 3, answered 5
	score("B", 3, 1) // score 3, answered 4
	score("C", 5, 0) // score 5, answered 5

	entries := registry.Snapshot()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"C", "A", "B"} {
		if entries[i].Username != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, entries[i].Username)
		}
	}
}

func TestDisconnectRemovesFromLeaderboard(t *testing.T) {
	ctx := context.Background()
	engine, registry := newTestEngine()

	alice := newFakeSender()
	aliceID := engine.Connect(alice)
	engine.HandleMessage(ctx, aliceID, protocol.ClientMessage{Type: protocol.TypeRegister, Username: "Alice"})
	bob := newFakeSender()
	bobID := engine.Connect(bob)
	engine.HandleMessage(ctx, bobID, protocol.ClientMessage{Type: protocol.TypeRegister, Username: "Bob"})

	engine.HandleMessage(ctx, bobID, protocol.ClientMessage{Type: protocol.TypeDisconnect, Username: "Bob"})

	if registry.Len() != 1 {
		t.Fatalf("expected one live session, got %d", registry.Len())
	}
	if !bob.isClosed() {
		t.Fatalf("expected bob's sender to be closed")
	}

	boards := alice.messagesOfType(protocol.TypeLeaderboard)
	if len(boards) == 0 {
		t.Fatalf("expected a leaderboard rebroadcast after disconnect")
	}
	last := boards[len(boards)-1].(protocol.LeaderboardMessage)
	for _, entry := range last.Leaderboard {
		if entry.Username == "Bob" {
			t.Fatalf("disconnected client still on leaderboard: %+v", last.Leaderboard)
		}
	}

	// A second teardown for the same session is a no-op.
	engine.Disconnect(bobID)
	if registry.Len() != 1 {
		t.Fatalf("idempotent disconnect changed registry size")
	}
}

func TestRestartResetsProgress(t *testing.T) {
	ctx := context.Background()
	// A longer delay keeps the deferred next question from firing before the
	// restart cancels it.
	engine, registry := newTestEngineWithDelay(100 * time.Millisecond)

	sender := newFakeSender()
	id := engine.Connect(sender)
	startQuiz(t, engine, id, sender, "Alice", "Geography")
	engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeAnswer, Answer: "Paris"})

	engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeRestart})
	topics := sender.messagesOfType(protocol.TypeTopics)
	if len(topics) != 2 {
		t.Fatalf("expected topics list again after restart, got %d", len(topics))
	}

	entries := registry.Snapshot()
	if entries[0].Score != 0 || entries[0].Answered != 0 || entries[0].Topic != "" {
		t.Fatalf("restart did not reset progress: %+v", entries[0])
	}

	// The pending next-question timer must not fire into the new attempt.
	time.Sleep(150 * time.Millisecond)
	if n := len(sender.messagesOfType(protocol.TypeQuestion)); n != 1 {
		t.Fatalf("expected no question after restart, got %d", n)
	}
}

func TestReadyRedealsQuestion(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine()

	sender := newFakeSender()
	id := engine.Connect(sender)
	startQuiz(t, engine, id, sender, "Alice", "Geography")

	engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeReady})
	questions := sender.messagesOfType(protocol.TypeQuestion)
	if len(questions) != 2 {
		t.Fatalf("expected a re-dealt question, got %d", len(questions))
	}
	redeal := questions[1].(protocol.QuestionMessage)
	if redeal.QuestionNumber != 1 {
		t.Fatalf("re-deal must not advance the question number, got %d", redeal.QuestionNumber)
	}
}

// startQuiz registers, selects a topic, and waits for the first question.
func startQuiz(t *testing.T, engine *app.Engine, id app.ClientID, sender *fakeSender, name, topic string) {
	t.Helper()
	ctx := context.Background()
	engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeRegister, Username: name})
	engine.HandleMessage(ctx, id, protocol.ClientMessage{Type: protocol.TypeTopic, Topic: topic})
	waitForQuestion(t, sender, 1)
}

// newTestEngine builds an engine over a single-question-per-topic bank so the
// outstanding correct answer is always known, with a short next-question
// delay and quiz length 3.
func newTestEngine() (*app.Engine, *app.Registry) {
	return newTestEngineWithDelay(time.Millisecond)
}

func newTestEngineWithDelay(delay time.Duration) (*app.Engine, *app.Registry) {
	registry := app.NewRegistry()
	bank := memory.NewBankRepository(memory.NewStaticBankLoader(map[string][]domain.Question{
		"Geography": {
			{Prompt: "What is the capital of France?", Choices: []string{"Paris", "London"}, Answer: "Paris"},
		},
		"Science": {
			{Prompt: "Red planet?", Choices: []string{"Mars", "Venus"}, Answer: "Mars"},
		},
	}), 5*time.Minute)
	engine := app.NewEngine(registry, bank, app.Options{
		QuizLength:        3,
		NextQuestionDelay: delay,
	})
	return engine, registry
}

func waitForQuestion(t *testing.T, sender *fakeSender, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sender.messagesOfType(protocol.TypeQuestion)) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for question %d", n)
}

type fakeSender struct {
	mu     sync.Mutex
	msgs   []any
	closed bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{}
}

func (f *fakeSender) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, v)
	return nil
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSender) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSender) messagesOfType(msgType string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, m := range f.msgs {
		if typeOf(m) == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSender) lastError() string {
	errs := f.messagesOfType(protocol.TypeError)
	if len(errs) == 0 {
		return ""
	}
	return errs[len(errs)-1].(protocol.ErrorMessage).Message
}

func typeOf(m any) string {
	switch v := m.(type) {
	case protocol.TopicsMessage:
		return v.Type
	case protocol.TopicConfirmedMessage:
		return v.Type
	case protocol.QuestionMessage:
		return v.Type
	case protocol.ResultMessage:
		return v.Type
	case protocol.LeaderboardMessage:
		return v.Type
	case protocol.QuizCompleteMessage:
		return v.Type
	case protocol.ErrorMessage:
		return v.Type
	}
	return ""
}
