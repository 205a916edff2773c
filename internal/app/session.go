package app

import "time"

// ClientID identifies one live connection for the lifetime of that connection.
type ClientID uint64

// Sender is the outbound half of a client connection. Implementations must be
// safe for concurrent use; both the session goroutine and the leaderboard
// broadcaster write through it.
type Sender interface {
	Send(v any) error
	Close() error
}

// SessionState enumerates the per-connection state machine.
//
//	Unregistered → TopicPending ⇄ AwaitingAnswer → QuizComplete
//
// Restart returns any registered state to TopicPending. Disconnect tears the
// session down from any state.
type SessionState int

const (
	StateUnregistered SessionState = iota
	StateTopicPending
	StateAwaitingAnswer
	StateQuizComplete
)

func (s SessionState) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateTopicPending:
		return "topic_pending"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateQuizComplete:
		return "quiz_complete"
	}
	return "unknown"
}

// session is owned exclusively by the Registry; every field access happens
// under the registry lock.
type session struct {
	id     ClientID
	seq    uint64 // join order, final leaderboard tie-break
	sender Sender

	state    SessionState
	username string
	topic    string
	score    int
	answered int

	// pendingAnswer holds the correct answer text for the outstanding
	// question, empty when no question awaits this client.
	pendingAnswer string

	// nextQuestion is the deferred dispatch for the next question, stopped on
	// teardown, restart, and topic re-selection.
	nextQuestion *time.Timer
}

func (s *session) stopTimerLocked() {
	if s.nextQuestion != nil {
		s.nextQuestion.Stop()
		s.nextQuestion = nil
	}
}
