package app

import (
	"sort"
	"strings"
	"sync"
	"time"

	"flashquiz-server/internal/domain"
)

// Registry is the shared table of live sessions and the single source of
// truth for scores. Every operation is one critical section under an
// exclusive lock; none of them performs network I/O, so slow connections
// never block unrelated sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[ClientID]*session
	nextID   ClientID
	nextSeq  uint64
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[ClientID]*session)}
}

// Add creates an empty session for a freshly accepted connection.
func (r *Registry) Add(sender Sender) ClientID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.nextSeq++
	id := r.nextID
	r.sessions[id] = &session{
		id:     id,
		seq:    r.nextSeq,
		sender: sender,
		state:  StateUnregistered,
	}
	return id
}

// Register claims a display name. The uniqueness check and the insert happen
// under the same critical section so two concurrent registrations of the same
// name cannot both succeed. Names are matched case-sensitively.
func (r *Registry) Register(id ClientID, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if username == "" {
		return domain.ErrEmptyUsername
	}
	for _, other := range r.sessions {
		if other.username == username {
			return domain.ErrUsernameTaken
		}
	}
	sess.username = username
	sess.state = StateTopicPending
	return nil
}

// State reports the current state machine position for dispatch.
func (r *Registry) State(id ClientID) (SessionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return StateUnregistered, false
	}
	return sess.state, true
}

// SetTopic persists a validated topic selection. Any deferred question from a
// previous selection is cancelled.
func (r *Registry) SetTopic(id ClientID, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.stopTimerLocked()
	sess.topic = topic
	sess.pendingAnswer = ""
	sess.state = StateTopicPending
	return nil
}

// QuestionSlot describes what a session needs next from the dispatcher.
type QuestionSlot struct {
	Username string
	Topic    string
	Answered int
}

func (r *Registry) Slot(id ClientID) (QuestionSlot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return QuestionSlot{}, false
	}
	return QuestionSlot{Username: sess.username, Topic: sess.topic, Answered: sess.answered}, true
}

// ArmQuestion records the correct answer for the question about to be sent
// and returns the 1-based question number. It fails when the session vanished
// between draw and arm.
func (r *Registry) ArmQuestion(id ClientID, correctAnswer string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return 0, false
	}
	sess.pendingAnswer = correctAnswer
	sess.state = StateAwaitingAnswer
	return sess.answered + 1, true
}

// AnswerOutcome is the scored result of one submission.
type AnswerOutcome struct {
	Username      string
	Correct       bool
	CorrectAnswer string
	Submitted     string
	Score         int
	Answered      int
	Complete      bool
}

// RecordAnswer scores a submission against the outstanding question in one
// read-modify-write critical section. Matching is case-insensitive. The
// pending answer is cleared before the lock is released, so a session never
// scores the same outstanding question twice.
func (r *Registry) RecordAnswer(id ClientID, submitted string, quizLength int) (AnswerOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return AnswerOutcome{}, domain.ErrSessionNotFound
	}
	if sess.pendingAnswer == "" {
		return AnswerOutcome{}, domain.ErrNoActiveQuestion
	}

	correct := strings.EqualFold(submitted, sess.pendingAnswer)
	outcome := AnswerOutcome{
		Username:      sess.username,
		Correct:       correct,
		CorrectAnswer: sess.pendingAnswer,
		Submitted:     submitted,
	}
	if correct {
		sess.score++
	}
	sess.answered++
	sess.pendingAnswer = ""

	outcome.Score = sess.score
	outcome.Answered = sess.answered
	if sess.answered >= quizLength {
		sess.state = StateQuizComplete
		outcome.Complete = true
	}
	return outcome, nil
}

// CompletionView returns what the completion summary needs.
func (r *Registry) CompletionView(id ClientID) (username, topic string, score int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, found := r.sessions[id]
	if !found {
		return "", "", 0, false
	}
	return sess.username, sess.topic, sess.score, true
}

// Restart resets quiz progress and returns the session to topic selection.
// A deferred question from the abandoned attempt is cancelled so it cannot
// deal a stale-topic question.
func (r *Registry) Restart(id ClientID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return "", false
	}
	sess.stopTimerLocked()
	sess.score = 0
	sess.answered = 0
	sess.topic = ""
	sess.pendingAnswer = ""
	sess.state = StateTopicPending
	return sess.username, true
}

// TrackTimer associates a deferred next-question dispatch with the session.
// If the session is already gone the timer is stopped immediately.
func (r *Registry) TrackTimer(id ClientID, t *time.Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		t.Stop()
		return
	}
	sess.stopTimerLocked()
	sess.nextQuestion = t
}

// Remove tears the session down and hands back its sender so the caller can
// close it outside the lock. The bool reports whether the session was still
// live, making teardown idempotent.
func (r *Registry) Remove(id ClientID) (Sender, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, "", false
	}
	sess.stopTimerLocked()
	delete(r.sessions, id)
	return sess.sender, sess.username, true
}

// Sender returns the outbound half for one session.
func (r *Registry) Sender(id ClientID) (Sender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return sess.sender, true
}

// Snapshot computes the ranked leaderboard from all registered sessions:
// score descending, then answered descending, then join order. Join order
// stands in for map enumeration order, which Go randomizes.
func (r *Registry) Snapshot() []domain.LeaderboardEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	type ranked struct {
		entry domain.LeaderboardEntry
		seq   uint64
	}
	rows := make([]ranked, 0, len(r.sessions))
	for _, sess := range r.sessions {
		if sess.username == "" {
			continue
		}
		rows = append(rows, ranked{
			entry: domain.LeaderboardEntry{
				Username: sess.username,
				Score:    sess.score,
				Answered: sess.answered,
				Topic:    sess.topic,
			},
			seq: sess.seq,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].entry.Score != rows[j].entry.Score {
			return rows[i].entry.Score > rows[j].entry.Score
		}
		if rows[i].entry.Answered != rows[j].entry.Answered {
			return rows[i].entry.Answered > rows[j].entry.Answered
		}
		return rows[i].seq < rows[j].seq
	})

	entries := make([]domain.LeaderboardEntry, len(rows))
	for i, row := range rows {
		entries[i] = row.entry
	}
	return entries
}

// BroadcastTargets returns every live sender, registered or not, as a
// point-in-time copy so fanout happens outside the critical section.
func (r *Registry) BroadcastTargets() []Sender {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets := make([]Sender, 0, len(r.sessions))
	for _, sess := range r.sessions {
		targets = append(targets, sess.sender)
	}
	return targets
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
