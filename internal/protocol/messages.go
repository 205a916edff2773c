// Package protocol defines the newline-delimited JSON message schema shared
// by the server and its clients, plus the codec for stream transports.
package protocol

import "flashquiz-server/internal/domain"

// Client-to-server message types.
const (
	TypeRegister   = "register"
	TypeTopic      = "topic"
	TypeAnswer     = "answer"
	TypeReady      = "ready"
	TypeRestart    = "restart"
	TypeDisconnect = "disconnect"
)

// Server-to-client message types.
const (
	TypeTopics         = "topics"
	TypeTopicConfirmed = "topic_confirmed"
	TypeQuestion       = "question"
	TypeResult         = "result"
	TypeLeaderboard    = "leaderboard"
	TypeQuizComplete   = "quiz_complete"
	TypeError          = "error"
)

// ClientMessage is the flat record clients send; which fields are meaningful
// depends on Type.
type ClientMessage struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Topic    string `json:"topic,omitempty"`
	Answer   string `json:"answer,omitempty"`
}

// KnownClientType reports whether t is part of the client message schema.
func KnownClientType(t string) bool {
	switch t {
	case TypeRegister, TypeTopic, TypeAnswer, TypeReady, TypeRestart, TypeDisconnect:
		return true
	}
	return false
}

// TopicsMessage lists the selectable topics after registration or restart.
type TopicsMessage struct {
	Type    string   `json:"type"`
	Topics  []string `json:"topics"`
	Message string   `json:"message"`
}

// TopicConfirmedMessage acknowledges a topic selection.
type TopicConfirmedMessage struct {
	Type    string `json:"type"`
	Topic   string `json:"topic"`
	Message string `json:"message"`
}

// QuestionMessage carries one question; the correct answer stays server-side.
type QuestionMessage struct {
	Type           string   `json:"type"`
	Question       string   `json:"question"`
	Choices        []string `json:"choices"`
	QuestionNumber int      `json:"question_number"`
	TotalQuestions int      `json:"total_questions"`
}

// ResultMessage reports the outcome of a scored answer.
type ResultMessage struct {
	Type              string `json:"type"`
	Correct           bool   `json:"correct"`
	CorrectAnswer     string `json:"correct_answer"`
	YourAnswer        string `json:"your_answer"`
	Score             int    `json:"score"`
	QuestionsAnswered int    `json:"questions_answered"`
}

// LeaderboardMessage carries the full ranked standings.
type LeaderboardMessage struct {
	Type        string                    `json:"type"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

// QuizCompleteMessage summarizes a finished quiz attempt.
type QuizCompleteMessage struct {
	Type           string  `json:"type"`
	FinalScore     int     `json:"final_score"`
	TotalQuestions int     `json:"total_questions"`
	Percentage     float64 `json:"percentage"`
	Topic          string  `json:"topic"`
	Message        string  `json:"message"`
	CanRestart     bool    `json:"can_restart"`
}

// ErrorMessage reports a protocol, validation, or state error to one client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError builds an ErrorMessage with the type field populated.
func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}
