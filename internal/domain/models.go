package domain

// Question is an immutable multiple-choice flashcard. The correct answer
// text is always one of the choices and is never exposed in question payloads.
type Question struct {
	Prompt  string   `json:"q"`
	Choices []string `json:"choices"`
	Answer  string   `json:"a"`
}

// Topic is a named, ordered collection of questions.
type Topic struct {
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

// LeaderboardEntry is a snapshot-friendly view of one registered session.
type LeaderboardEntry struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
	Answered int    `json:"answered"`
	Topic    string `json:"topic"`
}
