package domain

import "errors"

var (
	// ErrEmptyUsername is returned when a client registers without a name.
	ErrEmptyUsername = errors.New("Username cannot be empty")
	// ErrUsernameTaken is returned when the display name is already claimed.
	ErrUsernameTaken = errors.New("Username already taken")
	// ErrTopicNotFound indicates the requested topic is not in the bank.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrNoTopicSelected is returned when a question is requested before a topic is chosen.
	ErrNoTopicSelected = errors.New("Topic not selected")
	// ErrNoActiveQuestion is returned when an answer arrives with no question outstanding.
	ErrNoActiveQuestion = errors.New("No question is awaiting an answer")
	// ErrSessionNotFound indicates the connection is no longer in the registry.
	ErrSessionNotFound = errors.New("session not found")
)
