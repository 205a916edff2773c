// Package bankfile loads the static question-bank document the server is
// started with. A missing or malformed file is fatal at startup, before any
// connection is accepted.
package bankfile

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"flashquiz-server/internal/domain"
)

// Load reads a JSON document mapping topic names to question lists:
//
//	{"Geography": [{"q": "...", "choices": ["..."], "a": "..."}]}
func Load(path string) (map[string][]domain.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}

	var bank map[string][]domain.Question
	if err := json.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("parse question bank %s: %w", path, err)
	}
	if err := Validate(bank); err != nil {
		return nil, fmt.Errorf("question bank %s: %w", path, err)
	}
	return bank, nil
}

// Validate checks the structural invariants of a bank: every question has a
// prompt, at least two choices, and a correct answer that is one of them.
func Validate(bank map[string][]domain.Question) error {
	if len(bank) == 0 {
		return fmt.Errorf("no topics defined")
	}
	for topic, questions := range bank {
		for i, q := range questions {
			if strings.TrimSpace(q.Prompt) == "" {
				return fmt.Errorf("topic %q question %d: empty prompt", topic, i+1)
			}
			if len(q.Choices) < 2 {
				return fmt.Errorf("topic %q question %d: needs at least two choices", topic, i+1)
			}
			if !choiceListed(q.Choices, q.Answer) {
				return fmt.Errorf("topic %q question %d: answer %q is not a choice", topic, i+1, q.Answer)
			}
		}
	}
	return nil
}

func choiceListed(choices []string, answer string) bool {
	for _, c := range choices {
		if strings.EqualFold(c, answer) {
			return true
		}
	}
	return false
}
