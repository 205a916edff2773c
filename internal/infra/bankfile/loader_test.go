package bankfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadValidBank(t *testing.T) {
	path := writeBank(t, `{
		"Geography": [
			{"q": "Capital of France?", "choices": ["Paris", "London"], "a": "Paris"}
		]
	}`)

	bank, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(bank["Geography"]) != 1 {
		t.Fatalf("expected one question, got %+v", bank)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	if _, err := Load(writeBank(t, "{not json")); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestLoadRejectsAnswerNotInChoices(t *testing.T) {
	path := writeBank(t, `{
		"Geography": [
			{"q": "Capital of France?", "choices": ["Paris", "London"], "a": "Berlin"}
		]
	}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error when answer is not a choice")
	}
}

func TestLoadRejectsSingleChoice(t *testing.T) {
	path := writeBank(t, `{
		"Geography": [
			{"q": "Capital of France?", "choices": ["Paris"], "a": "Paris"}
		]
	}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for fewer than two choices")
	}
}

func writeBank(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "questions.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write bank: %v", err)
	}
	return path
}
