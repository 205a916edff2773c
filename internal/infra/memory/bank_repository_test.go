package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"flashquiz-server/internal/domain"
)

func TestBankRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		BankLoader: NewStaticBankLoader(sampleBank()),
	}
	repo := NewBankRepository(loader, time.Minute)

	if _, err := repo.Topic(context.Background(), "Geography"); err != nil {
		t.Fatalf("get topic: %v", err)
	}
	if loader.topicCalls != 1 {
		t.Fatalf("expected loader once, got %d", loader.topicCalls)
	}

	if _, err := repo.Topic(context.Background(), "Geography"); err != nil {
		t.Fatalf("get topic 2: %v", err)
	}
	if loader.topicCalls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.topicCalls)
	}
}

func TestBankRepositoryCachesTopicList(t *testing.T) {
	loader := &countingLoader{
		BankLoader: NewStaticBankLoader(sampleBank()),
	}
	repo := NewBankRepository(loader, time.Minute)

	names, err := repo.Topics(context.Background())
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	if len(names) != 2 || names[0] != "Geography" || names[1] != "Science" {
		t.Fatalf("expected sorted topic names, got %v", names)
	}

	if _, err := repo.Topics(context.Background()); err != nil {
		t.Fatalf("topics 2: %v", err)
	}
	if loader.listCalls != 1 {
		t.Fatalf("expected cache hit, list calls %d", loader.listCalls)
	}
}

func TestStaticLoaderUnknownTopic(t *testing.T) {
	loader := NewStaticBankLoader(sampleBank())
	if _, err := loader.LoadTopic(context.Background(), "Astrology"); !errors.Is(err, domain.ErrTopicNotFound) {
		t.Fatalf("expected ErrTopicNotFound, got %v", err)
	}
}

type countingLoader struct {
	BankLoader
	topicCalls int
	listCalls  int
}

func (l *countingLoader) LoadTopic(ctx context.Context, name string) (domain.Topic, error) {
	l.topicCalls++
	return l.BankLoader.LoadTopic(ctx, name)
}

func (l *countingLoader) LoadTopics(ctx context.Context) ([]string, error) {
	l.listCalls++
	return l.BankLoader.LoadTopics(ctx)
}

func sampleBank() map[string][]domain.Question {
	return map[string][]domain.Question{
		"Geography": {
			{Prompt: "What is the capital of France?", Choices: []string{"Paris", "London"}, Answer: "Paris"},
		},
		"Science": {
			{Prompt: "Red planet?", Choices: []string{"Mars", "Venus"}, Answer: "Mars"},
		},
	}
}
