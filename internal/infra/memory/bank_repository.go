package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"flashquiz-server/internal/domain"
	"golang.org/x/sync/singleflight"
)

// BankLoader fetches question-bank content from a backing store.
type BankLoader interface {
	LoadTopics(ctx context.Context) ([]string, error)
	LoadTopic(ctx context.Context, name string) (domain.Topic, error)
}

// BankRepository caches topics with TTL to avoid repeated loader hits.
type BankRepository struct {
	loader BankLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu     sync.RWMutex
	topics map[string]cachedTopic
	names  *cachedNames
}

type cachedTopic struct {
	topic     domain.Topic
	expiresAt time.Time
}

type cachedNames struct {
	names     []string
	expiresAt time.Time
}

func NewBankRepository(loader BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		topics: make(map[string]cachedTopic),
	}
}

func (r *BankRepository) Topics(ctx context.Context) ([]string, error) {
	now := r.clock()

	r.mu.RLock()
	if r.names != nil && r.names.expiresAt.After(now) {
		names := r.names.names
		r.mu.RUnlock()
		return names, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("topics", func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if r.names != nil && r.names.expiresAt.After(now) {
			names := r.names.names
			r.mu.RUnlock()
			return names, nil
		}
		r.mu.RUnlock()

		names, err := r.loader.LoadTopics(ctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.names = &cachedNames{names: names, expiresAt: now.Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (r *BankRepository) Topic(ctx context.Context, name string) (domain.Topic, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.topics[name]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.topic, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("topic:"+name, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.topics[name]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.topic, nil
		}
		r.mu.RUnlock()

		topic, err := r.loader.LoadTopic(ctx, name)
		if err != nil {
			return domain.Topic{}, err
		}

		r.mu.Lock()
		r.topics[name] = cachedTopic{topic: topic, expiresAt: now.Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return topic, nil
	})
	if err != nil {
		return domain.Topic{}, err
	}
	return result.(domain.Topic), nil
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticBankLoader is a loader backed by an in-memory map (tests/demos).
type StaticBankLoader struct {
	bank map[string][]domain.Question
}

func NewStaticBankLoader(bank map[string][]domain.Question) *StaticBankLoader {
	return &StaticBankLoader{bank: bank}
}

func (l *StaticBankLoader) LoadTopics(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(l.bank))
	for name := range l.bank {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (l *StaticBankLoader) LoadTopic(_ context.Context, name string) (domain.Topic, error) {
	questions, ok := l.bank[name]
	if !ok {
		return domain.Topic{}, domain.ErrTopicNotFound
	}
	return domain.Topic{Name: name, Questions: questions}, nil
}
