package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"flashquiz-server/internal/domain"
	"flashquiz-server/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// BankRepository caches question-bank content in Redis and falls back to a
// loader on cache miss. Topics are stored as:
//
//	SET bank:topics        {json array of names}
//	SET bank:topic:{name}  {json topic}
type BankRepository struct {
	client *redis.Client
	loader memory.BankLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewBankRepository(client *redis.Client, loader memory.BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *BankRepository) Topics(ctx context.Context) ([]string, error) {
	if raw, err := r.client.Get(ctx, r.topicsKey()).Bytes(); err == nil {
		var names []string
		if err := json.Unmarshal(raw, &names); err == nil {
			return names, nil
		}
	}

	result, err, _ := r.sf.Do("topics", func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := r.client.Get(ctx, r.topicsKey()).Bytes(); err == nil {
			var names []string
			if err := json.Unmarshal(raw, &names); err == nil {
				return names, nil
			}
		}

		names, err := r.loader.LoadTopics(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(names); err == nil {
			_ = r.client.Set(ctx, r.topicsKey(), raw, r.ttlWithJitter()).Err()
		}
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (r *BankRepository) Topic(ctx context.Context, name string) (domain.Topic, error) {
	if raw, err := r.client.Get(ctx, r.topicKey(name)).Bytes(); err == nil {
		var topic domain.Topic
		if err := json.Unmarshal(raw, &topic); err == nil {
			return topic, nil
		}
	}

	result, err, _ := r.sf.Do("topic:"+name, func() (interface{}, error) {
		if raw, err := r.client.Get(ctx, r.topicKey(name)).Bytes(); err == nil {
			var topic domain.Topic
			if err := json.Unmarshal(raw, &topic); err == nil {
				return topic, nil
			}
		}

		topic, err := r.loader.LoadTopic(ctx, name)
		if err != nil {
			return domain.Topic{}, err
		}
		if raw, err := json.Marshal(topic); err == nil {
			_ = r.client.Set(ctx, r.topicKey(name), raw, r.ttlWithJitter()).Err()
		}
		return topic, nil
	})
	if err != nil {
		return domain.Topic{}, err
	}
	return result.(domain.Topic), nil
}

func (r *BankRepository) topicsKey() string {
	return "bank:topics"
}

func (r *BankRepository) topicKey(name string) string {
	return "bank:topic:" + name
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
