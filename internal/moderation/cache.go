package moderation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// VerdictStore persists classifier verdicts between requests.
type VerdictStore interface {
	Get(ctx context.Context, key string) (ClassifierVerdict, bool, error)
	Set(ctx context.Context, key string, v ClassifierVerdict, ttl time.Duration) error
}

// CachedClassifier answers repeated messages from a VerdictStore instead of
// paying for another remote call. Store failures are logged and bypassed;
// Unavailable verdicts are never cached.
type CachedClassifier struct {
	next  Classifier
	store VerdictStore
	ttl   time.Duration
}

// NewCachedClassifier wraps next with store. A ttl <= 0 defaults to one hour.
func NewCachedClassifier(next Classifier, store VerdictStore, ttl time.Duration) *CachedClassifier {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedClassifier{next: next, store: store, ttl: ttl}
}

// Classify implements Classifier.
func (c *CachedClassifier) Classify(ctx context.Context, text string) ClassifierVerdict {
	key := verdictKey(text)

	if v, ok, err := c.store.Get(ctx, key); err != nil {
		log.Debug().Err(err).Msg("verdict cache read failed")
	} else if ok {
		verdictCacheHits.Inc()
		return v
	}

	v := c.next.Classify(ctx, text)
	if v.Unavailable {
		return v
	}
	if err := c.store.Set(ctx, key, v, c.ttl); err != nil {
		log.Debug().Err(err).Msg("verdict cache write failed")
	}
	return v
}

// verdictKey hashes the normalized text so keys stay short and never echo
// message content into Redis.
func verdictKey(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// RedisVerdictStore keeps verdicts in Redis as JSON with a TTL.
type RedisVerdictStore struct {
	client *redis.Client
	prefix string
}

// NewRedisVerdictStore creates a store using keys of the form "modv:<sha256>".
func NewRedisVerdictStore(client *redis.Client) *RedisVerdictStore {
	return &RedisVerdictStore{client: client, prefix: "modv:"}
}

// Get implements VerdictStore.
func (s *RedisVerdictStore) Get(ctx context.Context, key string) (ClassifierVerdict, bool, error) {
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ClassifierVerdict{}, false, nil
	}
	if err != nil {
		return ClassifierVerdict{}, false, err
	}
	var v ClassifierVerdict
	if err := json.Unmarshal(b, &v); err != nil {
		return ClassifierVerdict{}, false, err
	}
	return v, true, nil
}

// Set implements VerdictStore.
func (s *RedisVerdictStore) Set(ctx context.Context, key string, v ClassifierVerdict, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, b, ttl).Err()
}
