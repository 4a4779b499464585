package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStatus is the state an idempotency key is in (C6, spec.md §4.6).
type IdempotencyStatus string

const (
	IdempotencyNewLock    IdempotencyStatus = "NEW_LOCK"
	IdempotencyInProgress IdempotencyStatus = "IN_PROGRESS"
	IdempotencyCompleted  IdempotencyStatus = "COMPLETED"
)

// idempotencyLockScript atomically claims a key: if it doesn't exist, set it
// to "in_progress" with the TTL and report NewLock; if it exists and is
// still in_progress, report InProgress; if it holds a completed response,
// return it verbatim. Modeled on the teacher's moneyDropRateLimitScript —
// same INCR-free "set if absent, else report" shape, expressed with HGET and
// HSET inside one script since the value here is status+payload rather than
// a counter.
var idempotencyLockScript = redis.NewScript(`
local existing = redis.call("HGET", KEYS[1], "status")
if existing == false then
  redis.call("HSET", KEYS[1], "status", "in_progress")
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  return {"new_lock", ""}
end
if existing == "in_progress" then
  return {"in_progress", ""}
end
local response = redis.call("HGET", KEYS[1], "response")
return {"completed", response}
`)

// IdempotencyRecord is the cached response returned on a key replay.
type IdempotencyRecord struct {
	Status   IdempotencyStatus
	Response json.RawMessage
}

// IdempotencyStore is the Redis-backed keyed lock from spec.md §4.6. The key
// namespace is deliberately global across all three mutating endpoints —
// not partitioned by route — because the spec's test suite asserts that a
// key reused across /deposit and /withdraw shadows the first endpoint's
// response (§9 open question 4); this is preserved as specified, not a bug.
type IdempotencyStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewIdempotencyStore wires a redis client with the configured TTL
// (IDEMPOTENCY_TTL_SECONDS, default 24h per spec.md §3) and key prefix
// (IDEMPOTENCY_KEY_PREFIX).
func NewIdempotencyStore(client redis.UniversalClient, prefix string, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if prefix == "" {
		prefix = "wallet:idempotency"
	}
	return &IdempotencyStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *IdempotencyStore) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

// CheckAndLock implements the atomic check-and-lock protocol.
func (s *IdempotencyStore) CheckAndLock(ctx context.Context, key string) (IdempotencyRecord, error) {
	raw, err := idempotencyLockScript.Run(ctx, s.client, []string{s.redisKey(key)}, s.ttl.Milliseconds()).Result()
	if err != nil {
		return IdempotencyRecord{}, fmt.Errorf("idempotency check_and_lock %s: %w", key, err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return IdempotencyRecord{}, fmt.Errorf("unexpected idempotency script response shape: %T", raw)
	}

	status, _ := values[0].(string)
	payload, _ := values[1].(string)

	switch status {
	case "new_lock":
		return IdempotencyRecord{Status: IdempotencyNewLock}, nil
	case "in_progress":
		return IdempotencyRecord{Status: IdempotencyInProgress}, nil
	case "completed":
		return IdempotencyRecord{Status: IdempotencyCompleted, Response: json.RawMessage(payload)}, nil
	default:
		return IdempotencyRecord{}, fmt.Errorf("unrecognized idempotency status %q", status)
	}
}

// Complete stores the final response under the key. HSET does not touch an
// existing key's TTL, so the lock keeps counting down from when
// CheckAndLock first set it — completed responses expire on the same
// schedule the in-progress lock would have.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, response json.RawMessage) error {
	redisKey := s.redisKey(key)
	if err := s.client.HSet(ctx, redisKey, "status", "completed", "response", string(response)).Err(); err != nil {
		return fmt.Errorf("idempotency complete %s: %w", key, err)
	}
	return nil
}

// Release deletes the lock outright, used when processing fails so the
// client is free to retry with the same key (spec.md §4.6).
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("idempotency release %s: %w", key, err)
	}
	return nil
}
