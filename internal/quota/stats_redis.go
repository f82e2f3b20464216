package quota

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStatsStore aggregates decisions in Redis hashes so totals survive
// restarts and are shared across replicas.
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl applies to the per-day buckets and per-principal keys only.
	// The total hash never expires.
	ttl time.Duration

	trackPrincipals bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if trimmed := strings.Trim(prefix, ":"); trimmed != "" {
			s.prefix = trimmed
		}
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsTrackPrincipals keeps a per-principal hash next to the global
// totals. Keys expire with the stats TTL.
func WithStatsTrackPrincipals(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackPrincipals = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "pawlog:quota",
		ttl:    7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) totalKey() string { return s.prefix + ":total" }

func (s *RedisStatsStore) dayKey(at time.Time) string {
	return fmt.Sprintf("%s:day:%s", s.prefix, at.UTC().Format("20060102"))
}

func (s *RedisStatsStore) principalKey(id uuid.UUID) string {
	return s.prefix + ":principal:" + id.String()
}

func (s *RedisStatsStore) Record(ctx context.Context, ev StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.totalKey(), field, 1)

	dayKey := s.dayKey(at)
	pipe.HIncrBy(ctx, dayKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, dayKey, s.ttl)
	}

	if s.trackPrincipals && ev.Principal != uuid.Nil {
		key := s.principalKey(ev.Principal)
		pipe.HIncrBy(ctx, key, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatsStore) Snapshot(ctx context.Context) (StatsSnapshot, error) {
	if s == nil || s.rdb == nil {
		return StatsSnapshot{}, nil
	}
	return s.readHash(ctx, s.totalKey())
}

// PrincipalSnapshot returns the decision totals of one principal within the
// stats TTL, or nil when per-principal tracking is off.
func (s *RedisStatsStore) PrincipalSnapshot(ctx context.Context, principal uuid.UUID) (StatsSnapshot, error) {
	if s == nil || s.rdb == nil || !s.trackPrincipals {
		return nil, nil
	}
	return s.readHash(ctx, s.principalKey(principal))
}

func (s *RedisStatsStore) readHash(ctx context.Context, key string) (StatsSnapshot, error) {
	values, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read quota stats: %w", err)
	}
	out := make(StatsSnapshot, len(values))
	for field, raw := range values {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse quota stat %s: %w", field, err)
		}
		out[Outcome(field)] = n
	}
	return out, nil
}
