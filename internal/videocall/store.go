// Package videocall tracks which pairs are currently engaged in a video
// exchange. The markers exist for logging and metrics only — the broker's
// pair table stays authoritative for relay authorization — so every operation
// here is best-effort and failures never block the call path.
package videocall

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// PairPrefix is the Redis key prefix for active call markers. The suffix
	// is the canonical unordered pair key (sorted IDs), so the same call is
	// never recorded twice under swapped orderings.
	PairPrefix = "call:pair:"

	// MemberPrefix is the Redis key prefix for the per-connection index. The
	// value is the pair key the connection participates in, which makes
	// "clear every marker referencing this ID" a couple of point lookups.
	MemberPrefix = "call:member:"

	// CallTTL is a safety net against markers orphaned by missed cleanups.
	CallTTL = 2 * time.Hour
)

// Store manages active call markers in Redis.
type Store struct {
	rdb *redis.Client
}

// NewStore connects to Redis and returns a ready Store.
func NewStore(redisAddr string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("videocall: redis connection failed: %w", err)
	}

	return &Store{rdb: rdb}, nil
}

// PairKey builds the canonical unordered key for a pair of connection IDs.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return PairPrefix + a + ":" + b
}

// Start records a and b as being in an active video call.
func (s *Store) Start(ctx context.Context, a, b string) error {
	key := PairKey(a, b)
	members := a + "," + b
	if b < a {
		members = b + "," + a
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, key, members, CallTTL)
	pipe.Set(ctx, MemberPrefix+a, key, CallTTL)
	pipe.Set(ctx, MemberPrefix+b, key, CallTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// End removes the marker for the a/b call, if any.
func (s *Store) End(ctx context.Context, a, b string) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, PairKey(a, b))
	pipe.Del(ctx, MemberPrefix+a)
	pipe.Del(ctx, MemberPrefix+b)
	_, err := pipe.Exec(ctx)
	return err
}

// EndAll removes any marker referencing id in either position. A connection
// has at most one partner, so there is at most one such marker.
func (s *Store) EndAll(ctx context.Context, id string) error {
	key, err := s.rdb.Get(ctx, MemberPrefix+id).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}

	members, err := s.rdb.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return err
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	for _, member := range strings.Split(members, ",") {
		if member != "" {
			pipe.Del(ctx, MemberPrefix+member)
		}
	}
	pipe.Del(ctx, MemberPrefix+id)
	_, err = pipe.Exec(ctx)
	return err
}

// Active reports whether a and b currently have a call marker.
func (s *Store) Active(ctx context.Context, a, b string) (bool, error) {
	n, err := s.rdb.Exists(ctx, PairKey(a, b)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the number of active call markers.
func (s *Store) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, PairPrefix+"*", 100).Result()
		if err != nil {
			return 0, err
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}
