package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hilthontt/chorus/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix   = "chorus:presence:"
	onlineIndex = "chorus:presence:online"
	// trackedIndex maps every user that is not offline to their status. It
	// has no TTL, so it outlives the per-user hash.
	trackedIndex = "chorus:presence:tracked"
	maxRetries  = 5
)

// RedisStore keeps one hash per user plus a sorted set of online users
// scored by last activity, so every gateway node shares presence. Hashes
// expire after ttl unless touched; Expired finds the users they belonged to.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func key(userID string) string {
	return keyPrefix + userID
}

func (s *RedisStore) Update(ctx context.Context, userID string, fn UpdateFunc) (prev, next Record, err error) {
	k := key(userID)

	txf := func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, k).Result()
		if err != nil {
			return err
		}
		prev = decodeRecord(userID, vals)
		next = fn(prev)
		next.UserID = userID

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k,
				"status", string(next.Status),
				"connections", next.Connections,
				"last_seen", next.LastSeen.UnixMilli(),
			)
			if s.ttl > 0 {
				pipe.Expire(ctx, k, s.ttl)
			}
			if next.Status == domain.PresenceOnline {
				pipe.ZAdd(ctx, onlineIndex, redis.Z{Score: float64(next.LastSeen.UnixMilli()), Member: userID})
			} else {
				pipe.ZRem(ctx, onlineIndex, userID)
			}
			if next.Status == domain.PresenceOffline {
				pipe.HDel(ctx, trackedIndex, userID)
			} else {
				pipe.HSet(ctx, trackedIndex, userID, string(next.Status))
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxRetries; i++ {
		err = s.client.Watch(ctx, txf, k)
		if err == nil {
			return prev, next, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	return Record{}, Record{}, fmt.Errorf("update presence for %s: %w", userID, err)
}

func (s *RedisStore) Get(ctx context.Context, userID string) (Record, error) {
	vals, err := s.client.HGetAll(ctx, key(userID)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("get presence for %s: %w", userID, err)
	}
	return decodeRecord(userID, vals), nil
}

func (s *RedisStore) Stale(ctx context.Context, before time.Time) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, onlineIndex, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list stale presence: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) Touch(ctx context.Context, userID string) error {
	if s.ttl <= 0 {
		return nil
	}
	if err := s.client.Expire(ctx, key(userID), s.ttl).Err(); err != nil {
		return fmt.Errorf("touch presence for %s: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) Expired(ctx context.Context) ([]Record, error) {
	tracked, err := s.client.HGetAll(ctx, trackedIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("list tracked presence: %w", err)
	}

	var expired []Record
	for userID, status := range tracked {
		k := key(userID)
		gone := false
		// an Update recreating the hash aborts this transaction
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, k).Result()
			if err != nil || n > 0 {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HDel(ctx, trackedIndex, userID)
				pipe.ZRem(ctx, onlineIndex, userID)
				return nil
			})
			gone = err == nil
			return err
		}, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return expired, fmt.Errorf("expire presence for %s: %w", userID, err)
		}
		if gone {
			rec := offline(userID)
			if last := domain.PresenceStatus(status); last.Valid() {
				rec.Status = last
			}
			expired = append(expired, rec)
		}
	}
	return expired, nil
}

// decodeRecord treats a missing or expired hash as offline.
func decodeRecord(userID string, vals map[string]string) Record {
	rec := offline(userID)
	if len(vals) == 0 {
		return rec
	}
	if status := domain.PresenceStatus(vals["status"]); status.Valid() {
		rec.Status = status
	}
	if n, err := strconv.Atoi(vals["connections"]); err == nil {
		rec.Connections = n
	}
	if ms, err := strconv.ParseInt(vals["last_seen"], 10, 64); err == nil {
		rec.LastSeen = time.UnixMilli(ms).UTC()
	}
	return rec
}
