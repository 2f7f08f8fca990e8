package rating

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Vote fields carry a "u:" prefix so metadata fields in the same hash never
// collide with user IDs.
const voteFieldPrefix = "u:"

// castVoteScript atomically checks that the post hash exists, writes the
// user's score (overwriting any previous one), refreshes the TTL, and
// returns the full vote set for recomputing the aggregate.
// ARGV: [1]=vote field, [2]=score, [3]=ttl_ms (0 disables)
var castVoteScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return redis.call('HGETALL', KEYS[1])
`)

// RedisStore keeps each post's votes in a Redis hash, one field per user.
// Atomicity of cast-and-reread comes from a Lua script. With a TTL set,
// Redis expires stale posts itself, so PruneStale is a no-op.
type RedisStore struct {
	rdb *goredis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *goredis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func postKey(post PostID) string {
	return fmt.Sprintf("rating:post:%d:%d", post.ChannelID, post.MessageID)
}

func (s *RedisStore) Register(ctx context.Context, post PostID) error {
	created, err := s.rdb.HSetNX(ctx, postKey(post), "_created", time.Now().UnixMilli()).Result()
	if err != nil {
		return fmt.Errorf("register post: %w", err)
	}
	if !created {
		return ErrDuplicatePost
	}
	if s.ttl > 0 {
		if err := s.rdb.PExpire(ctx, postKey(post), s.ttl).Err(); err != nil {
			return fmt.Errorf("set post ttl: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) CastVote(ctx context.Context, post PostID, userID string, score int) (Aggregate, error) {
	if !ValidScore(score) {
		return Aggregate{}, ErrInvalidScore
	}

	result, err := castVoteScript.Run(ctx, s.rdb, []string{postKey(post)},
		voteFieldPrefix+userID,
		strconv.Itoa(score),
		strconv.FormatInt(s.ttl.Milliseconds(), 10),
	).Result()
	if err == goredis.Nil {
		return Aggregate{}, ErrUnknownPost
	}
	if err != nil {
		return Aggregate{}, fmt.Errorf("cast vote script: %w", err)
	}

	fields, ok := result.([]interface{})
	if !ok {
		return Aggregate{}, fmt.Errorf("cast vote script: unexpected reply type %T", result)
	}
	return aggregateFromFields(fields)
}

func (s *RedisStore) Aggregate(ctx context.Context, post PostID) (Aggregate, error) {
	fields, err := s.rdb.HGetAll(ctx, postKey(post)).Result()
	if err != nil {
		return Aggregate{}, fmt.Errorf("read post votes: %w", err)
	}
	if len(fields) == 0 {
		return Aggregate{}, ErrUnknownPost
	}

	count, sum := 0, 0
	for field, value := range fields {
		if !strings.HasPrefix(field, voteFieldPrefix) {
			continue
		}
		score, err := strconv.Atoi(value)
		if err != nil {
			return Aggregate{}, fmt.Errorf("corrupt score for %s: %w", field, err)
		}
		count++
		sum += score
	}
	if count == 0 {
		return Aggregate{}, nil
	}
	return Aggregate{Count: count, Average: float64(sum) / float64(count)}, nil
}

// PruneStale is a no-op: the per-post TTL handles expiry.
func (s *RedisStore) PruneStale(_ context.Context, _ time.Duration) ([]PostID, error) {
	return nil, nil
}

// aggregateFromFields recomputes the aggregate from a flat HGETALL reply
// ([field, value, field, value, ...]).
func aggregateFromFields(fields []interface{}) (Aggregate, error) {
	count, sum := 0, 0
	for i := 0; i+1 < len(fields); i += 2 {
		field, ok := fields[i].(string)
		if !ok || !strings.HasPrefix(field, voteFieldPrefix) {
			continue
		}
		value, ok := fields[i+1].(string)
		if !ok {
			return Aggregate{}, fmt.Errorf("unexpected value type %T for %s", fields[i+1], field)
		}
		score, err := strconv.Atoi(value)
		if err != nil {
			return Aggregate{}, fmt.Errorf("corrupt score for %s: %w", field, err)
		}
		count++
		sum += score
	}
	if count == 0 {
		return Aggregate{}, nil
	}
	return Aggregate{Count: count, Average: float64(sum) / float64(count)}, nil
}
