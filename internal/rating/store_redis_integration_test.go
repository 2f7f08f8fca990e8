package rating

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	testRedisURL   string
	redisContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	// Parse flags to check for -short
	flag.Parse()

	// Skip container setup if running in short mode
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	redisContainer, err = tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	defer func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate redis container: %v\n", err)
		}
	}()
	os.Exit(m.Run())
}

func setupRedisStore(t *testing.T, ttl time.Duration) *RedisStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	opts, err := goredis.ParseURL(testRedisURL)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	require.NoError(t, client.FlushAll(ctx).Err())

	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, ttl)
}

func TestRedisStoreRegisterDuplicate(t *testing.T) {
	store := setupRedisStore(t, 0)
	ctx := context.Background()
	post := PostID{ChannelID: 1, MessageID: 100}

	require.NoError(t, store.Register(ctx, post))
	assert.ErrorIs(t, store.Register(ctx, post), ErrDuplicatePost)
}

func TestRedisStoreCastVote(t *testing.T) {
	store := setupRedisStore(t, 0)
	ctx := context.Background()
	post := PostID{ChannelID: 1, MessageID: 100}
	require.NoError(t, store.Register(ctx, post))

	agg, err := store.CastVote(ctx, post, "userA", 7)
	require.NoError(t, err)
	assert.Equal(t, Aggregate{Count: 1, Average: 7.0}, agg)

	agg, err = store.CastVote(ctx, post, "userB", 3)
	require.NoError(t, err)
	assert.Equal(t, Aggregate{Count: 2, Average: 5.0}, agg)

	// Revote overwrites.
	agg, err = store.CastVote(ctx, post, "userA", 10)
	require.NoError(t, err)
	assert.Equal(t, Aggregate{Count: 2, Average: 6.5}, agg)
}

func TestRedisStoreCastVoteUnknownPost(t *testing.T) {
	store := setupRedisStore(t, 0)

	_, err := store.CastVote(context.Background(), PostID{ChannelID: 9, MessageID: 9}, "userA", 5)
	assert.ErrorIs(t, err, ErrUnknownPost)
}

func TestRedisStoreCastVoteInvalidScore(t *testing.T) {
	store := setupRedisStore(t, 0)
	ctx := context.Background()
	post := PostID{ChannelID: 1, MessageID: 100}
	require.NoError(t, store.Register(ctx, post))

	_, err := store.CastVote(ctx, post, "userA", 0)
	assert.ErrorIs(t, err, ErrInvalidScore)
	_, err = store.CastVote(ctx, post, "userA", 11)
	assert.ErrorIs(t, err, ErrInvalidScore)

	agg, err := store.Aggregate(ctx, post)
	require.NoError(t, err)
	assert.Equal(t, 0, agg.Count)
}

func TestRedisStoreAggregateUnknownPost(t *testing.T) {
	store := setupRedisStore(t, 0)

	_, err := store.Aggregate(context.Background(), PostID{ChannelID: 9, MessageID: 9})
	assert.ErrorIs(t, err, ErrUnknownPost)
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	store := setupRedisStore(t, 100*time.Millisecond)
	ctx := context.Background()
	post := PostID{ChannelID: 1, MessageID: 100}
	require.NoError(t, store.Register(ctx, post))

	assert.Eventually(t, func() bool {
		_, err := store.Aggregate(ctx, post)
		return err == ErrUnknownPost
	}, 2*time.Second, 50*time.Millisecond)
}
