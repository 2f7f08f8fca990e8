package rating

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryStore(t *testing.T) (*MemoryStore, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	return NewMemoryStore(clock), clock
}

func TestRegisterDuplicate(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()
	post := PostID{ChannelID: 1, MessageID: 100}

	require.NoError(t, store.Register(ctx, post))
	assert.ErrorIs(t, store.Register(ctx, post), ErrDuplicatePost)
}

func TestCastVoteUnknownPost(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()

	_, err := store.CastVote(ctx, PostID{ChannelID: 1, MessageID: 999}, "userA", 5)
	assert.ErrorIs(t, err, ErrUnknownPost)
}

func TestCastVoteInvalidScore(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()
	post := PostID{ChannelID: 1, MessageID: 100}
	require.NoError(t, store.Register(ctx, post))

	_, err := store.CastVote(ctx, post, "userA", 7)
	require.NoError(t, err)

	for _, score := range []int{0, 11, -3, 100} {
		_, err := store.CastVote(ctx, post, "userB", score)
		assert.ErrorIs(t, err, ErrInvalidScore, "score %d", score)
	}

	// Rejected votes leave the aggregate untouched.
	agg, err := store.Aggregate(ctx, post)
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Count)
	assert.InDelta(t, 7.0, agg.Average, 1e-9)
}

func TestCastVoteOverwriteOnRevote(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()
	post := PostID{ChannelID: 1, MessageID: 100}
	require.NoError(t, store.Register(ctx, post))

	agg, err := store.CastVote(ctx, post, "userA", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Count)
	assert.InDelta(t, 7.0, agg.Average, 1e-9)

	agg, err = store.CastVote(ctx, post, "userB", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.Count)
	assert.InDelta(t, 5.0, agg.Average, 1e-9)

	// Revote replaces userA's 7 with 10, never sums.
	agg, err = store.CastVote(ctx, post, "userA", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.Count)
	assert.InDelta(t, 6.5, agg.Average, 1e-9)
}

func TestAggregateZeroVotes(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()
	post := PostID{ChannelID: 1, MessageID: 100}
	require.NoError(t, store.Register(ctx, post))

	agg, err := store.Aggregate(ctx, post)
	require.NoError(t, err)
	assert.Equal(t, 0, agg.Count)
	assert.Zero(t, agg.Average)
}

func TestAggregateUnknownPost(t *testing.T) {
	store, _ := newMemoryStore(t)

	_, err := store.Aggregate(context.Background(), PostID{ChannelID: 5, MessageID: 42})
	assert.ErrorIs(t, err, ErrUnknownPost)
}

func TestPruneStale(t *testing.T) {
	store, clock := newMemoryStore(t)
	ctx := context.Background()

	old := PostID{ChannelID: 1, MessageID: 1}
	fresh := PostID{ChannelID: 1, MessageID: 2}
	require.NoError(t, store.Register(ctx, old))

	clock.Advance(2 * time.Hour)
	require.NoError(t, store.Register(ctx, fresh))

	stale, err := store.PruneStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []PostID{old}, stale)

	_, err = store.Aggregate(ctx, old)
	assert.ErrorIs(t, err, ErrUnknownPost)
	_, err = store.Aggregate(ctx, fresh)
	assert.NoError(t, err)
}

func TestPruneStaleVoteRefreshesActivity(t *testing.T) {
	store, clock := newMemoryStore(t)
	ctx := context.Background()
	post := PostID{ChannelID: 1, MessageID: 1}
	require.NoError(t, store.Register(ctx, post))

	clock.Advance(50 * time.Minute)
	_, err := store.CastVote(ctx, post, "userA", 8)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	stale, err := store.PruneStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestConcurrentVotesAcrossPosts(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()

	const posts = 8
	const votersPerPost = 25

	ids := make([]PostID, posts)
	for i := range ids {
		ids[i] = PostID{ChannelID: 1, MessageID: int64(i)}
		require.NoError(t, store.Register(ctx, ids[i]))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for v := 0; v < votersPerPost; v++ {
			wg.Add(1)
			go func(id PostID, v int) {
				defer wg.Done()
				_, err := store.CastVote(ctx, id, fmt.Sprintf("user%d", v), v%MaxScore+1)
				assert.NoError(t, err)
			}(id, v)
		}
	}
	wg.Wait()

	for _, id := range ids {
		agg, err := store.Aggregate(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, votersPerPost, agg.Count)
	}
}
