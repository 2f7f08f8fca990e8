package rating

import (
	"context"
	"time"
)

// VoteStore abstracts vote storage. The in-memory implementation is the
// default for single-instance mode. Redis and Postgres implementations let
// votes survive restarts and span multiple instances without changing the
// contract.
//
// All implementations enforce one score per user per post, with
// overwrite-on-revote: a user's previous score is discarded, never summed.
// Aggregates are always recomputed from the full current vote set.
type VoteStore interface {
	// Register creates an empty record for a newly detected post.
	// Returns ErrDuplicatePost if the post is already tracked.
	Register(ctx context.Context, post PostID) error

	// CastVote validates the score and post, inserts or overwrites the
	// user's entry, and returns the resulting aggregate. A rejected vote
	// leaves no state behind.
	CastVote(ctx context.Context, post PostID, userID string, score int) (Aggregate, error)

	// Aggregate returns the current (count, average) for a tracked post.
	Aggregate(ctx context.Context, post PostID) (Aggregate, error)

	// PruneStale drops posts with no vote activity for maxAge and returns
	// their IDs. No-op for backends that expire records themselves.
	PruneStale(ctx context.Context, maxAge time.Duration) ([]PostID, error)
}
