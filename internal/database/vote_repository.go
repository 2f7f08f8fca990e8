package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/postpulse/postpulse/internal/rating"
)

// VoteRepo is the Postgres-backed rating.VoteStore. Votes survive restarts;
// the aggregate is recomputed from the live vote set on every read.
type VoteRepo struct {
	pool *pgxpool.Pool
}

func NewVoteRepo(pool *pgxpool.Pool) *VoteRepo {
	return &VoteRepo{pool: pool}
}

func (r *VoteRepo) Register(ctx context.Context, post rating.PostID) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO rating_posts (channel_id, message_id)
		 VALUES ($1, $2)
		 ON CONFLICT (channel_id, message_id) DO NOTHING`,
		post.ChannelID, post.MessageID)
	if err != nil {
		return fmt.Errorf("register post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rating.ErrDuplicatePost
	}
	return nil
}

func (r *VoteRepo) CastVote(ctx context.Context, post rating.PostID, userID string, score int) (rating.Aggregate, error) {
	if !rating.ValidScore(score) {
		return rating.Aggregate{}, rating.ErrInvalidScore
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return rating.Aggregate{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Touching last_activity doubles as the existence check.
	tag, err := tx.Exec(ctx,
		`UPDATE rating_posts SET last_activity = now()
		 WHERE channel_id = $1 AND message_id = $2`,
		post.ChannelID, post.MessageID)
	if err != nil {
		return rating.Aggregate{}, fmt.Errorf("touch post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rating.Aggregate{}, rating.ErrUnknownPost
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO rating_votes (channel_id, message_id, user_id, score)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (channel_id, message_id, user_id)
		 DO UPDATE SET score = EXCLUDED.score, voted_at = now()`,
		post.ChannelID, post.MessageID, userID, score)
	if err != nil {
		return rating.Aggregate{}, fmt.Errorf("upsert vote: %w", err)
	}

	agg, err := queryAggregate(ctx, tx, post)
	if err != nil {
		return rating.Aggregate{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return rating.Aggregate{}, fmt.Errorf("commit tx: %w", err)
	}
	return agg, nil
}

func (r *VoteRepo) Aggregate(ctx context.Context, post rating.PostID) (rating.Aggregate, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM rating_posts WHERE channel_id = $1 AND message_id = $2
		)`,
		post.ChannelID, post.MessageID).Scan(&exists)
	if err != nil {
		return rating.Aggregate{}, fmt.Errorf("check post: %w", err)
	}
	if !exists {
		return rating.Aggregate{}, rating.ErrUnknownPost
	}

	return queryAggregate(ctx, r.pool, post)
}

func (r *VoteRepo) PruneStale(ctx context.Context, maxAge time.Duration) ([]rating.PostID, error) {
	rows, err := r.pool.Query(ctx,
		`DELETE FROM rating_posts
		 WHERE last_activity < now() - make_interval(secs => $1)
		 RETURNING channel_id, message_id`,
		maxAge.Seconds())
	if err != nil {
		return nil, fmt.Errorf("prune stale posts: %w", err)
	}
	defer rows.Close()

	var stale []rating.PostID
	for rows.Next() {
		var id rating.PostID
		if err := rows.Scan(&id.ChannelID, &id.MessageID); err != nil {
			return nil, fmt.Errorf("scan pruned post: %w", err)
		}
		stale = append(stale, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("prune rows: %w", err)
	}
	return stale, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func queryAggregate(ctx context.Context, q querier, post rating.PostID) (rating.Aggregate, error) {
	var count int
	var average float64
	err := q.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(score), 0)
		 FROM rating_votes
		 WHERE channel_id = $1 AND message_id = $2`,
		post.ChannelID, post.MessageID).Scan(&count, &average)
	if err != nil {
		return rating.Aggregate{}, fmt.Errorf("compute aggregate: %w", err)
	}
	if count == 0 {
		return rating.Aggregate{}, nil
	}
	return rating.Aggregate{Count: count, Average: average}, nil
}
