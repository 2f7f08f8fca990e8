package rating

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Messenger is the outbound boundary to the messaging platform. The core
// depends only on this interface; the concrete transport lives elsewhere.
type Messenger interface {
	// PostMessage sends a fresh rating message under the given channel post
	// and returns a reference for later edits.
	PostMessage(ctx context.Context, post PostID, caption string, keyboard [][]Button) (MessageRef, error)
	// EditMessage replaces the caption and keyboard of an existing rating
	// message in place.
	EditMessage(ctx context.Context, ref MessageRef, caption string, keyboard [][]Button) error
}

// pruneEvery is how often the eviction ticker fires when retention is set.
const pruneEvery = time.Minute

// --- Command types ---

type engineCmd interface{ engineCmd() }

type cmdNewPost struct {
	ctx     context.Context
	post    PostID
	replyCh chan error
}

func (cmdNewPost) engineCmd() {}

type cmdVote struct {
	ctx     context.Context
	post    PostID
	userID  string
	score   int
	replyCh chan voteResult
}

func (cmdVote) engineCmd() {}

type voteResult struct {
	agg Aggregate
	err error
}

type cmdAggregate struct {
	ctx     context.Context
	post    PostID
	replyCh chan voteResult
}

func (cmdAggregate) engineCmd() {}

type cmdPrune struct{}

func (cmdPrune) engineCmd() {}

type cmdStop struct {
	doneCh chan struct{}
}

func (cmdStop) engineCmd() {}

// --- Engine ---

type trackedMessage struct {
	ref         MessageRef
	lastCaption string
}

// Engine serializes all event handling on a single actor goroutine, so vote
// application, re-rendering, and message edits for a post never interleave.
type Engine struct {
	cmdCh     chan engineCmd
	store     VoteStore
	messenger Messenger
	clock     clockwork.Clock
	retention time.Duration
	// tracked maps each registered post to its rating message and the last
	// caption written there, so unchanged redraws can be skipped.
	tracked map[PostID]trackedMessage
	stopCh  chan struct{}
}

// NewEngine creates an engine over the given store and messenger. A zero
// retention disables eviction and posts are kept for the process lifetime.
func NewEngine(store VoteStore, messenger Messenger, clock clockwork.Clock, retention time.Duration) *Engine {
	return &Engine{
		cmdCh:     make(chan engineCmd, 256),
		store:     store,
		messenger: messenger,
		clock:     clock,
		retention: retention,
		tracked:   make(map[PostID]trackedMessage),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the actor goroutine and, with retention configured, the
// eviction ticker.
func (e *Engine) Start() {
	go e.run()
	if e.retention > 0 {
		go e.tickerLoop()
	}
}

func (e *Engine) run() {
	for cmd := range e.cmdCh {
		switch c := cmd.(type) {
		case cmdNewPost:
			c.replyCh <- e.handleNewPost(c.ctx, c.post)

		case cmdVote:
			agg, err := e.handleVote(c.ctx, c.post, c.userID, c.score)
			c.replyCh <- voteResult{agg: agg, err: err}

		case cmdAggregate:
			agg, err := e.store.Aggregate(c.ctx, c.post)
			c.replyCh <- voteResult{agg: agg, err: err}

		case cmdPrune:
			e.handlePrune()

		case cmdStop:
			close(e.stopCh)
			close(c.doneCh)
			return
		}
	}
}

func (e *Engine) handleNewPost(ctx context.Context, post PostID) error {
	if err := e.store.Register(ctx, post); err != nil {
		if errors.Is(err, ErrDuplicatePost) {
			slog.Warn("Post already registered, ignoring", "post", post.String())
			return nil
		}
		return err
	}

	caption := RenderCaption(Aggregate{})
	ref, err := e.messenger.PostMessage(ctx, post, caption, Keyboard())
	if err != nil {
		return err
	}

	e.tracked[post] = trackedMessage{ref: ref, lastCaption: caption}
	slog.Info("Rating message posted", "post", post.String(), "message_id", ref.MessageID)
	return nil
}

func (e *Engine) handleVote(ctx context.Context, post PostID, userID string, score int) (Aggregate, error) {
	agg, err := e.store.CastVote(ctx, post, userID, score)
	if err != nil {
		return Aggregate{}, err
	}

	tm, ok := e.tracked[post]
	if !ok {
		// Message ref lost, typically after a restart with a persistent
		// backend. The vote is recorded; the display catches up on the next
		// tracked post.
		slog.Warn("No rating message tracked for post, skipping edit", "post", post.String())
		return agg, nil
	}

	caption := RenderCaption(agg)
	if caption == tm.lastCaption {
		return agg, nil
	}

	if err := e.messenger.EditMessage(ctx, tm.ref, caption, Keyboard()); err != nil {
		// The vote is already applied; the next vote redraws the display.
		slog.Error("Failed to edit rating message", "post", post.String(), "error", err)
		return agg, nil
	}

	tm.lastCaption = caption
	e.tracked[post] = tm
	return agg, nil
}

func (e *Engine) handlePrune() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stale, err := e.store.PruneStale(ctx, e.retention)
	if err != nil {
		slog.Error("PruneStale error", "error", err)
		return
	}
	for _, id := range stale {
		delete(e.tracked, id)
	}
	if len(stale) > 0 {
		slog.Info("Evicted stale posts", "count", len(stale))
	}
}

func (e *Engine) tickerLoop() {
	ticker := e.clock.NewTicker(pruneEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			e.cmdCh <- cmdPrune{}
		case <-e.stopCh:
			return
		}
	}
}

// --- Public API ---

// HandleNewPost registers a freshly detected channel post and posts the
// initial rating message under it. Duplicate detections are logged and
// ignored.
func (e *Engine) HandleNewPost(ctx context.Context, post PostID) error {
	replyCh := make(chan error, 1)
	e.cmdCh <- cmdNewPost{ctx: ctx, post: post, replyCh: replyCh}
	return <-replyCh
}

// HandleVote applies a user's vote and redraws the rating message. Returns
// the resulting aggregate, or ErrInvalidScore / ErrUnknownPost with state
// untouched.
func (e *Engine) HandleVote(ctx context.Context, post PostID, userID string, score int) (Aggregate, error) {
	replyCh := make(chan voteResult, 1)
	e.cmdCh <- cmdVote{ctx: ctx, post: post, userID: userID, score: score, replyCh: replyCh}
	result := <-replyCh
	return result.agg, result.err
}

// Aggregate returns the current aggregate for a tracked post.
func (e *Engine) Aggregate(ctx context.Context, post PostID) (Aggregate, error) {
	replyCh := make(chan voteResult, 1)
	e.cmdCh <- cmdAggregate{ctx: ctx, post: post, replyCh: replyCh}
	result := <-replyCh
	return result.agg, result.err
}

// Stop drains the actor and shuts down the ticker.
func (e *Engine) Stop() {
	doneCh := make(chan struct{})
	e.cmdCh <- cmdStop{doneCh: doneCh}
	<-doneCh
}
