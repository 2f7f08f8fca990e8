package rating

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type postRecord struct {
	mu           sync.Mutex
	votes        map[string]int // user ID -> score
	lastActivity time.Time
}

// MemoryStore keeps votes in process memory. Registration and lookup go
// through an RWMutex on the post table; each record carries its own mutex so
// votes on different posts never contend.
type MemoryStore struct {
	clock clockwork.Clock
	mu    sync.RWMutex
	posts map[PostID]*postRecord
}

func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		clock: clock,
		posts: make(map[PostID]*postRecord),
	}
}

func (s *MemoryStore) Register(_ context.Context, post PostID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.posts[post]; exists {
		return ErrDuplicatePost
	}
	s.posts[post] = &postRecord{
		votes:        make(map[string]int),
		lastActivity: s.clock.Now(),
	}
	return nil
}

func (s *MemoryStore) CastVote(_ context.Context, post PostID, userID string, score int) (Aggregate, error) {
	if !ValidScore(score) {
		return Aggregate{}, ErrInvalidScore
	}

	s.mu.RLock()
	record, exists := s.posts[post]
	s.mu.RUnlock()
	if !exists {
		return Aggregate{}, ErrUnknownPost
	}

	record.mu.Lock()
	defer record.mu.Unlock()
	record.votes[userID] = score
	record.lastActivity = s.clock.Now()
	return aggregateVotes(record.votes), nil
}

func (s *MemoryStore) Aggregate(_ context.Context, post PostID) (Aggregate, error) {
	s.mu.RLock()
	record, exists := s.posts[post]
	s.mu.RUnlock()
	if !exists {
		return Aggregate{}, ErrUnknownPost
	}

	record.mu.Lock()
	defer record.mu.Unlock()
	return aggregateVotes(record.votes), nil
}

func (s *MemoryStore) PruneStale(_ context.Context, maxAge time.Duration) ([]PostID, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []PostID
	for id, record := range s.posts {
		record.mu.Lock()
		old := now.Sub(record.lastActivity) > maxAge
		record.mu.Unlock()
		if old {
			stale = append(stale, id)
			delete(s.posts, id)
		}
	}
	return stale, nil
}

// aggregateVotes recomputes the aggregate from the full vote set. Callers
// hold the record lock.
func aggregateVotes(votes map[string]int) Aggregate {
	if len(votes) == 0 {
		return Aggregate{}
	}
	sum := 0
	for _, score := range votes {
		sum += score
	}
	return Aggregate{
		Count:   len(votes),
		Average: float64(sum) / float64(len(votes)),
	}
}
