// Package rating implements the vote tracking and display core: a store of
// per-post, per-user scores, a pure renderer for the aggregate display, and
// an engine actor that glues both to an outbound messenger.
package rating

import "fmt"

// Score bounds for a single vote.
const (
	MinScore = 1
	MaxScore = 10
)

// PostID identifies a rated channel post by its channel and message IDs.
type PostID struct {
	ChannelID int64
	MessageID int64
}

func (p PostID) String() string {
	return fmt.Sprintf("%d:%d", p.ChannelID, p.MessageID)
}

// Aggregate is the summary derived from all current votes on a post.
// Average is meaningful only when Count > 0.
type Aggregate struct {
	Count   int
	Average float64
}

// ValidScore reports whether score is inside the allowed 1-10 range.
func ValidScore(score int) bool {
	return score >= MinScore && score <= MaxScore
}

// MessageRef points at the rating message the bot posted under a channel
// post. It is what the messenger needs to edit the display in place.
type MessageRef struct {
	ChatID    int64
	MessageID int64
}
