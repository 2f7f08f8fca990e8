package rating

import "errors"

var (
	// ErrInvalidScore rejects votes outside the 1-10 range. State is untouched.
	ErrInvalidScore = errors.New("score must be between 1 and 10")
	// ErrUnknownPost signals a vote or lookup against an untracked post.
	ErrUnknownPost = errors.New("post is not tracked")
	// ErrDuplicatePost signals registration of an already-tracked post.
	// Callers treat it as non-fatal: log and ignore.
	ErrDuplicatePost = errors.New("post is already tracked")
)
