package models

import "time"

// UserID is an opaque user identifier. No user entity exists beyond it.
type UserID int64

// PostID is an opaque, caller supplied post identifier.
type PostID int64

// Post is one entry of an author's timeline. The author is implied by the
// timeline that holds it.
type Post struct {
	ID       PostID `json:"post_id"`
	Sequence uint64 `json:"sequence"`
}

type FollowEdge struct {
	FollowerID UserID `json:"follower_id"`
	FolloweeID UserID `json:"followee_id"`
}

// EventKind names an activity recorded on the event stream.
type EventKind string

const (
	PostCreated   EventKind = "post_created"
	FollowCreated EventKind = "follow_created"
	FollowRemoved EventKind = "follow_removed"
)

// Event is one activity record published to Kafka and kept in the journal.
// TargetID is set for follow events, PostID for posts. Sequence numbers are
// not carried: they are assigned again when the event is applied.
type Event struct {
	ID       string    `json:"id"`
	Kind     EventKind `json:"kind"`
	UserID   UserID    `json:"user_id"`
	TargetID UserID    `json:"target_id,omitempty"`
	PostID   PostID    `json:"post_id,omitempty"`
	At       time.Time `json:"at"`
}

// Edge returns the follow edge a follow event refers to.
func (ev Event) Edge() FollowEdge {
	return FollowEdge{FollowerID: ev.UserID, FolloweeID: ev.TargetID}
}
