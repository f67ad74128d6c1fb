// Package engine composes the follow graph, the tweet log and the feed
// aggregator into the four timeline operations.
package engine

import (
	"errors"
	"fmt"

	"example.com/timelinefeed/internal/feed"
	"example.com/timelinefeed/internal/graph"
	"example.com/timelinefeed/internal/models"
	"example.com/timelinefeed/internal/tweetlog"
)

// FeedSize is the number of posts Feed returns at most.
const FeedSize = 10

var ErrUnknownEvent = errors.New("engine: unknown event kind")

// Engine is safe for concurrent use.
type Engine struct {
	graph *graph.FollowGraph
	log   *tweetlog.TweetLog
	feed  *feed.Aggregator
}

func New() *Engine {
	g := graph.New()
	l := tweetlog.New()
	return &Engine{
		graph: g,
		log:   l,
		feed:  feed.New(g, l),
	}
}

// Post appends postID to the user's timeline and makes sure the user follows
// themselves. It returns the sequence number assigned to the post.
func (e *Engine) Post(userID models.UserID, postID models.PostID) uint64 {
	seq := e.log.Append(userID, postID)
	e.graph.Follow(userID, userID)
	return seq
}

func (e *Engine) Follow(followerID, followeeID models.UserID) {
	e.graph.Follow(followerID, followeeID)
}

func (e *Engine) Unfollow(followerID, followeeID models.UserID) {
	e.graph.Unfollow(followerID, followeeID)
}

// Feed returns up to FeedSize post ids, most recent first.
func (e *Engine) Feed(userID models.UserID) []models.PostID {
	return e.feed.NewsFeed(userID, FeedSize)
}

// FeedN is Feed with a caller chosen bound.
func (e *Engine) FeedN(userID models.UserID, k int) []models.PostID {
	return e.feed.NewsFeed(userID, k)
}

// Followees exposes the user's current follow set.
func (e *Engine) Followees(userID models.UserID) []models.UserID {
	return e.graph.FolloweesOf(userID)
}

// LastSequence returns the highest sequence number assigned so far.
func (e *Engine) LastSequence() uint64 {
	return e.log.LastSequence()
}

// Apply performs the operation an activity event describes.
func (e *Engine) Apply(ev models.Event) error {
	switch ev.Kind {
	case models.PostCreated:
		e.Post(ev.UserID, ev.PostID)
	case models.FollowCreated:
		edge := ev.Edge()
		e.Follow(edge.FollowerID, edge.FolloweeID)
	case models.FollowRemoved:
		edge := ev.Edge()
		e.Unfollow(edge.FollowerID, edge.FolloweeID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
	}
	return nil
}

// Replay applies events in order and returns how many were applied. It stops
// at the first event it cannot apply.
func (e *Engine) Replay(events []models.Event) (int, error) {
	for i, ev := range events {
		if err := e.Apply(ev); err != nil {
			return i, fmt.Errorf("replay event %s: %w", ev.ID, err)
		}
	}
	return len(events), nil
}
