// Package feed merges the recent posts of a user's followees into a bounded,
// newest-first news feed.
package feed

import (
	"example.com/timelinefeed/internal/models"
	"example.com/timelinefeed/internal/topk"
)

// FolloweeSource resolves whom a user follows.
type FolloweeSource interface {
	FolloweesOf(followerID models.UserID) []models.UserID
}

// TimelineSource returns an author's latest posts, newest first.
type TimelineSource interface {
	RecentTail(authorID models.UserID, limit int) []models.Post
}

// Aggregator only reads from its sources.
type Aggregator struct {
	follows   FolloweeSource
	timelines TimelineSource
}

func New(follows FolloweeSource, timelines TimelineSource) *Aggregator {
	return &Aggregator{follows: follows, timelines: timelines}
}

// NewsFeed returns at most k post ids, most recent first.
//
// Each followee contributes at most its own k latest posts as candidates,
// so the cost is bounded by followees*k regardless of history length.
// Timelines are never scanned past their k-th post.
func (a *Aggregator) NewsFeed(userID models.UserID, k int) []models.PostID {
	if k <= 0 {
		return []models.PostID{}
	}

	h := topk.New(k, func(x, y models.Post) bool { return x.Sequence < y.Sequence })
	for _, followee := range a.follows.FolloweesOf(userID) {
		for _, p := range a.timelines.RecentTail(followee, k) {
			if !h.Offer(p) {
				// The tail is newest first; older posts cannot rank either.
				break
			}
		}
	}

	posts := h.DrainDescending()
	res := make([]models.PostID, len(posts))
	for i, p := range posts {
		res[i] = p.ID
	}
	return res
}
