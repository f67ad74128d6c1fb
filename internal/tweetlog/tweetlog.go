// Package tweetlog keeps each author's append-only timeline and owns the
// process-wide sequence counter that totally orders posts.
package tweetlog

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"example.com/timelinefeed/internal/models"
)

// ErrSequenceExhausted is the panic value raised when the counter cannot be
// advanced without breaking the strict total order.
var ErrSequenceExhausted = errors.New("tweetlog: sequence counter exhausted")

type timeline struct {
	mu    sync.RWMutex
	posts []models.Post
}

// TweetLog maps authors to their timelines. The zero value is not usable,
// call New.
type TweetLog struct {
	seq atomic.Uint64

	mu        sync.RWMutex
	timelines map[models.UserID]*timeline
}

func New() *TweetLog {
	return &TweetLog{timelines: make(map[models.UserID]*timeline)}
}

// Append stores postID at the end of the author's timeline and returns the
// sequence number it was given. The number is allocated while the author's
// timeline is locked, so one author's posts stay in sequence order.
func (l *TweetLog) Append(authorID models.UserID, postID models.PostID) uint64 {
	tl := l.timelineFor(authorID)

	tl.mu.Lock()
	defer tl.mu.Unlock()
	seq := l.next()
	tl.posts = append(tl.posts, models.Post{ID: postID, Sequence: seq})
	return seq
}

// RecentTail returns up to limit of the author's latest posts, newest first.
// Unknown authors and non-positive limits yield an empty slice.
func (l *TweetLog) RecentTail(authorID models.UserID, limit int) []models.Post {
	if limit <= 0 {
		return []models.Post{}
	}

	l.mu.RLock()
	tl, ok := l.timelines[authorID]
	l.mu.RUnlock()
	if !ok {
		return []models.Post{}
	}

	tl.mu.RLock()
	defer tl.mu.RUnlock()
	n := len(tl.posts)
	if limit > n {
		limit = n
	}
	res := make([]models.Post, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		res = append(res, tl.posts[i])
	}
	return res
}

// Len returns how many posts the author has appended.
func (l *TweetLog) Len(authorID models.UserID) int {
	l.mu.RLock()
	tl, ok := l.timelines[authorID]
	l.mu.RUnlock()
	if !ok {
		return 0
	}
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	return len(tl.posts)
}

// LastSequence returns the most recently assigned sequence number, or zero
// if nothing has been appended yet.
func (l *TweetLog) LastSequence() uint64 {
	return l.seq.Load()
}

// next atomically increments the counter and returns the new value.
func (l *TweetLog) next() uint64 {
	for {
		cur := l.seq.Load()
		if cur == math.MaxUint64 {
			panic(ErrSequenceExhausted)
		}
		if l.seq.CompareAndSwap(cur, cur+1) {
			return cur + 1
		}
	}
}

func (l *TweetLog) timelineFor(authorID models.UserID) *timeline {
	l.mu.RLock()
	tl, ok := l.timelines[authorID]
	l.mu.RUnlock()
	if ok {
		return tl
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if tl, ok = l.timelines[authorID]; !ok {
		tl = &timeline{}
		l.timelines[authorID] = tl
	}
	return tl
}
