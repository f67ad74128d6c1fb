// Package graph holds the directed "who follows whom" relation.
package graph

import (
	"sync"

	"example.com/timelinefeed/internal/models"
)

// edgeSet is one follower's followees, guarded by its own lock so that
// different followers never contend.
type edgeSet struct {
	mu        sync.Mutex
	followees map[models.UserID]struct{}
}

// FollowGraph stores follow edges with set semantics. Every operation is a
// no-op rather than an error when the edge or follower is unknown.
type FollowGraph struct {
	mu    sync.RWMutex
	edges map[models.UserID]*edgeSet
}

func New() *FollowGraph {
	return &FollowGraph{edges: make(map[models.UserID]*edgeSet)}
}

// Follow adds followeeID to followerID's set. Repeating it changes nothing.
func (g *FollowGraph) Follow(followerID, followeeID models.UserID) {
	set := g.setFor(followerID)
	set.mu.Lock()
	set.followees[followeeID] = struct{}{}
	set.mu.Unlock()
}

// Unfollow removes the edge if present.
func (g *FollowGraph) Unfollow(followerID, followeeID models.UserID) {
	g.mu.RLock()
	set, ok := g.edges[followerID]
	g.mu.RUnlock()
	if !ok {
		return
	}
	set.mu.Lock()
	delete(set.followees, followeeID)
	set.mu.Unlock()
}

// FolloweesOf returns a copy of the follower's current followees in no
// particular order. A follower with no edges gets an empty slice.
func (g *FollowGraph) FolloweesOf(followerID models.UserID) []models.UserID {
	g.mu.RLock()
	set, ok := g.edges[followerID]
	g.mu.RUnlock()
	if !ok {
		return []models.UserID{}
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	res := make([]models.UserID, 0, len(set.followees))
	for id := range set.followees {
		res = append(res, id)
	}
	return res
}

// IsFollowing reports whether the edge exists.
func (g *FollowGraph) IsFollowing(followerID, followeeID models.UserID) bool {
	g.mu.RLock()
	set, ok := g.edges[followerID]
	g.mu.RUnlock()
	if !ok {
		return false
	}
	set.mu.Lock()
	_, found := set.followees[followeeID]
	set.mu.Unlock()
	return found
}

// setFor returns the follower's edge set, creating it on first use.
func (g *FollowGraph) setFor(followerID models.UserID) *edgeSet {
	g.mu.RLock()
	set, ok := g.edges[followerID]
	g.mu.RUnlock()
	if ok {
		return set
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if set, ok = g.edges[followerID]; !ok {
		set = &edgeSet{followees: make(map[models.UserID]struct{})}
		g.edges[followerID] = set
	}
	return set
}
