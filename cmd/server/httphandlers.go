package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	appkafka "example.com/timelinefeed/internal/broker"
	"example.com/timelinefeed/internal/middleware"
	"example.com/timelinefeed/internal/models"
	"github.com/google/uuid"
)

// --- Response types ---

type userResponse struct {
	UserID models.UserID `json:"user_id"`
	Token  string        `json:"token"`
}

type postResponse struct {
	PostID   models.PostID `json:"post_id"`
	Sequence uint64        `json:"sequence"`
}

type feedResponse struct {
	UserID  models.UserID   `json:"user_id"`
	PostIDs []models.PostID `json:"post_ids"`
}

// --- HTTP Handlers ---

// createUserHandler issues a token for a user id. Ids are opaque, so there is
// nothing to create beyond the token itself.
// Expects JSON body: {"user_id": 1}
// Returns JSON response: {"user_id": 1, "token": "..."}
func (s *Server) createUserHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var body struct {
		UserID *models.UserID `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/users", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if body.UserID == nil {
		logg.Info("http/users", "Missing user_id")
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	token, err := middleware.IssueToken(s.jwtSecret, *body.UserID)
	if err != nil {
		logg.Error("http/users", "Failed to sign token", err)
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}

	logg.Info("http/users", "Token issued for "+userField(*body.UserID))
	writeJSON(w, userResponse{UserID: *body.UserID, Token: token})
}

// createPostHandler appends a post to the caller's timeline.
// Expects JSON body: {"post_id": 5}
// Returns JSON response: {"post_id": 5, "sequence": 1}
func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var body struct {
		PostID *models.PostID `json:"post_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/posts", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		logg.Info("http/posts", "Unauthorized post creation attempt")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if body.PostID == nil {
		logg.Info("http/posts", "Missing post_id for "+userField(userID))
		http.Error(w, "post_id is required", http.StatusBadRequest)
		return
	}

	ev := models.Event{Kind: models.PostCreated, UserID: userID, PostID: *body.PostID}

	var seq uint64
	err := s.publishThen(ev, func() { seq = s.engine.Post(userID, *body.PostID) })
	if err != nil {
		logg.Error("http/posts", "Failed to publish post event", err)
		http.Error(w, "failed to publish post: "+err.Error(), http.StatusInternalServerError)
		return
	}

	logg.Info("http/posts", "Post accepted for "+userField(userID))
	writeJSON(w, postResponse{PostID: *body.PostID, Sequence: seq})
}

// followHandler creates a follow edge from the caller.
// Expects JSON body: {"followee_id": 2}
func (s *Server) followHandler(w http.ResponseWriter, r *http.Request) {
	s.edgeHandler(w, r, "http/follow", models.FollowCreated)
}

// unfollowHandler removes a follow edge from the caller.
// Expects JSON body: {"followee_id": 2}
func (s *Server) unfollowHandler(w http.ResponseWriter, r *http.Request) {
	s.edgeHandler(w, r, "http/unfollow", models.FollowRemoved)
}

func (s *Server) edgeHandler(w http.ResponseWriter, r *http.Request, module string, kind models.EventKind) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var body struct {
		FolloweeID *models.UserID `json:"followee_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error(module, "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		logg.Info(module, "Unauthorized attempt")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if body.FolloweeID == nil {
		http.Error(w, "followee_id is required", http.StatusBadRequest)
		return
	}
	followeeID := *body.FolloweeID

	ev := models.Event{Kind: kind, UserID: userID, TargetID: followeeID}

	err := s.publishThen(ev, func() {
		if kind == models.FollowCreated {
			s.engine.Follow(userID, followeeID)
		} else {
			s.engine.Unfollow(userID, followeeID)
		}
	})
	if err != nil {
		logg.Error(module, "Failed to publish follow event", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	logg.Info(module, userField(userID)+" "+string(kind)+" followee_id="+strconv.FormatInt(int64(followeeID), 10))
	w.WriteHeader(http.StatusOK)
}

// getFeedHandler returns the caller's news feed, at most ten post ids,
// most recent first.
func (s *Server) getFeedHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		logg.Info("http/feed", "Unauthorized feed access attempt")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ids := s.engine.Feed(userID)
	logg.Debug("http/feed", fmt.Sprintf("Feed of %d posts for %s", len(ids), userField(userID)))
	writeJSON(w, feedResponse{UserID: userID, PostIDs: ids})
}

// publishThen stamps ev, writes it to the activity topic and runs apply only
// once the write succeeded. Stamping happens under writeMu so event ids sort
// in the order the engine applies them.
func (s *Server) publishThen(ev models.Event, apply func()) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := stampEvent(&ev); err != nil {
		return err
	}
	if err := appkafka.Publish(s.kafkaWriter, ev); err != nil {
		return err
	}
	apply()
	return nil
}

// stampEvent sets a UUIDv7 id, which sorts by creation time, and the
// creation timestamp.
func stampEvent(ev *models.Event) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate event id: %w", err)
	}
	ev.ID = id.String()
	ev.At = time.Now().UTC()
	return nil
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logg.Error("http", "Failed to encode response", err)
	}
}

func userField(id models.UserID) string {
	return "user_id=" + strconv.FormatInt(int64(id), 10)
}
