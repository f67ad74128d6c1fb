package store

import (
	"fmt"
	"time"

	"example.com/timelinefeed/internal/models"
)

// journalPartition is the single partition all activity lives in, so a
// plain scan returns events in event id order.
const journalPartition = "activity"

const loadPageSize = 1000

// --- Journal operations ---

// AppendEvent records an event. Writing the same event id twice overwrites
// the row with identical values, so redelivered messages are harmless.
func (s *Store) AppendEvent(ev models.Event) error {
	if err := s.Session.Query(`
		INSERT INTO activity_log (journal, event_id, kind, user_id, target_id, post_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		journalPartition, ev.ID, string(ev.Kind),
		int64(ev.UserID), int64(ev.TargetID), int64(ev.PostID), ev.At,
	).Exec(); err != nil {
		logg.Error("store", "Failed to append event to journal", err)
		return fmt.Errorf("append event %s: %w", ev.ID, err)
	}

	logg.Debug("store", "Event appended to journal (IDs anonymized)")
	return nil
}

// LoadEvents returns the whole journal in event id order.
func (s *Store) LoadEvents() ([]models.Event, error) {
	iter := s.Session.Query(`
		SELECT event_id, kind, user_id, target_id, post_id, created_at
		FROM activity_log WHERE journal = ?`,
		journalPartition,
	).PageSize(loadPageSize).Iter()

	var res []models.Event
	var id, kind string
	var userID, targetID, postID int64
	var at time.Time

	for iter.Scan(&id, &kind, &userID, &targetID, &postID, &at) {
		res = append(res, models.Event{
			ID:       id,
			Kind:     models.EventKind(kind),
			UserID:   models.UserID(userID),
			TargetID: models.UserID(targetID),
			PostID:   models.PostID(postID),
			At:       at,
		})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to load journal", err)
		return nil, fmt.Errorf("load events: %w", err)
	}

	logg.Info("store", fmt.Sprintf("Loaded %d journal events", len(res)))
	return res, nil
}
