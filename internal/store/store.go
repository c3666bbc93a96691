// Package store implements the durable session store: session records plus
// their append-only viewer-sample history. It is the single source of truth
// across restarts. Each session has a single writer (its own tracker);
// readers may be concurrent.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/peakwatch/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("store: session not found")

// Store wraps a GORM connection with the session store contract.
type Store struct {
	db *gorm.DB
}

// New creates a Store over an open GORM connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// sessionUpdateColumns are the mutable Session columns replaced on upsert.
// ID, URL, notify target, poll interval and created_at are immutable after
// creation and deliberately excluded.
var sessionUpdateColumns = []string{
	"title", "channel", "thumbnail", "status", "message",
	"current_viewers", "max_viewers", "max_viewers_time", "start_time",
	"notification_sent", "updated_at",
}

// UpsertSession inserts or replaces a session record keyed by id. The
// sample history lives in its own table and is never touched by this call.
func (s *Store) UpsertSession(sess *models.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("store: upsert: session id is required")
	}
	sess.UpdatedAt = time.Now()
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(sessionUpdateColumns),
	}).Omit("Samples").Create(sess)
	if result.Error != nil {
		return fmt.Errorf("store: upsert session %s: %w", sess.ID, result.Error)
	}
	return nil
}

// AppendSample appends one viewer observation to a session's history.
// This write is the durability guarantee for resumption; callers must not
// swallow a returned error silently.
func (s *Store) AppendSample(sessionID string, t time.Time, viewers int) error {
	sample := models.ViewerSample{
		SessionID: sessionID,
		Time:      t,
		Viewers:   viewers,
	}
	if err := s.db.Create(&sample).Error; err != nil {
		return fmt.Errorf("store: append sample for %s: %w", sessionID, err)
	}
	return nil
}

// GetSession returns a session record plus its full ordered sample history.
func (s *Store) GetSession(id string) (*models.Session, []models.ViewerSample, error) {
	var sess models.Session
	if err := s.db.Where("id = ?", id).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("store: get session %s: %w", id, err)
	}

	var samples []models.ViewerSample
	if err := s.db.Where("session_id = ?", id).Order("id ASC").Find(&samples).Error; err != nil {
		return nil, nil, fmt.Errorf("store: get history for %s: %w", id, err)
	}
	return &sess, samples, nil
}

// CountSamples returns the number of samples recorded for a session.
func (s *Store) CountSamples(id string) (int, error) {
	var count int64
	if err := s.db.Model(&models.ViewerSample{}).Where("session_id = ?", id).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("store: count samples for %s: %w", id, err)
	}
	return int(count), nil
}

// SessionSummary is a compact listing row for recent sessions.
type SessionSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Channel    string    `json:"channel"`
	URL        string    `json:"url"`
	MaxViewers int       `json:"max_viewers"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListRecent returns session summaries ordered by creation time, newest
// first. A non-positive limit defaults to 20.
func (s *Store) ListRecent(limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []SessionSummary
	err := s.db.Model(&models.Session{}).
		Select("id", "title", "channel", "url", "max_viewers", "status", "created_at").
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: list recent: %w", err)
	}
	return rows, nil
}

// ListResumable returns all sessions left in a non-terminal state, used at
// startup to re-attach polling loops.
func (s *Store) ListResumable() ([]models.Session, error) {
	var rows []models.Session
	err := s.db.
		Where("status IN ?", []string{models.StatusWaiting, models.StatusLive}).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: list resumable: %w", err)
	}
	return rows, nil
}

// MarkNotified records that the completion report for a session was
// delivered successfully.
func (s *Store) MarkNotified(id string) error {
	result := s.db.Model(&models.Session{}).Where("id = ?", id).Updates(map[string]interface{}{
		"notification_sent": true,
		"updated_at":        time.Now(),
	})
	if result.Error != nil {
		return fmt.Errorf("store: mark notified %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompletedSince returns sessions that reached the ended status on or after
// the given time, used by the digest.
func (s *Store) CompletedSince(since time.Time) ([]models.Session, error) {
	var rows []models.Session
	err := s.db.
		Where("status = ? AND updated_at >= ?", models.StatusEnded, since).
		Order("updated_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: completed since %s: %w", since.Format(time.RFC3339), err)
	}
	return rows, nil
}
