package models

import "time"

// Session statuses. A session only moves forward: waiting → live → ended,
// or waiting → error. Ended and error are terminal.
const (
	StatusWaiting = "waiting"
	StatusLive    = "live"
	StatusEnded   = "ended"
	StatusError   = "error"
)

// ValidTransitions maps each status to its valid next statuses. Terminal
// statuses have no entries; nothing leaves them.
var ValidTransitions = map[string][]string{
	StatusWaiting: {StatusLive, StatusError},
	StatusLive:    {StatusEnded},
}

// CanTransition reports whether a session may move from one status to
// another. Same-status writes are always allowed.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range ValidTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status permits no further polling.
func Terminal(status string) bool {
	return status == StatusEnded || status == StatusError
}

// Session is one end-to-end tracking run for a single broadcast URL.
type Session struct {
	ID           string `gorm:"primaryKey;size:16"`
	URL          string `gorm:"not null"`
	NotifyTarget string `gorm:"size:255"`
	Title        string
	Channel      string
	Thumbnail    string
	Status       string `gorm:"size:16;default:waiting;index"`
	Message      string

	CurrentViewers int
	MaxViewers     int
	MaxViewersTime *time.Time
	StartTime      *time.Time

	NotificationSent bool
	PollInterval     int `gorm:"default:30"` // seconds, clamped at creation

	CreatedAt time.Time
	UpdatedAt time.Time

	Samples []ViewerSample `gorm:"foreignKey:SessionID"`
}

// ViewerSample is one recorded viewer-count observation while a session is
// live. Append-only; insertion order is temporal order.
type ViewerSample struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"size:16;not null;index"`
	Time      time.Time `gorm:"not null"`
	Viewers   int       `gorm:"not null"`
}
