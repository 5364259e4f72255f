package store

import (
	"time"
)

// Room is the persistent record of one deliberation room. The shared
// note and the proposal list are stored whole, as their latest snapshot.
type Room struct {
	ID            uint   `gorm:"primaryKey"`
	RoomID        string `gorm:"uniqueIndex;size:128"`
	Topic         string
	Status        string `gorm:"size:32;default:active"`
	SharedNote    string
	ProposalsJSON string
	Summary       string
	SummaryURL    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Message is one persisted chat message. ReactionsJSON holds the
// authoritative reactor sets per reaction kind.
type Message struct {
	ID               uint   `gorm:"primaryKey"`
	MessageID        string `gorm:"uniqueIndex;size:64"`
	RoomID           string `gorm:"index;size:128"`
	Username         string `gorm:"size:128"`
	Content          string
	Stance           string `gorm:"size:64"`
	FileURL          string
	OriginalFilename string
	GeminiFileRef    string
	ReactionsJSON    string
	ReplyToID        string `gorm:"size:64"`
	IsResolved       bool
	Deleted          bool `gorm:"index"`
	CreatedAt        time.Time
}

// PushSubscription is a Web Push registration for offline notification.
type PushSubscription struct {
	ID        uint   `gorm:"primaryKey"`
	Endpoint  string `gorm:"uniqueIndex;size:512"`
	P256dh    string
	Auth      string
	Username  string `gorm:"size:128"`
	RoomID    string `gorm:"index;size:128"`
	CreatedAt time.Time
}
