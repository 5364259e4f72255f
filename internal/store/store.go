// Package store is the GORM-backed persistence layer: rooms, message
// history, and push subscriptions.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/domain"
)

// Room lifecycle states.
const (
	RoomActive   = "active"
	RoomFinished = "finished"
)

// ErrNotFound is returned when a room or message does not exist.
var ErrNotFound = errors.New("record not found")

// Store wraps the database handle with domain-aware accessors.
type Store struct {
	db *gorm.DB
}

// New migrates the schema and returns the store.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Room{}, &Message{}, &PushSubscription{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// GetOrCreateRoom fetches a room, creating an active one on first join.
func (s *Store) GetOrCreateRoom(roomID string) (*Room, error) {
	var room Room
	err := s.db.Where("room_id = ?", roomID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		room = Room{RoomID: roomID, Topic: roomID, Status: RoomActive}
		if err := s.db.Create(&room).Error; err != nil {
			return nil, err
		}
		return &room, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// CreateRoom registers a room with an explicit topic. An existing room is
// returned unchanged.
func (s *Store) CreateRoom(roomID, topic string) (*Room, error) {
	var room Room
	err := s.db.Where("room_id = ?", roomID).First(&room).Error
	if err == nil {
		return &room, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	room = Room{RoomID: roomID, Topic: topic, Status: RoomActive}
	if err := s.db.Create(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// ListRooms returns every room, newest first.
func (s *Store) ListRooms() ([]Room, error) {
	var rooms []Room
	if err := s.db.Order("created_at desc").Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

// SaveNote stores the latest shared-note snapshot.
func (s *Store) SaveNote(roomID, content string) error {
	return s.db.Model(&Room{}).Where("room_id = ?", roomID).
		Update("shared_note", content).Error
}

// SaveProposals stores the latest proposal-form snapshot.
func (s *Store) SaveProposals(roomID string, proposals []domain.ProposalRecord) error {
	data, err := json.Marshal(proposals)
	if err != nil {
		return err
	}
	return s.db.Model(&Room{}).Where("room_id = ?", roomID).
		Update("proposals_json", string(data)).Error
}

// LoadProposals decodes the stored proposal-form snapshot. A room that
// never had a form update yields an empty list.
func (s *Store) LoadProposals(roomID string) ([]domain.ProposalRecord, error) {
	room, err := s.GetOrCreateRoom(roomID)
	if err != nil {
		return nil, err
	}
	if room.ProposalsJSON == "" {
		return nil, nil
	}
	var proposals []domain.ProposalRecord
	if err := json.Unmarshal([]byte(room.ProposalsJSON), &proposals); err != nil {
		return nil, fmt.Errorf("decode proposals for room %s: %w", roomID, err)
	}
	return proposals, nil
}

// SaveSummary marks the room finished and stores the terminal summary.
func (s *Store) SaveSummary(roomID, summary, summaryURL string) error {
	return s.db.Model(&Room{}).Where("room_id = ?", roomID).
		Updates(map[string]interface{}{
			"status":      RoomFinished,
			"summary":     summary,
			"summary_url": summaryURL,
		}).Error
}

// AppendMessage persists a new chat message.
func (s *Store) AppendMessage(roomID string, env *domain.MessageEnvelope) error {
	reactions, err := json.Marshal(env.Reactions)
	if err != nil {
		return err
	}
	msg := Message{
		MessageID:        env.MessageID,
		RoomID:           roomID,
		Username:         env.Username,
		Content:          env.Content,
		Stance:           env.Stance,
		FileURL:          env.FileURL,
		OriginalFilename: env.OriginalFilename,
		GeminiFileRef:    env.GeminiFileRef,
		ReactionsJSON:    string(reactions),
		IsResolved:       env.IsResolved,
	}
	if env.ReplyTo != nil {
		msg.ReplyToID = env.ReplyTo.MessageID
	}
	return s.db.Create(&msg).Error
}

// History returns the room's surviving messages in insertion order, as
// wire envelopes ready for replay.
func (s *Store) History(roomID string) ([]*domain.MessageEnvelope, error) {
	var rows []Message
	err := s.db.Where("room_id = ? AND deleted = ?", roomID, false).
		Order("created_at asc, id asc").Find(&rows).Error
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Message, len(rows))
	for i := range rows {
		byID[rows[i].MessageID] = &rows[i]
	}

	out := make([]*domain.MessageEnvelope, 0, len(rows))
	for i := range rows {
		env, err := rowToEnvelope(&rows[i], byID)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

func rowToEnvelope(row *Message, byID map[string]*Message) (*domain.MessageEnvelope, error) {
	var reactions map[string][]string
	if row.ReactionsJSON != "" {
		if err := json.Unmarshal([]byte(row.ReactionsJSON), &reactions); err != nil {
			return nil, fmt.Errorf("decode reactions for message %s: %w", row.MessageID, err)
		}
	}

	env := &domain.MessageEnvelope{
		Type:             domain.EnvHistory,
		MessageID:        row.MessageID,
		Username:         row.Username,
		Content:          row.Content,
		Stance:           row.Stance,
		FileURL:          row.FileURL,
		OriginalFilename: row.OriginalFilename,
		GeminiFileRef:    row.GeminiFileRef,
		Reactions:        reactions,
		IsResolved:       row.IsResolved,
	}
	if row.ReplyToID != "" {
		if parent, ok := byID[row.ReplyToID]; ok && !parent.Deleted {
			env.ReplyTo = &domain.ReplyRef{
				MessageID: parent.MessageID,
				Username:  parent.Username,
				Content:   parent.Content,
			}
		}
	}
	return env, nil
}

// GetMessage fetches a single surviving message.
func (s *Store) GetMessage(messageID string) (*Message, error) {
	var row Message
	err := s.db.Where("message_id = ? AND deleted = ?", messageID, false).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Reactions decodes a message's reactor sets.
func (m *Message) Reactions() (map[string][]string, error) {
	reactions := make(map[string][]string)
	if m.ReactionsJSON == "" {
		return reactions, nil
	}
	if err := json.Unmarshal([]byte(m.ReactionsJSON), &reactions); err != nil {
		return nil, err
	}
	return reactions, nil
}

// UpdateReactions stores the recomputed reactor sets.
func (s *Store) UpdateReactions(messageID string, reactions map[string][]string) error {
	data, err := json.Marshal(reactions)
	if err != nil {
		return err
	}
	return s.db.Model(&Message{}).Where("message_id = ?", messageID).
		Update("reactions_json", string(data)).Error
}

// DeleteMessage soft-deletes a message so history replay skips it.
func (s *Store) DeleteMessage(messageID string) error {
	return s.db.Model(&Message{}).Where("message_id = ?", messageID).
		Update("deleted", true).Error
}

// ResolveMessage marks a proposal message settled.
func (s *Store) ResolveMessage(messageID string) error {
	return s.db.Model(&Message{}).Where("message_id = ?", messageID).
		Update("is_resolved", true).Error
}

// LastMessageAt returns the latest message time for stall detection.
func (s *Store) LastMessageAt(roomID string) (time.Time, error) {
	var row Message
	err := s.db.Where("room_id = ? AND deleted = ?", roomID, false).
		Order("created_at desc").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return row.CreatedAt, nil
}

// SaveSubscription upserts a push subscription by endpoint.
func (s *Store) SaveSubscription(sub domain.PushSubscription) error {
	row := PushSubscription{
		Endpoint: sub.Endpoint,
		P256dh:   sub.P256dh,
		Auth:     sub.Auth,
		Username: sub.Username,
		RoomID:   sub.RoomID,
	}
	var existing PushSubscription
	err := s.db.Where("endpoint = ?", sub.Endpoint).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&row).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&existing).Updates(map[string]interface{}{
		"p256dh":   sub.P256dh,
		"auth":     sub.Auth,
		"username": sub.Username,
		"room_id":  sub.RoomID,
	}).Error
}

// SubscriptionsForRoom lists the push registrations for one room.
func (s *Store) SubscriptionsForRoom(roomID string) ([]domain.PushSubscription, error) {
	var rows []PushSubscription
	if err := s.db.Where("room_id = ?", roomID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.PushSubscription, len(rows))
	for i, r := range rows {
		out[i] = domain.PushSubscription{
			Endpoint: r.Endpoint,
			P256dh:   r.P256dh,
			Auth:     r.Auth,
			Username: r.Username,
			RoomID:   r.RoomID,
		}
	}
	return out, nil
}
