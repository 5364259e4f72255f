package service

import (
	"context"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/domain"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/hub"
)

// RoomService implements the server side of one deliberation room: it
// persists everything, stamps identities, and broadcasts authoritative
// state through the registry.
type RoomService interface {
	HandleConnect(ctx context.Context, c *hub.Client) error
	HandleDisconnect(ctx context.Context, c *hub.Client) error

	HandleMessage(ctx context.Context, c *hub.Client, msg *domain.OutboundMessage) error
	HandleReaction(ctx context.Context, c *hub.Client, env *domain.ReactionEnvelope) error
	HandleDelete(ctx context.Context, c *hub.Client, messageID string) error
	HandleResolve(ctx context.Context, c *hub.Client, messageID string) error
	HandleNoteUpdate(ctx context.Context, c *hub.Client, content string) error
	HandleFormUpdate(ctx context.Context, c *hub.Client, proposals []domain.ProposalRecord) error
	HandleFinish(ctx context.Context, c *hub.Client) error

	// CheckProgress reports whether a room has stalled, with a nudge when
	// it has.
	CheckProgress(ctx context.Context, roomID string) (stagnant bool, suggestion string, err error)

	// Facilitate posts an immediate facilitation prompt into the room.
	Facilitate(ctx context.Context, roomID string) (string, error)

	Stop() error
}
