// Package collab defines the pluggable collaborators the room service
// calls out to: AI facilitation, terminal summarization, document export
// and push notification. Static implementations keep the server fully
// functional when no external provider is configured.
package collab

import (
	"context"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/domain"
)

// Facilitator answers participant questions and nudges stalled rooms.
type Facilitator interface {
	// Answer responds to a direct question, given the recent feed for
	// context and an optional attached file reference.
	Answer(ctx context.Context, topic, question string, history []domain.ChatMessage, fileRef string) (string, error)

	// Nudge produces a facilitation prompt for a stalled discussion.
	Nudge(ctx context.Context, topic string, history []domain.ChatMessage) (string, error)
}

// Summarizer produces the terminal deliberation summary.
type Summarizer interface {
	Summarize(ctx context.Context, topic string, history []domain.ChatMessage, proposals []domain.ProposalRecord) (string, error)
}

// Exporter renders the proposal list as a downloadable document.
type Exporter interface {
	Export(ctx context.Context, topic string, proposals []domain.ProposalRecord) (data []byte, filename string, err error)
}

// PushSender notifies subscribed participants who are not connected.
type PushSender interface {
	Send(ctx context.Context, sub domain.PushSubscription, title, body string) error
}
