package domain

import (
	"encoding/json"
	"fmt"
)

// Envelope types exchanged over the room WebSocket. Every envelope is a
// single JSON object carrying a "type" discriminator.
const (
	// Client -> server
	EnvMessage         = "message"
	EnvReaction        = "reaction"
	EnvDeleteMessage   = "delete_message"
	EnvResolveProposal = "resolve_proposal"
	EnvNoteUpdate      = "note_update"
	EnvFormUpdate      = "proposal_form_update"
	EnvFinish          = "finish"

	// Server -> client
	EnvHistory           = "history"
	EnvGeminiResponse    = "gemini_response"
	EnvReactionUpdate    = "reaction_update"
	EnvMessageDeleted    = "message_deleted"
	EnvProposalResolved  = "proposal_resolved"
	EnvNoteInitialState  = "note_initial_state"
	EnvFormInitialState  = "proposal_form_initial_state"
	EnvSystemMessage     = "system_message"
	EnvSummary           = "summary"
	EnvParticipantUpdate = "participant_update"
)

// Head carries only the discriminator, for a first decoding pass.
type Head struct {
	Type string `json:"type"`
}

// ReplyRef is a snapshot of the quoted message, copied at quote time.
type ReplyRef struct {
	MessageID string `json:"message_id"`
	Username  string `json:"username"`
	Content   string `json:"content"`
}

// MessageEnvelope is the wire form of message, history and gemini_response
// envelopes. Reactions carries the authoritative reactor sets per kind.
type MessageEnvelope struct {
	Type             string              `json:"type"`
	MessageID        string              `json:"message_id"`
	Username         string              `json:"username"`
	Content          string              `json:"content"`
	Stance           string              `json:"stance"`
	FileURL          string              `json:"file_url,omitempty"`
	OriginalFilename string              `json:"original_filename,omitempty"`
	GeminiFileRef    string              `json:"gemini_file_ref,omitempty"`
	Reactions        map[string][]string `json:"reactions,omitempty"`
	ReplyTo          *ReplyRef           `json:"reply_to,omitempty"`
	IsResolved       bool                `json:"is_resolved,omitempty"`
}

// OutboundMessage is the client-side form of a message envelope. The server
// assigns message_id and attaches the sender identity.
type OutboundMessage struct {
	Type             string `json:"type"`
	Content          string `json:"content"`
	Stance           string `json:"stance"`
	ReplyToID        string `json:"reply_to_id,omitempty"`
	FileURL          string `json:"file_url,omitempty"`
	OriginalFilename string `json:"original_filename,omitempty"`
	GeminiFileRef    string `json:"gemini_file_ref,omitempty"`
}

// ReactionEnvelope asks the server to toggle a reaction. The server
// recomputes the reactor set and broadcasts a ReactionUpdateEnvelope.
type ReactionEnvelope struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Reaction  string `json:"reaction"`
}

// ReactionUpdateEnvelope carries authoritative display counts per kind.
type ReactionUpdateEnvelope struct {
	Type      string         `json:"type"`
	MessageID string         `json:"message_id"`
	Reactions map[string]int `json:"reactions"`
}

// MessageRefEnvelope covers delete_message, message_deleted,
// resolve_proposal and proposal_resolved, which all reference a single id.
type MessageRefEnvelope struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

// NoteEnvelope covers note_update (both directions) and note_initial_state.
// Sender is attached by the server on broadcast.
type NoteEnvelope struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Sender  string `json:"sender,omitempty"`
}

// FormEnvelope covers proposal_form_update (both directions) and
// proposal_form_initial_state. The full proposal list is always carried,
// never a diff.
type FormEnvelope struct {
	Type      string           `json:"type"`
	Proposals []ProposalRecord `json:"proposals"`
	Sender    string           `json:"sender,omitempty"`
}

// SystemMessageEnvelope is a transient, non-persistent feed entry.
type SystemMessageEnvelope struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// SummaryEnvelope is the terminal deliberation summary.
type SummaryEnvelope struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	ExcelURL string `json:"excel_url,omitempty"`
}

// ParticipantUpdateEnvelope replaces the presence roster.
type ParticipantUpdateEnvelope struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// FinishEnvelope requests the terminal summary.
type FinishEnvelope struct {
	Type string `json:"type"`
}

// Decode parses a raw envelope into its typed form. The discriminator set
// is closed; unknown types return an error so callers can log and skip.
func Decode(data []byte) (interface{}, error) {
	var head Head
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	var target interface{}
	switch head.Type {
	case EnvMessage, EnvHistory, EnvGeminiResponse:
		target = &MessageEnvelope{}
	case EnvReaction:
		target = &ReactionEnvelope{}
	case EnvReactionUpdate:
		target = &ReactionUpdateEnvelope{}
	case EnvDeleteMessage, EnvMessageDeleted, EnvResolveProposal, EnvProposalResolved:
		target = &MessageRefEnvelope{}
	case EnvNoteUpdate, EnvNoteInitialState:
		target = &NoteEnvelope{}
	case EnvFormUpdate, EnvFormInitialState:
		target = &FormEnvelope{}
	case EnvSystemMessage:
		target = &SystemMessageEnvelope{}
	case EnvSummary:
		target = &SummaryEnvelope{}
	case EnvParticipantUpdate:
		target = &ParticipantUpdateEnvelope{}
	case EnvFinish:
		target = &FinishEnvelope{}
	default:
		return nil, fmt.Errorf("unknown envelope type %q", head.Type)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("decode %s envelope: %w", head.Type, err)
	}
	return target, nil
}
