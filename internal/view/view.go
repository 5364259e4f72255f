// Package view turns synchronization-layer state into display-ready
// values. Everything here is a pure projection; no function mutates the
// stores or touches the network.
package view

import (
	"sort"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/domain"
)

// SelfLabel replaces the local user's name in message headers.
const SelfLabel = "あなた"

// quoteRuneLimit bounds the reply quote preview.
const quoteRuneLimit = 50

// StanceClass maps a stance to its style class. Unknown stances fall back
// to the opinion style rather than rendering unstyled.
func StanceClass(stance string) string {
	switch stance {
	case domain.StanceOpinion:
		return "opinion"
	case domain.StanceQuestion:
		return "question"
	case domain.StanceFacilitation:
		return "facilitation"
	case domain.StanceInfoShare:
		return "info"
	case domain.StanceGeminiQuestion:
		return "gemini-question"
	case domain.StanceGeminiAnswer:
		return "gemini-answer"
	case domain.StanceProposal:
		return "proposal"
	default:
		return "opinion"
	}
}

// ReplyQuote is the quoted-message banner above a reply.
type ReplyQuote struct {
	Username string
	Preview  string
}

// Message is one feed entry prepared for rendering.
type Message struct {
	MessageID        string
	DisplayName      string
	IsSelf           bool
	Content          string
	StanceLabel      string
	StanceClass      string
	FileURL          string
	OriginalFilename string
	Reactions        map[string]int
	Reply            *ReplyQuote
	IsResolved       bool
	CanDelete        bool
	CanResolve       bool
}

// ProjectMessage prepares one chat message for display by viewer.
func ProjectMessage(m domain.ChatMessage, viewer string) Message {
	out := Message{
		MessageID:        m.MessageID,
		DisplayName:      m.Username,
		IsSelf:           m.Username == viewer,
		Content:          m.Content,
		StanceLabel:      m.Stance,
		StanceClass:      StanceClass(m.Stance),
		FileURL:          m.FileURL,
		OriginalFilename: m.OriginalFilename,
		Reactions:        m.Reactions,
		IsResolved:       m.IsResolved,
	}
	if out.IsSelf {
		out.DisplayName = SelfLabel
		out.CanDelete = true
	}
	out.CanResolve = m.IsProposal()

	if m.ReplyTo != nil {
		out.Reply = &ReplyQuote{
			Username: m.ReplyTo.Username,
			Preview:  TruncateRunes(m.ReplyTo.Content, quoteRuneLimit),
		}
	}
	return out
}

// ProjectFeed prepares a full feed snapshot for display.
func ProjectFeed(messages []domain.ChatMessage, viewer string) []Message {
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[i] = ProjectMessage(m, viewer)
	}
	return out
}

// TruncateRunes shortens s to at most limit runes, appending an ellipsis
// when anything was cut. Limits count runes, not bytes, so multi-byte
// text truncates cleanly.
func TruncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}

// ShortID abbreviates a message id for display. Ids shorter than the
// abbreviation come back unchanged; nothing guarantees their length.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Roster sorts the presence list for stable display, with the viewer
// first.
func Roster(users []string, viewer string) []string {
	out := make([]string, 0, len(users))
	self := false
	for _, u := range users {
		if u == viewer {
			self = true
			continue
		}
		out = append(out, u)
	}
	sort.Strings(out)
	if self {
		out = append([]string{viewer}, out...)
	}
	return out
}

// FormPosition renders the "n / total" indicator of the proposal form.
type FormPosition struct {
	Index int
	Total int
}

// ProjectForm prepares the current proposal record and its position.
func ProjectForm(f interface {
	Current() (domain.ProposalRecord, int, int)
}) (domain.ProposalRecord, FormPosition) {
	rec, idx, total := f.Current()
	return rec, FormPosition{Index: idx + 1, Total: total}
}
