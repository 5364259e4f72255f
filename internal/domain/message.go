package domain

// Stances classify a chat message's rhetorical role. The values are wire
// constants shared with every connected client; do not translate them.
const (
	StanceOpinion        = "意見"
	StanceQuestion       = "質問"
	StanceFacilitation   = "ファシリテーション"
	StanceInfoShare      = "情報提供"
	StanceGeminiQuestion = "Geminiへの質問"
	StanceGeminiAnswer   = "Geminiからの回答"
	StanceProposal       = "提案"
)

// Reaction kinds.
const (
	ReactionAgree    = "agree"
	ReactionPartial  = "partial"
	ReactionDisagree = "disagree"
)

// ReactionKinds lists every kind in display order.
var ReactionKinds = []string{ReactionAgree, ReactionPartial, ReactionDisagree}

// AIUsername is the sender identity of facilitation responses.
const AIUsername = "Gemini"

// ChatMessage is a feed entry as the client caches it. The server owns the
// persistent record; this is a reconcilable projection of it. Reactions
// holds display counts only, the server keeps the reactor sets.
type ChatMessage struct {
	MessageID        string
	Username         string
	Content          string
	Stance           string
	FileURL          string
	OriginalFilename string
	ReplyTo          *ReplyRef
	Reactions        map[string]int
	IsResolved       bool
}

// FromEnvelope builds a feed entry from a message-like envelope, collapsing
// the reactor sets to counts.
func FromEnvelope(env *MessageEnvelope) *ChatMessage {
	counts := make(map[string]int, len(ReactionKinds))
	for _, kind := range ReactionKinds {
		counts[kind] = len(env.Reactions[kind])
	}
	return &ChatMessage{
		MessageID:        env.MessageID,
		Username:         env.Username,
		Content:          env.Content,
		Stance:           env.Stance,
		FileURL:          env.FileURL,
		OriginalFilename: env.OriginalFilename,
		ReplyTo:          env.ReplyTo,
		Reactions:        counts,
		IsResolved:       env.IsResolved,
	}
}

// IsProposal reports whether the message belongs in the derived proposal view.
func (m *ChatMessage) IsProposal() bool {
	return m.Stance == StanceProposal && !m.IsResolved
}
