package realtime

import (
	"sync"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/domain"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/log"
)

// Feed is the ordered log of chat messages with reactions, replies,
// deletions and resolution flags. Replayed history is kept before the
// history/live boundary so it never interleaves after live traffic.
// Mutating envelopes that reference an unknown id are benign races the
// server already resolved; they are logged and dropped.
type Feed struct {
	mu       sync.Mutex
	messages []*domain.ChatMessage
	index    map[string]*domain.ChatMessage
	boundary int // messages[:boundary] is replayed history
	onChange func()
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{index: make(map[string]*domain.ChatMessage)}
}

// OnChange registers the re-render notification. The feed itself is
// render-agnostic; the callback fires after every effective mutation.
func (f *Feed) OnChange(fn func()) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// Ingest appends a message-like envelope to the feed. History envelopes
// land before the boundary; everything else at the tail. An id already in
// the feed is skipped, which guards against history replay re-announcing a
// message (and its proposal) already surfaced live.
func (f *Feed) Ingest(env *domain.MessageEnvelope) {
	f.mu.Lock()
	if _, ok := f.index[env.MessageID]; ok {
		f.mu.Unlock()
		return
	}

	msg := domain.FromEnvelope(env)
	f.index[msg.MessageID] = msg

	if env.Type == domain.EnvHistory {
		f.messages = append(f.messages, nil)
		copy(f.messages[f.boundary+1:], f.messages[f.boundary:])
		f.messages[f.boundary] = msg
		f.boundary++
	} else {
		f.messages = append(f.messages, msg)
	}

	fn := f.onChange
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ApplyReaction replaces the displayed counts for the given message. The
// server is authoritative for the reactor sets; the feed never holds a
// locally-incremented guess.
func (f *Feed) ApplyReaction(messageID string, counts map[string]int) {
	f.mu.Lock()
	msg, ok := f.index[messageID]
	if !ok {
		f.mu.Unlock()
		log.L().Debug().Str(log.FieldMessageID, messageID).Msg("reaction for unknown message dropped")
		return
	}

	for kind, count := range counts {
		msg.Reactions[kind] = count
	}

	fn := f.onChange
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Delete removes a message from the feed. Idempotent.
func (f *Feed) Delete(messageID string) {
	f.mu.Lock()
	if _, ok := f.index[messageID]; !ok {
		f.mu.Unlock()
		return
	}
	delete(f.index, messageID)

	for i, m := range f.messages {
		if m.MessageID == messageID {
			f.messages = append(f.messages[:i], f.messages[i+1:]...)
			if i < f.boundary {
				f.boundary--
			}
			break
		}
	}

	fn := f.onChange
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Resolve marks a proposal message resolved, removing it from the derived
// proposal view. The message stays in the feed. Idempotent.
func (f *Feed) Resolve(messageID string) {
	f.mu.Lock()
	msg, ok := f.index[messageID]
	if !ok {
		f.mu.Unlock()
		log.L().Debug().Str(log.FieldMessageID, messageID).Msg("resolve for unknown message dropped")
		return
	}
	if msg.IsResolved {
		f.mu.Unlock()
		return
	}
	msg.IsResolved = true

	fn := f.onChange
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Get returns a copy of the message with the given id.
func (f *Feed) Get(messageID string) (domain.ChatMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, ok := f.index[messageID]
	if !ok {
		return domain.ChatMessage{}, false
	}
	return *msg, true
}

// Messages returns a snapshot of the feed in display order.
func (f *Feed) Messages() []domain.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.ChatMessage, len(f.messages))
	for i, m := range f.messages {
		out[i] = *m
	}
	return out
}

// Proposals returns the derived proposal view: feed messages with
// stance=提案 that are not resolved, in feed order. Ids are unique in the
// feed, so the view carries no duplicates regardless of history/live
// interleaving.
func (f *Feed) Proposals() []domain.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.ChatMessage
	for _, m := range f.messages {
		if m.IsProposal() {
			out = append(out, *m)
		}
	}
	return out
}

// Len returns the number of messages in the feed.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}
