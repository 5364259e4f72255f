package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/domain"
)

func liveMsg(id, username, stance, content string) *domain.MessageEnvelope {
	return &domain.MessageEnvelope{
		Type:      domain.EnvMessage,
		MessageID: id,
		Username:  username,
		Stance:    stance,
		Content:   content,
	}
}

func historyMsg(id, username, stance, content string) *domain.MessageEnvelope {
	env := liveMsg(id, username, stance, content)
	env.Type = domain.EnvHistory
	return env
}

func feedIDs(f *Feed) []string {
	msgs := f.Messages()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.MessageID
	}
	return out
}

func TestFeedHistoryLandsBeforeLive(t *testing.T) {
	f := NewFeed()

	// A live message can arrive while replay is still in flight; the
	// replayed entries must still sort before it.
	f.Ingest(liveMsg("live-1", "bob", domain.StanceOpinion, "now"))
	f.Ingest(historyMsg("old-1", "alice", domain.StanceOpinion, "earlier"))
	f.Ingest(historyMsg("old-2", "alice", domain.StanceQuestion, "also earlier"))
	f.Ingest(liveMsg("live-2", "bob", domain.StanceOpinion, "latest"))

	assert.Equal(t, []string{"old-1", "old-2", "live-1", "live-2"}, feedIDs(f))
}

func TestFeedDuplicateIDSkipped(t *testing.T) {
	f := NewFeed()

	f.Ingest(liveMsg("m1", "alice", domain.StanceProposal, "提案です"))
	f.Ingest(historyMsg("m1", "alice", domain.StanceProposal, "提案です"))

	assert.Equal(t, 1, f.Len())
	assert.Len(t, f.Proposals(), 1)
}

func TestFeedReactionCountsReplaced(t *testing.T) {
	f := NewFeed()
	f.Ingest(liveMsg("m1", "alice", domain.StanceOpinion, "x"))

	f.ApplyReaction("m1", map[string]int{"agree": 2, "partial": 0, "disagree": 1})

	m, ok := f.Get("m1")
	require.True(t, ok)
	assert.Equal(t, 2, m.Reactions["agree"])
	assert.Equal(t, 1, m.Reactions["disagree"])

	// Unknown id is a benign race the server already resolved.
	f.ApplyReaction("gone", map[string]int{"agree": 1})
}

func TestFeedDeleteIsIdempotentAndAdjustsBoundary(t *testing.T) {
	f := NewFeed()
	f.Ingest(historyMsg("h1", "alice", domain.StanceOpinion, "a"))
	f.Ingest(historyMsg("h2", "alice", domain.StanceOpinion, "b"))
	f.Ingest(liveMsg("l1", "bob", domain.StanceOpinion, "c"))

	f.Delete("h1")
	f.Delete("h1")
	assert.Equal(t, []string{"h2", "l1"}, feedIDs(f))

	// Boundary must have shifted so later history still precedes live.
	f.Ingest(historyMsg("h3", "alice", domain.StanceOpinion, "d"))
	assert.Equal(t, []string{"h2", "h3", "l1"}, feedIDs(f))

	_, ok := f.Get("h1")
	assert.False(t, ok)
}

func TestFeedResolveRemovesFromProposalView(t *testing.T) {
	f := NewFeed()
	f.Ingest(liveMsg("p1", "alice", domain.StanceProposal, "案1"))
	f.Ingest(liveMsg("p2", "bob", domain.StanceProposal, "案2"))
	f.Ingest(liveMsg("m1", "bob", domain.StanceOpinion, "ただの意見"))

	require.Len(t, f.Proposals(), 2)

	f.Resolve("p1")
	f.Resolve("p1")

	proposals := f.Proposals()
	require.Len(t, proposals, 1)
	assert.Equal(t, "p2", proposals[0].MessageID)

	// The resolved message stays in the feed itself.
	m, ok := f.Get("p1")
	require.True(t, ok)
	assert.True(t, m.IsResolved)
	assert.Equal(t, 3, f.Len())
}

func TestFeedResolvedHistoryNeverEntersProposalView(t *testing.T) {
	f := NewFeed()
	env := historyMsg("p1", "alice", domain.StanceProposal, "既に解決済み")
	env.IsResolved = true
	f.Ingest(env)

	assert.Empty(t, f.Proposals())
}

func TestFeedChangeHandlerCanReadBack(t *testing.T) {
	f := NewFeed()

	// The handler re-renders, which means reading the feed it was just
	// notified about. Every mutator must have released the lock by then.
	lengths := make(chan int, 4)
	f.OnChange(func() {
		lengths <- f.Len()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Ingest(liveMsg("m1", "alice", domain.StanceProposal, "提案です"))
		f.ApplyReaction("m1", map[string]int{"agree": 1})
		f.Resolve("m1")
		f.Delete("m1")
	}()

	want := []int{1, 1, 1, 0}
	for i, expected := range want {
		select {
		case n := <-lengths:
			assert.Equal(t, expected, n, "notification %d", i)
		case <-time.After(2 * time.Second):
			t.Fatal("change handler blocked reading the feed")
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mutations did not complete")
	}
}
