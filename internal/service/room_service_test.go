package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/collab"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/config"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/domain"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/hub"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/store"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/database"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/storage"
)

// fakeRegistry records presence and published envelopes in memory.
type fakeRegistry struct {
	mu        sync.Mutex
	presence  map[string][]string
	published []json.RawMessage
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{presence: make(map[string][]string)}
}

func (r *fakeRegistry) Join(_ context.Context, roomID, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presence[roomID] = append(r.presence[roomID], username)
	return nil
}

func (r *fakeRegistry) Leave(_ context.Context, roomID, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := r.presence[roomID]
	for i, u := range users {
		if u == username {
			r.presence[roomID] = append(users[:i], users[i+1:]...)
			break
		}
	}
	return nil
}

func (r *fakeRegistry) Participants(_ context.Context, roomID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.presence[roomID]...), nil
}

func (r *fakeRegistry) Publish(_ context.Context, _ string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, json.RawMessage(data))
	return nil
}

func (r *fakeRegistry) Subscribe(_ context.Context, _ string, _ func([]byte)) (func(), error) {
	return func() {}, nil
}

func (r *fakeRegistry) Close() error { return nil }

func (r *fakeRegistry) publishedTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.published))
	for i, raw := range r.published {
		var head domain.Head
		json.Unmarshal(raw, &head)
		out[i] = head.Type
	}
	return out
}

func (r *fakeRegistry) lastPublished(t *testing.T, v interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.published)
	require.NoError(t, json.Unmarshal(r.published[len(r.published)-1], v))
}

func newTestService(t *testing.T) (RoomService, *store.Store, *fakeRegistry) {
	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)

	st, err := store.New(db)
	require.NoError(t, err)

	files, err := storage.NewLocalStorage(storage.LocalConfig{
		BasePath: t.TempDir(),
		URLBase:  "/uploads",
	})
	require.NoError(t, err)

	reg := newFakeRegistry()
	wsHub := hub.NewHub(config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 65536,
	})

	svc := NewRoomService(
		wsHub, st, reg,
		collab.StaticFacilitator{},
		collab.StaticSummarizer{},
		collab.TextExporter{},
		collab.LogPushSender{},
		files,
		config.FacilitationConfig{StallThreshold: time.Minute, HistoryLimit: 50},
	)
	t.Cleanup(func() { svc.Stop() })
	return svc, st, reg
}

func testClient(roomID, username string) *hub.Client {
	return &hub.Client{
		ID:       "test-" + username,
		RoomID:   roomID,
		Username: username,
		Send:     make(chan []byte, 64),
	}
}

func TestHandleMessagePersistsStampsAndPublishes(t *testing.T) {
	svc, st, reg := newTestService(t)
	ctx := context.Background()
	alice := testClient("room1", "alice")

	err := svc.HandleMessage(ctx, alice, &domain.OutboundMessage{
		Type:    domain.EnvMessage,
		Content: "こんにちは",
		Stance:  domain.StanceOpinion,
	})
	require.NoError(t, err)

	history, err := st.History("room1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "alice", history[0].Username)
	assert.NotEmpty(t, history[0].MessageID)

	var published domain.MessageEnvelope
	reg.lastPublished(t, &published)
	assert.Equal(t, domain.EnvMessage, published.Type)
	assert.Equal(t, "alice", published.Username)
}

func TestHandleMessageWithoutStanceRejected(t *testing.T) {
	svc, st, _ := newTestService(t)
	alice := testClient("room1", "alice")

	err := svc.HandleMessage(context.Background(), alice, &domain.OutboundMessage{
		Type:    domain.EnvMessage,
		Content: "no stance",
	})
	assert.Error(t, err)

	history, err := st.History("room1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHandleMessageReplySnapshot(t *testing.T) {
	svc, st, reg := newTestService(t)
	ctx := context.Background()
	bob := testClient("room1", "bob")
	alice := testClient("room1", "alice")

	require.NoError(t, svc.HandleMessage(ctx, bob, &domain.OutboundMessage{
		Type: domain.EnvMessage, Content: "引用元の発言", Stance: domain.StanceOpinion,
	}))
	history, err := st.History("room1")
	require.NoError(t, err)
	parentID := history[0].MessageID

	require.NoError(t, svc.HandleMessage(ctx, alice, &domain.OutboundMessage{
		Type: domain.EnvMessage, Content: "返信です", Stance: domain.StanceQuestion,
		ReplyToID: parentID,
	}))

	var published domain.MessageEnvelope
	reg.lastPublished(t, &published)
	require.NotNil(t, published.ReplyTo)
	assert.Equal(t, "bob", published.ReplyTo.Username)
	assert.Equal(t, "引用元の発言", published.ReplyTo.Content)
}

func TestHandleReactionToggleAndSwitch(t *testing.T) {
	svc, st, reg := newTestService(t)
	ctx := context.Background()
	bob := testClient("room1", "bob")
	alice := testClient("room1", "alice")

	require.NoError(t, svc.HandleMessage(ctx, bob, &domain.OutboundMessage{
		Type: domain.EnvMessage, Content: "意見", Stance: domain.StanceOpinion,
	}))
	history, err := st.History("room1")
	require.NoError(t, err)
	msgID := history[0].MessageID

	react := func(kind string) domain.ReactionUpdateEnvelope {
		require.NoError(t, svc.HandleReaction(ctx, alice, &domain.ReactionEnvelope{
			Type: domain.EnvReaction, MessageID: msgID, Reaction: kind,
		}))
		var update domain.ReactionUpdateEnvelope
		reg.lastPublished(t, &update)
		return update
	}

	// First reaction adds.
	update := react(domain.ReactionAgree)
	assert.Equal(t, 1, update.Reactions[domain.ReactionAgree])

	// Repeating the same kind removes it.
	update = react(domain.ReactionAgree)
	assert.Equal(t, 0, update.Reactions[domain.ReactionAgree])

	// Reacting again, then with a different kind, moves the user.
	react(domain.ReactionAgree)
	update = react(domain.ReactionDisagree)
	assert.Equal(t, 0, update.Reactions[domain.ReactionAgree])
	assert.Equal(t, 1, update.Reactions[domain.ReactionDisagree])
}

func TestHandleDeleteOnlyOwnMessages(t *testing.T) {
	svc, st, reg := newTestService(t)
	ctx := context.Background()
	bob := testClient("room1", "bob")
	alice := testClient("room1", "alice")

	require.NoError(t, svc.HandleMessage(ctx, bob, &domain.OutboundMessage{
		Type: domain.EnvMessage, Content: "bobの発言", Stance: domain.StanceOpinion,
	}))
	history, err := st.History("room1")
	require.NoError(t, err)
	msgID := history[0].MessageID

	assert.Error(t, svc.HandleDelete(ctx, alice, msgID))

	require.NoError(t, svc.HandleDelete(ctx, bob, msgID))
	history, err = st.History("room1")
	require.NoError(t, err)
	assert.Empty(t, history)

	var ref domain.MessageRefEnvelope
	reg.lastPublished(t, &ref)
	assert.Equal(t, domain.EnvMessageDeleted, ref.Type)
	assert.Equal(t, msgID, ref.MessageID)
}

func TestHandleResolveRequiresProposalStance(t *testing.T) {
	svc, st, reg := newTestService(t)
	ctx := context.Background()
	alice := testClient("room1", "alice")

	require.NoError(t, svc.HandleMessage(ctx, alice, &domain.OutboundMessage{
		Type: domain.EnvMessage, Content: "ただの意見", Stance: domain.StanceOpinion,
	}))
	require.NoError(t, svc.HandleMessage(ctx, alice, &domain.OutboundMessage{
		Type: domain.EnvMessage, Content: "提案内容", Stance: domain.StanceProposal,
	}))
	history, err := st.History("room1")
	require.NoError(t, err)
	opinionID, proposalID := history[0].MessageID, history[1].MessageID

	assert.Error(t, svc.HandleResolve(ctx, alice, opinionID))
	require.NoError(t, svc.HandleResolve(ctx, alice, proposalID))

	var ref domain.MessageRefEnvelope
	reg.lastPublished(t, &ref)
	assert.Equal(t, domain.EnvProposalResolved, ref.Type)

	history, err = st.History("room1")
	require.NoError(t, err)
	assert.True(t, history[1].IsResolved)
}

func TestNoteAndFormRebroadcastWithSender(t *testing.T) {
	svc, st, reg := newTestService(t)
	ctx := context.Background()
	alice := testClient("room1", "alice")

	require.NoError(t, svc.HandleNoteUpdate(ctx, alice, "共有メモの内容"))

	var note domain.NoteEnvelope
	reg.lastPublished(t, &note)
	assert.Equal(t, domain.EnvNoteUpdate, note.Type)
	assert.Equal(t, "alice", note.Sender)

	proposals := []domain.ProposalRecord{{DraftID: "d1", Q1: "清掃活動"}}
	require.NoError(t, svc.HandleFormUpdate(ctx, alice, proposals))

	var form domain.FormEnvelope
	reg.lastPublished(t, &form)
	assert.Equal(t, "alice", form.Sender)
	require.Len(t, form.Proposals, 1)
	assert.Equal(t, "d1", form.Proposals[0].DraftID)

	stored, err := st.LoadProposals("room1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "清掃活動", stored[0].Q1)
}

func TestFinishedRoomIsReadOnlyForSharedState(t *testing.T) {
	svc, st, reg := newTestService(t)
	ctx := context.Background()
	alice := testClient("room1", "alice")

	_, err := st.GetOrCreateRoom("room1")
	require.NoError(t, err)
	require.NoError(t, st.SaveSummary("room1", "まとめ", ""))

	before := len(reg.publishedTypes())
	require.NoError(t, svc.HandleNoteUpdate(ctx, alice, "書けないはず"))
	require.NoError(t, svc.HandleFormUpdate(ctx, alice, nil))
	assert.Equal(t, before, len(reg.publishedTypes()))

	room, err := st.GetOrCreateRoom("room1")
	require.NoError(t, err)
	assert.Empty(t, room.SharedNote)
}

func TestHandleFinishPublishesSystemThenSummary(t *testing.T) {
	svc, st, reg := newTestService(t)
	ctx := context.Background()
	alice := testClient("room1", "alice")

	require.NoError(t, svc.HandleMessage(ctx, alice, &domain.OutboundMessage{
		Type: domain.EnvMessage, Content: "発言", Stance: domain.StanceOpinion,
	}))
	require.NoError(t, svc.HandleFinish(ctx, alice))

	assert.Eventually(t, func() bool {
		types := reg.publishedTypes()
		return len(types) >= 3 && types[len(types)-1] == domain.EnvSummary
	}, 2*time.Second, 20*time.Millisecond)

	types := reg.publishedTypes()
	assert.Contains(t, types, domain.EnvSystemMessage)

	room, err := st.GetOrCreateRoom("room1")
	require.NoError(t, err)
	assert.Equal(t, store.RoomFinished, room.Status)
	assert.NotEmpty(t, room.Summary)
}

func TestHandleConnectReplaysStateInOrder(t *testing.T) {
	svc, st, reg := newTestService(t)
	ctx := context.Background()
	bob := testClient("room1", "bob")

	require.NoError(t, svc.HandleMessage(ctx, bob, &domain.OutboundMessage{
		Type: domain.EnvMessage, Content: "履歴になる発言", Stance: domain.StanceOpinion,
	}))
	require.NoError(t, st.SaveNote("room1", "メモ"))

	alice := testClient("room1", "alice")
	require.NoError(t, svc.HandleConnect(ctx, alice))

	var types []string
	for len(alice.Send) > 0 {
		data := <-alice.Send
		var head domain.Head
		require.NoError(t, json.Unmarshal(data, &head))
		types = append(types, head.Type)
	}
	assert.Equal(t, []string{
		domain.EnvHistory,
		domain.EnvNoteInitialState,
		domain.EnvFormInitialState,
	}, types)

	// The roster broadcast goes through the room channel, not the socket.
	pub := reg.publishedTypes()
	assert.Equal(t, domain.EnvParticipantUpdate, pub[len(pub)-1])
}

func TestCheckProgressReportsStagnation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	alice := testClient("room1", "alice")

	// Empty room is not stagnant.
	stagnant, _, err := svc.CheckProgress(ctx, "room1")
	require.NoError(t, err)
	assert.False(t, stagnant)

	// Fresh traffic is not stagnant either (threshold is one minute).
	require.NoError(t, svc.HandleMessage(ctx, alice, &domain.OutboundMessage{
		Type: domain.EnvMessage, Content: "発言", Stance: domain.StanceOpinion,
	}))
	stagnant, _, err = svc.CheckProgress(ctx, "room1")
	require.NoError(t, err)
	assert.False(t, stagnant)
}

func TestFacilitatePostsAIMessage(t *testing.T) {
	svc, st, reg := newTestService(t)
	ctx := context.Background()

	prompt, err := svc.Facilitate(ctx, "room1")
	require.NoError(t, err)
	assert.NotEmpty(t, prompt)

	var published domain.MessageEnvelope
	reg.lastPublished(t, &published)
	assert.Equal(t, domain.AIUsername, published.Username)
	assert.Equal(t, domain.StanceFacilitation, published.Stance)

	history, err := st.History("room1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, prompt, history[0].Content)
}
