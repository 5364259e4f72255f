package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/collab"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/config"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/domain"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/hub"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/registry"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/store"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/log"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/storage"
)

type roomService struct {
	hub         *hub.Hub
	store       *store.Store
	registry    registry.Registry
	facilitator collab.Facilitator
	summarizer  collab.Summarizer
	exporter    collab.Exporter
	push        collab.PushSender
	files       storage.Storage
	cfg         config.FacilitationConfig

	// One pub/sub subscription per room per instance, refcounted by local
	// connections. Delivered envelopes fan out through the hub.
	mu   sync.Mutex
	subs map[string]*roomSub
}

type roomSub struct {
	stop  func()
	count int
}

func NewRoomService(
	h *hub.Hub,
	st *store.Store,
	reg registry.Registry,
	facilitator collab.Facilitator,
	summarizer collab.Summarizer,
	exporter collab.Exporter,
	push collab.PushSender,
	files storage.Storage,
	cfg config.FacilitationConfig,
) RoomService {
	return &roomService{
		hub:         h,
		store:       st,
		registry:    reg,
		facilitator: facilitator,
		summarizer:  summarizer,
		exporter:    exporter,
		push:        push,
		files:       files,
		cfg:         cfg,
		subs:        make(map[string]*roomSub),
	}
}

// publish encodes an envelope onto the room channel. Every connected
// instance, this one included, delivers it to its local clients.
func (s *roomService) publish(ctx context.Context, roomID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.registry.Publish(ctx, roomID, data)
}

func (s *roomService) subscribeRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subs[roomID]; ok {
		sub.count++
		return nil
	}

	stop, err := s.registry.Subscribe(context.WithoutCancel(ctx), roomID, func(data []byte) {
		s.hub.BroadcastRawToRoom(roomID, data, "")
	})
	if err != nil {
		return err
	}
	s.subs[roomID] = &roomSub{stop: stop, count: 1}
	return nil
}

func (s *roomService) unsubscribeRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[roomID]
	if !ok {
		return
	}
	sub.count--
	if sub.count <= 0 {
		sub.stop()
		delete(s.subs, roomID)
	}
}

// HandleConnect runs the join sequence: presence, room subscription,
// history replay, initial shared state, then the roster broadcast.
// History goes straight to the joining socket; everything live after it
// arrives through the room channel, so the boundary between the two is
// exactly the end of the replay.
func (s *roomService) HandleConnect(ctx context.Context, c *hub.Client) error {
	room, err := s.store.GetOrCreateRoom(c.RoomID)
	if err != nil {
		return fmt.Errorf("load room %s: %w", c.RoomID, err)
	}

	if err := s.subscribeRoom(ctx, c.RoomID); err != nil {
		return fmt.Errorf("subscribe room %s: %w", c.RoomID, err)
	}
	s.hub.JoinRoom(c, c.RoomID)

	if err := s.registry.Join(ctx, c.RoomID, c.Username); err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, c.RoomID).Msg("presence join failed")
	}

	history, err := s.store.History(c.RoomID)
	if err != nil {
		return fmt.Errorf("load history for room %s: %w", c.RoomID, err)
	}
	for _, env := range history {
		c.SendMessage(env)
	}
	if room.Summary != "" {
		c.SendMessage(&domain.SummaryEnvelope{
			Type:     domain.EnvSummary,
			Content:  room.Summary,
			ExcelURL: room.SummaryURL,
		})
	}

	c.SendMessage(&domain.NoteEnvelope{
		Type:    domain.EnvNoteInitialState,
		Content: room.SharedNote,
	})

	proposals, err := s.store.LoadProposals(c.RoomID)
	if err != nil {
		return err
	}
	c.SendMessage(&domain.FormEnvelope{
		Type:      domain.EnvFormInitialState,
		Proposals: proposals,
	})

	return s.broadcastParticipants(ctx, c.RoomID)
}

func (s *roomService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	s.hub.LeaveRoom(c, c.RoomID)
	if err := s.registry.Leave(ctx, c.RoomID, c.Username); err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, c.RoomID).Msg("presence leave failed")
	}
	if err := s.broadcastParticipants(ctx, c.RoomID); err != nil {
		log.L().Warn().Err(err).Str(log.FieldRoomID, c.RoomID).Msg("roster broadcast failed")
	}
	s.unsubscribeRoom(c.RoomID)
	return nil
}

func (s *roomService) broadcastParticipants(ctx context.Context, roomID string) error {
	users, err := s.registry.Participants(ctx, roomID)
	if err != nil {
		return err
	}
	return s.publish(ctx, roomID, &domain.ParticipantUpdateEnvelope{
		Type:  domain.EnvParticipantUpdate,
		Users: users,
	})
}

// HandleMessage persists a new chat message under a fresh server-minted
// id and broadcasts it. Questions addressed to the AI additionally get a
// facilitator answer, published as its own message.
func (s *roomService) HandleMessage(ctx context.Context, c *hub.Client, msg *domain.OutboundMessage) error {
	if msg.Stance == "" {
		return fmt.Errorf("message without stance from %s", c.Username)
	}

	env := &domain.MessageEnvelope{
		Type:             domain.EnvMessage,
		MessageID:        uuid.NewString(),
		Username:         c.Username,
		Content:          msg.Content,
		Stance:           msg.Stance,
		FileURL:          msg.FileURL,
		OriginalFilename: msg.OriginalFilename,
		GeminiFileRef:    msg.GeminiFileRef,
		Reactions:        emptyReactions(),
	}
	if msg.ReplyToID != "" {
		if parent, err := s.store.GetMessage(msg.ReplyToID); err == nil {
			env.ReplyTo = &domain.ReplyRef{
				MessageID: parent.MessageID,
				Username:  parent.Username,
				Content:   parent.Content,
			}
		}
	}

	if err := s.store.AppendMessage(c.RoomID, env); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	if err := s.publish(ctx, c.RoomID, env); err != nil {
		return err
	}

	s.notifyOffline(ctx, c.RoomID, c.Username, msg.Content)

	if msg.Stance == domain.StanceGeminiQuestion {
		go s.answerQuestion(context.WithoutCancel(ctx), c.RoomID, msg.Content, msg.GeminiFileRef)
	}
	return nil
}

func emptyReactions() map[string][]string {
	reactions := make(map[string][]string, len(domain.ReactionKinds))
	for _, kind := range domain.ReactionKinds {
		reactions[kind] = []string{}
	}
	return reactions
}

func (s *roomService) answerQuestion(ctx context.Context, roomID, question, fileRef string) {
	room, err := s.store.GetOrCreateRoom(roomID)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, roomID).Msg("load room for answer failed")
		return
	}
	history, err := s.recentHistory(roomID)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, roomID).Msg("load history for answer failed")
		return
	}

	answer, err := s.facilitator.Answer(ctx, room.Topic, question, history, fileRef)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, roomID).Msg("facilitator answer failed")
		return
	}

	env := &domain.MessageEnvelope{
		Type:      domain.EnvGeminiResponse,
		MessageID: uuid.NewString(),
		Username:  domain.AIUsername,
		Content:   answer,
		Stance:    domain.StanceGeminiAnswer,
		Reactions: emptyReactions(),
	}
	if err := s.store.AppendMessage(roomID, env); err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, roomID).Msg("persist answer failed")
		return
	}
	if err := s.publish(ctx, roomID, env); err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, roomID).Msg("publish answer failed")
	}
}

// notifyOffline pushes the new message to subscribed participants who are
// not currently in the presence set.
func (s *roomService) notifyOffline(ctx context.Context, roomID, sender, content string) {
	subs, err := s.store.SubscriptionsForRoom(roomID)
	if err != nil || len(subs) == 0 {
		return
	}
	online, err := s.registry.Participants(ctx, roomID)
	if err != nil {
		return
	}
	onlineSet := make(map[string]struct{}, len(online))
	for _, u := range online {
		onlineSet[u] = struct{}{}
	}

	body := sender + ": " + content
	for _, sub := range subs {
		if _, ok := onlineSet[sub.Username]; ok || sub.Username == sender {
			continue
		}
		sub := sub
		go func() {
			if err := s.push.Send(context.WithoutCancel(ctx), sub, "新しいメッセージ", body); err != nil {
				log.L().Warn().Err(err).Str(log.FieldUsername, sub.Username).Msg("push send failed")
			}
		}()
	}
}

// HandleReaction recomputes the message's reactor sets with toggle
// semantics: reacting with the held kind removes it, reacting with a
// different kind moves the user there. The broadcast carries counts only.
func (s *roomService) HandleReaction(ctx context.Context, c *hub.Client, env *domain.ReactionEnvelope) error {
	row, err := s.store.GetMessage(env.MessageID)
	if err != nil {
		return err
	}
	reactions, err := row.Reactions()
	if err != nil {
		return fmt.Errorf("decode reactions: %w", err)
	}

	already := contains(reactions[env.Reaction], c.Username)
	for kind, users := range reactions {
		reactions[kind] = remove(users, c.Username)
	}
	if !already {
		reactions[env.Reaction] = append(reactions[env.Reaction], c.Username)
	}

	if err := s.store.UpdateReactions(env.MessageID, reactions); err != nil {
		return err
	}

	counts := make(map[string]int, len(reactions))
	for kind, users := range reactions {
		counts[kind] = len(users)
	}
	return s.publish(ctx, c.RoomID, &domain.ReactionUpdateEnvelope{
		Type:      domain.EnvReactionUpdate,
		MessageID: env.MessageID,
		Reactions: counts,
	})
}

func contains(users []string, u string) bool {
	for _, x := range users {
		if x == u {
			return true
		}
	}
	return false
}

func remove(users []string, u string) []string {
	out := users[:0]
	for _, x := range users {
		if x != u {
			out = append(out, x)
		}
	}
	return out
}

// HandleDelete removes one of the sender's own messages.
func (s *roomService) HandleDelete(ctx context.Context, c *hub.Client, messageID string) error {
	row, err := s.store.GetMessage(messageID)
	if err != nil {
		return err
	}
	if row.Username != c.Username {
		return fmt.Errorf("user %s cannot delete message of %s", c.Username, row.Username)
	}
	if err := s.store.DeleteMessage(messageID); err != nil {
		return err
	}
	return s.publish(ctx, c.RoomID, &domain.MessageRefEnvelope{
		Type:      domain.EnvMessageDeleted,
		MessageID: messageID,
	})
}

// HandleResolve settles an open proposal message. Only proposal-stance
// messages qualify.
func (s *roomService) HandleResolve(ctx context.Context, c *hub.Client, messageID string) error {
	row, err := s.store.GetMessage(messageID)
	if err != nil {
		return err
	}
	if row.Stance != domain.StanceProposal {
		return fmt.Errorf("message %s is not a proposal", messageID)
	}
	if err := s.store.ResolveMessage(messageID); err != nil {
		return err
	}
	return s.publish(ctx, c.RoomID, &domain.MessageRefEnvelope{
		Type:      domain.EnvProposalResolved,
		MessageID: messageID,
	})
}

// HandleNoteUpdate stores the note snapshot and rebroadcasts it with the
// sender stamped on, so replicas can suppress their own echo. Finished
// rooms are read-only.
func (s *roomService) HandleNoteUpdate(ctx context.Context, c *hub.Client, content string) error {
	room, err := s.store.GetOrCreateRoom(c.RoomID)
	if err != nil {
		return err
	}
	if room.Status == store.RoomFinished {
		return nil
	}
	if err := s.store.SaveNote(c.RoomID, content); err != nil {
		return err
	}
	return s.publish(ctx, c.RoomID, &domain.NoteEnvelope{
		Type:    domain.EnvNoteUpdate,
		Content: content,
		Sender:  c.Username,
	})
}

// HandleFormUpdate stores the full proposal-list snapshot and
// rebroadcasts it with the sender stamped on.
func (s *roomService) HandleFormUpdate(ctx context.Context, c *hub.Client, proposals []domain.ProposalRecord) error {
	room, err := s.store.GetOrCreateRoom(c.RoomID)
	if err != nil {
		return err
	}
	if room.Status == store.RoomFinished {
		return nil
	}
	if err := s.store.SaveProposals(c.RoomID, proposals); err != nil {
		return err
	}
	return s.publish(ctx, c.RoomID, &domain.FormEnvelope{
		Type:      domain.EnvFormUpdate,
		Proposals: proposals,
		Sender:    c.Username,
	})
}

// HandleFinish closes the room: a progress notice goes out immediately,
// then the summary is generated, exported, persisted and broadcast.
func (s *roomService) HandleFinish(ctx context.Context, c *hub.Client) error {
	room, err := s.store.GetOrCreateRoom(c.RoomID)
	if err != nil {
		return err
	}
	if room.Status == store.RoomFinished {
		return nil
	}

	if err := s.publish(ctx, c.RoomID, &domain.SystemMessageEnvelope{
		Type:    domain.EnvSystemMessage,
		Content: "議事録を作成中です。しばらくお待ちください...",
	}); err != nil {
		return err
	}

	go s.finishRoom(context.WithoutCancel(ctx), c.RoomID, room.Topic)
	return nil
}

func (s *roomService) finishRoom(ctx context.Context, roomID, topic string) {
	history, err := s.recentHistory(roomID)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, roomID).Msg("load history for summary failed")
		return
	}
	proposals, err := s.store.LoadProposals(roomID)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, roomID).Msg("load proposals for summary failed")
		return
	}

	summary, err := s.summarizer.Summarize(ctx, topic, history, proposals)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, roomID).Msg("summarize failed")
		return
	}

	exportURL := s.exportSummary(ctx, roomID, topic, proposals)

	if err := s.store.SaveSummary(roomID, summary, exportURL); err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, roomID).Msg("persist summary failed")
		return
	}

	if err := s.publish(ctx, roomID, &domain.SummaryEnvelope{
		Type:     domain.EnvSummary,
		Content:  summary,
		ExcelURL: exportURL,
	}); err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, roomID).Msg("publish summary failed")
	}
}

// exportSummary renders the proposal document and stores it, returning
// its URL. Export failure degrades to a summary without a download link.
func (s *roomService) exportSummary(ctx context.Context, roomID, topic string, proposals []domain.ProposalRecord) string {
	data, filename, err := s.exporter.Export(ctx, topic, proposals)
	if err != nil {
		log.L().Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("proposal export failed")
		return ""
	}
	key := fmt.Sprintf("summaries/%s/%s", roomID, filename)
	if err := s.files.Write(ctx, key, bytes.NewReader(data), int64(len(data)), "application/octet-stream"); err != nil {
		log.L().Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("store export failed")
		return ""
	}
	url, err := s.files.GetURL(ctx, key, 24*time.Hour)
	if err != nil {
		return ""
	}
	return url
}

// recentHistory returns the latest persisted messages as display
// projections, bounded by the configured history limit.
func (s *roomService) recentHistory(roomID string) ([]domain.ChatMessage, error) {
	envs, err := s.store.History(roomID)
	if err != nil {
		return nil, err
	}
	if s.cfg.HistoryLimit > 0 && len(envs) > s.cfg.HistoryLimit {
		envs = envs[len(envs)-s.cfg.HistoryLimit:]
	}
	out := make([]domain.ChatMessage, 0, len(envs))
	for _, env := range envs {
		out = append(out, *domain.FromEnvelope(env))
	}
	return out, nil
}

// CheckProgress reports stagnation when the room has gone quiet for
// longer than the configured threshold.
func (s *roomService) CheckProgress(ctx context.Context, roomID string) (bool, string, error) {
	last, err := s.store.LastMessageAt(roomID)
	if errors.Is(err, store.ErrNotFound) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	if time.Since(last) < s.cfg.StallThreshold {
		return false, "", nil
	}

	room, err := s.store.GetOrCreateRoom(roomID)
	if err != nil {
		return false, "", err
	}
	history, err := s.recentHistory(roomID)
	if err != nil {
		return false, "", err
	}
	suggestion, err := s.facilitator.Nudge(ctx, room.Topic, history)
	if err != nil {
		return true, "", err
	}
	return true, suggestion, nil
}

// Facilitate posts a facilitation prompt into the room as an AI message.
func (s *roomService) Facilitate(ctx context.Context, roomID string) (string, error) {
	room, err := s.store.GetOrCreateRoom(roomID)
	if err != nil {
		return "", err
	}
	history, err := s.recentHistory(roomID)
	if err != nil {
		return "", err
	}
	prompt, err := s.facilitator.Nudge(ctx, room.Topic, history)
	if err != nil {
		return "", err
	}

	env := &domain.MessageEnvelope{
		Type:      domain.EnvMessage,
		MessageID: uuid.NewString(),
		Username:  domain.AIUsername,
		Content:   prompt,
		Stance:    domain.StanceFacilitation,
		Reactions: emptyReactions(),
	}
	if err := s.store.AppendMessage(roomID, env); err != nil {
		return "", err
	}
	if err := s.publish(ctx, roomID, env); err != nil {
		return "", err
	}
	return prompt, nil
}

func (s *roomService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for roomID, sub := range s.subs {
		sub.stop()
		delete(s.subs, roomID)
	}
	return s.registry.Close()
}
