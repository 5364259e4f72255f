package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/domain"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/log"
)

// Validation and state-guard errors surfaced to the user interface.
var (
	ErrStanceRequired  = errors.New("stance must be selected before sending")
	ErrEmptyMessage    = errors.New("message needs content or an attachment")
	ErrAwaitingAnswer  = errors.New("previous AI question is still pending")
	ErrEmptyWhat       = errors.New("proposal needs a What (Q1) entry")
	ErrNotOwnMessage   = errors.New("only own messages can be deleted")
	ErrNotProposal     = errors.New("message is not an open proposal")
	ErrFinishRequested = errors.New("finish already requested")
	ErrUnknownMessage  = errors.New("unknown message id")
)

// Attachment describes an already-uploaded file to attach to a message.
type Attachment struct {
	FileURL          string
	OriginalFilename string
	GeminiFileRef    string
}

// Handlers are the presentation callbacks a Room invokes. All are optional
// and are called from the read-loop goroutine; implementations marshal to
// their own rendering context.
type Handlers struct {
	FeedChanged   func()
	NoteChanged   func()
	FormChanged   func()
	SystemMessage func(content string)
	Summary       func(content, excelURL string)
	Participants  func(users []string)
	SessionClosed func(err error)
}

// Room is the client-side replica of one deliberation room: the message
// feed, the shared note, the shared proposal form, and the per-session
// composition state, all fed by a single server connection.
type Room struct {
	roomID   string
	username string

	session *Session
	feed    *Feed
	note    *Note
	form    *Form

	handlers Handlers

	mu             sync.Mutex
	stance         string
	replyTarget    *domain.ReplyRef
	awaitingAnswer bool
	finishPending  bool
	participants   []string
}

// Join dials the room endpoint and starts the dispatch loop. baseURL is
// the server root (ws:// or wss://); the room path is derived from it.
func Join(ctx context.Context, baseURL, roomID, username string, handlers Handlers) (*Room, error) {
	endpoint := fmt.Sprintf("%s/ws/%s/%s",
		baseURL, url.PathEscape(roomID), url.PathEscape(username))

	session, err := Dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("join room %s: %w", roomID, err)
	}

	r := &Room{
		roomID:   roomID,
		username: username,
		session:  session,
		feed:     NewFeed(),
		handlers: handlers,
	}
	r.note = NewNote(username, DefaultDebounceWindow, func(content string) {
		r.send(&domain.NoteEnvelope{Type: domain.EnvNoteUpdate, Content: content})
	})
	r.form = NewForm(username, DefaultDebounceWindow, func(proposals []domain.ProposalRecord) {
		r.send(&domain.FormEnvelope{Type: domain.EnvFormUpdate, Proposals: proposals})
	})

	if handlers.FeedChanged != nil {
		r.feed.OnChange(handlers.FeedChanged)
	}
	if handlers.NoteChanged != nil {
		r.note.OnChange(handlers.NoteChanged)
	}
	if handlers.FormChanged != nil {
		r.form.OnChange(handlers.FormChanged)
	}
	session.OnClose(func(err error) {
		r.note.Close()
		r.form.Close()
		if handlers.SessionClosed != nil {
			handlers.SessionClosed(err)
		}
	})

	session.Start(r.dispatch)
	return r, nil
}

// RoomID returns the joined room's identifier.
func (r *Room) RoomID() string { return r.roomID }

// Username returns the local sender identity.
func (r *Room) Username() string { return r.username }

// Feed exposes the message feed store.
func (r *Room) Feed() *Feed { return r.feed }

// Note exposes the shared note replica.
func (r *Room) Note() *Note { return r.note }

// Form exposes the shared proposal form replica.
func (r *Room) Form() *Form { return r.form }

// Done closes when the connection has terminated.
func (r *Room) Done() <-chan struct{} { return r.session.Done() }

// Close tears down the connection and cancels pending flushes.
func (r *Room) Close() error {
	r.note.Close()
	r.form.Close()
	return r.session.Close()
}

// SetStance selects the rhetorical classification for the next messages.
func (r *Room) SetStance(stance string) {
	r.mu.Lock()
	r.stance = stance
	r.mu.Unlock()
}

// Stance returns the currently selected stance.
func (r *Room) Stance() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stance
}

// SetReplyTarget quotes an existing feed message for the next send. The
// quoted username and content are snapshotted now, so a later deletion of
// the original does not blank the quote.
func (r *Room) SetReplyTarget(messageID string) error {
	m, ok := r.feed.Get(messageID)
	if !ok {
		return ErrUnknownMessage
	}

	r.mu.Lock()
	r.replyTarget = &domain.ReplyRef{
		MessageID: m.MessageID,
		Username:  m.Username,
		Content:   m.Content,
	}
	r.mu.Unlock()
	return nil
}

// ClearReplyTarget drops the pending quote.
func (r *Room) ClearReplyTarget() {
	r.mu.Lock()
	r.replyTarget = nil
	r.mu.Unlock()
}

// ReplyTarget returns the pending quote, or nil.
func (r *Room) ReplyTarget() *domain.ReplyRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replyTarget == nil {
		return nil
	}
	ref := *r.replyTarget
	return &ref
}

// AwaitingAnswer reports whether an AI question is still unanswered.
func (r *Room) AwaitingAnswer() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.awaitingAnswer
}

// ParticipantList returns the latest presence roster.
func (r *Room) ParticipantList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.participants))
	copy(out, r.participants)
	return out
}

// SendMessage validates and sends a chat message with the current stance
// and reply target. A message needs a selected stance and either content
// or an attachment. Questions to the AI are serialized: a new one is
// rejected while the previous answer is outstanding.
func (r *Room) SendMessage(content string, att *Attachment) error {
	if r.session.Closed() {
		return ErrSessionClosed
	}

	r.mu.Lock()
	stance := r.stance
	if stance == "" {
		r.mu.Unlock()
		return ErrStanceRequired
	}
	if content == "" && att == nil {
		r.mu.Unlock()
		return ErrEmptyMessage
	}
	if stance == domain.StanceGeminiQuestion {
		if r.awaitingAnswer {
			r.mu.Unlock()
			return ErrAwaitingAnswer
		}
		r.awaitingAnswer = true
	}
	out := &domain.OutboundMessage{
		Type:    domain.EnvMessage,
		Content: content,
		Stance:  stance,
	}
	if r.replyTarget != nil {
		out.ReplyToID = r.replyTarget.MessageID
		r.replyTarget = nil
	}
	r.mu.Unlock()

	if att != nil {
		out.FileURL = att.FileURL
		out.OriginalFilename = att.OriginalFilename
		out.GeminiFileRef = att.GeminiFileRef
	}

	if err := r.session.Send(out); err != nil {
		if stance == domain.StanceGeminiQuestion {
			r.mu.Lock()
			r.awaitingAnswer = false
			r.mu.Unlock()
		}
		return err
	}
	return nil
}

// React asks the server to toggle the given reaction on a message. The
// local count does not change until the server's reaction_update arrives.
func (r *Room) React(messageID, kind string) error {
	if _, ok := r.feed.Get(messageID); !ok {
		return ErrUnknownMessage
	}
	return r.session.Send(&domain.ReactionEnvelope{
		Type:      domain.EnvReaction,
		MessageID: messageID,
		Reaction:  kind,
	})
}

// DeleteMessage requests removal of one of the local user's own messages.
func (r *Room) DeleteMessage(messageID string) error {
	m, ok := r.feed.Get(messageID)
	if !ok {
		return ErrUnknownMessage
	}
	if m.Username != r.username {
		return ErrNotOwnMessage
	}
	return r.session.Send(&domain.MessageRefEnvelope{
		Type:      domain.EnvDeleteMessage,
		MessageID: messageID,
	})
}

// ResolveProposal marks an open proposal message as settled.
func (r *Room) ResolveProposal(messageID string) error {
	m, ok := r.feed.Get(messageID)
	if !ok {
		return ErrUnknownMessage
	}
	if !m.IsProposal() {
		return ErrNotProposal
	}
	return r.session.Send(&domain.MessageRefEnvelope{
		Type:      domain.EnvResolveProposal,
		MessageID: messageID,
	})
}

// PostProposal force-samples the supplied field values into the current
// form record, validates it, and posts its formatted text to the feed as
// a proposal message. fields may be nil when the form already holds the
// latest values.
func (r *Room) PostProposal(fields map[string]string) error {
	if fields != nil {
		if err := r.form.ApplySample(fields); err != nil {
			return err
		}
	}
	rec, _, n := r.form.Current()
	if n == 0 {
		return ErrNotSynced
	}
	if strings.TrimSpace(rec.Q1) == "" {
		return ErrEmptyWhat
	}

	return r.session.Send(&domain.OutboundMessage{
		Type:    domain.EnvMessage,
		Content: domain.FormatPosted(rec),
		Stance:  domain.StanceProposal,
	})
}

// Finish requests the terminal deliberation summary. It fires at most
// once per session.
func (r *Room) Finish() error {
	r.mu.Lock()
	if r.finishPending {
		r.mu.Unlock()
		return ErrFinishRequested
	}
	r.finishPending = true
	r.mu.Unlock()

	if err := r.session.Send(&domain.FinishEnvelope{Type: domain.EnvFinish}); err != nil {
		r.mu.Lock()
		r.finishPending = false
		r.mu.Unlock()
		return err
	}
	return nil
}

// send is the fire-and-forget path for debounced document flushes, which
// have no caller to report to.
func (r *Room) send(v interface{}) {
	if err := r.session.Send(v); err != nil && !errors.Is(err, ErrSessionClosed) {
		log.L().Warn().Err(err).Str(log.FieldRoomID, r.roomID).Msg("send failed")
	}
}

// dispatch routes one raw server envelope to the owning store. Unknown or
// malformed envelopes are logged and skipped; they never tear the session
// down.
func (r *Room) dispatch(data []byte) {
	decoded, err := domain.Decode(data)
	if err != nil {
		log.L().Warn().Err(err).Str(log.FieldRoomID, r.roomID).Msg("dropping envelope")
		return
	}

	switch env := decoded.(type) {
	case *domain.MessageEnvelope:
		r.feed.Ingest(env)
		if env.Type == domain.EnvGeminiResponse {
			r.mu.Lock()
			r.awaitingAnswer = false
			r.mu.Unlock()
		}

	case *domain.ReactionUpdateEnvelope:
		r.feed.ApplyReaction(env.MessageID, env.Reactions)

	case *domain.MessageRefEnvelope:
		switch env.Type {
		case domain.EnvMessageDeleted:
			r.feed.Delete(env.MessageID)
		case domain.EnvProposalResolved:
			r.feed.Resolve(env.MessageID)
		}

	case *domain.NoteEnvelope:
		// Init fires the change notification itself.
		if env.Type == domain.EnvNoteInitialState {
			r.note.Init(env.Content)
		} else {
			r.note.ApplyRemote(env.Sender, env.Content)
		}

	case *domain.FormEnvelope:
		if env.Type == domain.EnvFormInitialState {
			r.form.Init(env.Proposals)
		} else {
			r.form.ApplyRemote(env.Sender, env.Proposals)
		}

	case *domain.SystemMessageEnvelope:
		if r.handlers.SystemMessage != nil {
			r.handlers.SystemMessage(env.Content)
		}

	case *domain.SummaryEnvelope:
		if r.handlers.Summary != nil {
			r.handlers.Summary(env.Content, env.ExcelURL)
		}

	case *domain.ParticipantUpdateEnvelope:
		r.mu.Lock()
		r.participants = append([]string(nil), env.Users...)
		r.mu.Unlock()
		if r.handlers.Participants != nil {
			r.handlers.Participants(env.Users)
		}

	default:
		log.L().Debug().Str(log.FieldRoomID, r.roomID).
			Str(log.FieldEnvelope, fmt.Sprintf("%T", env)).Msg("unhandled envelope")
	}
}
