package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/log"
)

// ErrSessionClosed is returned by Send after the connection has terminated.
var ErrSessionClosed = errors.New("session closed")

// Session owns the single bidirectional connection to the deliberation
// server. Envelopes are delivered to the handler strictly in receipt order;
// the session performs no buffering or reordering. Once closed, a session
// is terminal: there is no reconnect, dependents must disable their
// outbound affordances.
type Session struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}

	mu      sync.Mutex
	onClose func(error)
}

// Dial opens a WebSocket connection to the given endpoint.
func Dial(ctx context.Context, endpoint string) (*Session, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return &Session{
		conn: conn,
		done: make(chan struct{}),
	}, nil
}

// OnClose registers the close hook. It fires exactly once, from the read
// loop goroutine or from Close.
func (s *Session) OnClose(fn func(error)) {
	s.mu.Lock()
	s.onClose = fn
	s.mu.Unlock()
}

// Start launches the read loop. Each inbound frame is handed to handler on
// a single goroutine, preserving connection FIFO order.
func (s *Session) Start(handler func(data []byte)) {
	go func() {
		for {
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.L().Warn().Err(err).Msg("websocket read failed")
				}
				s.terminate(err)
				return
			}
			handler(data)
		}
	}()
}

// Send marshals v as JSON and writes it as a single text frame.
func (s *Session) Send(v interface{}) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	err = s.conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()

	if err != nil {
		s.terminate(err)
		return ErrSessionClosed
	}
	return nil
}

// Done is closed when the session terminates.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether the session has terminated.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close terminates the session.
func (s *Session) Close() error {
	s.terminate(nil)
	return nil
}

func (s *Session) terminate(err error) {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()

		s.mu.Lock()
		fn := s.onClose
		s.mu.Unlock()
		if fn != nil {
			fn(err)
		}
	})
}
