// README: One websocket session: buffered outbound queue drained by a single writer goroutine.
package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"foodtrack/internal/contracts"
	"foodtrack/internal/types"
)

const pingEvery = 30 * time.Second

// Conn is the part of *websocket.Conn a session needs.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// pinger is implemented by *websocket.Conn.
type pinger interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

type Session struct {
	who    types.Identity
	conn   Conn
	send   chan contracts.Frame
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	// guarded by Hub.mu
	rooms     map[string]struct{}
	orderRoom string
}

func newSession(conn Conn, who types.Identity, buf int, logger *slog.Logger) *Session {
	return &Session{
		who:    who,
		conn:   conn,
		send:   make(chan contracts.Frame, buf),
		done:   make(chan struct{}),
		logger: logger,
		rooms:  make(map[string]struct{}),
	}
}

func (s *Session) Identity() types.Identity { return s.who }

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// enqueue reports false when the queue is full.
func (s *Session) enqueue(f contracts.Frame) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.send <- f:
		return true
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) writeLoop() {
	var ping <-chan time.Time
	p, canPing := s.conn.(pinger)
	if canPing {
		t := time.NewTicker(pingEvery)
		defer t.Stop()
		ping = t.C
	}
	for {
		select {
		case <-s.done:
			return
		case f := <-s.send:
			if err := s.conn.WriteJSON(f); err != nil {
				s.logger.Debug("ws_write_failed", "user_id", string(s.who.ID), "error", err)
				s.close()
				return
			}
		case <-ping:
			if err := p.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				s.close()
				return
			}
		}
	}
}

func (s *Session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
