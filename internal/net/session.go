package net

import (
	"crypto/rand"
	"encoding/hex"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/net/packet"
)

// Session represents a single WebSocket connection. Network I/O runs in
// dedicated goroutines; game state is accessed only from the game loop.
type Session struct {
	ID   string
	conn net.Conn

	state atomic.Int32 // packet.SessionState stored as int32

	InQueue  chan []byte // game loop reads messages from here
	OutQueue chan []byte // writer goroutine reads from here

	IP          string
	AccountID   string
	CharacterID string
	PlayerID    string // entity id once in world

	outBuf [][]byte // buffered frames, flushed once per tick by OutputSystem

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	closeCode uint16
	closeText string

	// Per-second message rate limiter (readLoop goroutine only)
	msgPerSec  int
	msgCount   int
	msgResetAt int64

	writeTimeout time.Duration

	log *zap.Logger
}

// NewSessionID mints a random socket id.
func NewSessionID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "sock-" + hex.EncodeToString([]byte(time.Now().String()))[:16]
	}
	return "sock-" + hex.EncodeToString(b[:])
}

func NewSession(conn net.Conn, id, ip string, inSize, outSize, msgPerSec int, log *zap.Logger) *Session {
	s := &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan []byte, inSize),
		OutQueue:     make(chan []byte, outSize),
		IP:           ip,
		closeCh:      make(chan struct{}),
		msgPerSec:    msgPerSec,
		writeTimeout: 10 * time.Second,
		log:          log.With(zap.String("session", id)),
	}
	s.state.Store(int32(packet.StateHandshake))
	return s
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a frame for sending. Nothing is written to the socket until
// FlushOutput runs at the output phase. Game loop goroutine only.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// SendNow bypasses the tick buffer and enqueues directly to the writer.
// Used during the handshake, before the session joins the game loop.
func (s *Session) SendNow(data []byte) {
	if s.closed.Load() {
		return
	}
	select {
	case s.OutQueue <- data:
	default:
		s.log.Warn("output queue full during handshake, disconnecting")
		s.CloseWithCode(packet.CloseRateLimited, "slow consumer")
	}
}

// FlushOutput drains the tick buffer to OutQueue for the writeLoop.
// Non-blocking: a full OutQueue means a consumer too slow to keep up with
// the tick rate, and the session is disconnected.
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, disconnecting slow consumer")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// PendingOut reports buffered frames not yet flushed. Test helper.
func (s *Session) PendingOut() int { return len(s.outBuf) }

// Close shuts the session down with a normal closure code.
func (s *Session) Close() {
	s.CloseWithCode(uint16(ws.StatusNormalClosure), "")
}

// CloseWithCode sends a close frame with the given status code and shuts
// the session down. The first close wins; later codes are ignored.
func (s *Session) CloseWithCode(code uint16, reason string) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeCode = code
		s.closeText = reason
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)

		frame := ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusCode(code), reason))
		s.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		ws.WriteFrame(s.conn, frame)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// CloseReason reports the close code and reason after the session closed.
func (s *Session) CloseReason() (uint16, string) {
	return s.closeCode, s.closeText
}

// Done is closed when the session shuts down.
func (s *Session) Done() <-chan struct{} { return s.closeCh }

// readLoop reads WebSocket frames and pushes payloads onto InQueue for the
// game loop. Runs in its own goroutine.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		data, op, err := wsutil.ReadClientData(s.conn)
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}

		if s.msgPerSec > 0 {
			now := time.Now().Unix()
			if now != s.msgResetAt {
				s.msgCount = 0
				s.msgResetAt = now
			}
			s.msgCount++
			if s.msgCount > s.msgPerSec {
				s.log.Warn("message rate exceeded, disconnecting", zap.Int("mps", s.msgCount))
				s.CloseWithCode(packet.CloseRateLimited, "message rate exceeded")
				return
			}
		}

		// Block until InQueue has space or the session closes. The readLoop
		// is per-session, so blocking only stalls this client; dropping move
		// requests would desync the server-tracked position.
		select {
		case s.InQueue <- data:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop reads frames from OutQueue and writes them as binary WebSocket
// messages. Runs in its own goroutine.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOne(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeOne(data []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := wsutil.WriteServerBinary(s.conn, data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	return true
}
