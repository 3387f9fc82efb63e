package net

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"go.uber.org/zap"
)

// Server upgrades HTTP requests to WebSocket connections and creates
// Sessions. New/dead sessions are communicated to the game loop via
// channels.
type Server struct {
	httpSrv      *http.Server
	newConns     chan *Session
	deadCh       chan string // socket ids of dead sessions
	inSize       int
	outSize      int
	msgRate      int
	writeTimeout time.Duration
	log          *zap.Logger
	closeCh      chan struct{}
}

func NewServer(bindAddr string, inSize, outSize, msgRate int, writeTimeout time.Duration, log *zap.Logger, extra http.Handler) *Server {
	s := &Server{
		newConns:     make(chan *Session, 64),
		deadCh:       make(chan string, 64),
		inSize:       inSize,
		outSize:      outSize,
		msgRate:      msgRate,
		writeTimeout: writeTimeout,
		log:          log,
		closeCh:      make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	if extra != nil {
		mux.Handle("/", extra)
	}
	s.httpSrv = &http.Server{
		Addr:              bindAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving HTTP until shutdown.
func (s *Server) ListenAndServe() error {
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.closeCh:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	ip := clientIP(r)
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.log.Warn("upgrade failed", zap.String("ip", ip), zap.Error(err))
		return
	}

	sess := NewSession(conn, NewSessionID(), ip, s.inSize, s.outSize, s.msgRate, s.log)
	if s.writeTimeout > 0 {
		sess.writeTimeout = s.writeTimeout
	}
	sess.Start()

	s.log.Info("client connected", zap.String("session", sess.ID), zap.String("ip", ip))

	select {
	case s.newConns <- sess:
	default:
		s.log.Warn("connection queue full, rejecting")
		sess.Close()
	}
}

// clientIP prefers X-Forwarded-For so rate limiting survives a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// NotifyDead reports a dead socket id to the game loop.
func (s *Server) NotifyDead(socketID string) {
	select {
	case s.deadCh <- socketID:
	default:
	}
}

// DeadSessions returns the channel of dead socket ids.
func (s *Server) DeadSessions() <-chan string {
	return s.deadCh
}

// Shutdown stops accepting connections and closes the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.closeCh)
	return s.httpSrv.Shutdown(ctx)
}
