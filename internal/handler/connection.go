package handler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/auth"
	"github.com/hyperscape/server/internal/metrics"
	"github.com/hyperscape/server/internal/net"
	"github.com/hyperscape/server/internal/net/packet"
	"github.com/hyperscape/server/internal/persist"
)

// Handshake pacing.
const (
	terrainWaitTimeout = 10 * time.Second
	terrainPollEvery   = 100 * time.Millisecond
	handshakeTimeout   = 60 * time.Second
)

// SpawnRequest is a fully loaded enterWorld, handed to the game loop.
type SpawnRequest struct {
	Sess      *net.Session
	Spectate  bool
	Follow    string // entity id a spectator wants to watch
	Char      *persist.CharacterRow
	Skills    map[string]persist.SkillRow
	Items     []persist.InventoryItemRow
	Equipment map[string]string
	AutoRet   bool
}

// ConnectionManager owns the pre-world phase of every session: terrain
// readiness, authentication and character selection all happen on a
// per-connection goroutine so database latency never stalls the tick.
type ConnectionManager struct {
	reg  *packet.Registry
	deps *Deps
	log  *zap.Logger
}

func NewConnectionManager(reg *packet.Registry, deps *Deps) *ConnectionManager {
	return &ConnectionManager{reg: reg, deps: deps, log: deps.Log}
}

// Run drives one session through the handshake. Returns when the session
// enters the world (game loop takes over), or when it dies first.
func (cm *ConnectionManager) Run(sess *net.Session) {
	if !cm.waitTerrain(sess) {
		cm.log.Warn("terrain not ready, refusing connection", zap.String("session", sess.ID))
		sess.CloseWithCode(packet.CloseServerShutdown, "world not ready")
		return
	}

	metrics.ConnectedSessions.Inc()
	defer metrics.ConnectedSessions.Dec()

	deadline := time.NewTimer(handshakeTimeout)
	defer deadline.Stop()

	for {
		select {
		case data := <-sess.InQueue:
			metrics.MessagesIn.Inc()
			if err := cm.reg.Dispatch(sess, sess.State(), data); err != nil {
				cm.log.Debug("handshake dispatch", zap.String("session", sess.ID), zap.Error(err))
			}
			switch sess.State() {
			case packet.StateInWorld, packet.StateSpectator:
				// Game loop owns the queue from here.
				return
			case packet.StateDisconnecting:
				return
			}
		case <-deadline.C:
			cm.log.Info("handshake timed out", zap.String("session", sess.ID))
			sess.CloseWithCode(packet.CloseAuthFailed, "handshake timeout")
			return
		case <-sess.Done():
			return
		}
	}
}

// waitTerrain polls until the terrain reports ready, bounded by the wait
// timeout. Spawn heights cannot be computed before that.
func (cm *ConnectionManager) waitTerrain(sess *net.Session) bool {
	if cm.deps.Terrain.Ready() {
		return true
	}
	deadline := time.Now().Add(terrainWaitTimeout)
	ticker := time.NewTicker(terrainPollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if cm.deps.Terrain.Ready() {
				return true
			}
			if time.Now().After(deadline) {
				return false
			}
		case <-sess.Done():
			return false
		}
	}
}

// HandleAuthenticate resolves credentials and moves the session to
// character select. Runs on the connection goroutine.
func HandleAuthenticate(sess *net.Session, payload json.RawMessage, deps *Deps) {
	var req auth.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		sess.SendNow(packet.EncodeJSON(packet.SAuthFailed, map[string]string{"reason": "bad request"}))
		sess.CloseWithCode(packet.CloseAuthFailed, "malformed authenticate")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ident, err := deps.Auth.Authenticate(ctx, req, sess.IP)
	if err != nil {
		reason := "authentication failed"
		code := uint16(packet.CloseAuthFailed)
		if err == auth.ErrRateLimited {
			reason = "too many anonymous accounts"
			code = packet.CloseRateLimited
		}
		deps.Log.Info("auth failed",
			zap.String("session", sess.ID),
			zap.String("ip", sess.IP),
			zap.Error(err),
		)
		sess.SendNow(packet.EncodeJSON(packet.SAuthFailed, map[string]string{"reason": reason}))
		sess.CloseWithCode(code, reason)
		return
	}

	sess.AccountID = ident.AccountID
	sess.SetState(packet.StateCharacterSelect)
	sess.SendNow(packet.EncodeJSON(packet.SAuthenticated, map[string]any{
		"accountId":   ident.AccountID,
		"displayName": ident.DisplayName,
		"roles":       ident.Roles,
		"anonymous":   ident.IsAnonymous,
		"token":       ident.Token,
	}))
}
