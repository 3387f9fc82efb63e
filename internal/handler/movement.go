package handler

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/net"
)

type vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandleMoveRequest starts click-to-move toward a ground target. A null
// target or an explicit cancel stops the mover in place with a terminal
// idle packet. The optional reported position feeds movement validation.
// Runs on the game loop.
func HandleMoveRequest(sess *net.Session, payload json.RawMessage, deps *Deps) {
	var req struct {
		Target   *vec3 `json:"target"`
		Run      bool  `json:"run"`
		Cancel   bool  `json:"cancel"`
		Position *vec3 `json:"position"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		deps.Log.Debug("bad moveRequest", zap.String("session", sess.ID), zap.Error(err))
		return
	}

	p := deps.World.PlayerBySocket(sess.ID)
	if p == nil {
		return
	}
	if p.IsLoading {
		// Not ready to act yet; ignore rather than queue.
		return
	}

	if req.Position != nil {
		deps.Validator.ReportPosition(p, req.Position.X, req.Position.Y, req.Position.Z, time.Now())
	}
	if req.Target == nil || req.Cancel {
		deps.Movement.Cancel(p)
		return
	}
	deps.Movement.MoveRequest(p, req.Target.X, req.Target.Z, req.Run)
}

// HandleClientReady clears the loading shield once the client has built
// the scene.
func HandleClientReady(sess *net.Session, _ json.RawMessage, deps *Deps) {
	p := deps.World.PlayerBySocket(sess.ID)
	if p == nil {
		return
	}
	if !p.IsLoading {
		return
	}
	p.IsLoading = false
	deps.Log.Debug("client ready",
		zap.String("player", p.ID),
		zap.Duration("load_time", time.Since(p.LoadingStarted)),
	)
}

// HandleFaceRequest points a standing player at a point or at a resource
// footprint. Resolution is deferred to the end of the tick.
func HandleFaceRequest(sess *net.Session, payload json.RawMessage, deps *Deps) {
	var req struct {
		Point    *vec3  `json:"point"`
		Resource string `json:"resourceId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	p := deps.World.PlayerBySocket(sess.ID)
	if p == nil || p.IsLoading {
		return
	}
	if req.Resource != "" {
		if e := deps.World.Entity(req.Resource); e != nil {
			tpl := deps.Resources.Get(e.Name)
			w, d := 1.0, 1.0
			if tpl != nil {
				w, d = tpl.Width, tpl.Depth
			}
			deps.Facing.SetCardinalFaceTarget(p, e.X, e.Z, w, d)
			if deps.Config.Env.DebugPendingGather {
				deps.Log.Debug("gather face target set",
					zap.String("player", p.ID),
					zap.String("resource", e.ID),
					zap.Stringer("cardinal", p.CardinalFace),
				)
			}
			return
		}
	}
	if req.Point != nil {
		deps.Facing.SetFaceTarget(p, req.Point.X, req.Point.Z)
	}
}
