package packet

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// SessionState represents the session's current protocol phase.
type SessionState int

const (
	StateHandshake       SessionState = iota
	StateCharacterSelect              // authenticated, picking a character
	StateInWorld                      // playing
	StateSpectator                    // connected past the player cap, observe only
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateHandshake:
		return "Handshake"
	case StateCharacterSelect:
		return "CharacterSelect"
	case StateInWorld:
		return "InWorld"
	case StateSpectator:
		return "Spectator"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// HandlerFunc is the callback signature for message handlers. The session
// pointer is passed as an opaque interface to avoid import cycles.
type HandlerFunc func(sess any, payload json.RawMessage)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[SessionState]bool
}

// Registry maps message names to handlers with state-based access control.
type Registry struct {
	handlers map[string]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]*handlerEntry),
		log:      log,
	}
}

// Register maps a message name to a handler, restricted to the given states.
func (reg *Registry) Register(name string, states []SessionState, fn HandlerFunc) {
	allowed := make(map[SessionState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	reg.handlers[name] = &handlerEntry{
		fn:            fn,
		allowedStates: allowed,
	}
}

// Dispatch decodes the envelope, validates the session state, and calls the
// handler. Unknown names are ignored; a state mismatch is an error the
// caller may log but must not disconnect over.
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return err
	}
	reg.log.Debug("message received",
		zap.String("name", env.Name),
		zap.Int("size", len(data)),
		zap.String("state", state.String()),
	)

	entry, ok := reg.handlers[env.Name]
	if !ok {
		reg.log.Debug("unknown message", zap.String("name", env.Name), zap.String("state", state.String()))
		return nil
	}

	if !entry.allowedStates[state] {
		reg.log.Warn("message not allowed in state",
			zap.String("name", env.Name),
			zap.String("state", state.String()),
		)
		return fmt.Errorf("message %q not allowed in state %s", env.Name, state)
	}

	return reg.safeCall(entry.fn, sess, env)
}

// safeCall executes a handler with panic recovery so one bad message cannot
// crash the game loop.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, env *Envelope) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("handler panic recovered",
				zap.String("name", env.Name),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for %q: %v", env.Name, rec)
		}
	}()
	fn(sess, env.Payload)
	return nil
}
