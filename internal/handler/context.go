package handler

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/auth"
	"github.com/hyperscape/server/internal/broadcast"
	"github.com/hyperscape/server/internal/config"
	"github.com/hyperscape/server/internal/core/event"
	"github.com/hyperscape/server/internal/data"
	"github.com/hyperscape/server/internal/game"
	"github.com/hyperscape/server/internal/game/trade"
	"github.com/hyperscape/server/internal/net"
	"github.com/hyperscape/server/internal/net/packet"
	"github.com/hyperscape/server/internal/persist"
	"github.com/hyperscape/server/internal/scripting"
	"github.com/hyperscape/server/internal/world"
)

// Deps holds shared dependencies injected into all message handlers.
type Deps struct {
	Config   *config.Config
	Log      *zap.Logger
	World    *world.State
	Terrain  world.Terrain
	Bus      *event.Bus
	Bc       *broadcast.Broadcaster
	Sessions *net.SessionTable

	Movement  *game.MovementManager
	Facing    *game.FaceDirectionManager
	Validator *game.PositionValidator
	Trades    *trade.System

	Auth      *auth.Authenticator
	Accounts  *persist.AccountRepo
	Chars     *persist.CharacterRepo
	Skills    *persist.SkillRepo
	Inventory *persist.InventoryRepo
	Equipment *persist.EquipmentRepo

	Areas     *data.AreaTable
	Resources *data.ResourceTable
	Scripts   *scripting.Engine
	Chat      *ChatLog

	// SpawnCh hands finished enterWorld requests from connection goroutines
	// to the game loop.
	SpawnCh chan *SpawnRequest
}

// RegisterAll registers all message handlers into the registry. Handshake
// and character-select messages run on the per-connection goroutine; the
// game loop dispatches the in-world set. State gating keeps each message
// on its own side.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	handshake := []packet.SessionState{packet.StateHandshake}
	charSelect := []packet.SessionState{packet.StateCharacterSelect}
	inWorld := []packet.SessionState{packet.StateInWorld}
	anyAlive := []packet.SessionState{
		packet.StateHandshake, packet.StateCharacterSelect,
		packet.StateInWorld, packet.StateSpectator,
	}

	reg.Register(packet.CAuthenticate, handshake,
		func(sess any, payload json.RawMessage) {
			HandleAuthenticate(sess.(*net.Session), payload, deps)
		},
	)

	reg.Register(packet.CCharacterList, charSelect,
		func(sess any, payload json.RawMessage) {
			HandleCharacterList(sess.(*net.Session), payload, deps)
		},
	)
	reg.Register(packet.CCharacterCreate, charSelect,
		func(sess any, payload json.RawMessage) {
			HandleCharacterCreate(sess.(*net.Session), payload, deps)
		},
	)
	reg.Register(packet.CCharacterSelect, charSelect,
		func(sess any, payload json.RawMessage) {
			HandleCharacterSelect(sess.(*net.Session), payload, deps)
		},
	)
	reg.Register(packet.CEnterWorld, charSelect,
		func(sess any, payload json.RawMessage) {
			HandleEnterWorld(sess.(*net.Session), payload, deps)
		},
	)

	reg.Register(packet.CClientReady, inWorld,
		func(sess any, payload json.RawMessage) {
			HandleClientReady(sess.(*net.Session), payload, deps)
		},
	)
	reg.Register(packet.CMoveRequest, inWorld,
		func(sess any, payload json.RawMessage) {
			HandleMoveRequest(sess.(*net.Session), payload, deps)
		},
	)
	reg.Register(packet.CFaceRequest, inWorld,
		func(sess any, payload json.RawMessage) {
			HandleFaceRequest(sess.(*net.Session), payload, deps)
		},
	)
	reg.Register(packet.CChat, inWorld,
		func(sess any, payload json.RawMessage) {
			HandleChat(sess.(*net.Session), payload, deps)
		},
	)
	reg.Register(packet.CInventoryQuery, inWorld,
		func(sess any, payload json.RawMessage) {
			HandleInventoryRequest(sess.(*net.Session), payload, deps)
		},
	)
	reg.Register(packet.CDialogueChoice, inWorld,
		func(sess any, payload json.RawMessage) {
			HandleDialogueChoice(sess.(*net.Session), payload, deps)
		},
	)

	reg.Register(packet.CTradeRequest, inWorld,
		func(sess any, payload json.RawMessage) {
			HandleTradeRequest(sess.(*net.Session), payload, deps)
		},
	)
	reg.Register(packet.CTradeResponse, inWorld,
		func(sess any, payload json.RawMessage) {
			HandleTradeResponse(sess.(*net.Session), payload, deps)
		},
	)
	reg.Register(packet.CTradeAddItem, inWorld,
		func(sess any, payload json.RawMessage) {
			HandleTradeAddItem(sess.(*net.Session), payload, deps)
		},
	)
	reg.Register(packet.CTradeRemoveItem, inWorld,
		func(sess any, payload json.RawMessage) {
			HandleTradeRemoveItem(sess.(*net.Session), payload, deps)
		},
	)
	reg.Register(packet.CTradeAccept, inWorld,
		func(sess any, payload json.RawMessage) {
			HandleTradeAccept(sess.(*net.Session), payload, deps)
		},
	)
	reg.Register(packet.CTradeConfirm, inWorld,
		func(sess any, payload json.RawMessage) {
			HandleTradeConfirm(sess.(*net.Session), payload, deps)
		},
	)
	reg.Register(packet.CTradeCancel, inWorld,
		func(sess any, payload json.RawMessage) {
			HandleTradeCancel(sess.(*net.Session), payload, deps)
		},
	)

	reg.Register(packet.CPing, anyAlive,
		func(sess any, payload json.RawMessage) {
			// Direct to the writer: pre-world sessions have no tick flush.
			sess.(*net.Session).SendNow(packet.Encode(packet.SPong, payload))
		},
	)
}
