package packet

import (
	"encoding/json"
	"fmt"
)

// Client→server messages are JSON envelopes; server→client messages are
// binary frames of [u8 nameLen][name][payload] where payload is either
// JSON or a packed binary body (entity update batches).

// Inbound message names.
const (
	CAuthenticate    = "authenticate"
	CCharacterList   = "characterList"
	CCharacterCreate = "characterCreate"
	CCharacterSelect = "characterSelect"
	CEnterWorld      = "enterWorld"
	CClientReady     = "clientReady"
	CMoveRequest     = "moveRequest"
	CFaceRequest     = "faceRequest"
	CChat            = "chat"
	CInventoryQuery  = "inventoryRequest"
	CDialogueChoice  = "dialogueChoice"
	CTradeRequest    = "tradeRequest"
	CTradeResponse   = "tradeResponse"
	CTradeAddItem    = "tradeAddItem"
	CTradeRemoveItem = "tradeRemoveItem"
	CTradeAccept     = "tradeAccept"
	CTradeConfirm    = "tradeConfirm"
	CTradeCancel     = "tradeCancel"
	CPing            = "ping"
)

// Outbound message names.
const (
	SAuthenticated      = "authenticated"
	SAuthFailed         = "authFailed"
	SCharacterList      = "characterList"
	SCharacterCreated   = "characterCreated"
	SCharacterSelected  = "characterSelected"
	SEnterWorldRejected = "enterWorldRejected"
	SKick               = "kick"
	SWorldState         = "worldState"
	SEntityUpdates      = "entityUpdates"
	SEntityModified     = "entityModified"
	SEntitySpawned      = "entitySpawned"
	SEntityDespawned    = "entityDespawned"
	SPlayerJoined       = "playerJoined"
	SPlayerLeft         = "playerLeft"
	SInventory          = "inventoryUpdated"
	SCoins              = "coinsUpdated"
	SSkills             = "skillsUpdated"
	SPlayerStats        = "playerUpdated"
	SCombatDamage       = "combatDamage"
	SChat               = "chat"
	SUIMessage          = "uiMessage"
	SDialogueStart      = "dialogueStart"
	SDialogueNode       = "dialogueNodeChange"
	SDialogueEnd        = "dialogueEnd"
	SBankOpen           = "bankOpen"
	SStoreOpen          = "storeOpen"
	STradeRequested     = "tradeRequested"
	STradeStarted       = "tradeStarted"
	STradeUpdated       = "tradeUpdated"
	STradeConfirming    = "tradeConfirming"
	STradeCompleted     = "tradeCompleted"
	STradeCancelled     = "tradeCancelled"
	SResourceSpawned    = "resourceSpawned"
	SResourceDepleted   = "resourceDepleted"
	SResourceRespawned  = "resourceRespawned"
	SPong               = "pong"
	SError              = "serverError"
)

// WebSocket close codes.
const (
	CloseAuthFailed      = 4001
	CloseSessionReplaced = 4003
	CloseKicked          = 4004
	CloseRateLimited     = 4029
	CloseServerShutdown  = 1001
)

// Envelope is the inbound JSON shape.
type Envelope struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeEnvelope parses an inbound text frame. The name must be non-empty.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Name == "" {
		return nil, fmt.Errorf("envelope missing name")
	}
	return &env, nil
}

// Encode builds an outbound frame from a name and raw payload bytes.
func Encode(name string, payload []byte) []byte {
	if len(name) > 255 {
		name = name[:255]
	}
	buf := make([]byte, 1+len(name)+len(payload))
	buf[0] = byte(len(name))
	copy(buf[1:], name)
	copy(buf[1+len(name):], payload)
	return buf
}

// EncodeJSON builds an outbound frame with a JSON payload. Marshal failures
// are programming errors; they produce an empty-payload frame.
func EncodeJSON(name string, v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		return Encode(name, nil)
	}
	return Encode(name, payload)
}

// Decode splits an outbound frame back into name and payload. Test helper
// and bridge-side inspection only.
func Decode(data []byte) (name string, payload []byte, err error) {
	if len(data) < 1 {
		return "", nil, fmt.Errorf("frame too short")
	}
	n := int(data[0])
	if len(data) < 1+n {
		return "", nil, fmt.Errorf("frame shorter than name length %d", n)
	}
	return string(data[1 : 1+n]), data[1+n:], nil
}
