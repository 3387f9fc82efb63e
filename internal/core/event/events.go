package event

// Game-side events bridged to clients. Events carrying a PlayerID are
// unicast to that player's socket; the rest are broadcast to the entity's
// AOI subscribers or to everyone, per the bridge routing table.

// ResourceSpawned fires when a gatherable resource enters the world.
type ResourceSpawned struct {
	ResourceID   string
	ResourceType string
	X, Y, Z      float64
}

// ResourceDepleted fires when a resource is exhausted by gathering.
type ResourceDepleted struct {
	ResourceID string
}

// ResourceRespawned fires when a depleted resource becomes available again.
type ResourceRespawned struct {
	ResourceID string
}

// ResourceSpawnPointsRegistered fires once after world data load.
type ResourceSpawnPointsRegistered struct {
	Count int
}

// InventoryInitialized carries the first full inventory snapshot after the
// character's items finish loading.
type InventoryInitialized struct {
	PlayerID string
	Items    []InventoryItem
	Coins    int64
}

// InventoryUpdated carries a full inventory snapshot after any change.
type InventoryUpdated struct {
	PlayerID string
	Items    []InventoryItem
	Coins    int64
}

// InventoryItem is the bridge-facing inventory slot shape.
type InventoryItem struct {
	Slot     int    `json:"slot"`
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// CoinsUpdated fires when only the coin balance changed.
type CoinsUpdated struct {
	PlayerID string
	Coins    int64
}

// InventoryRequest asks the inventory owner to re-send a snapshot. Replies
// are suppressed while the inventory is still loading.
type InventoryRequest struct {
	PlayerID string
}

// SkillsUpdated carries the full skill map after an XP or level change.
type SkillsUpdated struct {
	PlayerID string
	Skills   map[string]SkillEntry
}

// SkillEntry mirrors the persisted skill shape for the bridge.
type SkillEntry struct {
	Level int   `json:"level"`
	XP    int64 `json:"xp"`
}

// PlayerUpdated carries a coalesced player stat snapshot (health, state).
type PlayerUpdated struct {
	PlayerID  string
	Health    int
	MaxHealth int
	State     string
}

// CombatDamageDealt fires per damage application, broadcast to the
// victim's AOI subscribers for hit-splat rendering.
type CombatDamageDealt struct {
	AttackerID string
	TargetID   string
	Damage     int
}

// ChatMessage fires for accepted chat lines; broadcast to the speaker's
// AOI subscribers.
type ChatMessage struct {
	PlayerID string
	Name     string
	Text     string
}

// UIMessage is a unicast toast/notice line.
type UIMessage struct {
	PlayerID string
	Text     string
	Kind     string // "info", "warning", "error"
}

// DialogueStart opens a dialogue window on the client.
type DialogueStart struct {
	PlayerID  string
	NPCID     string
	NodeID    string
	Text      string
	Responses []string
}

// DialogueNodeChange advances an open dialogue to a new node.
type DialogueNodeChange struct {
	PlayerID  string
	NodeID    string
	Text      string
	Responses []string
}

// DialogueEnd closes the dialogue window.
type DialogueEnd struct {
	PlayerID string
}

// BankOpenRequest asks the client to open the bank interface.
type BankOpenRequest struct {
	PlayerID string
	BankID   string
	Items    []InventoryItem
}

// StoreOpenRequest asks the client to open a shop interface.
type StoreOpenRequest struct {
	PlayerID string
	StoreID  string
}

// TradeStarted fires when both parties enter the active trade screen.
type TradeStarted struct {
	TradeID  string
	PlayerA  string
	PlayerB  string
}

// TradeCancelled fires on any cancellation path. Reason is client-facing.
type TradeCancelled struct {
	TradeID string
	PlayerA string
	PlayerB string
	Reason  string
}

// TradeCompleted fires after the atomic item swap commits.
type TradeCompleted struct {
	TradeID string
	PlayerA string
	PlayerB string
}

// PlayerJoined fires after a player fully enters the world.
type PlayerJoined struct {
	PlayerID string
	Name     string
}

// PlayerLeft fires when a player despawns for any reason.
type PlayerLeft struct {
	PlayerID string
	Name     string
}
