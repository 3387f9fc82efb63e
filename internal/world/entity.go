package world

import "time"

// EntityType tags the world object kind. The wire uses the same strings.
type EntityType string

const (
	TypePlayer   EntityType = "player"
	TypeMob      EntityType = "mob"
	TypeItem     EntityType = "item"
	TypeNPC      EntityType = "npc"
	TypeResource EntityType = "resource"
)

// Entity is a uniquely-identified world object. Position is authoritative
// on the server; an entity belongs to exactly one AOI cell at any time.
type Entity struct {
	ID   string
	Type EntityType
	Name string

	X, Y, Z float64
	// Rotation quaternion (x, y, z, w). Identity when never rotated.
	QX, QY, QZ, QW float64

	Health    int
	MaxHealth int

	// Locomotion state: "idle", "walk", "run", ...
	State string
}

// Position returns the entity position as a components triple.
func (e *Entity) Position() (x, y, z float64) {
	return e.X, e.Y, e.Z
}

// Skill is one entry of a player's skill map.
type Skill struct {
	Level int   `json:"level"`
	XP    int64 `json:"xp"`
}

// ItemStack references an inventory slot's content.
type ItemStack struct {
	Slot     int    `json:"slot"`
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// InventorySlots is the OSRS inventory size; slots are 0..27.
const InventorySlots = 28

// Inventory is a player's in-memory inventory. Slot-indexed; nil-able
// entries are represented by Quantity == 0.
type Inventory struct {
	Slots [InventorySlots]ItemStack
	Coins int64
	// Loading is true until the initial load completes; inventoryRequest
	// replies are suppressed while set.
	Loading bool
}

// Items returns the occupied slots in slot order.
func (inv *Inventory) Items() []ItemStack {
	out := make([]ItemStack, 0, InventorySlots)
	for i, s := range inv.Slots {
		if s.Quantity > 0 {
			s.Slot = i
			out = append(out, s)
		}
	}
	return out
}

// At returns the stack in a slot, or false when the slot is empty or out
// of range.
func (inv *Inventory) At(slot int) (ItemStack, bool) {
	if slot < 0 || slot >= InventorySlots {
		return ItemStack{}, false
	}
	s := inv.Slots[slot]
	if s.Quantity <= 0 {
		return ItemStack{}, false
	}
	s.Slot = slot
	return s, true
}

// FacePoint is a pending point face target (tick-deferred).
type FacePoint struct {
	X, Z float64
}

// Cardinal is one of the four resource-facing directions.
type Cardinal byte

const (
	CardinalNone Cardinal = iota
	CardinalNorth
	CardinalSouth
	CardinalEast
	CardinalWest
)

func (c Cardinal) String() string {
	switch c {
	case CardinalNorth:
		return "N"
	case CardinalSouth:
		return "S"
	case CardinalEast:
		return "E"
	case CardinalWest:
		return "W"
	}
	return ""
}

// Player is a player entity with its session bindings and per-tick
// interaction state. Created on enterWorld, destroyed on disconnect or
// stale-entity reclamation.
type Player struct {
	Entity

	SocketID    string
	AccountID   string
	CharacterID string

	Skills    map[string]Skill
	Inventory Inventory
	Equipment map[string]string // slot name → item id

	// Face-direction state. At most one of FaceTarget/CardinalFace is set;
	// cardinal takes priority when both are.
	FaceTarget    *FacePoint
	CardinalFace  Cardinal
	MovedThisTick bool

	// IsLoading players are immune to hostile interaction until the client
	// acknowledges with clientReady (or the 30s watchdog fires).
	IsLoading      bool
	LoadingStarted time.Time

	AutoRetaliate bool

	// Open NPC conversation, if any. Cleared when the dialogue ends.
	DialogueNPC  string
	DialogueNode string

	// Dirty marks unsaved persistent state; the persistence system saves
	// dirty players and clears the flag.
	Dirty bool
}
