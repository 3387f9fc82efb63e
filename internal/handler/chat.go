package handler

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hyperscape/server/internal/core/event"
	"github.com/hyperscape/server/internal/net"
)

const (
	maxChatLen  = 300
	chatLogSize = 32
)

// ChatLine is one spoken line, kept for the snapshot backlog.
type ChatLine struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Text     string `json:"text"`
	At       int64  `json:"at"` // unix millis
}

// ChatLog is a fixed-size ring of recent chat lines. Game loop only.
type ChatLog struct {
	lines [chatLogSize]ChatLine
	next  int
	count int
}

func NewChatLog() *ChatLog { return &ChatLog{} }

func (l *ChatLog) Record(line ChatLine) {
	l.lines[l.next] = line
	l.next = (l.next + 1) % chatLogSize
	if l.count < chatLogSize {
		l.count++
	}
}

// Recent returns the backlog oldest-first.
func (l *ChatLog) Recent() []ChatLine {
	out := make([]ChatLine, 0, l.count)
	start := (l.next - l.count + chatLogSize) % chatLogSize
	for i := 0; i < l.count; i++ {
		out = append(out, l.lines[(start+i)%chatLogSize])
	}
	return out
}

// HandleChat relays a local chat line to the speaker's viewers. Runs on
// the game loop.
func HandleChat(sess *net.Session, payload json.RawMessage, deps *Deps) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}

	p := deps.World.PlayerBySocket(sess.ID)
	if p == nil || p.IsLoading {
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return
	}
	if len(text) > maxChatLen {
		// Back off to a rune boundary so the cut never splits a multi-byte
		// character.
		cut := maxChatLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	deps.Chat.Record(ChatLine{
		PlayerID: p.ID,
		Name:     p.Name,
		Text:     text,
		At:       time.Now().UnixMilli(),
	})
	event.Emit(deps.Bus, event.ChatMessage{
		PlayerID: p.ID,
		Name:     p.Name,
		Text:     text,
	})
}

// HandleInventoryRequest re-sends the inventory snapshot. Suppressed while
// the initial load is still in flight.
func HandleInventoryRequest(sess *net.Session, _ json.RawMessage, deps *Deps) {
	p := deps.World.PlayerBySocket(sess.ID)
	if p == nil {
		return
	}
	if p.Inventory.Loading {
		return
	}
	event.Emit(deps.Bus, event.InventoryUpdated{
		PlayerID: p.ID,
		Items:    inventoryItems(p),
		Coins:    p.Inventory.Coins,
	})
}
