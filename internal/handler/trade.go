package handler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/core/event"
	"github.com/hyperscape/server/internal/game/trade"
	"github.com/hyperscape/server/internal/net"
	"github.com/hyperscape/server/internal/net/packet"
	"github.com/hyperscape/server/internal/persist"
	"github.com/hyperscape/server/internal/world"
)

// Trade message handlers. The trade system tracks offers by inventory
// slot; everything that touches the actual inventories (ownership,
// quantities, capacity, the final swap) is validated here. All handlers
// run on the game loop.

type offerView struct {
	Items    []trade.OfferItem `json:"items"`
	Coins    int64             `json:"coins"`
	Accepted bool              `json:"accepted"`
}

func tradeView(t *trade.Trade, viewer string) map[string]any {
	partner := t.Partner(viewer)
	mine := t.Offer(viewer)
	theirs := t.Offer(partner)
	return map[string]any{
		"tradeId":   t.ID,
		"state":     t.State,
		"partnerId": partner,
		"you":       offerView{Items: mine.Items, Coins: mine.Coins, Accepted: mine.Accepted},
		"partner":   offerView{Items: theirs.Items, Coins: theirs.Coins, Accepted: theirs.Accepted},
	}
}

func sendToPlayer(playerID, name string, v any, deps *Deps) {
	p := deps.World.Player(playerID)
	if p == nil {
		return
	}
	deps.Bc.SendJSONTo(p.SocketID, name, v)
}

func sendTradeState(t *trade.Trade, name string, deps *Deps) {
	sendToPlayer(t.Initiator, name, tradeView(t, t.Initiator), deps)
	sendToPlayer(t.Target, name, tradeView(t, t.Target), deps)
}

func tradeError(sess *net.Session, code trade.Code) {
	sess.Send(packet.EncodeJSON(packet.SError, map[string]any{
		"scope": "trade",
		"code":  code,
	}))
}

// HandleTradeRequest opens a trade request toward another player.
func HandleTradeRequest(sess *net.Session, payload json.RawMessage, deps *Deps) {
	var req struct {
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	p := deps.World.PlayerBySocket(sess.ID)
	if p == nil || p.IsLoading {
		return
	}
	target := deps.World.Player(req.TargetID)
	if target == nil || target.ID == p.ID || target.IsLoading {
		tradeError(sess, trade.CodeNotFound)
		return
	}

	res := deps.Trades.CreateTradeRequest(p.ID, target.ID)
	if !res.OK() {
		tradeError(sess, res.Code)
		return
	}
	deps.Bc.SendJSONTo(target.SocketID, packet.STradeRequested, map[string]any{
		"tradeId":  res.Trade.ID,
		"fromId":   p.ID,
		"fromName": p.Name,
	})
	deps.Log.Debug("trade requested",
		zap.String("trade", res.Trade.ID),
		zap.String("from", p.ID),
		zap.String("to", target.ID),
	)
}

// HandleTradeResponse accepts or declines a pending trade request.
func HandleTradeResponse(sess *net.Session, payload json.RawMessage, deps *Deps) {
	var req struct {
		TradeID string `json:"tradeId"`
		Accept  bool   `json:"accept"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	p := deps.World.PlayerBySocket(sess.ID)
	if p == nil {
		return
	}

	res := deps.Trades.RespondToTradeRequest(req.TradeID, p.ID, req.Accept)
	if !res.OK() {
		tradeError(sess, res.Code)
		return
	}
	t := res.Trade
	if !req.Accept {
		NotifyTradeCancelled(t, "declined", deps)
		return
	}
	sendTradeState(t, packet.STradeStarted, deps)
	event.Emit(deps.Bus, event.TradeStarted{
		TradeID: t.ID,
		PlayerA: t.Initiator,
		PlayerB: t.Target,
	})
}

// HandleTradeAddItem stages an inventory stack (or a coin amount) in the
// player's offer. The stack must exist and cover the offered quantity.
func HandleTradeAddItem(sess *net.Session, payload json.RawMessage, deps *Deps) {
	var req struct {
		Slot     int    `json:"slot"`
		Quantity int    `json:"quantity"`
		Coins    *int64 `json:"coins"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	p := deps.World.PlayerBySocket(sess.ID)
	if p == nil {
		return
	}
	t := deps.Trades.TradeFor(p.ID)
	if t == nil {
		tradeError(sess, trade.CodeNotFound)
		return
	}

	if req.Coins != nil {
		if *req.Coins > p.Inventory.Coins {
			tradeError(sess, trade.CodeBadQuantity)
			return
		}
		res := deps.Trades.SetCoins(t.ID, p.ID, *req.Coins)
		if !res.OK() {
			tradeError(sess, res.Code)
			return
		}
		sendTradeState(t, packet.STradeUpdated, deps)
		return
	}

	stack, ok := p.Inventory.At(req.Slot)
	if !ok {
		tradeError(sess, trade.CodeBadSlot)
		return
	}
	qty := req.Quantity
	if qty <= 0 || qty > stack.Quantity {
		qty = stack.Quantity
	}
	res := deps.Trades.AddItemToTrade(t.ID, p.ID, req.Slot, stack.ItemID, qty)
	if !res.OK() {
		tradeError(sess, res.Code)
		return
	}
	sendTradeState(t, packet.STradeUpdated, deps)
}

// HandleTradeRemoveItem unstages an inventory stack from the offer.
func HandleTradeRemoveItem(sess *net.Session, payload json.RawMessage, deps *Deps) {
	var req struct {
		Slot int `json:"slot"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	p := deps.World.PlayerBySocket(sess.ID)
	if p == nil {
		return
	}
	t := deps.Trades.TradeFor(p.ID)
	if t == nil {
		tradeError(sess, trade.CodeNotFound)
		return
	}
	res := deps.Trades.RemoveItemFromTrade(t.ID, p.ID, req.Slot)
	if !res.OK() {
		tradeError(sess, res.Code)
		return
	}
	sendTradeState(t, packet.STradeUpdated, deps)
}

// HandleTradeAccept toggles first-screen acceptance. When both sides have
// accepted and both resulting inventories fit, the trade advances to the
// confirmation screen.
func HandleTradeAccept(sess *net.Session, payload json.RawMessage, deps *Deps) {
	req := struct {
		Accept bool `json:"accept"`
	}{Accept: true}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return
		}
	}
	p := deps.World.PlayerBySocket(sess.ID)
	if p == nil {
		return
	}
	t := deps.Trades.TradeFor(p.ID)
	if t == nil {
		tradeError(sess, trade.CodeNotFound)
		return
	}
	res := deps.Trades.SetAcceptance(t.ID, p.ID, req.Accept)
	if !res.OK() {
		tradeError(sess, res.Code)
		return
	}

	if t.Offer(t.Initiator).Accepted && t.Offer(t.Target).Accepted {
		if blocked := tradeCapacityCheck(t, deps); blocked != "" {
			// The blocked side's inventory cannot hold the incoming items.
			deps.Trades.SetAcceptance(t.ID, t.Initiator, false)
			deps.Trades.SetAcceptance(t.ID, t.Target, false)
			for _, pid := range []string{t.Initiator, t.Target} {
				sendToPlayer(pid, packet.SError, map[string]any{
					"scope":   "trade",
					"code":    trade.CodeOfferFull,
					"blocked": blocked,
				}, deps)
			}
			sendTradeState(t, packet.STradeUpdated, deps)
			return
		}
		if adv := deps.Trades.MoveToConfirmation(t.ID); adv.OK() {
			sendTradeState(t, packet.STradeConfirming, deps)
			return
		}
	}
	sendTradeState(t, packet.STradeUpdated, deps)
}

// HandleTradeConfirm records a second-screen confirmation. When both sides
// have confirmed, the swap is persisted atomically and applied in memory.
func HandleTradeConfirm(sess *net.Session, _ json.RawMessage, deps *Deps) {
	p := deps.World.PlayerBySocket(sess.ID)
	if p == nil {
		return
	}
	t := deps.Trades.TradeFor(p.ID)
	if t == nil {
		tradeError(sess, trade.CodeNotFound)
		return
	}
	res := deps.Trades.SetConfirmation(t.ID, p.ID)
	if !res.OK() {
		tradeError(sess, res.Code)
		return
	}

	if !(t.Offer(t.Initiator).Accepted && t.Offer(t.Target).Accepted) {
		sendTradeState(t, packet.STradeConfirming, deps)
		return
	}
	finalizeTrade(t, deps)
}

// HandleTradeCancel aborts the player's current trade at any stage.
func HandleTradeCancel(sess *net.Session, _ json.RawMessage, deps *Deps) {
	p := deps.World.PlayerBySocket(sess.ID)
	if p == nil {
		return
	}
	if t := deps.Trades.CancelForPlayer(p.ID, "cancelled"); t != nil {
		NotifyTradeCancelled(t, "cancelled", deps)
	}
}

// NotifyTradeCancelled tells both parties a trade died. The lifecycle
// event reaches the bus through the trade system's Emit hook. Safe to call
// for participants already gone.
func NotifyTradeCancelled(t *trade.Trade, reason string, deps *Deps) {
	msg := map[string]any{
		"tradeId": t.ID,
		"reason":  reason,
	}
	sendToPlayer(t.Initiator, packet.STradeCancelled, msg, deps)
	sendToPlayer(t.Target, packet.STradeCancelled, msg, deps)
}

// finalizeTrade computes both post-trade inventories, persists them in one
// transaction and then applies them in memory. A persistence failure
// cancels the trade with nothing exchanged.
func finalizeTrade(t *trade.Trade, deps *Deps) {
	a := deps.World.Player(t.Initiator)
	b := deps.World.Player(t.Target)
	if a == nil || b == nil {
		if t2 := deps.Trades.CancelForPlayer(t.Initiator, "partner gone"); t2 != nil {
			NotifyTradeCancelled(t2, "partner gone", deps)
		}
		return
	}

	rowsA, coinsA, okA := tradeOutcome(a, t.Offer(a.ID), t.Offer(b.ID))
	rowsB, coinsB, okB := tradeOutcome(b, t.Offer(b.ID), t.Offer(a.ID))
	if !okA || !okB {
		deps.Trades.CancelForPlayer(a.ID, "inventory changed")
		NotifyTradeCancelled(t, "inventory changed", deps)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := deps.Inventory.CompleteTradeSwap(ctx, a.CharacterID, rowsA, coinsA, b.CharacterID, rowsB, coinsB)
	if err != nil {
		deps.Log.Error("trade swap failed",
			zap.String("trade", t.ID),
			zap.Error(err),
		)
		deps.Trades.CancelForPlayer(a.ID, "server_error")
		NotifyTradeCancelled(t, "server_error", deps)
		return
	}

	if res := deps.Trades.CompleteTrade(t.ID); !res.OK() {
		// Already released elsewhere; the committed swap still stands.
		deps.Log.Warn("trade completed out of band", zap.String("trade", t.ID))
	}

	applyTradeResult(a, rowsA, coinsA, deps)
	applyTradeResult(b, rowsB, coinsB, deps)

	done := map[string]any{"tradeId": t.ID}
	sendToPlayer(a.ID, packet.STradeCompleted, done, deps)
	sendToPlayer(b.ID, packet.STradeCompleted, done, deps)
	event.Emit(deps.Bus, event.TradeCompleted{
		TradeID: t.ID,
		PlayerA: a.ID,
		PlayerB: b.ID,
	})
	deps.Log.Info("trade completed",
		zap.String("trade", t.ID),
		zap.String("player_a", a.ID),
		zap.String("player_b", b.ID),
	)
}

// tradeCapacityCheck verifies both resulting inventories fit. Returns the
// player id of the first side that cannot hold its incoming items, or "".
func tradeCapacityCheck(t *trade.Trade, deps *Deps) string {
	for _, pid := range []string{t.Initiator, t.Target} {
		p := deps.World.Player(pid)
		if p == nil {
			return pid
		}
		if _, _, ok := tradeOutcome(p, t.Offer(pid), t.Offer(t.Partner(pid))); !ok {
			return pid
		}
	}
	return ""
}

// tradeOutcome builds the player's post-trade inventory: offered stacks
// removed, incoming items placed into free slots. Fails when an offered
// stack no longer covers its quantity, the coins fall short, or the
// incoming items do not fit.
func tradeOutcome(p *world.Player, give, receive *trade.Offer) ([]persist.InventoryItemRow, int64, bool) {
	var slots [world.InventorySlots]world.ItemStack
	copy(slots[:], p.Inventory.Slots[:])

	for _, it := range give.Items {
		if it.InvSlot < 0 || it.InvSlot >= world.InventorySlots {
			return nil, 0, false
		}
		s := &slots[it.InvSlot]
		if s.ItemID != it.ItemID || s.Quantity < it.Quantity {
			return nil, 0, false
		}
		s.Quantity -= it.Quantity
		if s.Quantity == 0 {
			*s = world.ItemStack{}
		}
	}

	coins := p.Inventory.Coins - give.Coins + receive.Coins
	if give.Coins > p.Inventory.Coins {
		return nil, 0, false
	}

	next := 0
	for _, it := range receive.Items {
		for next < world.InventorySlots && slots[next].Quantity > 0 {
			next++
		}
		if next >= world.InventorySlots {
			return nil, 0, false
		}
		slots[next] = world.ItemStack{Slot: next, ItemID: it.ItemID, Quantity: it.Quantity}
	}

	rows := make([]persist.InventoryItemRow, 0, world.InventorySlots)
	for i, s := range slots {
		if s.Quantity > 0 {
			rows = append(rows, persist.InventoryItemRow{Slot: i, ItemID: s.ItemID, Quantity: s.Quantity})
		}
	}
	return rows, coins, true
}

func applyTradeResult(p *world.Player, rows []persist.InventoryItemRow, coins int64, deps *Deps) {
	p.Inventory.Slots = [world.InventorySlots]world.ItemStack{}
	for _, r := range rows {
		p.Inventory.Slots[r.Slot] = world.ItemStack{Slot: r.Slot, ItemID: r.ItemID, Quantity: r.Quantity}
	}
	p.Inventory.Coins = coins
	p.Dirty = true
	event.Emit(deps.Bus, event.InventoryUpdated{
		PlayerID: p.ID,
		Items:    inventoryItems(p),
		Coins:    coins,
	})
}

func inventoryItems(p *world.Player) []event.InventoryItem {
	items := p.Inventory.Items()
	out := make([]event.InventoryItem, len(items))
	for i, it := range items {
		out[i] = event.InventoryItem{Slot: it.Slot, ItemID: it.ItemID, Quantity: it.Quantity}
	}
	return out
}
