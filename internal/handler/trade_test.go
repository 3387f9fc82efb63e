package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperscape/server/internal/game/trade"
	"github.com/hyperscape/server/internal/world"
)

func tradingPlayer(coins int64, stacks ...world.ItemStack) *world.Player {
	p := &world.Player{Entity: world.Entity{ID: "p1"}}
	p.Inventory.Coins = coins
	for _, s := range stacks {
		p.Inventory.Slots[s.Slot] = s
	}
	return p
}

func TestTradeOutcomeExchangesStacksAndCoins(t *testing.T) {
	p := tradingPlayer(500,
		world.ItemStack{Slot: 0, ItemID: "sword", Quantity: 1},
		world.ItemStack{Slot: 3, ItemID: "logs", Quantity: 20},
	)
	give := &trade.Offer{
		Items: []trade.OfferItem{{InvSlot: 0, ItemID: "sword", Quantity: 1}},
		Coins: 100,
	}
	receive := &trade.Offer{
		Items: []trade.OfferItem{{ItemID: "shield", Quantity: 1}},
		Coins: 250,
	}

	rows, coins, ok := tradeOutcome(p, give, receive)
	require.True(t, ok)
	assert.Equal(t, int64(650), coins)

	// The sword left slot 0; the shield takes the first free slot.
	require.Len(t, rows, 2)
	assert.Equal(t, "shield", rows[0].ItemID)
	assert.Equal(t, 0, rows[0].Slot)
	assert.Equal(t, "logs", rows[1].ItemID)
	assert.Equal(t, 3, rows[1].Slot)
}

func TestTradeOutcomePartialStack(t *testing.T) {
	p := tradingPlayer(0, world.ItemStack{Slot: 5, ItemID: "logs", Quantity: 20})
	give := &trade.Offer{Items: []trade.OfferItem{{InvSlot: 5, ItemID: "logs", Quantity: 8}}}

	rows, _, ok := tradeOutcome(p, give, &trade.Offer{})
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, 12, rows[0].Quantity)
}

func TestTradeOutcomeStaleStackFails(t *testing.T) {
	p := tradingPlayer(0, world.ItemStack{Slot: 0, ItemID: "logs", Quantity: 5})

	// Wrong item in the slot.
	_, _, ok := tradeOutcome(p, &trade.Offer{
		Items: []trade.OfferItem{{InvSlot: 0, ItemID: "sword", Quantity: 1}},
	}, &trade.Offer{})
	assert.False(t, ok)

	// More than the slot holds.
	_, _, ok = tradeOutcome(p, &trade.Offer{
		Items: []trade.OfferItem{{InvSlot: 0, ItemID: "logs", Quantity: 6}},
	}, &trade.Offer{})
	assert.False(t, ok)
}

func TestTradeOutcomeInsufficientCoinsFails(t *testing.T) {
	p := tradingPlayer(50)
	_, _, ok := tradeOutcome(p, &trade.Offer{Coins: 100}, &trade.Offer{})
	assert.False(t, ok)
}

func TestTradeOutcomeNoRoomFails(t *testing.T) {
	p := tradingPlayer(0)
	for i := 0; i < world.InventorySlots; i++ {
		p.Inventory.Slots[i] = world.ItemStack{Slot: i, ItemID: "rock", Quantity: 1}
	}

	_, _, ok := tradeOutcome(p, &trade.Offer{}, &trade.Offer{
		Items: []trade.OfferItem{{ItemID: "shield", Quantity: 1}},
	})
	assert.False(t, ok)

	// Freeing a slot by giving makes room for the incoming item.
	rows, _, ok := tradeOutcome(p, &trade.Offer{
		Items: []trade.OfferItem{{InvSlot: 4, ItemID: "rock", Quantity: 1}},
	}, &trade.Offer{
		Items: []trade.OfferItem{{ItemID: "shield", Quantity: 1}},
	})
	require.True(t, ok)
	assert.Len(t, rows, world.InventorySlots)
}
