package trade

import (
	"time"

	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/config"
	"github.com/hyperscape/server/internal/metrics"
	"github.com/hyperscape/server/internal/persist"
)

// State is the trade lifecycle phase.
type State string

const (
	StatePending    State = "pending"    // request sent, awaiting response
	StateActive     State = "active"     // first screen, offers editable
	StateConfirming State = "confirming" // second screen, offers frozen
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
)

// Code classifies operation outcomes for the handler layer.
type Code string

const (
	CodeOK           Code = "ok"
	CodeSelfBusy     Code = "already_in_trade"
	CodeTargetBusy   Code = "player_busy"
	CodeBadTarget    Code = "invalid_target"
	CodeCooldown     Code = "rate_limited"
	CodeNotFound     Code = "trade_not_found"
	CodeWrongState   Code = "wrong_state"
	CodeNotParty     Code = "not_a_participant"
	CodeBadSlot      Code = "invalid_slot"
	CodeBadQuantity  Code = "invalid_quantity"
	CodeOfferFull    Code = "inventory_full"
	CodeNotAccepted  Code = "not_both_accepted"
	CodeNotConfirmed Code = "not_both_confirmed"
)

// MaxTradeSlots caps items per offer. One slot below the inventory size so
// the completed swap always fits next to at least one free slot.
const MaxTradeSlots = 27

// OfferItem is one item staged in a trade window.
type OfferItem struct {
	InvSlot  int    `json:"invSlot"`
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// Offer is one side of a trade.
type Offer struct {
	Items    []OfferItem
	Coins    int64
	Accepted bool
}

// Trade is a single two-party trade.
type Trade struct {
	ID        string
	State     State
	Initiator string // player id
	Target    string

	offers map[string]*Offer

	CreatedAt    time.Time
	LastActivity time.Time
}

// Offer returns the given participant's side.
func (t *Trade) Offer(playerID string) *Offer {
	return t.offers[playerID]
}

// Partner returns the other participant.
func (t *Trade) Partner(playerID string) string {
	if playerID == t.Initiator {
		return t.Target
	}
	return t.Initiator
}

func (t *Trade) isParty(playerID string) bool {
	return playerID == t.Initiator || playerID == t.Target
}

func (t *Trade) resetAcceptance() {
	for _, o := range t.offers {
		o.Accepted = false
	}
}

func (t *Trade) bothAccepted() bool {
	for _, o := range t.offers {
		if !o.Accepted {
			return false
		}
	}
	return true
}

// Result is the outcome of a trade operation.
type Result struct {
	Code  Code
	Trade *Trade
}

func (r Result) OK() bool { return r.Code == CodeOK }

// System owns all live trades. Offer contents reference inventory slots;
// ownership and capacity of the actual inventories are the handler's
// responsibility. Game loop only.
type System struct {
	cfg config.TradeConfig
	log *zap.Logger

	// Emit publishes lifecycle events (TradeStarted and friends).
	Emit func(ev any)

	trades   map[string]*Trade
	byPlayer map[string]string // player id → trade id

	// lastRequest throttles repeat requests per initiator→recipient pair,
	// so a cooldown toward one player never blocks requests to another.
	lastRequest map[requestKey]time.Time

	now func() time.Time
}

type requestKey struct {
	from, to string
}

func NewSystem(cfg config.TradeConfig, log *zap.Logger) *System {
	return &System{
		cfg:         cfg,
		log:         log,
		trades:      make(map[string]*Trade),
		byPlayer:    make(map[string]string),
		lastRequest: make(map[requestKey]time.Time),
		now:         time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *System) SetClock(now func() time.Time) { s.now = now }

// TradeFor returns the trade the player participates in, if any.
func (s *System) TradeFor(playerID string) *Trade {
	id, ok := s.byPlayer[playerID]
	if !ok {
		return nil
	}
	return s.trades[id]
}

// CreateTradeRequest opens a pending trade from initiator to target.
func (s *System) CreateTradeRequest(initiator, target string) Result {
	if initiator == target {
		return Result{Code: CodeBadTarget}
	}
	if s.byPlayer[initiator] != "" {
		return Result{Code: CodeSelfBusy}
	}
	if s.byPlayer[target] != "" {
		return Result{Code: CodeTargetBusy}
	}
	now := s.now()
	key := requestKey{from: initiator, to: target}
	if last, ok := s.lastRequest[key]; ok && now.Sub(last) < s.cfg.RequestCooldown.Duration {
		return Result{Code: CodeCooldown}
	}
	s.lastRequest[key] = now

	t := &Trade{
		ID:        persist.NewID(),
		State:     StatePending,
		Initiator: initiator,
		Target:    target,
		offers: map[string]*Offer{
			initiator: {},
			target:    {},
		},
		CreatedAt:    now,
		LastActivity: now,
	}
	s.trades[t.ID] = t
	s.byPlayer[initiator] = t.ID
	s.byPlayer[target] = t.ID
	return Result{Code: CodeOK, Trade: t}
}

// RespondToTradeRequest accepts or declines a pending request. Only the
// target may respond.
func (s *System) RespondToTradeRequest(tradeID, playerID string, accept bool) Result {
	t := s.trades[tradeID]
	if t == nil {
		return Result{Code: CodeNotFound}
	}
	if t.State != StatePending {
		return Result{Code: CodeWrongState, Trade: t}
	}
	if playerID != t.Target {
		return Result{Code: CodeNotParty, Trade: t}
	}
	if !accept {
		s.cancel(t, "declined")
		return Result{Code: CodeOK, Trade: t}
	}
	t.State = StateActive
	t.LastActivity = s.now()
	return Result{Code: CodeOK, Trade: t}
}

// AddItemToTrade stages an inventory stack in the player's offer. The
// offer holds at most MaxTradeSlots items; any change resets both
// acceptances.
func (s *System) AddItemToTrade(tradeID, playerID string, invSlot int, itemID string, quantity int) Result {
	t, offer, res := s.activeOffer(tradeID, playerID)
	if !res.OK() {
		return res
	}
	if quantity <= 0 {
		return Result{Code: CodeBadQuantity, Trade: t}
	}
	for _, it := range offer.Items {
		if it.InvSlot == invSlot {
			return Result{Code: CodeBadSlot, Trade: t}
		}
	}
	if len(offer.Items) >= MaxTradeSlots {
		return Result{Code: CodeOfferFull, Trade: t}
	}
	offer.Items = append(offer.Items, OfferItem{InvSlot: invSlot, ItemID: itemID, Quantity: quantity})
	t.resetAcceptance()
	t.LastActivity = s.now()
	return Result{Code: CodeOK, Trade: t}
}

// RemoveItemFromTrade unstages an inventory stack from the offer.
func (s *System) RemoveItemFromTrade(tradeID, playerID string, invSlot int) Result {
	t, offer, res := s.activeOffer(tradeID, playerID)
	if !res.OK() {
		return res
	}
	for i, it := range offer.Items {
		if it.InvSlot == invSlot {
			offer.Items = append(offer.Items[:i], offer.Items[i+1:]...)
			t.resetAcceptance()
			t.LastActivity = s.now()
			return Result{Code: CodeOK, Trade: t}
		}
	}
	return Result{Code: CodeBadSlot, Trade: t}
}

// SetCoins stages a coin amount in the player's offer.
func (s *System) SetCoins(tradeID, playerID string, coins int64) Result {
	t, offer, res := s.activeOffer(tradeID, playerID)
	if !res.OK() {
		return res
	}
	if coins < 0 {
		return Result{Code: CodeBadQuantity, Trade: t}
	}
	offer.Coins = coins
	t.resetAcceptance()
	t.LastActivity = s.now()
	return Result{Code: CodeOK, Trade: t}
}

// SetAcceptance toggles the player's first-screen acceptance.
func (s *System) SetAcceptance(tradeID, playerID string, accepted bool) Result {
	t, offer, res := s.activeOffer(tradeID, playerID)
	if !res.OK() {
		return res
	}
	offer.Accepted = accepted
	t.LastActivity = s.now()
	return Result{Code: CodeOK, Trade: t}
}

// MoveToConfirmation freezes the offers and advances to the second screen.
// Requires both first-screen acceptances; confirmation flags start clear.
func (s *System) MoveToConfirmation(tradeID string) Result {
	t := s.trades[tradeID]
	if t == nil {
		return Result{Code: CodeNotFound}
	}
	if t.State != StateActive {
		return Result{Code: CodeWrongState, Trade: t}
	}
	if !t.bothAccepted() {
		return Result{Code: CodeNotAccepted, Trade: t}
	}
	t.State = StateConfirming
	t.resetAcceptance()
	t.LastActivity = s.now()
	return Result{Code: CodeOK, Trade: t}
}

// SetConfirmation records the player's second-screen confirmation.
func (s *System) SetConfirmation(tradeID, playerID string) Result {
	t := s.trades[tradeID]
	if t == nil {
		return Result{Code: CodeNotFound}
	}
	if t.State != StateConfirming {
		return Result{Code: CodeWrongState, Trade: t}
	}
	offer := t.offers[playerID]
	if offer == nil {
		return Result{Code: CodeNotParty, Trade: t}
	}
	offer.Accepted = true
	t.LastActivity = s.now()
	return Result{Code: CodeOK, Trade: t}
}

// CompleteTrade finalizes a fully confirmed trade and releases both
// participants. The handler applies the inventory swap before calling.
func (s *System) CompleteTrade(tradeID string) Result {
	t := s.trades[tradeID]
	if t == nil {
		return Result{Code: CodeNotFound}
	}
	if t.State != StateConfirming {
		return Result{Code: CodeWrongState, Trade: t}
	}
	if !t.bothAccepted() {
		return Result{Code: CodeNotConfirmed, Trade: t}
	}
	t.State = StateCompleted
	s.release(t)
	metrics.TradesCompleted.Inc()
	return Result{Code: CodeOK, Trade: t}
}

// CancelForPlayer cancels whatever trade the player participates in.
// Covers explicit cancellation, disconnects and swap failures.
func (s *System) CancelForPlayer(playerID, reason string) *Trade {
	t := s.TradeFor(playerID)
	if t == nil {
		return nil
	}
	s.cancel(t, reason)
	return t
}

// CleanupExpired cancels stale trades: unanswered requests past the
// request timeout, and idle trades past the activity timeout. Elapsed
// request cooldowns are pruned on the way. Returns the cancelled trades so
// the caller can notify participants.
func (s *System) CleanupExpired() []*Trade {
	now := s.now()
	var expired []*Trade
	for _, t := range s.trades {
		switch t.State {
		case StatePending:
			if now.Sub(t.CreatedAt) >= s.cfg.RequestTimeout.Duration {
				expired = append(expired, t)
			}
		case StateActive, StateConfirming:
			if now.Sub(t.LastActivity) >= s.cfg.ActivityTimeout.Duration {
				expired = append(expired, t)
			}
		}
	}
	for _, t := range expired {
		s.cancel(t, "timed out")
	}
	for key, at := range s.lastRequest {
		if now.Sub(at) >= s.cfg.RequestCooldown.Duration {
			delete(s.lastRequest, key)
		}
	}
	return expired
}

// ActiveCount reports live trades. Test helper.
func (s *System) ActiveCount() int { return len(s.trades) }

func (s *System) activeOffer(tradeID, playerID string) (*Trade, *Offer, Result) {
	t := s.trades[tradeID]
	if t == nil {
		return nil, nil, Result{Code: CodeNotFound}
	}
	if t.State != StateActive {
		return t, nil, Result{Code: CodeWrongState, Trade: t}
	}
	offer := t.offers[playerID]
	if offer == nil {
		return t, nil, Result{Code: CodeNotParty, Trade: t}
	}
	return t, offer, Result{Code: CodeOK, Trade: t}
}

func (s *System) cancel(t *Trade, reason string) {
	t.State = StateCancelled
	s.release(t)
	metrics.TradesCancelled.Inc()
	s.log.Info("trade cancelled",
		zap.String("trade", t.ID),
		zap.String("reason", reason),
	)
	if s.Emit != nil {
		s.Emit(CancelledEvent{Trade: t, Reason: reason})
	}
}

func (s *System) release(t *Trade) {
	delete(s.trades, t.ID)
	delete(s.byPlayer, t.Initiator)
	delete(s.byPlayer, t.Target)
}

// CancelledEvent is published through Emit whenever a trade dies.
type CancelledEvent struct {
	Trade  *Trade
	Reason string
}
