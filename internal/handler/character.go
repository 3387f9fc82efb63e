package handler

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/hyperscape/server/internal/net"
	"github.com/hyperscape/server/internal/net/packet"
	"github.com/hyperscape/server/internal/persist"
)

const (
	minNameLen       = 3
	maxNameLen       = 50
	defaultCharName  = "Adventurer"
	maxCharsPerAcct  = 5
	enterWorldDBWait = 10 * time.Second
)

type characterInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Health     int        `json:"health"`
	MaxHealth  int        `json:"maxHealth"`
	Coins      int64      `json:"coins"`
	LastPlayed *time.Time `json:"lastPlayed,omitempty"`
}

// NormalizeCharacterName canonicalizes and validates a requested name.
// Unicode is NFKC-folded, interior whitespace collapses to single spaces,
// and only letters, digits and spaces survive validation. An empty request
// falls back to the default name.
func NormalizeCharacterName(raw string) (string, bool) {
	name := norm.NFKC.String(raw)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return defaultCharName, true
	}
	if len(name) < minNameLen || len(name) > maxNameLen {
		return "", false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ' ' {
			return "", false
		}
	}
	return name, true
}

func HandleCharacterList(sess *net.Session, _ json.RawMessage, deps *Deps) {
	ctx, cancel := context.WithTimeout(context.Background(), enterWorldDBWait)
	defer cancel()

	rows, err := deps.Chars.ListByAccount(ctx, sess.AccountID)
	if err != nil {
		deps.Log.Error("list characters", zap.String("account", sess.AccountID), zap.Error(err))
		sendError(sess, "could not load characters")
		return
	}
	out := make([]characterInfo, 0, len(rows))
	for _, row := range rows {
		out = append(out, characterInfo{
			ID:         row.ID,
			Name:       row.Name,
			Health:     row.Health,
			MaxHealth:  row.MaxHealth,
			Coins:      row.Coins,
			LastPlayed: row.LastPlayed,
		})
	}
	sess.SendNow(packet.EncodeJSON(packet.SCharacterList, map[string]any{"characters": out}))
}

func HandleCharacterCreate(sess *net.Session, payload json.RawMessage, deps *Deps) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		sendError(sess, "bad request")
		return
	}

	name, ok := NormalizeCharacterName(req.Name)
	if !ok {
		sendError(sess, "invalid character name")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), enterWorldDBWait)
	defer cancel()

	count, err := deps.Chars.CountByAccount(ctx, sess.AccountID)
	if err != nil {
		deps.Log.Error("count characters", zap.Error(err))
		sendError(sess, "could not create character")
		return
	}
	if count >= maxCharsPerAcct {
		sendError(sess, "character limit reached")
		return
	}
	if taken, err := deps.Chars.NameTaken(ctx, name); err != nil {
		deps.Log.Error("check character name", zap.Error(err))
		sendError(sess, "could not create character")
		return
	} else if taken {
		sendError(sess, "name already in use")
		return
	}

	spawn := deps.Areas.Default()
	x, y, z := 0.0, 0.0, 0.0
	if spawn != nil {
		x, y, z = spawn.Spawn[0], spawn.Spawn[1], spawn.Spawn[2]
	}

	row, err := deps.Chars.Create(ctx, sess.AccountID, name, x, y, z, starterSkills())
	if err != nil {
		deps.Log.Error("create character", zap.Error(err))
		sendError(sess, "could not create character")
		return
	}

	deps.Log.Info("character created",
		zap.String("account", sess.AccountID),
		zap.String("character", row.ID),
		zap.String("name", row.Name),
	)
	sess.SendNow(packet.EncodeJSON(packet.SCharacterCreated, characterInfo{
		ID:        row.ID,
		Name:      row.Name,
		Health:    row.Health,
		MaxHealth: row.MaxHealth,
	}))
}

func starterSkills() map[string]persist.SkillRow {
	skills := make(map[string]persist.SkillRow)
	for _, s := range []string{"attack", "strength", "defence", "hitpoints", "woodcutting", "mining", "fishing"} {
		skills[s] = persist.SkillRow{Level: 1}
	}
	skills["hitpoints"] = persist.SkillRow{Level: 10}
	return skills
}

func HandleCharacterSelect(sess *net.Session, payload json.RawMessage, deps *Deps) {
	var req struct {
		CharacterID string `json:"characterId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		sendError(sess, "bad request")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), enterWorldDBWait)
	defer cancel()

	row, err := deps.Chars.Load(ctx, req.CharacterID)
	if err != nil {
		deps.Log.Error("load character", zap.Error(err))
		sendError(sess, "could not load character")
		return
	}
	if row == nil || row.AccountID != sess.AccountID {
		sendError(sess, "unknown character")
		return
	}

	sess.CharacterID = row.ID
	sess.SendNow(packet.EncodeJSON(packet.SCharacterSelected, map[string]string{
		"characterId": row.ID,
		"name":        row.Name,
	}))
}

// HandleEnterWorld loads the full character and hands the session to the
// game loop. Past the player cap the connection is kicked; spectating is a
// separate mode the client asks for explicitly. Runs on the connection
// goroutine.
func HandleEnterWorld(sess *net.Session, payload json.RawMessage, deps *Deps) {
	var req struct {
		CharacterID string `json:"characterId"`
		Spectate    bool   `json:"spectate"`
		Follow      string `json:"followEntity"`
	}
	_ = json.Unmarshal(payload, &req)

	if req.Spectate {
		enterSpectator(sess, req.Follow, deps)
		return
	}

	if req.CharacterID != "" {
		sess.CharacterID = req.CharacterID
	}
	if sess.CharacterID == "" {
		sendError(sess, "no character selected")
		return
	}

	if deps.World.PlayerCount() >= deps.Config.Server.PlayerLimit {
		deps.Log.Info("player cap reached, kicking",
			zap.String("session", sess.ID))
		sess.SendNow(packet.EncodeJSON(packet.SKick, map[string]string{"reason": "player_limit"}))
		sess.CloseWithCode(packet.CloseKicked, "player_limit")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), enterWorldDBWait)
	defer cancel()

	row, err := deps.Chars.Load(ctx, sess.CharacterID)
	if err != nil || row == nil || row.AccountID != sess.AccountID {
		if err != nil {
			deps.Log.Error("load character", zap.Error(err))
		}
		sendError(sess, "unknown character")
		return
	}

	skills, err := deps.Skills.LoadAll(ctx, row.ID)
	if err != nil {
		deps.Log.Error("load skills", zap.Error(err))
		sendError(sess, "could not load character")
		return
	}
	items, err := deps.Inventory.LoadAll(ctx, row.ID)
	if err != nil {
		deps.Log.Error("load inventory", zap.Error(err))
		sendError(sess, "could not load character")
		return
	}
	equipment, err := deps.Equipment.LoadAll(ctx, row.ID)
	if err != nil {
		deps.Log.Error("load equipment", zap.Error(err))
		sendError(sess, "could not load character")
		return
	}
	autoRet, err := deps.Chars.LoadPrefs(ctx, row.ID)
	if err != nil {
		deps.Log.Error("load prefs", zap.Error(err))
		autoRet = true
	}

	sess.SetState(packet.StateInWorld)
	deps.SpawnCh <- &SpawnRequest{
		Sess:      sess,
		Char:      row,
		Skills:    skills,
		Items:     items,
		Equipment: equipment,
		AutoRet:   autoRet,
	}
}

// enterSpectator admits the session as a watch-only viewer. A follow
// request must name a character the account owns; spectators bypass the
// player cap because they never hold a body in the world.
func enterSpectator(sess *net.Session, follow string, deps *Deps) {
	if follow != "" {
		ctx, cancel := context.WithTimeout(context.Background(), enterWorldDBWait)
		defer cancel()

		row, err := deps.Chars.Load(ctx, follow)
		if err != nil || row == nil || row.AccountID != sess.AccountID {
			if err != nil {
				deps.Log.Error("load character", zap.Error(err))
			}
			sendError(sess, "unknown character")
			return
		}
	}

	deps.Log.Info("spectator joined",
		zap.String("session", sess.ID),
		zap.String("follow", follow),
	)
	sess.SetState(packet.StateSpectator)
	deps.SpawnCh <- &SpawnRequest{Sess: sess, Spectate: true, Follow: follow}
}

func sendError(sess *net.Session, msg string) {
	sess.SendNow(packet.EncodeJSON(packet.SError, map[string]string{"message": msg}))
}
