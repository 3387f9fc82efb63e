package persist

import (
	"context"
	"fmt"
)

type InventoryItemRow struct {
	Slot     int
	ItemID   string
	Quantity int
}

type InventoryRepo struct {
	db *DB
}

func NewInventoryRepo(db *DB) *InventoryRepo {
	return &InventoryRepo{db: db}
}

func (r *InventoryRepo) LoadAll(ctx context.Context, characterID string) ([]InventoryItemRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT slot, item_id, quantity FROM character_inventory
		 WHERE character_id = $1 ORDER BY slot`, characterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InventoryItemRow
	for rows.Next() {
		var it InventoryItemRow
		if err := rows.Scan(&it.Slot, &it.ItemID, &it.Quantity); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// SaveAll replaces a character's inventory in one transaction.
func (r *InventoryRepo) SaveAll(ctx context.Context, characterID string, items []InventoryItemRow) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM character_inventory WHERE character_id = $1`, characterID); err != nil {
		return err
	}
	for _, it := range items {
		_, err = tx.Exec(ctx,
			`INSERT INTO character_inventory (character_id, slot, item_id, quantity)
			 VALUES ($1, $2, $3, $4)`,
			characterID, it.Slot, it.ItemID, it.Quantity,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// CompleteTradeSwap atomically replaces both parties' inventories after a
// trade. Either both sides commit or neither does.
func (r *InventoryRepo) CompleteTradeSwap(ctx context.Context, charA string, itemsA []InventoryItemRow, coinsA int64, charB string, itemsB []InventoryItemRow, coinsB int64) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, side := range []struct {
		char  string
		items []InventoryItemRow
		coins int64
	}{
		{charA, itemsA, coinsA},
		{charB, itemsB, coinsB},
	} {
		if _, err := tx.Exec(ctx,
			`DELETE FROM character_inventory WHERE character_id = $1`, side.char); err != nil {
			return fmt.Errorf("clear inventory %s: %w", side.char, err)
		}
		for _, it := range side.items {
			_, err = tx.Exec(ctx,
				`INSERT INTO character_inventory (character_id, slot, item_id, quantity)
				 VALUES ($1, $2, $3, $4)`,
				side.char, it.Slot, it.ItemID, it.Quantity,
			)
			if err != nil {
				return fmt.Errorf("write inventory %s: %w", side.char, err)
			}
		}
		if _, err := tx.Exec(ctx,
			`UPDATE characters SET coins = $2 WHERE id = $1`, side.char, side.coins); err != nil {
			return fmt.Errorf("write coins %s: %w", side.char, err)
		}
	}
	return tx.Commit(ctx)
}

type EquipmentRepo struct {
	db *DB
}

func NewEquipmentRepo(db *DB) *EquipmentRepo {
	return &EquipmentRepo{db: db}
}

func (r *EquipmentRepo) LoadAll(ctx context.Context, characterID string) (map[string]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT slot, item_id FROM character_equipment WHERE character_id = $1`, characterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var slot, itemID string
		if err := rows.Scan(&slot, &itemID); err != nil {
			return nil, err
		}
		out[slot] = itemID
	}
	return out, rows.Err()
}

func (r *EquipmentRepo) SaveAll(ctx context.Context, characterID string, equipment map[string]string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM character_equipment WHERE character_id = $1`, characterID); err != nil {
		return err
	}
	for slot, itemID := range equipment {
		_, err = tx.Exec(ctx,
			`INSERT INTO character_equipment (character_id, slot, item_id) VALUES ($1, $2, $3)`,
			characterID, slot, itemID,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
