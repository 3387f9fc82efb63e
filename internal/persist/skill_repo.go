package persist

import "context"

type SkillRow struct {
	Level int
	XP    int64
}

type SkillRepo struct {
	db *DB
}

func NewSkillRepo(db *DB) *SkillRepo {
	return &SkillRepo{db: db}
}

func (r *SkillRepo) LoadAll(ctx context.Context, characterID string) (map[string]SkillRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT skill, level, xp FROM character_skills WHERE character_id = $1`, characterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]SkillRow)
	for rows.Next() {
		var skill string
		var s SkillRow
		if err := rows.Scan(&skill, &s.Level, &s.XP); err != nil {
			return nil, err
		}
		out[skill] = s
	}
	return out, rows.Err()
}

// SaveAll upserts the full skill map in one transaction.
func (r *SkillRepo) SaveAll(ctx context.Context, characterID string, skills map[string]SkillRow) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for skill, s := range skills {
		_, err = tx.Exec(ctx,
			`INSERT INTO character_skills (character_id, skill, level, xp)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (character_id, skill) DO UPDATE SET level = EXCLUDED.level, xp = EXCLUDED.xp`,
			characterID, skill, s.Level, s.XP,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
