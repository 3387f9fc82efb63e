package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Area is a named world region with a spawn point. Starter towns, banks
// and stores reference areas by id.
type Area struct {
	ID      string    `yaml:"id"`
	Name    string    `yaml:"name"`
	Spawn   []float64 `yaml:"spawn"` // x, y, z
	Safe    bool      `yaml:"safe"`
	BankID  string    `yaml:"bank_id"`
	StoreID string    `yaml:"store_id"`
}

type areaListFile struct {
	Areas []Area `yaml:"areas"`
}

// AreaTable holds all areas indexed by id.
type AreaTable struct {
	areas map[string]*Area
	order []string
}

// LoadAreaTable loads areas from a YAML file.
func LoadAreaTable(path string) (*AreaTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read areas: %w", err)
	}
	var f areaListFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse areas: %w", err)
	}
	t := &AreaTable{areas: make(map[string]*Area, len(f.Areas))}
	for i := range f.Areas {
		a := &f.Areas[i]
		if len(a.Spawn) != 3 {
			return nil, fmt.Errorf("area %s: spawn needs 3 coordinates", a.ID)
		}
		t.areas[a.ID] = a
		t.order = append(t.order, a.ID)
	}
	return t, nil
}

func (t *AreaTable) Get(id string) *Area {
	return t.areas[id]
}

// Default returns the first declared area, the starter spawn.
func (t *AreaTable) Default() *Area {
	if len(t.order) == 0 {
		return nil
	}
	return t.areas[t.order[0]]
}

func (t *AreaTable) Count() int { return len(t.areas) }
