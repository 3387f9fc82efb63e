package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ResourceTemplate holds static data for a gatherable resource type.
type ResourceTemplate struct {
	ResourceID  string  `yaml:"resource_id"`
	Name        string  `yaml:"name"`
	Skill       string  `yaml:"skill"` // woodcutting, mining, fishing
	LevelReq    int     `yaml:"level_req"`
	XP          int     `yaml:"xp"`
	YieldItem   string  `yaml:"yield_item"`
	RespawnSecs int     `yaml:"respawn_secs"`
	Width       float64 `yaml:"width"` // footprint, for cardinal facing
	Depth       float64 `yaml:"depth"`
}

// ResourceSpawn places one resource instance in the world.
type ResourceSpawn struct {
	ResourceID string  `yaml:"resource_id"`
	X          float64 `yaml:"x"`
	Y          float64 `yaml:"y"`
	Z          float64 `yaml:"z"`
}

type resourceListFile struct {
	Resources []ResourceTemplate `yaml:"resources"`
	Spawns    []ResourceSpawn    `yaml:"spawns"`
}

// ResourceTable holds resource templates and spawn points.
type ResourceTable struct {
	templates map[string]*ResourceTemplate
	spawns    []ResourceSpawn
}

// LoadResourceTable loads resource definitions and spawns from YAML.
func LoadResourceTable(path string) (*ResourceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resources: %w", err)
	}
	var f resourceListFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse resources: %w", err)
	}
	t := &ResourceTable{
		templates: make(map[string]*ResourceTemplate, len(f.Resources)),
		spawns:    f.Spawns,
	}
	for i := range f.Resources {
		r := &f.Resources[i]
		t.templates[r.ResourceID] = r
	}
	for _, sp := range f.Spawns {
		if t.templates[sp.ResourceID] == nil {
			return nil, fmt.Errorf("spawn references unknown resource %q", sp.ResourceID)
		}
	}
	return t, nil
}

func (t *ResourceTable) Get(id string) *ResourceTemplate {
	return t.templates[id]
}

func (t *ResourceTable) Spawns() []ResourceSpawn {
	return t.spawns
}

func (t *ResourceTable) Count() int { return len(t.templates) }
