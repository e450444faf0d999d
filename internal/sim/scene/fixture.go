package scene

import (
	"fmt"
	"os"
	"strings"

	"github.com/pixil98/go-errors"
	"gopkg.in/yaml.v3"

	"simbridge.ai/internal/sim"
)

// Fixture is the YAML description of a scene.
type Fixture struct {
	GameState sim.GameState `yaml:"game_state"`
	World     int           `yaml:"world"`
	Base      struct {
		X int `yaml:"x"`
		Z int `yaml:"z"`
	} `yaml:"base"`
	Energy int `yaml:"energy"`
	Weight int `yaml:"weight"`

	Local   *sim.Actor  `yaml:"local"`
	Players []sim.Actor `yaml:"players"`
	NPCs    []sim.NPC   `yaml:"npcs"`
	Skills  []sim.Skill `yaml:"skills"`

	ObjectDefs  []sim.ObjectDef `yaml:"object_defs"`
	ItemDefs    []sim.ItemDef   `yaml:"item_defs"`
	Objects     []ObjectSpec    `yaml:"objects"`
	GroundItems []ItemSpec      `yaml:"ground_items"`

	Containers map[sim.ContainerID][]sim.Item `yaml:"containers"`
	Widgets    []WidgetSpec                   `yaml:"widgets"`
}

type ObjectSpec struct {
	ID    int    `yaml:"id"`
	Kind  string `yaml:"kind"`
	X     int    `yaml:"x"`
	Z     int    `yaml:"z"`
	Plane int    `yaml:"plane"`
}

type ItemSpec struct {
	ID       int `yaml:"id"`
	Quantity int `yaml:"quantity"`
	X        int `yaml:"x"`
	Z        int `yaml:"z"`
	Plane    int `yaml:"plane"`
}

type WidgetSpec struct {
	Group    int          `yaml:"group"`
	Child    int          `yaml:"child"`
	Hidden   bool         `yaml:"hidden"`
	Text     string       `yaml:"text"`
	Children []WidgetSpec `yaml:"children"`
}

func (w WidgetSpec) widget() sim.Widget {
	out := sim.Widget{
		Address: sim.Address{Group: w.Group, Child: w.Child},
		Hidden:  w.Hidden,
		Text:    w.Text,
	}
	for _, c := range w.Children {
		child := c.widget()
		// Children share the parent's packed id, as the client reports them.
		child.Address = out.Address
		out.Children = append(out.Children, child)
	}
	return out
}

func parseKind(s string) (sim.ObjectKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "game":
		return sim.ObjectGame, nil
	case "wall":
		return sim.ObjectWall, nil
	case "decorative":
		return sim.ObjectDecorative, nil
	case "ground":
		return sim.ObjectGround, nil
	}
	return 0, fmt.Errorf("unknown object kind %q", s)
}

// LoadFixture reads and validates a YAML scene description.
func LoadFixture(path string) (Fixture, error) {
	var f Fixture
	b, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	return ParseFixture(b)
}

func ParseFixture(b []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("parse scene: %w", err)
	}
	if f.GameState == "" {
		f.GameState = sim.StateLoggedIn
	}
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

func (f Fixture) Validate() error {
	el := errors.NewErrorList()
	if f.GameState == sim.StateLoggedIn && f.Local == nil {
		el.Add(fmt.Errorf("local is required when logged in"))
	}
	seen := map[int]bool{}
	for _, n := range f.NPCs {
		if seen[n.Index] {
			el.Add(fmt.Errorf("duplicate npc index %d", n.Index))
		}
		seen[n.Index] = true
	}
	defs := map[int]bool{}
	for _, d := range f.ObjectDefs {
		defs[d.ID] = true
	}
	for i, o := range f.Objects {
		if !defs[o.ID] {
			el.Add(fmt.Errorf("objects[%d]: no definition for id %d", i, o.ID))
		}
		if _, err := parseKind(o.Kind); err != nil {
			el.Add(fmt.Errorf("objects[%d]: %w", i, err))
		}
	}
	return el.Err()
}
