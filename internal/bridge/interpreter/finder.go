package interpreter

import (
	"strings"

	"simbridge.ai/internal/bridge/actions"
	"simbridge.ai/internal/sim"
)

// Candidate is an object picked by a Finder together with the option that
// matched.
type Candidate struct {
	Object  sim.TileObject
	Def     sim.ObjectDef
	Scene   sim.ScenePoint
	OpIndex int
	Verb    string
}

// Query describes a search for an object near the local player.
type Query struct {
	Radius int
	Kinds  []sim.ObjectKind
	// Names are lower-case substrings; the object name must contain one.
	Names []string
	// Option picks the action to use, or reports false to reject the object.
	Option func(table []string) (int, string, bool)
	// Accept filters by identity or position hints.
	Accept func(o sim.TileObject) bool
}

// Finder locates an object for commands that carry no direct identity.
type Finder interface {
	Find(v sim.View, from sim.Point, q Query) (Candidate, bool)
}

// ScanFinder walks the square around the player in fixed nested dx, dz
// order and returns the first match. It does not rank by distance.
type ScanFinder struct{}

func (ScanFinder) Find(v sim.View, from sim.Point, q Query) (Candidate, bool) {
	baseX, baseZ := v.SceneBase()
	center := sim.ToScene(from, baseX, baseZ)
	for dx := -q.Radius; dx <= q.Radius; dx++ {
		for dz := -q.Radius; dz <= q.Radius; dz++ {
			sp := sim.ScenePoint{X: center.X + dx, Z: center.Z + dz}
			if !sp.InScene() {
				continue
			}
			tile, ok := v.Tile(from.Plane, sp.X, sp.Z)
			if !ok {
				continue
			}
			for _, o := range tile.Objects {
				if !kindIn(o.Kind, q.Kinds) {
					continue
				}
				if c, ok := match(v, o, sp, q); ok {
					return c, true
				}
			}
		}
	}
	return Candidate{}, false
}

func match(v sim.View, o sim.TileObject, sp sim.ScenePoint, q Query) (Candidate, bool) {
	def, ok := v.ObjectDef(o.ID)
	if !ok || def.Name == "" || def.Name == "null" {
		return Candidate{}, false
	}
	name := strings.ToLower(def.Name)
	named := false
	for _, n := range q.Names {
		if strings.Contains(name, n) {
			named = true
			break
		}
	}
	if !named {
		return Candidate{}, false
	}
	if q.Accept != nil && !q.Accept(o) {
		return Candidate{}, false
	}
	op, verb, ok := q.Option(def.Actions)
	if !ok {
		return Candidate{}, false
	}
	return Candidate{Object: o, Def: def, Scene: sp, OpIndex: op, Verb: verb}, true
}

func kindIn(k sim.ObjectKind, kinds []sim.ObjectKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

var (
	climbNames   = []string{"stair", "ladder", "steps", "trapdoor"}
	doorNames    = []string{"door", "gate"}
	upKeywords   = []string{"climb-up", "climb up", "go-up", "go up", "ascend"}
	downKeywords = []string{"climb-down", "climb down", "go-down", "go down", "descend"}
	climbKinds   = []sim.ObjectKind{sim.ObjectGame, sim.ObjectWall}
	doorKinds    = []sim.ObjectKind{sim.ObjectWall}
)

// climbOption matches a directional climb action, or a bare "Climb".
func climbOption(up bool) func([]string) (int, string, bool) {
	keywords := downKeywords
	if up {
		keywords = upKeywords
	}
	return func(table []string) (int, string, bool) {
		if op, label, ok := actions.Match(table, keywords...); ok {
			return op, label, true
		}
		if op, ok := actions.Find(table, "climb"); ok {
			return op, table[op-1], true
		}
		return 0, "", false
	}
}

func openOption(table []string) (int, string, bool) {
	op, ok := actions.Find(table, "open")
	if !ok {
		return 0, "", false
	}
	return op, table[op-1], true
}
