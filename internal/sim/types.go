package sim

import "math"

// SceneSize is the edge length, in tiles, of the loaded playfield.
const SceneSize = 104

// Unreachable is the distance reported between points on different planes.
const Unreachable = math.MaxInt32

// Point is an absolute world tile coordinate.
type Point struct {
	X     int `yaml:"x" json:"x"`
	Z     int `yaml:"z" json:"z"`
	Plane int `yaml:"plane" json:"plane"`
}

// DistanceTo returns the Chebyshev tile distance, or Unreachable across planes.
func (p Point) DistanceTo(o Point) int {
	if p.Plane != o.Plane {
		return Unreachable
	}
	dx := p.X - o.X
	if dx < 0 {
		dx = -dx
	}
	dz := p.Z - o.Z
	if dz < 0 {
		dz = -dz
	}
	if dx > dz {
		return dx
	}
	return dz
}

// ScenePoint is a tile coordinate relative to the loaded scene's base.
type ScenePoint struct {
	X int
	Z int
}

// InScene reports whether the point lies inside the loaded playfield.
func (s ScenePoint) InScene() bool {
	return s.X >= 0 && s.X < SceneSize && s.Z >= 0 && s.Z < SceneSize
}

// ToScene translates a world coordinate into scene space by subtracting base.
func ToScene(world Point, baseX, baseZ int) ScenePoint {
	return ScenePoint{X: world.X - baseX, Z: world.Z - baseZ}
}

type RefKind string

const (
	RefNPC    RefKind = "npc"
	RefPlayer RefKind = "player"
)

// Ref points at the actor another actor is interacting with.
type Ref struct {
	Kind  RefKind `yaml:"kind"`
	Index int     `yaml:"index"`
}

// Actor is a player character (local or remote).
type Actor struct {
	Index       int    `yaml:"index"`
	Name        string `yaml:"name"`
	CombatLevel int    `yaml:"combat_level"`
	Pos         Point  `yaml:"pos"`
	Anim        int    `yaml:"anim"`
	Graphic     int    `yaml:"graphic"`
	Interacting *Ref   `yaml:"interacting,omitempty"`
}

type NPC struct {
	Index       int      `yaml:"index"`
	DefID       int      `yaml:"def_id"`
	Name        string   `yaml:"name"`
	CombatLevel int      `yaml:"combat_level"`
	Pos         Point    `yaml:"pos"`
	Actions     []string `yaml:"actions"`
	HealthRatio int      `yaml:"health_ratio"`
	HealthScale int      `yaml:"health_scale"`
	Anim        int      `yaml:"anim"`
	Graphic     int      `yaml:"graphic"`
	Interacting *Ref     `yaml:"interacting,omitempty"`
}

// ObjectKind orders the object slots of a tile the way the engine exposes them.
type ObjectKind int

const (
	ObjectGame ObjectKind = iota
	ObjectWall
	ObjectDecorative
	ObjectGround
)

func (k ObjectKind) String() string {
	switch k {
	case ObjectGame:
		return "game"
	case ObjectWall:
		return "wall"
	case ObjectDecorative:
		return "decorative"
	case ObjectGround:
		return "ground"
	}
	return "unknown"
}

type TileObject struct {
	ID   int
	Kind ObjectKind
	Pos  Point
}

type TileItem struct {
	ID       int
	Quantity int
}

// Tile is one loaded scene tile. Objects are ordered game, wall, decorative, ground.
type Tile struct {
	Pos     Point
	Objects []TileObject
	Items   []TileItem
}

type ObjectDef struct {
	ID      int      `yaml:"id"`
	Name    string   `yaml:"name"`
	Actions []string `yaml:"actions"`
}

type ItemDef struct {
	ID               int      `yaml:"id"`
	Name             string   `yaml:"name"`
	InventoryActions []string `yaml:"inventory_actions"`
	GroundActions    []string `yaml:"ground_actions"`
}

// Item is a container slot; ID <= 0 marks an empty slot.
type Item struct {
	ID       int `yaml:"id"`
	Quantity int `yaml:"quantity"`
}

func (i Item) Empty() bool { return i.ID <= 0 }

type ContainerID string

const (
	ContainerInventory ContainerID = "inventory"
	ContainerEquipment ContainerID = "equipment"
	ContainerBank      ContainerID = "bank"
	ContainerShop      ContainerID = "shop"
)

type Skill struct {
	Name       string `yaml:"name"`
	Level      int    `yaml:"level"`
	BaseLevel  int    `yaml:"base_level"`
	Experience int    `yaml:"experience"`
}

type GameState string

const (
	StateLoginScreen GameState = "LOGIN_SCREEN"
	StateLoading     GameState = "LOADING"
	StateLoggedIn    GameState = "LOGGED_IN"
)

// Message is one chat/game message observed by the collaborator.
type Message struct {
	Type   int
	Text   string
	Sender string
	Tick   int
}
