// Package sim is the boundary to the simulation engine. The bridge only reads
// through View and writes through Invoker; both must be used from the
// simulation's own turn.
package sim

import "fmt"

// View is a read-only window onto live simulation state.
type View interface {
	GameState() GameState
	TickCount() int
	World() int
	Plane() int
	// SceneBase returns the world coordinate of scene tile (0, 0).
	SceneBase() (x, z int)
	Energy() int
	Weight() int
	MenuOpen() bool

	LocalPlayer() (Actor, bool)
	Players() []Actor
	NPCs() []NPC
	Skills() []Skill

	// Tile returns the tile at scene coordinates, false when unloaded or empty.
	Tile(plane, sceneX, sceneZ int) (Tile, bool)
	ObjectDef(id int) (ObjectDef, bool)
	ItemDef(id int) (ItemDef, bool)
	Container(id ContainerID) ([]Item, bool)
	Widget(addr Address) (Widget, bool)
}

// Invoker performs native interactions.
type Invoker interface {
	Invoke(inv Invocation) error
}

// Action names the native interaction primitive.
type Action string

const (
	ActionWalk           Action = "WALK"
	ActionNPC            Action = "NPC_OPTION"
	ActionObject         Action = "GAME_OBJECT_OPTION"
	ActionGroundItem     Action = "GROUND_ITEM_OPTION"
	ActionWidgetOp       Action = "CC_OP"
	ActionWidgetContinue Action = "WIDGET_CONTINUE"
	ActionKey            Action = "KEY"
	ActionText           Action = "TEXT"
)

// Invocation is one native interaction call. Param0/Param1 carry scene
// coordinates for world actions and (slot, component) for widget actions.
type Invocation struct {
	Action     Action
	Option     int
	Param0     int
	Param1     int
	Identifier int
	ItemID     int
	Verb       string
	Target     string
	KeyCode    int
	Text       string
}

func (inv Invocation) String() string {
	switch inv.Action {
	case ActionKey:
		return fmt.Sprintf("%s(%d)", inv.Action, inv.KeyCode)
	case ActionText:
		return fmt.Sprintf("%s(%q)", inv.Action, inv.Text)
	}
	return fmt.Sprintf("%s#%d(%d,%d,id=%d) %q %q", inv.Action, inv.Option, inv.Param0, inv.Param1, inv.Identifier, inv.Verb, inv.Target)
}

// TurnSource lets the bridge run work on every simulation turn.
type TurnSource interface {
	OnTurn(fn func())
}

// Events delivers asynchronous notifications from the simulation.
type Events interface {
	OnDamage(fn func(tick int))
	OnMessage(fn func(Message))
}
