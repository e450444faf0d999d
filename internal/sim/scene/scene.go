// Package scene is an in-memory simulation that satisfies the sim
// collaborator interfaces. It backs the demo server and the bridge tests.
package scene

import (
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"simbridge.ai/internal/sim"
)

type tileKey struct {
	plane, x, z int
}

type Scene struct {
	// tick is read by observers outside the turn goroutine (metrics).
	tick atomic.Int64

	state     sim.GameState
	world     int
	baseX     int
	baseZ     int
	energy    int
	weight    int
	menuOpen  bool
	local     *sim.Actor
	walkDest  *sim.Point
	players   []sim.Actor
	npcs      []sim.NPC
	skills    []sim.Skill
	objects   map[tileKey][]sim.TileObject
	items     map[tileKey][]sim.TileItem
	objDefs   map[int]sim.ObjectDef
	itemDefs  map[int]sim.ItemDef
	container map[sim.ContainerID][]sim.Item
	widgets   map[sim.Address]sim.Widget

	invocations []sim.Invocation
	failNext    error

	mu        sync.Mutex
	onTurn    []func()
	onDamage  []func(tick int)
	onMessage []func(sim.Message)
}

// New builds a scene from a validated fixture.
func New(f Fixture) *Scene {
	s := &Scene{
		state:     f.GameState,
		world:     f.World,
		baseX:     f.Base.X,
		baseZ:     f.Base.Z,
		energy:    f.Energy,
		weight:    f.Weight,
		players:   append([]sim.Actor(nil), f.Players...),
		npcs:      append([]sim.NPC(nil), f.NPCs...),
		skills:    append([]sim.Skill(nil), f.Skills...),
		objects:   map[tileKey][]sim.TileObject{},
		items:     map[tileKey][]sim.TileItem{},
		objDefs:   map[int]sim.ObjectDef{},
		itemDefs:  map[int]sim.ItemDef{},
		container: map[sim.ContainerID][]sim.Item{},
		widgets:   map[sim.Address]sim.Widget{},
	}
	if s.state == "" {
		s.state = sim.StateLoggedIn
	}
	if f.Local != nil {
		local := *f.Local
		s.local = &local
	}
	for _, d := range f.ObjectDefs {
		s.objDefs[d.ID] = d
	}
	for _, d := range f.ItemDefs {
		s.itemDefs[d.ID] = d
	}
	for _, o := range f.Objects {
		kind, _ := parseKind(o.Kind)
		s.AddObject(o.ID, kind, sim.Point{X: o.X, Z: o.Z, Plane: o.Plane})
	}
	for _, it := range f.GroundItems {
		s.AddGroundItem(it.ID, it.Quantity, sim.Point{X: it.X, Z: it.Z, Plane: it.Plane})
	}
	for id, items := range f.Containers {
		s.container[id] = append([]sim.Item(nil), items...)
	}
	for _, w := range f.Widgets {
		s.SetWidget(w.widget())
	}
	return s
}

func (s *Scene) keyFor(p sim.Point) (tileKey, bool) {
	sp := sim.ToScene(p, s.baseX, s.baseZ)
	if !sp.InScene() {
		return tileKey{}, false
	}
	return tileKey{plane: p.Plane, x: sp.X, z: sp.Z}, true
}

// AddObject places an object; objects outside the loaded scene are ignored.
func (s *Scene) AddObject(id int, kind sim.ObjectKind, p sim.Point) {
	k, ok := s.keyFor(p)
	if !ok {
		return
	}
	objs := append(s.objects[k], sim.TileObject{ID: id, Kind: kind, Pos: p})
	sort.SliceStable(objs, func(i, j int) bool { return objs[i].Kind < objs[j].Kind })
	s.objects[k] = objs
}

func (s *Scene) AddGroundItem(id, qty int, p sim.Point) {
	k, ok := s.keyFor(p)
	if !ok {
		return
	}
	s.items[k] = append(s.items[k], sim.TileItem{ID: id, Quantity: qty})
}

func (s *Scene) DefineObject(d sim.ObjectDef) { s.objDefs[d.ID] = d }
func (s *Scene) DefineItem(d sim.ItemDef)     { s.itemDefs[d.ID] = d }

func (s *Scene) AddNPC(n sim.NPC) { s.npcs = append(s.npcs, n) }

func (s *Scene) RemoveNPC(index int) {
	out := s.npcs[:0]
	for _, n := range s.npcs {
		if n.Index != index {
			out = append(out, n)
		}
	}
	s.npcs = out
}

func (s *Scene) SetNPCActions(index int, actions []string) {
	for i := range s.npcs {
		if s.npcs[i].Index == index {
			s.npcs[i].Actions = actions
		}
	}
}

func (s *Scene) SetWidget(w sim.Widget) { s.widgets[w.Address] = w }

func (s *Scene) HideWidget(addr sim.Address) {
	if w, ok := s.widgets[addr]; ok {
		w.Hidden = true
		s.widgets[addr] = w
	}
}

func (s *Scene) SetContainer(id sim.ContainerID, items []sim.Item) {
	s.container[id] = append([]sim.Item(nil), items...)
}

func (s *Scene) SetGameState(st sim.GameState) { s.state = st }

func (s *Scene) SetLocalPosition(p sim.Point) {
	if s.local != nil {
		s.local.Pos = p
		s.walkDest = nil
	}
}

// FailNext makes the next Invoke return err.
func (s *Scene) FailNext(err error) { s.failNext = err }

// Invocations returns a copy of every invocation seen so far.
func (s *Scene) Invocations() []sim.Invocation {
	return append([]sim.Invocation(nil), s.invocations...)
}

// View

func (s *Scene) GameState() sim.GameState { return s.state }
func (s *Scene) TickCount() int           { return int(s.tick.Load()) }
func (s *Scene) World() int               { return s.world }
func (s *Scene) SceneBase() (int, int)    { return s.baseX, s.baseZ }
func (s *Scene) Energy() int              { return s.energy }
func (s *Scene) Weight() int              { return s.weight }
func (s *Scene) MenuOpen() bool           { return s.menuOpen }

func (s *Scene) Plane() int {
	if s.local == nil {
		return 0
	}
	return s.local.Pos.Plane
}

func (s *Scene) LocalPlayer() (sim.Actor, bool) {
	if s.local == nil || s.state != sim.StateLoggedIn {
		return sim.Actor{}, false
	}
	return *s.local, true
}

func (s *Scene) Players() []sim.Actor { return append([]sim.Actor(nil), s.players...) }
func (s *Scene) NPCs() []sim.NPC      { return append([]sim.NPC(nil), s.npcs...) }
func (s *Scene) Skills() []sim.Skill  { return append([]sim.Skill(nil), s.skills...) }

func (s *Scene) Tile(plane, x, z int) (sim.Tile, bool) {
	if !(sim.ScenePoint{X: x, Z: z}).InScene() {
		return sim.Tile{}, false
	}
	k := tileKey{plane: plane, x: x, z: z}
	objs, items := s.objects[k], s.items[k]
	if len(objs) == 0 && len(items) == 0 {
		return sim.Tile{}, false
	}
	return sim.Tile{
		Pos:     sim.Point{X: s.baseX + x, Z: s.baseZ + z, Plane: plane},
		Objects: append([]sim.TileObject(nil), objs...),
		Items:   append([]sim.TileItem(nil), items...),
	}, true
}

func (s *Scene) ObjectDef(id int) (sim.ObjectDef, bool) {
	d, ok := s.objDefs[id]
	return d, ok
}

func (s *Scene) ItemDef(id int) (sim.ItemDef, bool) {
	d, ok := s.itemDefs[id]
	return d, ok
}

func (s *Scene) Container(id sim.ContainerID) ([]sim.Item, bool) {
	items, ok := s.container[id]
	if !ok {
		return nil, false
	}
	return append([]sim.Item(nil), items...), true
}

func (s *Scene) Widget(addr sim.Address) (sim.Widget, bool) {
	w, ok := s.widgets[addr]
	return w, ok
}

// Callbacks

func (s *Scene) OnTurn(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTurn = append(s.onTurn, fn)
}

func (s *Scene) OnDamage(fn func(tick int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDamage = append(s.onDamage, fn)
}

func (s *Scene) OnMessage(fn func(sim.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = append(s.onMessage, fn)
}

// Damage reports a hit on the local player at the current tick.
func (s *Scene) Damage() {
	tick := s.TickCount()
	s.mu.Lock()
	hooks := slices.Clone(s.onDamage)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(tick)
	}
}

// Say emits a game message.
func (s *Scene) Say(typ int, sender, text string) {
	m := sim.Message{Type: typ, Sender: sender, Text: text, Tick: s.TickCount()}
	s.mu.Lock()
	hooks := slices.Clone(s.onMessage)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(m)
	}
}

var (
	_ sim.View       = (*Scene)(nil)
	_ sim.Invoker    = (*Scene)(nil)
	_ sim.TurnSource = (*Scene)(nil)
	_ sim.Events     = (*Scene)(nil)
)
