// Package assembler reads live simulation state into a broadcast snapshot.
// Assemble must only be called on the simulation's turn.
package assembler

import (
	"github.com/sirupsen/logrus"

	"simbridge.ai/internal/bridge/actions"
	"simbridge.ai/internal/bridge/layout"
	"simbridge.ai/internal/protocol"
	"simbridge.ai/internal/sim"
)

type Category struct {
	Include     bool
	MaxDistance int
}

type Config struct {
	NPCs        Category
	Players     Category
	Objects     Category
	GroundItems Category
}

func DefaultConfig() Config {
	return Config{
		NPCs:        Category{Include: true, MaxDistance: 15},
		Players:     Category{Include: true, MaxDistance: sim.SceneSize},
		Objects:     Category{Include: true, MaxDistance: 10},
		GroundItems: Category{Include: true, MaxDistance: 10},
	}
}

type Assembler struct {
	view     sim.View
	cfg      Config
	layout   layout.Layout
	damage   *DamageWatermark
	messages *MessageLog
	log      logrus.FieldLogger
}

func New(view sim.View, cfg Config, l layout.Layout, log logrus.FieldLogger) *Assembler {
	return &Assembler{
		view:     view,
		cfg:      cfg,
		layout:   l,
		damage:   NewDamageWatermark(),
		messages: NewMessageLog(50),
		log:      log.WithField("component", "assembler"),
	}
}

// Watch feeds the damage watermark and message log from simulation events.
func (a *Assembler) Watch(ev sim.Events) {
	ev.OnDamage(a.damage.Observe)
	ev.OnMessage(a.messages.Add)
}

// Assemble builds a fresh snapshot. Every list in the result is non-nil.
func (a *Assembler) Assemble() *protocol.Snapshot {
	v := a.view
	snap := &protocol.Snapshot{
		Tick:          v.TickCount(),
		GameState:     string(v.GameState()),
		CurrentWorld:  v.World(),
		Skills:        []protocol.Skill{},
		Inventory:     []protocol.Item{},
		Equipment:     []protocol.Item{},
		NearbyNpcs:    []protocol.Entity{},
		NearbyPlayers: []protocol.Entity{},
		NearbyLocs:    []protocol.Entity{},
		GroundItems:   []protocol.Entity{},
		GameMessages:  a.messages.Recent(),
		Dialog:        a.dialog(),
		ModalOpen:     v.MenuOpen(),
	}

	me, ok := v.LocalPlayer()
	snap.InGame = ok && v.GameState() == sim.StateLoggedIn
	if snap.InGame {
		snap.CurrentPlane = v.Plane()
		snap.AccountName = me.Name
		snap.Player = a.player(me)
		snap.Skills = a.skills()
		snap.Inventory = a.container(sim.ContainerInventory, true)
		snap.Equipment = a.container(sim.ContainerEquipment, false)
		if a.cfg.NPCs.Include {
			snap.NearbyNpcs = a.npcs(me.Pos)
		}
		if a.cfg.Players.Include {
			snap.NearbyPlayers = a.players(me)
		}
		if a.cfg.Objects.Include {
			snap.NearbyLocs = a.objects(me.Pos)
		}
		if a.cfg.GroundItems.Include {
			snap.GroundItems = a.groundItems(me.Pos)
		}
	}
	snap.Shop = a.shop()
	snap.Bank = a.bank()
	return snap
}

func (a *Assembler) player(me sim.Actor) *protocol.Player {
	baseX, baseZ := a.view.SceneBase()
	sp := sim.ToScene(me.Pos, baseX, baseZ)
	target := -1
	if me.Interacting != nil && me.Interacting.Kind == sim.RefNPC {
		target = me.Interacting.Index
	}
	return &protocol.Player{
		Name:        me.Name,
		CombatLevel: me.CombatLevel,
		X:           sp.X,
		Z:           sp.Z,
		WorldX:      me.Pos.X,
		WorldZ:      me.Pos.Z,
		Level:       me.Pos.Plane,
		RunEnergy:   a.view.Energy(),
		RunWeight:   a.view.Weight(),
		AnimID:      me.Anim,
		SpotanimID:  me.Graphic,
		Combat: protocol.Combat{
			InCombat:       me.Interacting != nil,
			TargetIndex:    target,
			LastDamageTick: a.damage.Load(),
		},
	}
}

func (a *Assembler) skills() []protocol.Skill {
	in := a.view.Skills()
	out := make([]protocol.Skill, 0, len(in))
	for _, s := range in {
		out = append(out, protocol.Skill{Name: s.Name, Level: s.Level, BaseLevel: s.BaseLevel, Experience: s.Experience})
	}
	return out
}

// container lists the occupied slots of a container. Only the inventory
// carries per-item options.
func (a *Assembler) container(id sim.ContainerID, withOptions bool) []protocol.Item {
	out := []protocol.Item{}
	items, ok := a.view.Container(id)
	if !ok {
		return out
	}
	for slot, it := range items {
		if it.Empty() {
			continue
		}
		def, _ := a.view.ItemDef(it.ID)
		opts := []protocol.Option{}
		if withOptions {
			opts = actions.Enumerate(def.InventoryActions)
		}
		out = append(out, protocol.Item{
			Slot:             slot,
			ID:               it.ID,
			Name:             def.Name,
			Count:            it.Quantity,
			OptionsWithIndex: opts,
		})
	}
	return out
}

func within(c Category, d int) bool { return d <= c.MaxDistance }

func (a *Assembler) npcs(from sim.Point) []protocol.Entity {
	out := []protocol.Entity{}
	for _, n := range a.view.NPCs() {
		d := from.DistanceTo(n.Pos)
		if !within(a.cfg.NPCs, d) {
			continue
		}
		e := entity(protocol.CategoryNPC, n.Index, n.DefID, n.Name, n.Pos, d, n.Actions)
		e.CombatLevel = intPtr(n.CombatLevel)
		e.HP = intPtr(n.HealthRatio)
		e.MaxHP = intPtr(n.HealthScale)
		if n.HealthRatio >= 0 && n.HealthScale > 0 {
			e.HealthPercent = intPtr(n.HealthRatio * 100 / n.HealthScale)
		}
		target := -1
		if n.Interacting != nil && n.Interacting.Kind == sim.RefPlayer {
			target = n.Interacting.Index
		}
		inCombat := n.Interacting != nil
		e.InCombat = &inCombat
		e.TargetIndex = intPtr(target)
		e.AnimID = intPtr(n.Anim)
		e.SpotanimID = intPtr(n.Graphic)
		out = append(out, e)
	}
	return out
}

func (a *Assembler) players(me sim.Actor) []protocol.Entity {
	out := []protocol.Entity{}
	for _, p := range a.view.Players() {
		if p.Index == me.Index {
			continue
		}
		d := me.Pos.DistanceTo(p.Pos)
		if !within(a.cfg.Players, d) {
			continue
		}
		e := entity(protocol.CategoryPlayer, p.Index, p.Index, p.Name, p.Pos, d, nil)
		e.CombatLevel = intPtr(p.CombatLevel)
		e.AnimID = intPtr(p.Anim)
		e.SpotanimID = intPtr(p.Graphic)
		out = append(out, e)
	}
	return out
}

// scan visits the loaded tiles of the square of radius r around from, in
// nested dx, dz order. Tiles outside the scene are skipped.
func (a *Assembler) scan(from sim.Point, r int, fn func(sim.Tile)) {
	baseX, baseZ := a.view.SceneBase()
	center := sim.ToScene(from, baseX, baseZ)
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			sp := sim.ScenePoint{X: center.X + dx, Z: center.Z + dz}
			if !sp.InScene() {
				continue
			}
			tile, ok := a.view.Tile(from.Plane, sp.X, sp.Z)
			if !ok {
				continue
			}
			fn(tile)
		}
	}
}

func (a *Assembler) objects(from sim.Point) []protocol.Entity {
	out := []protocol.Entity{}
	a.scan(from, a.cfg.Objects.MaxDistance, func(tile sim.Tile) {
		for _, o := range tile.Objects {
			def, ok := a.view.ObjectDef(o.ID)
			if !ok || def.Name == "" || def.Name == "null" {
				continue
			}
			d := from.DistanceTo(o.Pos)
			if !within(a.cfg.Objects, d) {
				continue
			}
			e := entity(protocol.CategoryObject, o.ID, o.ID, def.Name, o.Pos, d, def.Actions)
			e.Kind = o.Kind.String()
			out = append(out, e)
		}
	})
	return out
}

func (a *Assembler) groundItems(from sim.Point) []protocol.Entity {
	out := []protocol.Entity{}
	a.scan(from, a.cfg.GroundItems.MaxDistance, func(tile sim.Tile) {
		d := from.DistanceTo(tile.Pos)
		if !within(a.cfg.GroundItems, d) {
			return
		}
		for _, it := range tile.Items {
			def, ok := a.view.ItemDef(it.ID)
			if !ok {
				a.log.WithField("item", it.ID).Debug("ground item without definition")
			}
			e := entity(protocol.CategoryGroundItem, it.ID, it.ID, def.Name, tile.Pos, d, def.GroundActions)
			e.Count = intPtr(it.Quantity)
			out = append(out, e)
		}
	})
	return out
}

func entity(category string, index, id int, name string, pos sim.Point, distance int, table []string) protocol.Entity {
	return protocol.Entity{
		Category:         category,
		Index:            index,
		ID:               id,
		Name:             name,
		X:                pos.X,
		Z:                pos.Z,
		Level:            pos.Plane,
		Distance:         distance,
		OptionsWithIndex: actions.Enumerate(table),
		Options:          actions.Labels(table),
	}
}

// dialog reports the first visible probe from the layout table.
func (a *Assembler) dialog() protocol.Dialog {
	d := protocol.Dialog{Options: []protocol.DialogOption{}}
	for _, probe := range a.layout.DialogProbes {
		w, ok := a.view.Widget(probe.Address)
		if !ok || !w.Visible() {
			continue
		}
		d.IsOpen = true
		switch probe.Kind {
		case layout.DialogOptions:
			for i, child := range w.Children {
				if child.Text == "" {
					continue
				}
				d.Options = append(d.Options, protocol.DialogOption{Index: i, Text: child.Text, ComponentID: child.ID()})
			}
			d.Text = w.Text
		case layout.DialogText:
			d.Text = w.Text
		}
		d.IsWaiting = len(d.Options) == 0
		return d
	}
	return d
}

func (a *Assembler) visible(addr sim.Address) bool {
	w, ok := a.view.Widget(addr)
	return ok && w.Visible()
}

func (a *Assembler) shop() protocol.Shop {
	s := protocol.Shop{ShopItems: []protocol.Item{}, PlayerItems: []protocol.Item{}}
	if !a.visible(a.layout.Shop) {
		return s
	}
	s.IsOpen = true
	s.Title = "Shop"
	if w, ok := a.view.Widget(a.layout.Shop); ok && w.Text != "" {
		s.Title = w.Text
	}
	s.ShopItems = a.container(sim.ContainerShop, false)
	s.PlayerItems = a.container(sim.ContainerInventory, false)
	return s
}

func (a *Assembler) bank() protocol.Bank {
	b := protocol.Bank{Items: []protocol.Item{}}
	if !a.visible(a.layout.Bank) {
		return b
	}
	b.IsOpen = true
	b.Items = a.container(sim.ContainerBank, false)
	return b
}

func intPtr(v int) *int { return &v }
