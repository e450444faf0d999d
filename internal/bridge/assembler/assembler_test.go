package assembler

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/pixil98/go-testutil"
	"github.com/sirupsen/logrus/hooks/test"

	"simbridge.ai/internal/bridge/layout"
	"simbridge.ai/internal/sim"
	"simbridge.ai/internal/sim/scene"
)

const fixture = `
world: 302
base: {x: 3200, z: 3200}
energy: 87
local: {index: 0, name: tester, combat_level: 3, pos: {x: 3220, z: 3220, plane: 0}}
players:
  - {index: 0, name: tester, pos: {x: 3220, z: 3220, plane: 0}}
  - {index: 4, name: friend, pos: {x: 3221, z: 3220, plane: 0}}
npcs:
  - {index: 1, name: AtEdge, pos: {x: 3235, z: 3220, plane: 0}, actions: [Talk-to, "", Trade]}
  - {index: 2, name: Beyond, pos: {x: 3236, z: 3220, plane: 0}, actions: [Talk-to]}
  - {index: 3, name: Upstairs, pos: {x: 3220, z: 3220, plane: 1}, actions: [Talk-to]}
  - {index: 7, name: Man, pos: {x: 3221, z: 3221, plane: 0}, actions: [Talk-to, Attack], health_ratio: 15, health_scale: 30}
object_defs:
  - {id: 10, name: Tree, actions: [Chop down]}
  - {id: 11, name: "null"}
objects:
  - {id: 10, x: 3230, z: 3220}
  - {id: 10, x: 3231, z: 3220}
  - {id: 11, x: 3221, z: 3220}
item_defs:
  - {id: 526, name: Bones, inventory_actions: [Bury, "", "", "", Drop], ground_actions: ["", "", Take]}
ground_items:
  - {id: 526, quantity: 2, x: 3230, z: 3230}
  - {id: 526, quantity: 1, x: 3231, z: 3230}
containers:
  inventory: [{id: 526, quantity: 1}, {id: 0}, {id: 526, quantity: 3}]
skills:
  - {name: Attack, level: 5, base_level: 4, experience: 400}
`

func newScene(t *testing.T) *scene.Scene {
	t.Helper()
	f, err := scene.ParseFixture([]byte(fixture))
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return scene.New(f)
}

func newAssembler(s *scene.Scene, cfg Config) *Assembler {
	log, _ := test.NewNullLogger()
	return New(s, cfg, layout.Default(), log)
}

func TestAssemble_LoggedOutListsPresent(t *testing.T) {
	s := newScene(t)
	s.SetGameState(sim.StateLoginScreen)
	snap := newAssembler(s, DefaultConfig()).Assemble()
	if snap.InGame || snap.Player != nil {
		t.Fatalf("expected logged-out snapshot, got %+v", snap)
	}

	b, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	raw := string(b)
	for _, field := range []string{"skills", "inventory", "equipment", "nearbyNpcs", "nearbyPlayers", "nearbyLocs", "groundItems", "gameMessages"} {
		if !strings.Contains(raw, `"`+field+`":[]`) {
			t.Fatalf("%s should be an empty list in %s", field, raw)
		}
	}
	if strings.Contains(raw, `"options":null`) || strings.Contains(raw, `"items":null`) {
		t.Fatalf("nested list encoded as null: %s", raw)
	}
}

func TestAssemble_NPCDistanceBoundaryInclusive(t *testing.T) {
	s := newScene(t)
	snap := newAssembler(s, DefaultConfig()).Assemble()

	got := map[int]bool{}
	for _, n := range snap.NearbyNpcs {
		got[n.Index] = true
	}
	if !got[1] {
		t.Fatalf("npc at exactly max distance must be included: %+v", snap.NearbyNpcs)
	}
	if got[2] {
		t.Fatalf("npc one tile beyond max distance must be excluded")
	}
	if got[3] {
		t.Fatalf("npc on another plane must be excluded")
	}
	testutil.AssertEqual(t, "npc count", len(snap.NearbyNpcs), 2)
}

func TestAssemble_NPCFields(t *testing.T) {
	s := newScene(t)
	snap := newAssembler(s, DefaultConfig()).Assemble()
	for _, n := range snap.NearbyNpcs {
		switch n.Index {
		case 1:
			testutil.AssertEqual(t, "option count", len(n.OptionsWithIndex), 2)
			testutil.AssertEqual(t, "second op index", n.OptionsWithIndex[1].OpIndex, 3)
			testutil.AssertEqual(t, "second label", n.Options[1], "Trade")
			testutil.AssertEqual(t, "distance", n.Distance, 15)
			testutil.AssertEqual(t, "category", n.Category, "npc")
		case 7:
			if n.HealthPercent == nil || *n.HealthPercent != 50 {
				t.Fatalf("health percent = %v", n.HealthPercent)
			}
			if n.TargetIndex == nil || *n.TargetIndex != -1 {
				t.Fatalf("target index = %v", n.TargetIndex)
			}
		}
	}
}

func TestAssemble_PlayerAndContainers(t *testing.T) {
	s := newScene(t)
	snap := newAssembler(s, DefaultConfig()).Assemble()

	if snap.Player == nil {
		t.Fatalf("expected player")
	}
	p := snap.Player
	testutil.AssertEqual(t, "scene x", p.X, 20)
	testutil.AssertEqual(t, "world x", p.WorldX, 3220)
	testutil.AssertEqual(t, "energy", p.RunEnergy, 87)
	testutil.AssertEqual(t, "target", p.Combat.TargetIndex, -1)
	testutil.AssertEqual(t, "last damage", p.Combat.LastDamageTick, -1)
	testutil.AssertEqual(t, "account", snap.AccountName, "tester")
	testutil.AssertEqual(t, "world", snap.CurrentWorld, 302)

	testutil.AssertEqual(t, "players", len(snap.NearbyPlayers), 1)
	testutil.AssertEqual(t, "player name", snap.NearbyPlayers[0].Name, "friend")

	testutil.AssertEqual(t, "inventory", len(snap.Inventory), 2)
	testutil.AssertEqual(t, "second slot", snap.Inventory[1].Slot, 2)
	testutil.AssertEqual(t, "inventory options", len(snap.Inventory[0].OptionsWithIndex), 2)
	testutil.AssertEqual(t, "drop index", snap.Inventory[0].OptionsWithIndex[1].OpIndex, 5)
	testutil.AssertEqual(t, "skills", len(snap.Skills), 1)
}

func TestAssemble_ObjectAndGroundItemRadius(t *testing.T) {
	s := newScene(t)
	snap := newAssembler(s, DefaultConfig()).Assemble()

	if len(snap.NearbyLocs) != 1 {
		t.Fatalf("expected only the tree at distance 10, got %+v", snap.NearbyLocs)
	}
	testutil.AssertEqual(t, "loc x", snap.NearbyLocs[0].X, 3230)
	testutil.AssertEqual(t, "loc kind", snap.NearbyLocs[0].Kind, "game")

	if len(snap.GroundItems) != 1 {
		t.Fatalf("expected one ground item within 10 tiles, got %+v", snap.GroundItems)
	}
	gi := snap.GroundItems[0]
	if gi.Count == nil || *gi.Count != 2 {
		t.Fatalf("count = %v", gi.Count)
	}
	testutil.AssertEqual(t, "take index", gi.OptionsWithIndex[0].OpIndex, 3)
}

func TestAssemble_CategoryToggles(t *testing.T) {
	s := newScene(t)
	cfg := DefaultConfig()
	cfg.NPCs.Include = false
	cfg.Objects.Include = false
	snap := newAssembler(s, cfg).Assemble()
	if snap.NearbyNpcs == nil || len(snap.NearbyNpcs) != 0 {
		t.Fatalf("disabled npcs should be an empty list")
	}
	if snap.NearbyLocs == nil || len(snap.NearbyLocs) != 0 {
		t.Fatalf("disabled objects should be an empty list")
	}
	testutil.AssertEqual(t, "ground items", len(snap.GroundItems), 1)
}

func TestAssemble_SceneEdgeSkipsUnloadedTiles(t *testing.T) {
	s := newScene(t)
	s.SetLocalPosition(sim.Point{X: 3200, Z: 3200})
	s.AddObject(10, sim.ObjectGame, sim.Point{X: 3195, Z: 3200})
	s.AddObject(10, sim.ObjectGame, sim.Point{X: 3203, Z: 3200})
	snap := newAssembler(s, DefaultConfig()).Assemble()
	testutil.AssertEqual(t, "locs", len(snap.NearbyLocs), 1)
	testutil.AssertEqual(t, "loc x", snap.NearbyLocs[0].X, 3203)
}

func TestAssemble_DialogProbeOrder(t *testing.T) {
	s := newScene(t)
	a := newAssembler(s, DefaultConfig())

	if d := a.Assemble().Dialog; d.IsOpen || d.Options == nil {
		t.Fatalf("expected closed dialog with empty options, got %+v", d)
	}

	s.SetWidget(sim.Widget{Address: sim.Address{Group: 229, Child: 1}, Text: "Man: Hello."})
	d := a.Assemble().Dialog
	if !d.IsOpen || !d.IsWaiting || d.Text != "Man: Hello." {
		t.Fatalf("expected waiting text dialog, got %+v", d)
	}

	opts := sim.Widget{
		Address: sim.Address{Group: 219, Child: 1},
		Children: []sim.Widget{
			{Address: sim.Address{Group: 219, Child: 1}, Text: "Select an Option"},
			{Address: sim.Address{Group: 219, Child: 1}, Text: "Yes"},
			{Address: sim.Address{Group: 219, Child: 1}},
			{Address: sim.Address{Group: 219, Child: 1}, Text: "No"},
		},
	}
	s.SetWidget(opts)
	d = a.Assemble().Dialog
	if !d.IsOpen || d.IsWaiting {
		t.Fatalf("expected option dialog, got %+v", d)
	}
	testutil.AssertEqual(t, "options", len(d.Options), 3)
	testutil.AssertEqual(t, "no index", d.Options[2].Index, 3)
	testutil.AssertEqual(t, "component", d.Options[1].ComponentID, 219<<16|1)

	s.HideWidget(opts.Address)
	d = a.Assemble().Dialog
	testutil.AssertEqual(t, "falls back to text", d.Text, "Man: Hello.")
}

func TestAssemble_ShopAndBank(t *testing.T) {
	s := newScene(t)
	a := newAssembler(s, DefaultConfig())
	s.SetContainer(sim.ContainerBank, []sim.Item{{ID: 526, Quantity: 100}})
	s.SetWidget(sim.Widget{Address: sim.Address{Group: 12, Child: 0}})
	s.SetWidget(sim.Widget{Address: sim.Address{Group: 300, Child: 0}, Text: "General Store"})
	snap := a.Assemble()
	if !snap.Bank.IsOpen || len(snap.Bank.Items) != 1 {
		t.Fatalf("bank = %+v", snap.Bank)
	}
	testutil.AssertEqual(t, "bank options", len(snap.Bank.Items[0].OptionsWithIndex), 0)
	testutil.AssertEqual(t, "shop title", snap.Shop.Title, "General Store")
	testutil.AssertEqual(t, "player items", len(snap.Shop.PlayerItems), 2)
}

func TestAssemble_WatchFeedsCombatAndMessages(t *testing.T) {
	s := newScene(t)
	a := newAssembler(s, DefaultConfig())
	a.Watch(s)

	for i := 0; i < 3; i++ {
		s.Step()
	}
	s.Damage()
	s.Say(2, "friend", "hi")
	a.damage.Observe(1)

	snap := a.Assemble()
	testutil.AssertEqual(t, "last damage", snap.Player.Combat.LastDamageTick, 3)
	testutil.AssertEqual(t, "messages", len(snap.GameMessages), 1)
	testutil.AssertEqual(t, "sender", snap.GameMessages[0].Sender, "friend")
	testutil.AssertEqual(t, "tick", snap.Tick, 3)
}

func TestMessageLog_KeepsNewest(t *testing.T) {
	l := NewMessageLog(2)
	for i := 0; i < 5; i++ {
		l.Add(sim.Message{Tick: i})
	}
	got := l.Recent()
	testutil.AssertEqual(t, "len", len(got), 2)
	testutil.AssertEqual(t, "oldest kept", got[0].Tick, 3)
	testutil.AssertEqual(t, "newest", got[1].Tick, 4)
}
