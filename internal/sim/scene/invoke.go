package scene

import (
	"errors"
	"fmt"
	"strings"

	"simbridge.ai/internal/sim"
)

var ErrNotLoggedIn = errors.New("scene: not logged in")

const inventorySize = 28

// Invoke applies a native interaction. Every call is recorded, including
// failing ones.
func (s *Scene) Invoke(inv sim.Invocation) error {
	s.invocations = append(s.invocations, inv)
	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}

	switch inv.Action {
	case sim.ActionWalk:
		return s.walk(inv)
	case sim.ActionNPC:
		return s.npcOption(inv)
	case sim.ActionObject:
		return s.objectOption(inv)
	case sim.ActionGroundItem:
		return s.groundItemOption(inv)
	case sim.ActionWidgetContinue:
		s.closeGroup(sim.Unpack(inv.Param1).Group)
		return nil
	case sim.ActionWidgetOp:
		return s.widgetOp(inv)
	case sim.ActionKey, sim.ActionText:
		return nil
	}
	return fmt.Errorf("scene: unsupported action %q", inv.Action)
}

func (s *Scene) walk(inv sim.Invocation) error {
	if s.local == nil {
		return ErrNotLoggedIn
	}
	dest := sim.Point{X: s.baseX + inv.Param0, Z: s.baseZ + inv.Param1, Plane: s.local.Pos.Plane}
	s.walkDest = &dest
	return nil
}

func (s *Scene) npcOption(inv sim.Invocation) error {
	if s.local == nil {
		return ErrNotLoggedIn
	}
	for i := range s.npcs {
		n := &s.npcs[i]
		if n.Index != inv.Identifier {
			continue
		}
		switch strings.ToLower(inv.Verb) {
		case "talk-to":
			s.SetWidget(sim.Widget{Address: sim.Address{Group: 229, Child: 1}, Text: n.Name + ": Hello there."})
			s.SetWidget(sim.Widget{Address: sim.Address{Group: 229, Child: 2}, Text: "Click here to continue"})
		case "attack":
			s.local.Interacting = &sim.Ref{Kind: sim.RefNPC, Index: n.Index}
			n.Interacting = &sim.Ref{Kind: sim.RefPlayer, Index: s.local.Index}
		}
		return nil
	}
	return fmt.Errorf("scene: no npc with index %d", inv.Identifier)
}

func (s *Scene) objectOption(inv sim.Invocation) error {
	if s.local == nil {
		return ErrNotLoggedIn
	}
	k := tileKey{plane: s.local.Pos.Plane, x: inv.Param0, z: inv.Param1}
	objs := s.objects[k]
	for i, o := range objs {
		if o.ID != inv.Identifier {
			continue
		}
		verb := strings.ToLower(inv.Verb)
		switch {
		case containsAny(verb, "climb-up", "climb up", "go-up", "go up", "ascend"):
			s.changePlane(1)
		case containsAny(verb, "climb-down", "climb down", "go-down", "go down", "descend"):
			s.changePlane(-1)
		case verb == "open":
			s.objects[k] = append(objs[:i:i], objs[i+1:]...)
			s.Say(0, "", "You open the "+strings.ToLower(s.objDefs[o.ID].Name)+".")
		}
		return nil
	}
	return fmt.Errorf("scene: no object %d at %d,%d", inv.Identifier, inv.Param0, inv.Param1)
}

func (s *Scene) changePlane(delta int) {
	p := s.local.Pos.Plane + delta
	if p < 0 {
		p = 0
	}
	if p > 3 {
		p = 3
	}
	s.local.Pos.Plane = p
	s.walkDest = nil
}

func (s *Scene) groundItemOption(inv sim.Invocation) error {
	if s.local == nil {
		return ErrNotLoggedIn
	}
	k := tileKey{plane: s.local.Pos.Plane, x: inv.Param0, z: inv.Param1}
	items := s.items[k]
	for i, it := range items {
		if it.ID != inv.Identifier {
			continue
		}
		if !strings.EqualFold(inv.Verb, "take") {
			return nil
		}
		if err := s.addToInventory(sim.Item{ID: it.ID, Quantity: it.Quantity}); err != nil {
			return err
		}
		s.items[k] = append(items[:i:i], items[i+1:]...)
		return nil
	}
	return fmt.Errorf("scene: no item %d at %d,%d", inv.Identifier, inv.Param0, inv.Param1)
}

func (s *Scene) addToInventory(it sim.Item) error {
	inv := s.container[sim.ContainerInventory]
	for i := range inv {
		if inv[i].Empty() {
			inv[i] = it
			return nil
		}
	}
	if len(inv) >= inventorySize {
		return errors.New("scene: inventory full")
	}
	s.container[sim.ContainerInventory] = append(inv, it)
	return nil
}

func (s *Scene) widgetOp(inv sim.Invocation) error {
	items := s.container[sim.ContainerInventory]
	switch inv.Verb {
	case "Drop":
		if s.local == nil {
			return ErrNotLoggedIn
		}
		if inv.Param0 < 0 || inv.Param0 >= len(items) || items[inv.Param0].Empty() {
			return fmt.Errorf("scene: empty inventory slot %d", inv.Param0)
		}
		it := items[inv.Param0]
		items[inv.Param0] = sim.Item{}
		s.AddGroundItem(it.ID, it.Quantity, s.local.Pos)
	case "Deposit":
		if inv.Param0 < 0 || inv.Param0 >= len(items) || items[inv.Param0].Empty() {
			return fmt.Errorf("scene: empty inventory slot %d", inv.Param0)
		}
		s.deposit(inv.Param0)
	case "Deposit inventory":
		for i := range items {
			if !items[i].Empty() {
				s.deposit(i)
			}
		}
	}
	return nil
}

func (s *Scene) deposit(slot int) {
	items := s.container[sim.ContainerInventory]
	it := items[slot]
	items[slot] = sim.Item{}
	bank := s.container[sim.ContainerBank]
	for i := range bank {
		if bank[i].ID == it.ID {
			bank[i].Quantity += it.Quantity
			return
		}
	}
	s.container[sim.ContainerBank] = append(bank, it)
}

func (s *Scene) closeGroup(group int) {
	for addr, w := range s.widgets {
		if addr.Group == group {
			w.Hidden = true
			s.widgets[addr] = w
		}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
