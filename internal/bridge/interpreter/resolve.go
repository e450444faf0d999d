package interpreter

import (
	"fmt"

	"simbridge.ai/internal/bridge/actions"
	"simbridge.ai/internal/bridge/layout"
	"simbridge.ai/internal/protocol"
	"simbridge.ai/internal/sim"
)

func optionIndex(cmd protocol.Command) int {
	if cmd.OptionIndex == nil {
		return 1
	}
	return *cmd.OptionIndex
}

func (it *Interpreter) local() (sim.Actor, error) {
	me, ok := it.view.LocalPlayer()
	if !ok {
		return sim.Actor{}, fmt.Errorf("%w: not logged in", ErrUnavailable)
	}
	return me, nil
}

// scenePoint converts world coordinates into scene space and rejects tiles
// outside the loaded scene.
func (it *Interpreter) scenePoint(x, z int) (sim.ScenePoint, error) {
	baseX, baseZ := it.view.SceneBase()
	sp := sim.ToScene(sim.Point{X: x, Z: z}, baseX, baseZ)
	if !sp.InScene() {
		return sp, fmt.Errorf("%w: tile %d,%d outside loaded scene", ErrUnavailable, x, z)
	}
	return sp, nil
}

func (it *Interpreter) walkTo(cmd protocol.Command) (sim.Invocation, error) {
	if _, err := it.local(); err != nil {
		return sim.Invocation{}, err
	}
	sp, err := it.scenePoint(*cmd.X, *cmd.Z)
	if err != nil {
		return sim.Invocation{}, err
	}
	return sim.Invocation{
		Action: sim.ActionWalk,
		Param0: sp.X,
		Param1: sp.Z,
		Verb:   "Walk here",
	}, nil
}

func (it *Interpreter) npc(index int) (sim.NPC, error) {
	for _, n := range it.view.NPCs() {
		if n.Index == index {
			return n, nil
		}
	}
	return sim.NPC{}, fmt.Errorf("%w: npc %d", ErrTargetNotFound, index)
}

func (it *Interpreter) interactNpc(cmd protocol.Command) (sim.Invocation, error) {
	n, err := it.npc(*cmd.NpcIndex)
	if err != nil {
		return sim.Invocation{}, err
	}
	op := optionIndex(cmd)
	verb, ok := actions.Resolve(n.Actions, op)
	if !ok {
		return sim.Invocation{}, fmt.Errorf("%w: npc %d option %d", ErrBadOption, n.Index, op)
	}
	return sim.Invocation{
		Action:     sim.ActionNPC,
		Option:     op,
		Identifier: n.Index,
		Verb:       verb,
		Target:     n.Name,
	}, nil
}

// talkToNpc uses the "Talk-to" slot, falling back to the first option.
func (it *Interpreter) talkToNpc(cmd protocol.Command) (sim.Invocation, error) {
	n, err := it.npc(*cmd.NpcIndex)
	if err != nil {
		return sim.Invocation{}, err
	}
	op, ok := actions.Find(n.Actions, "talk-to")
	if !ok {
		op = 1
	}
	verb, ok := actions.Resolve(n.Actions, op)
	if !ok {
		return sim.Invocation{}, fmt.Errorf("%w: npc %d has no talk option", ErrBadOption, n.Index)
	}
	return sim.Invocation{
		Action:     sim.ActionNPC,
		Option:     op,
		Identifier: n.Index,
		Verb:       verb,
		Target:     n.Name,
	}, nil
}

func (it *Interpreter) interactLoc(cmd protocol.Command) (sim.Invocation, error) {
	if _, err := it.local(); err != nil {
		return sim.Invocation{}, err
	}
	sp, err := it.scenePoint(*cmd.X, *cmd.Z)
	if err != nil {
		return sim.Invocation{}, err
	}
	id := *cmd.LocID
	tile, ok := it.view.Tile(it.view.Plane(), sp.X, sp.Z)
	found := false
	if ok {
		for _, o := range tile.Objects {
			if o.ID == id {
				found = true
				break
			}
		}
	}
	def, hasDef := it.view.ObjectDef(id)
	if !found || !hasDef {
		return sim.Invocation{}, fmt.Errorf("%w: object %d at %d,%d", ErrTargetNotFound, id, *cmd.X, *cmd.Z)
	}
	op := optionIndex(cmd)
	verb, ok := actions.Resolve(def.Actions, op)
	if !ok {
		return sim.Invocation{}, fmt.Errorf("%w: object %d option %d", ErrBadOption, id, op)
	}
	return sim.Invocation{
		Action:     sim.ActionObject,
		Option:     op,
		Param0:     sp.X,
		Param1:     sp.Z,
		Identifier: id,
		Verb:       verb,
		Target:     def.Name,
	}, nil
}

func (it *Interpreter) inventoryItem(slot int) (sim.Item, sim.ItemDef, error) {
	items, _ := it.view.Container(sim.ContainerInventory)
	if slot < 0 || slot >= len(items) || items[slot].Empty() {
		return sim.Item{}, sim.ItemDef{}, fmt.Errorf("%w: inventory slot %d is empty", ErrTargetNotFound, slot)
	}
	def, _ := it.view.ItemDef(items[slot].ID)
	return items[slot], def, nil
}

func (it *Interpreter) useInventoryItem(cmd protocol.Command) (sim.Invocation, error) {
	slot := *cmd.Slot
	item, def, err := it.inventoryItem(slot)
	if err != nil {
		return sim.Invocation{}, err
	}
	op := optionIndex(cmd)
	verb, ok := actions.Resolve(def.InventoryActions, op)
	if !ok {
		return sim.Invocation{}, fmt.Errorf("%w: item %d option %d", ErrBadOption, item.ID, op)
	}
	return sim.Invocation{
		Action:     sim.ActionWidgetOp,
		Option:     op,
		Param0:     slot,
		Param1:     it.layout.Inventory.Packed(),
		Identifier: op,
		ItemID:     item.ID,
		Verb:       verb,
		Target:     def.Name,
	}, nil
}

func (it *Interpreter) dropItem(cmd protocol.Command) (sim.Invocation, error) {
	slot := *cmd.Slot
	item, def, err := it.inventoryItem(slot)
	if err != nil {
		return sim.Invocation{}, err
	}
	op, ok := actions.Find(def.InventoryActions, "drop")
	if !ok {
		op = it.layout.DropOption
	}
	return sim.Invocation{
		Action:     sim.ActionWidgetOp,
		Option:     op,
		Param0:     slot,
		Param1:     it.layout.Inventory.Packed(),
		Identifier: op,
		ItemID:     item.ID,
		Verb:       "Drop",
		Target:     def.Name,
	}, nil
}

func (it *Interpreter) pickupItem(cmd protocol.Command) (sim.Invocation, error) {
	if _, err := it.local(); err != nil {
		return sim.Invocation{}, err
	}
	sp, err := it.scenePoint(*cmd.X, *cmd.Z)
	if err != nil {
		return sim.Invocation{}, err
	}
	id := *cmd.ItemID
	tile, ok := it.view.Tile(it.view.Plane(), sp.X, sp.Z)
	found := false
	if ok {
		for _, item := range tile.Items {
			if item.ID == id {
				found = true
				break
			}
		}
	}
	if !found {
		return sim.Invocation{}, fmt.Errorf("%w: item %d at %d,%d", ErrTargetNotFound, id, *cmd.X, *cmd.Z)
	}
	def, _ := it.view.ItemDef(id)
	op, ok := actions.Find(def.GroundActions, "take")
	if !ok {
		return sim.Invocation{}, fmt.Errorf("%w: item %d has no take option", ErrBadOption, id)
	}
	verb, _ := actions.Resolve(def.GroundActions, op)
	return sim.Invocation{
		Action:     sim.ActionGroundItem,
		Option:     op,
		Param0:     sp.X,
		Param1:     sp.Z,
		Identifier: id,
		Verb:       verb,
		Target:     def.Name,
	}, nil
}

// optionsDialog returns the first visible options probe.
func (it *Interpreter) optionsDialog() (sim.Widget, bool) {
	for _, p := range it.layout.DialogProbes {
		if p.Kind != layout.DialogOptions {
			continue
		}
		if w, ok := it.view.Widget(p.Address); ok && w.Visible() {
			return w, true
		}
	}
	return sim.Widget{}, false
}

// clickDialog selects the dialog option whose index matches the snapshot's
// dialog option index.
func (it *Interpreter) clickDialog(cmd protocol.Command) (sim.Invocation, error) {
	w, ok := it.optionsDialog()
	if !ok {
		return sim.Invocation{}, fmt.Errorf("%w: no option dialog open", ErrUnavailable)
	}
	idx := *cmd.OptionIndex
	if idx < 0 || idx >= len(w.Children) || w.Children[idx].Text == "" {
		return sim.Invocation{}, fmt.Errorf("%w: dialog option %d", ErrBadOption, idx)
	}
	child := w.Children[idx]
	return sim.Invocation{
		Action:     sim.ActionWidgetContinue,
		Option:     1,
		Param0:     idx,
		Param1:     child.ID(),
		Identifier: -1,
		Verb:       "Continue",
		Target:     child.Text,
	}, nil
}

func (it *Interpreter) continueDialog(protocol.Command) (sim.Invocation, error) {
	for _, addr := range it.layout.Continue {
		w, ok := it.view.Widget(addr)
		if !ok || !w.Visible() {
			continue
		}
		return sim.Invocation{
			Action:     sim.ActionWidgetContinue,
			Param0:     -1,
			Param1:     w.ID(),
			Identifier: -1,
			Verb:       "Continue",
		}, nil
	}
	return sim.Invocation{}, fmt.Errorf("%w: no continue prompt visible", ErrUnavailable)
}

func (it *Interpreter) clickComponent(cmd protocol.Command) (sim.Invocation, error) {
	return sim.Invocation{
		Action:     sim.ActionWidgetOp,
		Option:     1,
		Param0:     -1,
		Param1:     *cmd.ComponentID,
		Identifier: 1,
	}, nil
}

func (it *Interpreter) sendKey(cmd protocol.Command) (sim.Invocation, error) {
	return sim.Invocation{Action: sim.ActionKey, KeyCode: *cmd.KeyCode}, nil
}

func (it *Interpreter) typeText(cmd protocol.Command) (sim.Invocation, error) {
	return sim.Invocation{Action: sim.ActionText, Text: *cmd.Text}, nil
}

func (it *Interpreter) visible(addr sim.Address) (sim.Widget, bool) {
	w, ok := it.view.Widget(addr)
	return w, ok && w.Visible()
}

func (it *Interpreter) bankDeposit(cmd protocol.Command) (sim.Invocation, error) {
	if _, ok := it.visible(it.layout.Bank); !ok {
		return sim.Invocation{}, fmt.Errorf("%w: bank is not open", ErrUnavailable)
	}
	slot := *cmd.Slot
	item, def, err := it.inventoryItem(slot)
	if err != nil {
		return sim.Invocation{}, err
	}
	amount := 1
	if cmd.Amount != nil {
		amount = *cmd.Amount
	}
	op := it.layout.DepositOption(amount)
	return sim.Invocation{
		Action:     sim.ActionWidgetOp,
		Option:     op,
		Param0:     slot,
		Param1:     it.layout.BankInventory.Packed(),
		Identifier: op,
		ItemID:     item.ID,
		Verb:       "Deposit",
		Target:     def.Name,
	}, nil
}

func (it *Interpreter) bankDepositAll(protocol.Command) (sim.Invocation, error) {
	w, ok := it.visible(it.layout.DepositAll)
	if !ok {
		return sim.Invocation{}, fmt.Errorf("%w: deposit button not visible", ErrUnavailable)
	}
	return sim.Invocation{
		Action:     sim.ActionWidgetOp,
		Option:     1,
		Param0:     -1,
		Param1:     w.ID(),
		Identifier: 1,
		Verb:       "Deposit inventory",
	}, nil
}

func (it *Interpreter) climbUp(cmd protocol.Command) (sim.Invocation, error) {
	return it.climb(cmd, true)
}

func (it *Interpreter) climbDown(cmd protocol.Command) (sim.Invocation, error) {
	return it.climb(cmd, false)
}

// climb searches for stairs or ladders. Position and id hints narrow the
// search; a hint of zero or less is ignored.
func (it *Interpreter) climb(cmd protocol.Command, up bool) (sim.Invocation, error) {
	me, err := it.local()
	if err != nil {
		return sim.Invocation{}, err
	}
	x, z, id := hint(cmd.X), hint(cmd.Z), hint(cmd.LocID)
	q := Query{
		Radius: it.cfg.ClimbRadius,
		Kinds:  climbKinds,
		Names:  climbNames,
		Option: climbOption(up),
		Accept: func(o sim.TileObject) bool {
			if id > 0 && o.ID != id {
				return false
			}
			if x > 0 && o.Pos.X != x {
				return false
			}
			if z > 0 && o.Pos.Z != z {
				return false
			}
			return true
		},
	}
	c, ok := it.finder.Find(it.view, me.Pos, q)
	if !ok {
		dir := "down"
		if up {
			dir = "up"
		}
		return sim.Invocation{}, fmt.Errorf("%w: nothing to climb %s within %d tiles", ErrUnavailable, dir, q.Radius)
	}
	return candidateInvocation(c), nil
}

// openDoor searches wall objects for a door or gate with an Open action. When
// x is given, the door must stand exactly on x, z.
func (it *Interpreter) openDoor(cmd protocol.Command) (sim.Invocation, error) {
	me, err := it.local()
	if err != nil {
		return sim.Invocation{}, err
	}
	q := Query{
		Radius: it.cfg.DoorRadius,
		Kinds:  doorKinds,
		Names:  doorNames,
		Option: openOption,
	}
	if cmd.X != nil && *cmd.X >= 0 {
		x, z := *cmd.X, -1
		if cmd.Z != nil {
			z = *cmd.Z
		}
		q.Accept = func(o sim.TileObject) bool { return o.Pos.X == x && o.Pos.Z == z }
	}
	c, ok := it.finder.Find(it.view, me.Pos, q)
	if !ok {
		return sim.Invocation{}, fmt.Errorf("%w: no door within %d tiles", ErrUnavailable, q.Radius)
	}
	return candidateInvocation(c), nil
}

func hint(v *int) int {
	if v == nil {
		return -1
	}
	return *v
}

func candidateInvocation(c Candidate) sim.Invocation {
	return sim.Invocation{
		Action:     sim.ActionObject,
		Option:     c.OpIndex,
		Param0:     c.Scene.X,
		Param1:     c.Scene.Z,
		Identifier: c.Object.ID,
		Verb:       c.Verb,
		Target:     c.Def.Name,
	}
}
