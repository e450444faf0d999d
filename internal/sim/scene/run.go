package scene

import (
	"context"
	"slices"
	"time"

	"simbridge.ai/internal/sim"
)

// Run advances the scene one tick per interval until ctx is done.
func (s *Scene) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Step()
		}
	}
}

// Step advances one tick and then runs the turn callbacks.
func (s *Scene) Step() {
	tick := s.tick.Add(1)
	s.advanceWalk()
	s.advanceCombat(int(tick))

	s.mu.Lock()
	hooks := slices.Clone(s.onTurn)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (s *Scene) advanceWalk() {
	if s.local == nil || s.walkDest == nil {
		return
	}
	pos := &s.local.Pos
	pos.X += step(s.walkDest.X - pos.X)
	pos.Z += step(s.walkDest.Z - pos.Z)
	if pos.X == s.walkDest.X && pos.Z == s.walkDest.Z {
		s.walkDest = nil
	}
	if s.energy > 0 {
		s.energy--
	}
}

func step(d int) int {
	switch {
	case d > 0:
		return 1
	case d < 0:
		return -1
	}
	return 0
}

// advanceCombat lets an attacked NPC hit back every fourth tick.
func (s *Scene) advanceCombat(tick int) {
	if s.local == nil || s.local.Interacting == nil || s.local.Interacting.Kind != sim.RefNPC {
		return
	}
	if tick%4 != 0 {
		return
	}
	for _, n := range s.npcs {
		if n.Index == s.local.Interacting.Index {
			s.Damage()
			s.Say(0, "", n.Name+" hits you.")
			return
		}
	}
	s.local.Interacting = nil
}
