package assembler

import (
	"sync"
	"sync/atomic"

	"simbridge.ai/internal/protocol"
	"simbridge.ai/internal/sim"
)

// DamageWatermark holds the tick of the most recent hit on the local player.
// Writers are event callbacks; the assembler only reads.
type DamageWatermark struct {
	tick atomic.Int64
}

func NewDamageWatermark() *DamageWatermark {
	w := &DamageWatermark{}
	w.tick.Store(-1)
	return w
}

// Observe raises the watermark to tick. Older ticks are ignored.
func (w *DamageWatermark) Observe(tick int) {
	t := int64(tick)
	for {
		cur := w.tick.Load()
		if t <= cur {
			return
		}
		if w.tick.CompareAndSwap(cur, t) {
			return
		}
	}
}

func (w *DamageWatermark) Load() int { return int(w.tick.Load()) }

// MessageLog keeps the last N game messages.
type MessageLog struct {
	mu   sync.Mutex
	max  int
	ring []protocol.GameMessage
}

func NewMessageLog(max int) *MessageLog {
	if max <= 0 {
		max = 50
	}
	return &MessageLog{max: max}
}

func (l *MessageLog) Add(m sim.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring = append(l.ring, protocol.GameMessage{Type: m.Type, Text: m.Text, Sender: m.Sender, Tick: m.Tick})
	if over := len(l.ring) - l.max; over > 0 {
		l.ring = append(l.ring[:0], l.ring[over:]...)
	}
}

// Recent returns a copy, oldest first.
func (l *MessageLog) Recent() []protocol.GameMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]protocol.GameMessage, len(l.ring))
	copy(out, l.ring)
	return out
}
