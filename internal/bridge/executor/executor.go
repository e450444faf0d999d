// Package executor runs accepted commands on the simulation's turn and
// broadcasts snapshots at a fixed turn cadence.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"simbridge.ai/internal/protocol"
	"simbridge.ai/internal/sim"
)

// Task is one unit of work submitted from the network side.
type Task struct {
	Kind   string
	ConnID string
	Run    func() (sim.Invocation, error)
}

// Result describes one executed task.
type Result struct {
	Turn       uint64
	Tick       int
	Kind       string
	ConnID     string
	Invocation sim.Invocation
	Err        error
}

type Assembler interface {
	Assemble() *protocol.Snapshot
}

type Broadcaster interface {
	Broadcast(snap *protocol.Snapshot)
}

// BroadcastFunc adapts a function to Broadcaster.
type BroadcastFunc func(snap *protocol.Snapshot)

func (f BroadcastFunc) Broadcast(snap *protocol.Snapshot) { f(snap) }

type Config struct {
	// Interval is the number of turns between broadcasts.
	Interval  int
	QueueSize int
}

func DefaultConfig() Config {
	return Config{Interval: 1, QueueSize: 1024}
}

type Stats struct {
	Turns      uint64
	Executed   uint64
	Failed     uint64
	Panicked   uint64
	Broadcasts uint64
	QueueDepth int
}

type Executor struct {
	queue    chan Task
	interval uint64
	asm      Assembler
	outs     []Broadcaster
	results  []func(Result)
	tick     func() int
	log      logrus.FieldLogger

	turn       atomic.Uint64
	executed   atomic.Uint64
	failed     atomic.Uint64
	panicked   atomic.Uint64
	broadcasts atomic.Uint64
}

type Option func(*Executor)

// WithBroadcaster adds a snapshot consumer.
func WithBroadcaster(b Broadcaster) Option {
	return func(e *Executor) { e.outs = append(e.outs, b) }
}

// WithResults registers a callback invoked after every task, on the turn.
func WithResults(fn func(Result)) Option {
	return func(e *Executor) { e.results = append(e.results, fn) }
}

// WithTick supplies the simulation tick reported in results.
func WithTick(fn func() int) Option {
	return func(e *Executor) { e.tick = fn }
}

func New(asm Assembler, cfg Config, log logrus.FieldLogger, opts ...Option) *Executor {
	if cfg.Interval <= 0 {
		cfg.Interval = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	e := &Executor{
		queue:    make(chan Task, cfg.QueueSize),
		interval: uint64(cfg.Interval),
		asm:      asm,
		tick:     func() int { return 0 },
		log:      log.WithField("component", "executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attach registers OnTurn with the simulation.
func (e *Executor) Attach(src sim.TurnSource) { src.OnTurn(e.OnTurn) }

// Submit enqueues t for the next turn. It blocks while the queue is full
// until ctx is done.
func (e *Executor) Submit(ctx context.Context, t Task) error {
	select {
	case e.queue <- t:
		return nil
	default:
	}
	select {
	case e.queue <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnTurn runs every task queued before the turn started, in submission
// order, then broadcasts when the turn number is a multiple of the interval.
// Tasks submitted while draining wait for the next turn.
func (e *Executor) OnTurn() {
	turn := e.turn.Add(1)
	for n := len(e.queue); n > 0; n-- {
		e.run(turn, <-e.queue)
	}
	if turn%e.interval != 0 {
		return
	}
	snap := e.assemble()
	if snap == nil {
		return
	}
	for _, out := range e.outs {
		out.Broadcast(snap)
	}
	e.broadcasts.Add(1)
}

func (e *Executor) assemble() (snap *protocol.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			e.panicked.Add(1)
			e.log.WithField("panic", r).Errorf("assemble panicked\n%s", debug.Stack())
			snap = nil
		}
	}()
	return e.asm.Assemble()
}

func (e *Executor) run(turn uint64, t Task) {
	res := Result{Turn: turn, Tick: e.tick(), Kind: t.Kind, ConnID: t.ConnID}
	res.Invocation, res.Err = e.call(t)

	e.executed.Add(1)
	if res.Err != nil {
		e.failed.Add(1)
		e.log.WithFields(logrus.Fields{
			"kind": t.Kind,
			"conn": t.ConnID,
			"turn": turn,
		}).WithError(res.Err).Warn("command failed")
	}
	for _, fn := range e.results {
		fn(res)
	}
}

func (e *Executor) call(t Task) (inv sim.Invocation, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.panicked.Add(1)
			err = fmt.Errorf("panic: %v", r)
			e.log.WithField("kind", t.Kind).Errorf("command panicked\n%s", debug.Stack())
		}
	}()
	return t.Run()
}

func (e *Executor) Stats() Stats {
	return Stats{
		Turns:      e.turn.Load(),
		Executed:   e.executed.Load(),
		Failed:     e.failed.Load(),
		Panicked:   e.panicked.Load(),
		Broadcasts: e.broadcasts.Load(),
		QueueDepth: len(e.queue),
	}
}
