// Package registry tracks live client connections, fans snapshots out to
// them and turns inbound frames into executor tasks.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"simbridge.ai/internal/bridge/executor"
	"simbridge.ai/internal/bridge/interpreter"
	"simbridge.ai/internal/protocol"
	"simbridge.ai/internal/sim"
)

const welcome = "simbridge ready"

// Conn is one client connection. Send must not block.
type Conn interface {
	ID() string
	Send(b []byte) error
	Close() error
}

// Replier is implemented by connections that carry acks and errors on a
// lane of their own. Reply may block briefly; Send must not.
type Replier interface {
	Reply(b []byte) error
}

// NewID returns a fresh connection id.
func NewID() string { return uuid.NewString() }

type Submitter interface {
	Submit(ctx context.Context, t executor.Task) error
}

// CommandRecord describes one inbound frame and how it was answered.
type CommandRecord struct {
	ConnID   string          `json:"conn_id"`
	Kind     string          `json:"kind"`
	Raw      json.RawMessage `json:"raw,omitempty"`
	Accepted bool            `json:"accepted"`
	Code     string          `json:"code,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

type Registry struct {
	interp *interpreter.Interpreter
	submit Submitter
	log    logrus.FieldLogger

	mu    sync.RWMutex
	conns map[string]Conn

	observers []func(CommandRecord)

	sent       atomic.Uint64
	sendFailed atomic.Uint64
}

type Option func(*Registry)

// WithObserver registers a callback for every dispatched frame. It runs on
// the connection's reader goroutine.
func WithObserver(fn func(CommandRecord)) Option {
	return func(r *Registry) { r.observers = append(r.observers, fn) }
}

func New(interp *interpreter.Interpreter, submit Submitter, log logrus.FieldLogger, opts ...Option) *Registry {
	r := &Registry{
		interp: interp,
		submit: submit,
		log:    log.WithField("component", "registry"),
		conns:  map[string]Conn{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register greets c and then adds it, so the greeting is always the first
// frame c sees.
func (r *Registry) Register(c Conn) error {
	err := r.reply(c, protocol.NewConnected(welcome, c.ID()))

	r.mu.Lock()
	r.conns[c.ID()] = c
	r.mu.Unlock()

	r.log.WithField("conn", c.ID()).Info("client connected")
	return err
}

// Unregister removes c. Unknown or already removed connections are ignored.
func (r *Registry) Unregister(c Conn) {
	r.mu.Lock()
	_, ok := r.conns[c.ID()]
	delete(r.conns, c.ID())
	r.mu.Unlock()
	if ok {
		r.log.WithField("conn", c.ID()).Info("client disconnected")
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) snapshot() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast encodes snap once and sends it to every connection. A failed
// send is logged and skipped.
func (r *Registry) Broadcast(snap *protocol.Snapshot) {
	b, err := json.Marshal(protocol.NewState(snap))
	if err != nil {
		r.log.WithError(err).Error("encode state")
		return
	}
	for _, c := range r.snapshot() {
		if err := c.Send(b); err != nil {
			r.sendFailed.Add(1)
			r.log.WithField("conn", c.ID()).WithError(err).Debug("broadcast send failed")
			continue
		}
		r.sent.Add(1)
	}
}

// Dispatch handles one inbound frame from c. Every frame gets exactly one
// reply: an error envelope when it cannot be decoded, otherwise an ack.
func (r *Registry) Dispatch(ctx context.Context, c Conn, raw []byte) {
	rec := CommandRecord{ConnID: c.ID(), Raw: append(json.RawMessage(nil), raw...)}
	defer func() {
		for _, fn := range r.observers {
			fn(rec)
		}
	}()
	if !json.Valid(raw) {
		rec.Raw = nil
	}

	cmd, err := protocol.DecodeCommand(raw)
	if err != nil {
		rec.Code, rec.Reason = protocol.ErrProtoBadRequest, err.Error()
		_ = r.reply(c, protocol.NewError(rec.Code, err.Error()))
		return
	}
	rec.Kind = cmd.Type
	log := r.log.WithFields(logrus.Fields{"conn": c.ID(), "kind": cmd.Type})

	d, err := r.interp.Interpret(cmd)
	var fe *interpreter.FieldError
	switch {
	case errors.As(err, &fe):
		rec.Code, rec.Reason = interpreter.Code(err), err.Error()
		_ = r.reply(c, protocol.NewError(rec.Code, err.Error()))
		return
	case errors.Is(err, interpreter.ErrUnknownKind):
		// Unknown kinds are dropped but still acknowledged.
		rec.Code, rec.Reason = interpreter.Code(err), err.Error()
		log.Warn("dropping unknown command")
		_ = r.reply(c, protocol.NewAck())
		return
	case err != nil:
		rec.Code, rec.Reason = interpreter.Code(err), err.Error()
		_ = r.reply(c, protocol.NewError(rec.Code, err.Error()))
		return
	}

	task := executor.Task{
		Kind:   d.Kind,
		ConnID: c.ID(),
		Run:    func() (sim.Invocation, error) { return r.interp.Execute(d) },
	}
	if err := r.submit.Submit(ctx, task); err != nil {
		rec.Code, rec.Reason = protocol.ErrBusy, err.Error()
		log.WithError(err).Warn("submit failed")
		_ = r.reply(c, protocol.NewError(protocol.ErrBusy, "command queue unavailable"))
		return
	}
	rec.Accepted = true
	_ = r.reply(c, protocol.NewAck())
}

func (r *Registry) reply(c Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	send := c.Send
	if rc, ok := c.(Replier); ok {
		send = rc.Reply
	}
	if err := send(b); err != nil {
		r.sendFailed.Add(1)
		r.log.WithField("conn", c.ID()).WithError(err).Warn("reply send failed")
		return err
	}
	r.sent.Add(1)
	return nil
}

type Stats struct {
	Connections int
	Sent        uint64
	SendFailed  uint64
}

func (r *Registry) Stats() Stats {
	return Stats{Connections: r.Len(), Sent: r.sent.Load(), SendFailed: r.sendFailed.Load()}
}
