// Package natsmirror publishes state envelopes to NATS and accepts command
// envelopes from it, alongside the websocket transport.
package natsmirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"simbridge.ai/internal/bridge/registry"
	"simbridge.ai/internal/protocol"
)

const (
	DefaultStateSubject   = "simbridge.state"
	DefaultCommandSubject = "simbridge.commands"
)

type Config struct {
	URL            string
	StateSubject   string
	CommandSubject string
}

type Mirror struct {
	conn *nats.Conn
	cfg  Config
	log  logrus.FieldLogger

	published  atomic.Uint64
	publishErr atomic.Uint64
}

func Connect(cfg Config, log logrus.FieldLogger) (*Mirror, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.StateSubject == "" {
		cfg.StateSubject = DefaultStateSubject
	}
	if cfg.CommandSubject == "" {
		cfg.CommandSubject = DefaultCommandSubject
	}
	conn, err := nats.Connect(cfg.URL, nats.Name("simbridge"))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	return &Mirror{conn: conn, cfg: cfg, log: log.WithField("component", "natsmirror")}, nil
}

// Broadcast publishes snap as a state envelope. It satisfies
// executor.Broadcaster; failures are logged and counted.
func (m *Mirror) Broadcast(snap *protocol.Snapshot) {
	b, err := json.Marshal(protocol.NewState(snap))
	if err == nil {
		err = m.conn.Publish(m.cfg.StateSubject, b)
	}
	if err != nil {
		m.publishErr.Add(1)
		m.log.WithField("tick", snap.Tick).WithError(err).Warn("publish state")
		return
	}
	m.published.Add(1)
}

// replyConn answers a single NATS request. Without a reply subject the
// answer is discarded.
type replyConn struct {
	id    string
	reply string
	nc    *nats.Conn
}

func (c *replyConn) ID() string   { return c.id }
func (c *replyConn) Close() error { return nil }

func (c *replyConn) Send(b []byte) error {
	if c.reply == "" {
		return nil
	}
	return c.nc.Publish(c.reply, b)
}

// ServeCommands dispatches every message on the command subject through reg
// until ctx is done. Replies go to the message's reply subject.
func (m *Mirror) ServeCommands(ctx context.Context, reg *registry.Registry) error {
	sub, err := m.conn.Subscribe(m.cfg.CommandSubject, func(msg *nats.Msg) {
		c := &replyConn{id: "nats-" + registry.NewID(), reply: msg.Reply, nc: m.conn}
		reg.Dispatch(ctx, c, msg.Data)
	})
	if err != nil {
		return err
	}
	m.log.WithField("subject", m.cfg.CommandSubject).Info("accepting commands over nats")
	<-ctx.Done()
	_ = sub.Unsubscribe()
	return nil
}

type Stats struct {
	Published  uint64
	PublishErr uint64
}

func (m *Mirror) Stats() Stats {
	return Stats{Published: m.published.Load(), PublishErr: m.publishErr.Load()}
}

func (m *Mirror) Close() {
	_ = m.conn.Drain()
}
