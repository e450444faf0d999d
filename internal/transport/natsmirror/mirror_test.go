package natsmirror

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pixil98/go-testutil"
	"github.com/sirupsen/logrus/hooks/test"

	"simbridge.ai/internal/bridge/executor"
	"simbridge.ai/internal/bridge/interpreter"
	"simbridge.ai/internal/bridge/layout"
	"simbridge.ai/internal/bridge/registry"
	"simbridge.ai/internal/protocol"
	"simbridge.ai/internal/sim/scene"
)

func startServer(t *testing.T) *EmbeddedServer {
	t.Helper()
	s, err := NewEmbeddedServer(WithPort(-1), WithStartTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Shutdown)
	return s
}

func TestMirror_PublishesState(t *testing.T) {
	srv := startServer(t)
	log, _ := test.NewNullLogger()

	m, err := Connect(Config{URL: srv.ClientURL()}, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer m.Close()

	sub, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("subscriber: %v", err)
	}
	defer sub.Close()
	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe(DefaultStateSubject, msgs)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer s.Unsubscribe()
	if err := sub.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	m.Broadcast(&protocol.Snapshot{Tick: 42})

	select {
	case msg := <-msgs:
		var env struct {
			Type string            `json:"type"`
			Data protocol.Snapshot `json:"data"`
		}
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		testutil.AssertEqual(t, "type", env.Type, protocol.TypeState)
		testutil.AssertEqual(t, "tick", env.Data.Tick, 42)
	case <-time.After(2 * time.Second):
		t.Fatalf("no state published")
	}
	testutil.AssertEqual(t, "published", m.Stats().Published, uint64(1))
}

type queue struct{ tasks chan executor.Task }

func (q *queue) Submit(_ context.Context, t executor.Task) error {
	q.tasks <- t
	return nil
}

func TestMirror_ServeCommandsReplies(t *testing.T) {
	srv := startServer(t)
	log, _ := test.NewNullLogger()

	f, err := scene.ParseFixture([]byte("base: {x: 0, z: 0}\nlocal: {name: t, pos: {x: 10, z: 10}}\n"))
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	sc := scene.New(f)
	q := &queue{tasks: make(chan executor.Task, 4)}
	reg := registry.New(interpreter.New(sc, sc, layout.Default(), interpreter.DefaultConfig(), log), q, log)

	m, err := Connect(Config{URL: srv.ClientURL()}, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.ServeCommands(ctx, reg) }()

	client, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer client.Close()

	request := func(body string) protocol.BaseMessage {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for {
			msg, err := client.Request(DefaultCommandSubject, []byte(body), 200*time.Millisecond)
			if err == nil {
				base, err := protocol.DecodeBase(msg.Data)
				if err != nil {
					t.Fatalf("decode: %v", err)
				}
				return base
			}
			if time.Now().After(deadline) {
				t.Fatalf("request: %v", err)
			}
		}
	}

	testutil.AssertEqual(t, "ack", request(`{"type":"walkTo","x":12,"z":12}`).Type, protocol.TypeAck)
	testutil.AssertEqual(t, "error", request(`[]`).Type, protocol.TypeError)

	select {
	case task := <-q.tasks:
		testutil.AssertEqual(t, "kind", task.Kind, protocol.KindWalkTo)
	default:
		t.Fatalf("walkTo was not submitted")
	}
	testutil.AssertEqual(t, "not registered for broadcasts", reg.Len(), 0)
}
