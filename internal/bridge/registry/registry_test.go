package registry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/pixil98/go-testutil"
	"github.com/sirupsen/logrus/hooks/test"

	"simbridge.ai/internal/bridge/executor"
	"simbridge.ai/internal/bridge/interpreter"
	"simbridge.ai/internal/bridge/layout"
	"simbridge.ai/internal/protocol"
	"simbridge.ai/internal/sim/scene"
)

type fakeConn struct {
	id     string
	fail   error
	onSend func()

	mu   sync.Mutex
	sent [][]byte
}

func (c *fakeConn) ID() string   { return c.id }
func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Send(b []byte) error {
	if c.onSend != nil {
		c.onSend()
	}
	if c.fail != nil {
		return c.fail
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, b)
	return nil
}

func (c *fakeConn) types(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, b := range c.sent {
		base, err := protocol.DecodeBase(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, base.Type)
	}
	return out
}

func (c *fakeConn) last(t *testing.T, v any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		t.Fatalf("nothing sent to %s", c.id)
	}
	if err := json.Unmarshal(c.sent[len(c.sent)-1], v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

type queue struct {
	tasks []executor.Task
	err   error
}

func (q *queue) Submit(_ context.Context, t executor.Task) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, t)
	return nil
}

const fixture = `
base: {x: 3200, z: 3200}
local: {index: 0, name: tester, pos: {x: 3220, z: 3220}}
npcs:
  - {index: 7, name: Man, pos: {x: 3222, z: 3220}, actions: [Talk-to, Attack]}
`

func setup(t *testing.T, opts ...Option) (*Registry, *queue, *scene.Scene) {
	t.Helper()
	f, err := scene.ParseFixture([]byte(fixture))
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	s := scene.New(f)
	log, _ := test.NewNullLogger()
	it := interpreter.New(s, s, layout.Default(), interpreter.DefaultConfig(), log)
	q := &queue{}
	return New(it, q, log, opts...), q, s
}

func TestRegister_SendsConnected(t *testing.T) {
	r, _, _ := setup(t)
	c := &fakeConn{id: "c1"}
	if err := r.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	var msg protocol.ConnectedMsg
	c.last(t, &msg)
	testutil.AssertEqual(t, "type", msg.Type, protocol.TypeConnected)
	testutil.AssertEqual(t, "conn id", msg.ConnID, "c1")
	testutil.AssertEqual(t, "len", r.Len(), 1)

	r.Unregister(c)
	r.Unregister(c)
	testutil.AssertEqual(t, "len after unregister", r.Len(), 0)
}

func TestRegister_GreetingPrecedesBroadcasts(t *testing.T) {
	r, _, _ := setup(t)
	c := &fakeConn{id: "c1"}
	var once sync.Once
	c.onSend = func() {
		once.Do(func() { r.Broadcast(&protocol.Snapshot{Tick: 1}) })
	}
	if err := r.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	got := c.types(t)
	testutil.AssertEqual(t, "frames", len(got), 1)
	testutil.AssertEqual(t, "first", got[0], protocol.TypeConnected)

	r.Broadcast(&protocol.Snapshot{Tick: 2})
	testutil.AssertEqual(t, "frames after broadcast", len(c.types(t)), 2)
}

// laneConn drops every broadcast but takes replies on its own lane.
type laneConn struct {
	fakeConn
	replies fakeConn
}

func (c *laneConn) Send([]byte) error { return errors.New("send buffer full") }

func (c *laneConn) Reply(b []byte) error { return c.replies.Send(b) }

func TestDispatch_RepliesSurviveFullSendBuffer(t *testing.T) {
	r, q, _ := setup(t)
	c := &laneConn{fakeConn: fakeConn{id: "slow"}}
	if err := r.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Broadcast(&protocol.Snapshot{Tick: 1})
	r.Dispatch(context.Background(), c, []byte(`{"type":"sendKey","keyCode":13}`))
	r.Dispatch(context.Background(), c, []byte(`{bad`))

	got := c.replies.types(t)
	want := []string{protocol.TypeConnected, protocol.TypeAck, protocol.TypeError}
	testutil.AssertEqual(t, "replies", len(got), len(want))
	for i := range want {
		testutil.AssertEqual(t, "reply", got[i], want[i])
	}
	testutil.AssertEqual(t, "queued", len(q.tasks), 1)
}

func TestDispatch_DecodeFailureIsolated(t *testing.T) {
	r, q, _ := setup(t)
	bad := &fakeConn{id: "bad"}
	good := &fakeConn{id: "good"}
	_ = r.Register(bad)
	_ = r.Register(good)

	r.Dispatch(context.Background(), bad, []byte(`{"type":`))
	r.Dispatch(context.Background(), good, []byte(`{"type":"interactNpc","npcIndex":7,"optionIndex":2}`))

	var e protocol.ErrorMsg
	bad.last(t, &e)
	testutil.AssertEqual(t, "bad reply", e.Type, protocol.TypeError)
	testutil.AssertEqual(t, "bad code", e.Code, protocol.ErrProtoBadRequest)

	var ack protocol.AckMsg
	good.last(t, &ack)
	testutil.AssertEqual(t, "good reply", ack.Type, protocol.TypeAck)
	testutil.AssertEqual(t, "good success", ack.Success, true)
	testutil.AssertEqual(t, "queued", len(q.tasks), 1)

	inv, err := q.tasks[0].Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	testutil.AssertEqual(t, "verb", inv.Verb, "Attack")
	testutil.AssertEqual(t, "bad replies", len(bad.types(t)), 2)
}

func TestDispatch_OneReplyPerFrame(t *testing.T) {
	var records []CommandRecord
	r, q, _ := setup(t, WithObserver(func(rec CommandRecord) { records = append(records, rec) }))
	c := &fakeConn{id: "c1"}

	frames := []string{
		`not json`,
		`{"type":"walkTo","x":3210}`,
		`{"type":"teleport"}`,
		`{"type":"continueDialog"}`,
		`{"type":"sendKey","keyCode":32}`,
	}
	for _, f := range frames {
		r.Dispatch(context.Background(), c, []byte(f))
	}

	got := c.types(t)
	want := []string{protocol.TypeError, protocol.TypeError, protocol.TypeAck, protocol.TypeAck, protocol.TypeAck}
	testutil.AssertEqual(t, "replies", len(got), len(want))
	for i := range want {
		testutil.AssertEqual(t, frames[i], got[i], want[i])
	}
	testutil.AssertEqual(t, "queued", len(q.tasks), 2)

	testutil.AssertEqual(t, "records", len(records), len(frames))
	testutil.AssertEqual(t, "missing field code", records[1].Code, protocol.ErrMissingField)
	testutil.AssertEqual(t, "unknown kind code", records[2].Code, protocol.ErrUnknownKind)
	testutil.AssertEqual(t, "unknown kind accepted", records[2].Accepted, false)
	testutil.AssertEqual(t, "accepted", records[4].Accepted, true)
	if records[0].Raw != nil {
		t.Fatalf("invalid json should not be kept as raw message")
	}
}

func TestDispatch_MissingFieldNamed(t *testing.T) {
	r, _, _ := setup(t)
	c := &fakeConn{id: "c1"}
	r.Dispatch(context.Background(), c, []byte(`{"type":"interactLoc","x":1,"z":2}`))
	var e protocol.ErrorMsg
	c.last(t, &e)
	testutil.AssertEqual(t, "code", e.Code, protocol.ErrMissingField)
	testutil.AssertErrorContains(t, errors.New(e.Message), "locId")
}

func TestDispatch_SubmitFailure(t *testing.T) {
	r, q, _ := setup(t)
	q.err = context.Canceled
	c := &fakeConn{id: "c1"}
	r.Dispatch(context.Background(), c, []byte(`{"type":"continueDialog"}`))
	var e protocol.ErrorMsg
	c.last(t, &e)
	testutil.AssertEqual(t, "code", e.Code, protocol.ErrBusy)
}

func TestBroadcast_SkipsFailingConnections(t *testing.T) {
	r, _, _ := setup(t)
	ok1 := &fakeConn{id: "a"}
	broken := &fakeConn{id: "b"}
	ok2 := &fakeConn{id: "c"}
	for _, c := range []*fakeConn{ok1, broken, ok2} {
		_ = r.Register(c)
	}
	broken.fail = errors.New("buffer full")

	r.Broadcast(&protocol.Snapshot{Tick: 12})

	for _, c := range []*fakeConn{ok1, ok2} {
		var msg struct {
			Type string            `json:"type"`
			Data protocol.Snapshot `json:"data"`
		}
		c.last(t, &msg)
		testutil.AssertEqual(t, "type", msg.Type, protocol.TypeState)
		testutil.AssertEqual(t, "tick", msg.Data.Tick, 12)
	}
	testutil.AssertEqual(t, "failed sends", r.Stats().SendFailed, uint64(1))
	testutil.AssertEqual(t, "still registered", r.Len(), 3)
}
