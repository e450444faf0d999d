package indexdb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
	"github.com/sirupsen/logrus/hooks/test"

	"simbridge.ai/internal/bridge/executor"
	"simbridge.ai/internal/bridge/registry"
	"simbridge.ai/internal/protocol"
	"simbridge.ai/internal/sim"
)

var (
	_ Index = (*SQLiteIndex)(nil)
	_ Index = (*RemoteIndex)(nil)
)

func TestSQLiteIndex_WritesRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "bridge.sqlite")
	log, _ := test.NewNullLogger()
	idx, err := OpenSQLite(path, log)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	idx.RecordCommand(registry.CommandRecord{ConnID: "c1", Kind: "walkTo", Raw: json.RawMessage(`{"type":"walkTo","x":1,"z":2}`), Accepted: true})
	idx.RecordCommand(registry.CommandRecord{ConnID: "c1", Kind: "interactLoc", Code: protocol.ErrMissingField, Reason: "missing locId"})
	idx.RecordResult(executor.Result{Turn: 3, Tick: 3, Kind: "walkTo", Invocation: sim.Invocation{Action: sim.ActionWalk, Verb: "Walk here"}})
	idx.RecordResult(executor.Result{Turn: 3, Tick: 3, Kind: "interactNpc", Err: errors.New("target not found")})
	idx.Broadcast(&protocol.Snapshot{Tick: 3, InGame: true, NearbyNpcs: []protocol.Entity{{Index: 7}}})

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	var commands, accepted int
	if err := db.QueryRow(`SELECT COUNT(*), SUM(accepted) FROM commands`).Scan(&commands, &accepted); err != nil {
		t.Fatalf("query commands: %v", err)
	}
	testutil.AssertEqual(t, "commands", commands, 2)
	testutil.AssertEqual(t, "accepted", accepted, 1)

	var seq int
	var errText string
	if err := db.QueryRow(`SELECT seq, error FROM executions WHERE kind = 'interactNpc'`).Scan(&seq, &errText); err != nil {
		t.Fatalf("query executions: %v", err)
	}
	testutil.AssertEqual(t, "seq within turn", seq, 1)
	testutil.AssertEqual(t, "error", errText, "target not found")

	var npcs int
	if err := db.QueryRow(`SELECT npcs FROM broadcasts WHERE tick = 3`).Scan(&npcs); err != nil {
		t.Fatalf("query broadcasts: %v", err)
	}
	testutil.AssertEqual(t, "npcs", npcs, 1)

	// Writes after close are ignored.
	idx.RecordCommand(registry.CommandRecord{Kind: "late"})
	testutil.AssertEqual(t, "drops after close", idx.Stats().DropCommandTotal, uint64(0))
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqCommand}

	s.RecordCommand(registry.CommandRecord{Kind: "walkTo"})
	s.RecordResult(executor.Result{Kind: "walkTo"})
	s.Broadcast(&protocol.Snapshot{Tick: 1})

	st := s.Stats()
	testutil.AssertEqual(t, "command drops", st.DropCommandTotal, uint64(1))
	testutil.AssertEqual(t, "execution drops", st.DropExecutionTotal, uint64(1))
	testutil.AssertEqual(t, "broadcast drops", st.DropBroadcastTotal, uint64(1))
	testutil.AssertEqual(t, "depth", st.QueueDepth, 1)
	testutil.AssertEqual(t, "capacity", st.QueueCapacity, 1)
}

func TestRemoteIndex_RetainsBatchOnFlushFailure(t *testing.T) {
	var mu sync.Mutex
	reqCount := 0
	applied := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqCount++
		thisReq := reqCount
		mu.Unlock()

		if thisReq <= 3 {
			http.Error(w, "temporary failure", http.StatusInternalServerError)
			return
		}
		if r.Header.Get("x-simbridge-index-token") != "secret" {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}

		var body struct {
			Events []remoteEvent `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		mu.Lock()
		applied += len(body.Events)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	idx, err := OpenRemote(RemoteConfig{
		Endpoint:      srv.URL,
		Token:         "secret",
		BatchSize:     1,
		FlushInterval: 20 * time.Millisecond,
		HTTPTimeout:   2 * time.Second,
	}, log)
	if err != nil {
		t.Fatalf("OpenRemote: %v", err)
	}
	defer func() { _ = idx.Close() }()

	idx.RecordCommand(registry.CommandRecord{ConnID: "c1", Kind: "sendKey", Accepted: true})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := applied >= 1
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	finalApplied := applied
	mu.Unlock()
	if finalApplied < 1 {
		t.Fatalf("expected retained batch to be delivered eventually; applied=%d", finalApplied)
	}
	st := idx.Stats()
	if st.FlushFailTotal == 0 {
		t.Fatalf("expected flush failures to be recorded")
	}
	testutil.AssertEqual(t, "drops", st.DropCommandTotal, uint64(0))
}

func TestOpenRemote_RequiresEndpoint(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := OpenRemote(RemoteConfig{Endpoint: "  "}, log)
	testutil.AssertErrorContains(t, err, "endpoint")
}
