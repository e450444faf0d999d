package log

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
	"github.com/sirupsen/logrus/hooks/test"

	"simbridge.ai/internal/bridge/executor"
	"simbridge.ai/internal/bridge/registry"
	"simbridge.ai/internal/protocol"
	"simbridge.ai/internal/sim"
)

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "states")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(dir, "states")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	testutil.AssertEqual(t, "files", len(files), 2)

	var got []int
	for _, f := range files {
		err := ReadLines(f, func(line []byte) error {
			var v map[string]int
			if err := json.Unmarshal(line, &v); err != nil {
				return err
			}
			got = append(got, v["n"])
			return nil
		})
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	testutil.AssertEqual(t, "lines", len(got), 2)
	testutil.AssertEqual(t, "first", got[0], 1)
	testutil.AssertEqual(t, "second", got[1], 2)
}

func TestRecorder_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	log, _ := test.NewNullLogger()
	r := NewRecorder(dir, log)

	r.Broadcast(&protocol.Snapshot{Tick: 5})
	r.Broadcast(&protocol.Snapshot{Tick: 6})
	r.Command(registry.CommandRecord{ConnID: "c1", Kind: "walkTo", Raw: json.RawMessage(`{"type":"walkTo","x":1,"z":2}`), Accepted: true})
	r.Result(executor.Result{Turn: 7, Tick: 6, Kind: "walkTo", Invocation: sim.Invocation{Action: sim.ActionWalk}, Err: errors.New("blocked")})
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var kinds []string
	var ticks []int
	var result ResultRecord
	err := ReadDir(dir, func(e Entry) error {
		kinds = append(kinds, e.Kind)
		ticks = append(ticks, e.Tick)
		if e.Kind == EntryResult {
			return json.Unmarshal(e.Data, &result)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	testutil.AssertEqual(t, "entries", len(kinds), 4)
	testutil.AssertEqual(t, "first", kinds[0], EntryState)
	testutil.AssertEqual(t, "second tick", ticks[1], 6)
	testutil.AssertEqual(t, "command", kinds[2], EntryCommand)
	testutil.AssertEqual(t, "result error", result.Error, "blocked")
	testutil.AssertEqual(t, "result turn", result.Turn, uint64(7))
}

func TestRecorder_ArchivesFinishedFiles(t *testing.T) {
	dir := t.TempDir()
	log, _ := test.NewNullLogger()
	var closed []string
	r := NewRecorder(dir, log, WithArchive(func(path string) { closed = append(closed, path) }))

	r.Broadcast(&protocol.Snapshot{Tick: 1})
	r.Command(registry.CommandRecord{ConnID: "c1", Kind: "sendKey", Accepted: true})
	testutil.AssertEqual(t, "open files not archived", len(closed), 0)

	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	testutil.AssertEqual(t, "archived", len(closed), 2)

	states, err := Files(filepath.Join(dir, "states"), "states")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	testutil.AssertEqual(t, "states file", closed[0], states[0])

	// A second close has nothing left to hand over.
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	testutil.AssertEqual(t, "archived once", len(closed), 2)
}
