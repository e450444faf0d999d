package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/pixil98/go-testutil"
	"github.com/sirupsen/logrus/hooks/test"

	"simbridge.ai/internal/bridge/executor"
	"simbridge.ai/internal/bridge/registry"
	persistlog "simbridge.ai/internal/persistence/log"
	"simbridge.ai/internal/protocol"
)

func record(t *testing.T, ticks ...int) string {
	t.Helper()
	dir := t.TempDir()
	log, _ := test.NewNullLogger()
	r := persistlog.NewRecorder(dir, log)
	for _, tick := range ticks {
		r.Broadcast(&protocol.Snapshot{Tick: tick, GameState: "LOGGED_IN"})
	}
	r.Command(registry.CommandRecord{ConnID: "c1", Kind: "walkTo", Accepted: true})
	r.Command(registry.CommandRecord{ConnID: "c1", Kind: "walkTo", Code: "E_MISSING_FIELD"})
	r.Result(executor.Result{Turn: 1, Tick: 1, Kind: "walkTo", Err: errors.New("blocked")})
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return dir
}

func TestReplay_Summarizes(t *testing.T) {
	dir := record(t, 1, 2, 4)

	var verbose bytes.Buffer
	sum, err := replay(dir, 0, 0, &verbose)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	testutil.AssertEqual(t, "states", sum.States, 3)
	testutil.AssertEqual(t, "first", sum.FirstTick, 1)
	testutil.AssertEqual(t, "last", sum.LastTick, 4)
	testutil.AssertEqual(t, "commands", sum.Commands, 2)
	testutil.AssertEqual(t, "rejected", sum.Rejected["E_MISSING_FIELD"], 1)
	testutil.AssertEqual(t, "failed", sum.Failed["walkTo"], 1)
	testutil.AssertEqual(t, "verbose lines", strings.Count(verbose.String(), "\n"), 3)

	var out bytes.Buffer
	sum.Print(&out)
	if !strings.Contains(out.String(), "replay ok") {
		t.Fatalf("unexpected summary %q", out.String())
	}
}

func TestReplay_TickWindow(t *testing.T) {
	sum, err := replay(record(t, 1, 2, 3, 4), 2, 3, nil)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	testutil.AssertEqual(t, "states", sum.States, 2)
	testutil.AssertEqual(t, "first", sum.FirstTick, 2)
}

func TestReplay_RejectsBackwardsTicks(t *testing.T) {
	_, err := replay(record(t, 5, 3), 0, 0, nil)
	testutil.AssertErrorContains(t, err, "backwards")
}
