// Package indexdb keeps a queryable audit trail of commands, executions and
// broadcasts. Writers never block the caller; rows are dropped and counted
// when the index falls behind. The recordings under persistence/log remain
// the source of truth.
package indexdb

import (
	"encoding/json"
	"time"

	"simbridge.ai/internal/bridge/executor"
	"simbridge.ai/internal/bridge/registry"
	"simbridge.ai/internal/protocol"
)

// Index is implemented by every backend.
type Index interface {
	RecordCommand(rec registry.CommandRecord)
	RecordResult(res executor.Result)
	Broadcast(snap *protocol.Snapshot)
	Stats() Stats
	Close() error
}

type Stats struct {
	QueueDepth         int    `json:"queue_depth"`
	QueueCapacity      int    `json:"queue_capacity"`
	DropCommandTotal   uint64 `json:"drop_command_total"`
	DropExecutionTotal uint64 `json:"drop_execution_total"`
	DropBroadcastTotal uint64 `json:"drop_broadcast_total"`
	FlushFailTotal     uint64 `json:"flush_fail_total,omitempty"`
}

type CommandRow struct {
	At       string          `json:"at"`
	ConnID   string          `json:"conn_id"`
	Kind     string          `json:"kind"`
	Accepted bool            `json:"accepted"`
	Code     string          `json:"code,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

type ExecutionRow struct {
	Turn       uint64 `json:"turn"`
	Tick       int    `json:"tick"`
	Kind       string `json:"kind"`
	ConnID     string `json:"conn_id,omitempty"`
	OK         bool   `json:"ok"`
	Action     string `json:"action,omitempty"`
	Verb       string `json:"verb,omitempty"`
	Target     string `json:"target,omitempty"`
	Invocation string `json:"invocation,omitempty"`
	Error      string `json:"error,omitempty"`
}

type BroadcastRow struct {
	At          string `json:"at"`
	Tick        int    `json:"tick"`
	InGame      bool   `json:"in_game"`
	Plane       int    `json:"plane"`
	NPCs        int    `json:"npcs"`
	Players     int    `json:"players"`
	Locs        int    `json:"locs"`
	GroundItems int    `json:"ground_items"`
	DialogOpen  bool   `json:"dialog_open"`
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func commandRow(rec registry.CommandRecord) CommandRow {
	return CommandRow{
		At:       now(),
		ConnID:   rec.ConnID,
		Kind:     rec.Kind,
		Accepted: rec.Accepted,
		Code:     rec.Code,
		Reason:   rec.Reason,
		Raw:      rec.Raw,
	}
}

func executionRow(res executor.Result) ExecutionRow {
	r := ExecutionRow{
		Turn:   res.Turn,
		Tick:   res.Tick,
		Kind:   res.Kind,
		ConnID: res.ConnID,
		OK:     res.Err == nil,
		Action: string(res.Invocation.Action),
		Verb:   res.Invocation.Verb,
		Target: res.Invocation.Target,
	}
	if res.Invocation.Action != "" {
		r.Invocation = res.Invocation.String()
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
	return r
}

func broadcastRow(snap *protocol.Snapshot) BroadcastRow {
	return BroadcastRow{
		At:          now(),
		Tick:        snap.Tick,
		InGame:      snap.InGame,
		Plane:       snap.CurrentPlane,
		NPCs:        len(snap.NearbyNpcs),
		Players:     len(snap.NearbyPlayers),
		Locs:        len(snap.NearbyLocs),
		GroundItems: len(snap.GroundItems),
		DialogOpen:  snap.Dialog.IsOpen,
	}
}
