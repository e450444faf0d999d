package main

import (
	"fmt"
	"net/http"
)

func (rt *runtime) metricsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		ex := rt.exec.Stats()
		reg := rt.registry.Stats()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP simbridge_tick Current simulation tick.\n")
		fmt.Fprintf(rw, "# TYPE simbridge_tick gauge\n")
		fmt.Fprintf(rw, "simbridge_tick %d\n", rt.scene.TickCount())

		fmt.Fprintf(rw, "# HELP simbridge_connections Current number of connected automation clients.\n")
		fmt.Fprintf(rw, "# TYPE simbridge_connections gauge\n")
		fmt.Fprintf(rw, "simbridge_connections %d\n", reg.Connections)

		fmt.Fprintf(rw, "# HELP simbridge_observers Current number of read-only watchers.\n")
		fmt.Fprintf(rw, "# TYPE simbridge_observers gauge\n")
		fmt.Fprintf(rw, "simbridge_observers %d\n", rt.observer.Watchers())

		fmt.Fprintf(rw, "# HELP simbridge_turns_total Simulation turns seen by the executor.\n")
		fmt.Fprintf(rw, "# TYPE simbridge_turns_total counter\n")
		fmt.Fprintf(rw, "simbridge_turns_total %d\n", ex.Turns)

		fmt.Fprintf(rw, "# HELP simbridge_broadcasts_total State snapshots broadcast.\n")
		fmt.Fprintf(rw, "# TYPE simbridge_broadcasts_total counter\n")
		fmt.Fprintf(rw, "simbridge_broadcasts_total %d\n", ex.Broadcasts)

		fmt.Fprintf(rw, "# HELP simbridge_queue_depth Commands waiting for the next turn.\n")
		fmt.Fprintf(rw, "# TYPE simbridge_queue_depth gauge\n")
		fmt.Fprintf(rw, "simbridge_queue_depth %d\n", ex.QueueDepth)

		fmt.Fprintf(rw, "# HELP simbridge_commands_total Executed commands by outcome.\n")
		fmt.Fprintf(rw, "# TYPE simbridge_commands_total counter\n")
		fmt.Fprintf(rw, "simbridge_commands_total{outcome=%q} %d\n", "ok", ex.Executed-ex.Failed)
		fmt.Fprintf(rw, "simbridge_commands_total{outcome=%q} %d\n", "failed", ex.Failed)
		fmt.Fprintf(rw, "simbridge_commands_total{outcome=%q} %d\n", "panicked", ex.Panicked)

		fmt.Fprintf(rw, "# HELP simbridge_sends_total Frames sent to automation clients by outcome.\n")
		fmt.Fprintf(rw, "# TYPE simbridge_sends_total counter\n")
		fmt.Fprintf(rw, "simbridge_sends_total{outcome=%q} %d\n", "ok", reg.Sent)
		fmt.Fprintf(rw, "simbridge_sends_total{outcome=%q} %d\n", "failed", reg.SendFailed)

		fmt.Fprintf(rw, "# HELP simbridge_observer_dropped_total Frames dropped for slow watchers.\n")
		fmt.Fprintf(rw, "# TYPE simbridge_observer_dropped_total counter\n")
		fmt.Fprintf(rw, "simbridge_observer_dropped_total %d\n", rt.observer.Dropped())

		if rt.index != nil {
			s := rt.index.Stats()
			fmt.Fprintf(rw, "# HELP simbridge_index_queue_depth Index writer queue depth.\n")
			fmt.Fprintf(rw, "# TYPE simbridge_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "simbridge_index_queue_depth %d\n", s.QueueDepth)

			fmt.Fprintf(rw, "# HELP simbridge_index_dropped_total Index rows dropped because the queue was full.\n")
			fmt.Fprintf(rw, "# TYPE simbridge_index_dropped_total counter\n")
			fmt.Fprintf(rw, "simbridge_index_dropped_total{table=%q} %d\n", "commands", s.DropCommandTotal)
			fmt.Fprintf(rw, "simbridge_index_dropped_total{table=%q} %d\n", "executions", s.DropExecutionTotal)
			fmt.Fprintf(rw, "simbridge_index_dropped_total{table=%q} %d\n", "broadcasts", s.DropBroadcastTotal)

			fmt.Fprintf(rw, "# HELP simbridge_index_flush_fail_total Failed index flushes.\n")
			fmt.Fprintf(rw, "# TYPE simbridge_index_flush_fail_total counter\n")
			fmt.Fprintf(rw, "simbridge_index_flush_fail_total %d\n", s.FlushFailTotal)
		}

		if rt.archive != nil {
			s := rt.archive.Stats()
			fmt.Fprintf(rw, "# HELP simbridge_archive_queue_depth Recording files waiting for upload.\n")
			fmt.Fprintf(rw, "# TYPE simbridge_archive_queue_depth gauge\n")
			fmt.Fprintf(rw, "simbridge_archive_queue_depth %d\n", s.QueueDepth)

			fmt.Fprintf(rw, "# HELP simbridge_archive_uploads_total Recording file uploads by outcome.\n")
			fmt.Fprintf(rw, "# TYPE simbridge_archive_uploads_total counter\n")
			fmt.Fprintf(rw, "simbridge_archive_uploads_total{outcome=%q} %d\n", "ok", s.UploadSuccessTotal)
			fmt.Fprintf(rw, "simbridge_archive_uploads_total{outcome=%q} %d\n", "failed", s.UploadFailTotal)
			fmt.Fprintf(rw, "simbridge_archive_uploads_total{outcome=%q} %d\n", "dropped", s.DroppedTotal)

			fmt.Fprintf(rw, "# HELP simbridge_archive_last_success_unix Unix timestamp of the last successful upload.\n")
			fmt.Fprintf(rw, "# TYPE simbridge_archive_last_success_unix gauge\n")
			fmt.Fprintf(rw, "simbridge_archive_last_success_unix %d\n", s.LastSuccessUnix)
		}

		if rt.mirror != nil {
			s := rt.mirror.Stats()
			fmt.Fprintf(rw, "# HELP simbridge_nats_published_total State envelopes published to NATS by outcome.\n")
			fmt.Fprintf(rw, "# TYPE simbridge_nats_published_total counter\n")
			fmt.Fprintf(rw, "simbridge_nats_published_total{outcome=%q} %d\n", "ok", s.Published)
			fmt.Fprintf(rw, "simbridge_nats_published_total{outcome=%q} %d\n", "failed", s.PublishErr)
		}
	}
}
