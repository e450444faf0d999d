package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"simbridge.ai/internal/bridge/registry"
	persistlog "simbridge.ai/internal/persistence/log"
	"simbridge.ai/internal/protocol"
)

func main() {
	var (
		dir      = flag.String("dir", "./data/recordings", "recording directory")
		fromTick = flag.Int("from_tick", 0, "ignore states before tick (inclusive, optional)")
		toTick   = flag.Int("to_tick", 0, "ignore states after tick (inclusive, optional)")
		verbose  = flag.Bool("v", false, "print one line per recorded state")
	)
	flag.Parse()

	var out io.Writer
	if *verbose {
		out = os.Stdout
	}
	sum, err := replay(*dir, *fromTick, *toTick, out)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	if sum.States == 0 && sum.Commands == 0 {
		fmt.Fprintln(os.Stderr, "no recordings found in", *dir)
		os.Exit(1)
	}
	sum.Print(os.Stdout)
}

type summary struct {
	States    int
	FirstTick int
	LastTick  int
	Commands  int
	Rejected  map[string]int
	Results   int
	Failed    map[string]int
}

func (s summary) Print(w io.Writer) {
	fmt.Fprintf(w, "states=%d ticks=%d..%d commands=%d results=%d\n", s.States, s.FirstTick, s.LastTick, s.Commands, s.Results)
	for _, k := range sortedKeys(s.Rejected) {
		fmt.Fprintf(w, "  rejected %s: %d\n", k, s.Rejected[k])
	}
	for _, k := range sortedKeys(s.Failed) {
		fmt.Fprintf(w, "  failed %s: %d\n", k, s.Failed[k])
	}
	fmt.Fprintln(w, "replay ok")
}

// replay walks a recording directory, checks that broadcast ticks never go
// backwards and tallies commands and results.
func replay(dir string, fromTick, toTick int, verbose io.Writer) (summary, error) {
	sum := summary{Rejected: map[string]int{}, Failed: map[string]int{}}
	err := persistlog.ReadDir(dir, func(e persistlog.Entry) error {
		switch e.Kind {
		case persistlog.EntryState:
			if e.Tick < fromTick || (toTick != 0 && e.Tick > toTick) {
				return nil
			}
			if sum.States > 0 && e.Tick < sum.LastTick {
				return fmt.Errorf("tick went backwards: %d after %d", e.Tick, sum.LastTick)
			}
			var snap protocol.Snapshot
			if err := json.Unmarshal(e.Data, &snap); err != nil {
				return fmt.Errorf("state at tick %d: %w", e.Tick, err)
			}
			if snap.Tick != e.Tick {
				return fmt.Errorf("state tick mismatch: entry=%d snapshot=%d", e.Tick, snap.Tick)
			}
			if sum.States == 0 {
				sum.FirstTick = e.Tick
			}
			sum.States++
			sum.LastTick = e.Tick
			if verbose != nil {
				fmt.Fprintf(verbose, "tick=%d state=%s npcs=%d players=%d locs=%d items=%d\n",
					snap.Tick, snap.GameState, len(snap.NearbyNpcs), len(snap.NearbyPlayers), len(snap.NearbyLocs), len(snap.GroundItems))
			}
		case persistlog.EntryCommand:
			var rec registry.CommandRecord
			if err := json.Unmarshal(e.Data, &rec); err != nil {
				return fmt.Errorf("command: %w", err)
			}
			sum.Commands++
			if !rec.Accepted {
				sum.Rejected[rec.Code]++
			}
		case persistlog.EntryResult:
			var res persistlog.ResultRecord
			if err := json.Unmarshal(e.Data, &res); err != nil {
				return fmt.Errorf("result: %w", err)
			}
			sum.Results++
			if res.Error != "" {
				sum.Failed[res.Kind]++
			}
		default:
			return fmt.Errorf("unknown entry kind %q", e.Kind)
		}
		return nil
	})
	return sum, err
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
