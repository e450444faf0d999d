package log

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"simbridge.ai/internal/bridge/executor"
	"simbridge.ai/internal/bridge/registry"
	"simbridge.ai/internal/protocol"
)

const (
	EntryState   = "state"
	EntryCommand = "command"
	EntryResult  = "result"

	statesPrefix   = "states"
	commandsPrefix = "commands"
)

// Entry is one recorded line. Data holds a snapshot, a command record or an
// execution result depending on Kind.
type Entry struct {
	At   time.Time       `json:"at"`
	Kind string          `json:"kind"`
	Tick int             `json:"tick"`
	Data json.RawMessage `json:"data"`
}

// ResultRecord is the recorded form of an executor result.
type ResultRecord struct {
	Turn       uint64 `json:"turn"`
	Kind       string `json:"kind"`
	ConnID     string `json:"conn_id,omitempty"`
	Invocation string `json:"invocation,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Recorder writes broadcast snapshots to dir/states and commands with their
// results to dir/commands.
type Recorder struct {
	states   *JSONLZstdWriter
	commands *JSONLZstdWriter
	log      logrus.FieldLogger
	now      func() time.Time
}

type RecorderOption func(*WriterOptions)

// WithArchive hands every finished recording file to fn, e.g. an uploader.
func WithArchive(fn func(path string)) RecorderOption {
	return func(o *WriterOptions) { o.OnClose = fn }
}

func NewRecorder(dir string, log logrus.FieldLogger, opts ...RecorderOption) *Recorder {
	var wo WriterOptions
	for _, opt := range opts {
		opt(&wo)
	}
	return &Recorder{
		states:   NewJSONLZstdWriterWithOptions(filepath.Join(dir, statesPrefix), statesPrefix, wo),
		commands: NewJSONLZstdWriterWithOptions(filepath.Join(dir, commandsPrefix), commandsPrefix, wo),
		log:      log.WithField("component", "recorder"),
		now:      time.Now,
	}
}

func (r *Recorder) write(w *JSONLZstdWriter, kind string, tick int, v any) {
	b, err := json.Marshal(v)
	if err == nil {
		err = w.Write(Entry{At: r.now().UTC(), Kind: kind, Tick: tick, Data: b})
	}
	if err != nil {
		r.log.WithField("kind", kind).WithError(err).Warn("record failed")
	}
}

// Broadcast records snap. It satisfies executor.Broadcaster.
func (r *Recorder) Broadcast(snap *protocol.Snapshot) {
	r.write(r.states, EntryState, snap.Tick, snap)
}

func (r *Recorder) Command(rec registry.CommandRecord) {
	r.write(r.commands, EntryCommand, 0, rec)
}

func (r *Recorder) Result(res executor.Result) {
	out := ResultRecord{Turn: res.Turn, Kind: res.Kind, ConnID: res.ConnID}
	if res.Invocation.Action != "" {
		out.Invocation = res.Invocation.String()
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	r.write(r.commands, EntryResult, res.Tick, out)
}

func (r *Recorder) Close() error {
	err1 := r.states.Close()
	err2 := r.commands.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// ReadDir reads every entry recorded under dir, states first, each stream in
// file order.
func ReadDir(dir string, fn func(Entry) error) error {
	for _, prefix := range []string{statesPrefix, commandsPrefix} {
		files, err := Files(filepath.Join(dir, prefix), prefix)
		if err != nil {
			return err
		}
		for _, path := range files {
			err := ReadLines(path, func(line []byte) error {
				var e Entry
				if err := json.Unmarshal(line, &e); err != nil {
					return err
				}
				return fn(e)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
