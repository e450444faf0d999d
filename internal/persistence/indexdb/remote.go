package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"simbridge.ai/internal/bridge/executor"
	"simbridge.ai/internal/bridge/registry"
	"simbridge.ai/internal/protocol"
)

// RemoteConfig configures the HTTP ingest backend.
type RemoteConfig struct {
	Endpoint      string
	Token         string
	Source        string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxPending bounds how many unsent events are retained across failed
	// flushes. Older events are dropped first.
	MaxPending int
}

// RemoteIndex posts batches of index events to an HTTP ingest endpoint.
type RemoteIndex struct {
	cfg        RemoteConfig
	httpClient *http.Client
	log        logrus.FieldLogger

	ch   chan remoteEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropCommandTotal   atomic.Uint64
	dropExecutionTotal atomic.Uint64
	dropBroadcastTotal atomic.Uint64
	flushFailTotal     atomic.Uint64
}

type remoteEvent struct {
	Kind    string `json:"kind"`
	Source  string `json:"source"`
	Payload any    `json:"payload"`
}

func OpenRemote(cfg RemoteConfig, log logrus.FieldLogger) (*RemoteIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Source = strings.TrimSpace(cfg.Source)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty ingest endpoint")
	}
	if cfg.Source == "" {
		cfg.Source = "simbridge"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 16 * cfg.BatchSize
	}

	d := &RemoteIndex{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		log:        log.WithField("component", "indexdb.remote"),
		ch:         make(chan remoteEvent, 32768),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

func (d *RemoteIndex) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *RemoteIndex) enqueue(ev remoteEvent, drops *atomic.Uint64) {
	if d == nil || d.closed.Load() {
		return
	}
	ev.Source = d.cfg.Source
	select {
	case d.ch <- ev:
	default:
		drops.Add(1)
	}
}

func (d *RemoteIndex) RecordCommand(rec registry.CommandRecord) {
	if d == nil {
		return
	}
	d.enqueue(remoteEvent{Kind: "command", Payload: commandRow(rec)}, &d.dropCommandTotal)
}

func (d *RemoteIndex) RecordResult(res executor.Result) {
	if d == nil {
		return
	}
	d.enqueue(remoteEvent{Kind: "execution", Payload: executionRow(res)}, &d.dropExecutionTotal)
}

func (d *RemoteIndex) Broadcast(snap *protocol.Snapshot) {
	if d == nil || snap == nil {
		return
	}
	d.enqueue(remoteEvent{Kind: "broadcast", Payload: broadcastRow(snap)}, &d.dropBroadcastTotal)
}

func (d *RemoteIndex) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:         len(d.ch),
		QueueCapacity:      cap(d.ch),
		DropCommandTotal:   d.dropCommandTotal.Load(),
		DropExecutionTotal: d.dropExecutionTotal.Load(),
		DropBroadcastTotal: d.dropBroadcastTotal.Load(),
		FlushFailTotal:     d.flushFailTotal.Load(),
	}
}

func (d *RemoteIndex) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]remoteEvent, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.flushFailTotal.Add(1)
			d.log.WithField("batch", len(batch)).WithError(err).Warn("flush failed")
			// Keep the batch for the next flush, bounded by MaxPending.
			if over := len(batch) - d.cfg.MaxPending; over > 0 {
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *RemoteIndex) sendBatch(events []remoteEvent) error {
	body := struct {
		Events []remoteEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("x-simbridge-index-token", d.cfg.Token)
		}

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}
