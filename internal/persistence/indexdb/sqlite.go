package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"simbridge.ai/internal/bridge/executor"
	"simbridge.ai/internal/bridge/registry"
	"simbridge.ai/internal/protocol"
)

const schemaVersion = "1"

type SQLiteIndex struct {
	db  *sql.DB
	log logrus.FieldLogger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropCommandTotal   atomic.Uint64
	dropExecutionTotal atomic.Uint64
	dropBroadcastTotal atomic.Uint64
}

type reqKind int

const (
	reqCommand reqKind = iota + 1
	reqExecution
	reqBroadcast
)

type req struct {
	kind reqKind

	command   CommandRow
	execution ExecutionRow
	broadcast BroadcastRow
}

func OpenSQLite(path string, log logrus.FieldLogger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		log: log.WithField("component", "indexdb"),
		ch:  make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			conn_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			accepted INTEGER NOT NULL,
			code TEXT,
			reason TEXT,
			raw_json TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_conn ON commands(conn_id, id);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_kind ON commands(kind);`,
		`CREATE TABLE IF NOT EXISTS executions (
			turn INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			kind TEXT NOT NULL,
			conn_id TEXT,
			ok INTEGER NOT NULL,
			action TEXT,
			verb TEXT,
			target TEXT,
			error TEXT,
			PRIMARY KEY (turn, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_executions_kind_turn ON executions(kind, turn);`,
		`CREATE TABLE IF NOT EXISTS broadcasts (
			tick INTEGER PRIMARY KEY,
			at TEXT NOT NULL,
			in_game INTEGER NOT NULL,
			plane INTEGER NOT NULL,
			npcs INTEGER NOT NULL,
			players INTEGER NOT NULL,
			locs INTEGER NOT NULL,
			ground_items INTEGER NOT NULL,
			dialog_open INTEGER NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) RecordCommand(rec registry.CommandRecord) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqCommand, command: commandRow(rec)}, &s.dropCommandTotal)
}

func (s *SQLiteIndex) RecordResult(res executor.Result) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqExecution, execution: executionRow(res)}, &s.dropExecutionTotal)
}

// Broadcast indexes a summary of snap. It satisfies executor.Broadcaster.
func (s *SQLiteIndex) Broadcast(snap *protocol.Snapshot) {
	if s == nil || snap == nil {
		return
	}
	s.enqueue(req{kind: reqBroadcast, broadcast: broadcastRow(snap)}, &s.dropBroadcastTotal)
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:         len(s.ch),
		QueueCapacity:      cap(s.ch),
		DropCommandTotal:   s.dropCommandTotal.Load(),
		DropExecutionTotal: s.dropExecutionTotal.Load(),
		DropBroadcastTotal: s.dropBroadcastTotal.Load(),
	}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertCommand, _ := s.db.Prepare(`INSERT INTO commands(at,conn_id,kind,accepted,code,reason,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertExecution, _ := s.db.Prepare(`INSERT OR REPLACE INTO executions(turn,seq,tick,kind,conn_id,ok,action,verb,target,error) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertBroadcast, _ := s.db.Prepare(`INSERT OR REPLACE INTO broadcasts(tick,at,in_game,plane,npcs,players,locs,ground_items,dialog_open) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertCommand, insertExecution, insertBroadcast} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second

		lastTurn uint64
		execSeq  int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.WithError(err).Warn("begin tx")
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.log.WithError(err).Warn("commit")
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.log.WithError(err).Warn("index write failed")
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqCommand:
			c := r.command
			if insertCommand == nil {
				continue
			}
			if _, err := tx.Stmt(insertCommand).Exec(c.At, c.ConnID, c.Kind, b2i(c.Accepted), c.Code, c.Reason, nullString(c.Raw)); err != nil {
				rollback(err)
				continue
			}
			opCount++

		case reqExecution:
			e := r.execution
			if e.Turn != lastTurn {
				lastTurn = e.Turn
				execSeq = 0
			}
			seq := execSeq
			execSeq++
			if insertExecution == nil {
				continue
			}
			if _, err := tx.Stmt(insertExecution).Exec(int64(e.Turn), seq, e.Tick, e.Kind, e.ConnID, b2i(e.OK), e.Action, e.Verb, e.Target, e.Error); err != nil {
				rollback(err)
				continue
			}
			opCount++

		case reqBroadcast:
			b := r.broadcast
			if insertBroadcast == nil {
				continue
			}
			if _, err := tx.Stmt(insertBroadcast).Exec(b.Tick, b.At, b2i(b.InGame), b.Plane, b.NPCs, b.Players, b.Locs, b.GroundItems, b2i(b.DialogOpen)); err != nil {
				rollback(err)
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}

func nullString(raw []byte) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
