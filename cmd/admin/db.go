package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dbPath := fs.String("db", "./data/index/bridge.sqlite", "sqlite index path")
	limit := fs.Int("limit", 20, "result limit")
	connID := fs.String("conn", "", "conn_id filter (commands, executions)")
	_ = fs.Parse(args)

	q := "commands"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := query(db, os.Stdout, q, *limit, strings.TrimSpace(*connID)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// query prints one JSON line per row of the named report, newest first.
func query(db *sql.DB, w io.Writer, q string, limit int, connID string) error {
	if limit <= 0 {
		limit = 20
	}

	switch q {
	case "commands":
		rows, err := db.Query(`SELECT id,at,conn_id,kind,accepted,COALESCE(code,''),COALESCE(reason,'') FROM commands
			WHERE (?='' OR conn_id=?) ORDER BY id DESC LIMIT ?`, connID, connID, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID       int64  `json:"id"`
				At       string `json:"at"`
				ConnID   string `json:"conn_id"`
				Kind     string `json:"kind"`
				Accepted bool   `json:"accepted"`
				Code     string `json:"code,omitempty"`
				Reason   string `json:"reason,omitempty"`
			}
			if err := rows.Scan(&r.ID, &r.At, &r.ConnID, &r.Kind, &r.Accepted, &r.Code, &r.Reason); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "executions":
		rows, err := db.Query(`SELECT turn,seq,tick,kind,COALESCE(conn_id,''),ok,COALESCE(action,''),COALESCE(verb,''),COALESCE(target,''),COALESCE(error,'') FROM executions
			WHERE (?='' OR conn_id=?) ORDER BY turn DESC, seq DESC LIMIT ?`, connID, connID, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Turn   int64  `json:"turn"`
				Seq    int    `json:"seq"`
				Tick   int    `json:"tick"`
				Kind   string `json:"kind"`
				ConnID string `json:"conn_id,omitempty"`
				OK     bool   `json:"ok"`
				Action string `json:"action,omitempty"`
				Verb   string `json:"verb,omitempty"`
				Target string `json:"target,omitempty"`
				Error  string `json:"error,omitempty"`
			}
			if err := rows.Scan(&r.Turn, &r.Seq, &r.Tick, &r.Kind, &r.ConnID, &r.OK, &r.Action, &r.Verb, &r.Target, &r.Error); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "broadcasts":
		rows, err := db.Query(`SELECT tick,at,in_game,plane,npcs,players,locs,ground_items,dialog_open FROM broadcasts ORDER BY tick DESC LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick        int    `json:"tick"`
				At          string `json:"at"`
				InGame      bool   `json:"in_game"`
				Plane       int    `json:"plane"`
				NPCs        int    `json:"npcs"`
				Players     int    `json:"players"`
				Locs        int    `json:"locs"`
				GroundItems int    `json:"ground_items"`
				DialogOpen  bool   `json:"dialog_open"`
			}
			if err := rows.Scan(&r.Tick, &r.At, &r.InGame, &r.Plane, &r.NPCs, &r.Players, &r.Locs, &r.GroundItems, &r.DialogOpen); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "kinds":
		rows, err := db.Query(`SELECT kind,COUNT(*),SUM(CASE WHEN ok=0 THEN 1 ELSE 0 END) FROM executions GROUP BY kind ORDER BY kind`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Kind   string `json:"kind"`
				Total  int    `json:"total"`
				Failed int    `json:"failed"`
			}
			if err := rows.Scan(&r.Kind, &r.Total, &r.Failed); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query %q (commands|executions|broadcasts|kinds)", q)
	}
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
