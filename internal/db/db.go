// Package db persists sessions and predictions in SQLite.
package db

import (
	"compress/gzip"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/arrhythmix/internal/monitoring"
	"github.com/banshee-data/arrhythmix/internal/state"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var logf = monitoring.Component("db")

// pragmas are applied to every pooled connection.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
}

type DB struct {
	*sql.DB
	path string
}

// NewDB opens (creating if needed) the database at path and applies any
// pending migrations.
func NewDB(path string) (*DB, error) {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	sqlDB, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// SessionRecord is one row of the sessions table.
type SessionRecord struct {
	ID        string         `json:"session_id"`
	Source    string         `json:"source"`
	StartedAt time.Time      `json:"started_at"`
	StoppedAt *time.Time     `json:"stopped_at,omitempty"`
	Counters  state.Counters `json:"counters"`
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*1e9)).UTC()
}

// RecordSessionStart inserts a session row.
func (db *DB) RecordSessionStart(ctx context.Context, id, source string, startedAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, source, started_at) VALUES (?, ?, ?)`,
		id, source, unixSeconds(startedAt))
	if err != nil {
		return fmt.Errorf("failed to record session start: %w", err)
	}
	return nil
}

// RecordSessionStop stores the stop time and final counters of a session.
func (db *DB) RecordSessionStop(ctx context.Context, id string, stoppedAt time.Time, c state.Counters) error {
	res, err := db.ExecContext(ctx, `
		UPDATE sessions
		SET stopped_at = ?, samples = ?, decode_errors = ?, leads_off = ?, dropped = ?
		WHERE session_id = ?`,
		unixSeconds(stoppedAt), c.Samples, c.DecodeErrors, c.LeadsOff, c.Dropped, id)
	if err != nil {
		return fmt.Errorf("failed to record session stop: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to record session stop: unknown session %s", id)
	}
	return nil
}

// Sessions returns the most recent sessions, newest first.
func (db *DB) Sessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT session_id, source, started_at, stopped_at, samples, decode_errors, leads_off, dropped
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			rec     SessionRecord
			started float64
			stopped sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &rec.Source, &started, &stopped,
			&rec.Counters.Samples, &rec.Counters.DecodeErrors, &rec.Counters.LeadsOff, &rec.Counters.Dropped); err != nil {
			return nil, err
		}
		rec.StartedAt = fromUnixSeconds(started)
		if stopped.Valid {
			t := fromUnixSeconds(stopped.Float64)
			rec.StoppedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordPrediction inserts one prediction. A repeated (session, seq) pair is
// ignored.
func (db *DB) RecordPrediction(ctx context.Context, p state.Prediction) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO predictions (
			session_id, seq, run_id, label, error, samples, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SessionID, p.Seq, p.RunID,
		sql.NullString{String: p.Label, Valid: p.Label != ""},
		sql.NullString{String: p.Err, Valid: p.Err != ""},
		p.Samples, unixSeconds(p.StartedAt), float64(p.Duration)/float64(time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("failed to record prediction: %w", err)
	}
	return nil
}

// RecentPredictions returns up to limit predictions, newest first. An empty
// sessionID selects every session.
func (db *DB) RecentPredictions(ctx context.Context, sessionID string, limit int) ([]state.Prediction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT session_id, seq, run_id, label, error, samples, started_at, duration_ms
		FROM predictions
		WHERE ? = '' OR session_id = ?
		ORDER BY started_at DESC, seq DESC
		LIMIT ?`, sessionID, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []state.Prediction
	for rows.Next() {
		var (
			p            state.Prediction
			label, errS  sql.NullString
			started, dur float64
		)
		if err := rows.Scan(&p.SessionID, &p.Seq, &p.RunID, &label, &errS, &p.Samples, &started, &dur); err != nil {
			return nil, err
		}
		p.Label = label.String
		p.Err = errS.String
		p.StartedAt = fromUnixSeconds(started)
		p.Duration = time.Duration(dur * float64(time.Millisecond))
		out = append(out, p)
	}
	return out, rows.Err()
}

// AttachAdminRoutes mounts tailsql and a backup download under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "ECG sessions DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("arrhythmix-backup-%d.db", time.Now().UnixNano()))
	if _, err := db.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			logf("failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		logf("failed to write backup: %v", err)
	}
}
