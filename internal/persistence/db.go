// Package persistence journals transitions and option lifecycles to SQLite
// so a run can be inspected afterwards and resumed where it stopped.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/mini-reasoner/internal/clock"
	"github.com/talgya/mini-reasoner/internal/engine"
	"github.com/talgya/mini-reasoner/internal/reasoner"
)

const (
	metaLastTick = "last_tick"
	metaSimTime  = "sim_time"
	metaRunID    = "run_id"
)

// DB wraps a SQLite connection for the run journal.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		sim_time REAL NOT NULL,
		agent TEXT NOT NULL,
		from_option TEXT NOT NULL,
		to_option TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS option_states (
		agent TEXT NOT NULL,
		option_name TEXT NOT NULL,
		position INTEGER NOT NULL,
		active INTEGER NOT NULL,
		last_start REAL,
		last_stop REAL,
		PRIMARY KEY (agent, option_name)
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transitions_agent ON transitions(agent);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// optionRow is one persisted option lifecycle. NULL timestamps mean the
// event never happened.
type optionRow struct {
	Agent     string          `db:"agent"`
	Option    string          `db:"option_name"`
	Position  int             `db:"position"`
	Active    bool            `db:"active"`
	LastStart sql.NullFloat64 `db:"last_start"`
	LastStop  sql.NullFloat64 `db:"last_stop"`
}

func nullable(t float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: t, Valid: !clock.IsNever(t)}
}

func fromNullable(n sql.NullFloat64) float64 {
	if !n.Valid {
		return clock.Never
	}
	return n.Float64
}

// SaveTransitions appends transitions to the journal.
func (db *DB) SaveTransitions(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.NamedExec(`INSERT INTO transitions
			(run_id, tick, sim_time, agent, from_option, to_option)
			VALUES (:run_id, :tick, :sim_time, :agent, :from_option, :to_option)`, e)
		if err != nil {
			return fmt.Errorf("insert transition: %w", err)
		}
	}

	return tx.Commit()
}

// RecentTransitions returns the latest limit transitions, oldest first.
func (db *DB) RecentTransitions(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		`SELECT run_id, tick, sim_time, agent, from_option, to_option
		FROM transitions ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// CountTransitions returns the number of journaled transitions per agent.
func (db *DB) CountTransitions() (map[string]int, error) {
	var rows []struct {
		Agent string `db:"agent"`
		N     int    `db:"n"`
	}
	if err := db.conn.Select(&rows, "SELECT agent, COUNT(*) AS n FROM transitions GROUP BY agent"); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Agent] = r.N
	}
	return out, nil
}

// SaveOptionStates replaces the stored lifecycles with states.
func (db *DB) SaveOptionStates(states map[string][]reasoner.OptionState) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM option_states"); err != nil {
		return err
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO option_states
		(agent, option_name, position, active, last_start, last_stop)
		VALUES (:agent, :option_name, :position, :active, :last_start, :last_stop)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for agent, list := range states {
		for i, s := range list {
			row := optionRow{
				Agent:     agent,
				Option:    s.Name,
				Position:  i,
				Active:    s.Active,
				LastStart: nullable(s.LastStart),
				LastStop:  nullable(s.LastStop),
			}
			if _, err := stmt.Exec(row); err != nil {
				return fmt.Errorf("insert option %s/%s: %w", agent, s.Name, err)
			}
		}
	}

	return tx.Commit()
}

// LoadOptionStates reads the stored lifecycles keyed by agent, in option
// order.
func (db *DB) LoadOptionStates() (map[string][]reasoner.OptionState, error) {
	var rows []optionRow
	err := db.conn.Select(&rows,
		`SELECT agent, option_name, position, active, last_start, last_stop
		FROM option_states ORDER BY agent, position`)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]reasoner.OptionState)
	for _, r := range rows {
		out[r.Agent] = append(out[r.Agent], reasoner.OptionState{
			Name:      r.Option,
			Active:    r.Active,
			LastStart: fromNullable(r.LastStart),
			LastStop:  fromNullable(r.LastStop),
		})
	}
	return out, nil
}

// SaveMeta stores a key-value pair in run metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// HasSavedState reports whether a previous run left state to resume.
func (db *DB) HasSavedState() bool {
	_, err := db.GetMeta(metaLastTick)
	return err == nil
}

// SaveSimulation journals pending transitions, lifecycles and the clock.
func (db *DB) SaveSimulation(sim *engine.Simulation) error {
	pending := sim.DrainPending()
	if err := db.SaveTransitions(pending); err != nil {
		sim.Requeue(pending)
		return fmt.Errorf("save transitions: %w", err)
	}
	if err := db.SaveOptionStates(sim.OptionStates()); err != nil {
		return fmt.Errorf("save option states: %w", err)
	}
	meta := map[string]string{
		metaLastTick: strconv.FormatUint(sim.CurrentTick(), 10),
		metaSimTime:  strconv.FormatFloat(sim.Now(), 'g', -1, 64),
		metaRunID:    sim.RunID,
	}
	for k, v := range meta {
		if err := db.SaveMeta(k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	slog.Info("simulation saved", "tick", meta[metaLastTick], "transitions", len(pending))
	return nil
}

// RestoreSimulation resumes a saved run: lifecycles, tick counter and clock.
// It returns the restored tick.
func (db *DB) RestoreSimulation(sim *engine.Simulation, clk *clock.Sim) (uint64, error) {
	rawTick, err := db.GetMeta(metaLastTick)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load last tick: %w", err)
	}
	tick, err := strconv.ParseUint(rawTick, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse last tick: %w", err)
	}
	rawTime, err := db.GetMeta(metaSimTime)
	if err != nil {
		return 0, fmt.Errorf("load sim time: %w", err)
	}
	now, err := strconv.ParseFloat(rawTime, 64)
	if err != nil {
		return 0, fmt.Errorf("parse sim time: %w", err)
	}

	states, err := db.LoadOptionStates()
	if err != nil {
		return 0, fmt.Errorf("load option states: %w", err)
	}
	if err := sim.RestoreOptionStates(states); err != nil {
		return 0, err
	}
	clk.Set(now)
	sim.SetTick(tick)

	slog.Info("simulation restored", "tick", tick, "sim_time", engine.FormatSimTime(now))
	return tick, nil
}
