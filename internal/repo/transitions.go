package repo

import (
	"context"
	"database/sql"
	"errors"
)

// Transition is one recorded state-machine step.
type Transition struct {
	ID            int64  `json:"id"`
	TS            string `json:"ts" format:"date-time"`
	Machine       string `json:"machine"`
	Event         string `json:"event"`
	From          string `json:"from"`
	To            string `json:"to"`
	Error         string `json:"error,omitempty"`
	DetailJSON    string `json:"detail_json"`
	CorrelationID string `json:"correlation_id"`
}

func (r Repo) InsertTransition(ctx context.Context, t Transition) (int64, error) {
	if t.Machine == "" || t.Event == "" {
		return 0, errors.New("machine and event required")
	}
	if t.TS == "" {
		t.TS = r.now()
	}
	if t.DetailJSON == "" {
		t.DetailJSON = "{}"
	}
	res, err := r.DB.ExecContext(ctx, `INSERT INTO transitions(ts,machine,event,from_phase,to_phase,error,detail_json,correlation_id) VALUES (?,?,?,?,?,?,?,?)`,
		t.TS, t.Machine, t.Event, t.From, t.To, nullable(t.Error), t.DetailJSON, t.CorrelationID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestTransitions returns up to limit rows, newest first, optionally for one machine.
func (r Repo) LatestTransitions(ctx context.Context, limit int, machine string) ([]Transition, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id,ts,machine,event,from_phase,to_phase,COALESCE(error,''),detail_json,correlation_id FROM transitions`
	var args []any
	if machine != "" {
		query += ` WHERE machine=?`
		args = append(args, machine)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.ID, &t.TS, &t.Machine, &t.Event, &t.From, &t.To, &t.Error, &t.DetailJSON, &t.CorrelationID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTransition fetches one row by id.
func (r Repo) GetTransition(ctx context.Context, id int64) (Transition, error) {
	var t Transition
	err := r.DB.QueryRowContext(ctx, `SELECT id,ts,machine,event,from_phase,to_phase,COALESCE(error,''),detail_json,correlation_id FROM transitions WHERE id=?`, id).
		Scan(&t.ID, &t.TS, &t.Machine, &t.Event, &t.From, &t.To, &t.Error, &t.DetailJSON, &t.CorrelationID)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// TransitionsAfter returns up to limit rows with id > afterID, oldest first.
func (r Repo) TransitionsAfter(ctx context.Context, limit int, afterID int64) ([]Transition, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,machine,event,from_phase,to_phase,COALESCE(error,''),detail_json,correlation_id FROM transitions WHERE id>? ORDER BY id ASC LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.ID, &t.TS, &t.Machine, &t.Event, &t.From, &t.To, &t.Error, &t.DetailJSON, &t.CorrelationID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LatestTransitionID is 0 when the log is empty.
func (r Repo) LatestTransitionID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM transitions`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}
