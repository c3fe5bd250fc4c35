package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"rollscan/internal/services"
	"rollscan/internal/toolrunner"
)

// Run statuses recorded in roll_runs.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// RollRun is one recorded processing pass over a roll.
type RollRun struct {
	ID         int64
	RunID      string
	Druid      string
	RollType   string
	Title      string
	Status     string
	Error      string
	StagesRun  []string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Invocation is one recorded external tool execution.
type Invocation struct {
	ID        int64
	RunID     string
	Druid     string
	Stage     string
	Binary    string
	Args      string
	ExitCode  int
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// BeginRun inserts a new run row and returns its generated run ID.
func (s *Store) BeginRun(ctx context.Context, druid, rollType, title string) (string, error) {
	runID := uuid.NewString()
	startedAt := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO roll_runs (run_id, druid, roll_type, title, status, started_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		runID,
		druid,
		nullableString(rollType),
		nullableString(title),
		"running",
		startedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert roll run: %w", err)
	}
	return runID, nil
}

// SetRollInfo records the resolved roll type and title on a run. The run
// begins before the manifest resolves, so these arrive later.
func (s *Store) SetRollInfo(ctx context.Context, runID, rollType, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE roll_runs SET roll_type = ?, title = ? WHERE run_id = ?`,
		nullableString(rollType),
		nullableString(title),
		runID,
	)
	if err != nil {
		return fmt.Errorf("set roll info: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, runID, status string, stagesRun []string, runErr error) error {
	finishedAt := time.Now().UTC().Format(time.RFC3339Nano)
	var errText string
	if runErr != nil {
		errText = runErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE roll_runs SET status = ?, error = ?, stages_run = ?, finished_at = ? WHERE run_id = ?`,
		status,
		nullableString(errText),
		nullableString(strings.Join(stagesRun, ",")),
		finishedAt,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish roll run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RollRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, druid, roll_type, title, status, error, stages_run, started_at, finished_at
         FROM roll_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query roll runs: %w", err)
	}
	defer rows.Close()

	var runs []RollRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListInvocations returns recorded tool invocations, newest first, optionally
// filtered by DRUID.
func (s *Store) ListInvocations(ctx context.Context, druid string, limit int) ([]Invocation, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, run_id, druid, stage, binary, args, exit_code, error, started_at, duration_ms
              FROM tool_invocations`
	args := []any{}
	if druid != "" {
		query += " WHERE druid = ?"
		args = append(args, druid)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tool invocations: %w", err)
	}
	defer rows.Close()

	var invocations []Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invocations = append(invocations, *inv)
	}
	return invocations, rows.Err()
}

// Clear removes all journal rows.
func (s *Store) Clear(ctx context.Context) error {
	for _, table := range []string{"tool_invocations", "roll_runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// Recorder adapts the store to the tool runner's journal hook. The run ID
// is taken from the invocation context so one Recorder serves every run.
type Recorder struct {
	store *Store
}

// Recorder returns the store's tool invocation recorder.
func (s *Store) Recorder() *Recorder {
	return &Recorder{store: s}
}

// RecordInvocation implements toolrunner.Recorder.
func (r *Recorder) RecordInvocation(ctx context.Context, rec toolrunner.Record) error {
	runID, _ := services.RunIDFromContext(ctx)
	var errText string
	if rec.Err != nil {
		errText = rec.Err.Error()
	}
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO tool_invocations (run_id, druid, stage, binary, args, exit_code, error, started_at, duration_ms)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableString(runID),
		rec.Druid,
		rec.Stage,
		rec.Binary,
		nullableString(strings.Join(rec.Args, " ")),
		rec.ExitCode,
		nullableString(errText),
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert tool invocation: %w", err)
	}
	return nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*RollRun, error) {
	var (
		run         RollRun
		rollType    sql.NullString
		title       sql.NullString
		errText     sql.NullString
		stagesRun   sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(&run.ID, &run.RunID, &run.Druid, &rollType, &title,
		&run.Status, &errText, &stagesRun, &startedRaw, &finishedRaw); err != nil {
		return nil, fmt.Errorf("scan roll run: %w", err)
	}
	run.RollType = rollType.String
	run.Title = title.String
	run.Error = errText.String
	if stagesRun.Valid && stagesRun.String != "" {
		run.StagesRun = strings.Split(stagesRun.String, ",")
	}
	if t, err := time.Parse(time.RFC3339Nano, startedRaw); err == nil {
		run.StartedAt = t
	}
	if finishedRaw.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedRaw.String); err == nil {
			run.FinishedAt = &t
		}
	}
	return &run, nil
}

func scanInvocation(scanner interface{ Scan(dest ...any) error }) (*Invocation, error) {
	var (
		inv        Invocation
		runID      sql.NullString
		args       sql.NullString
		errText    sql.NullString
		startedRaw string
		durationMS int64
	)
	if err := scanner.Scan(&inv.ID, &runID, &inv.Druid, &inv.Stage, &inv.Binary,
		&args, &inv.ExitCode, &errText, &startedRaw, &durationMS); err != nil {
		return nil, fmt.Errorf("scan tool invocation: %w", err)
	}
	inv.RunID = runID.String
	inv.Args = args.String
	inv.Error = errText.String
	inv.Duration = time.Duration(durationMS) * time.Millisecond
	if t, err := time.Parse(time.RFC3339Nano, startedRaw); err == nil {
		inv.StartedAt = t
	}
	return &inv, nil
}
