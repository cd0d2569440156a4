package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dmscripts/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const runColumns = `id,job,COALESCE(framework_slug,''),COALESCE(updated_by,''),dry_run,started_at,finished_at,COALESCE(summary_json,'')`

// NewRun returns an unsaved run with a fresh id.
func NewRun(job, frameworkSlug, updatedBy string, dryRun bool, now time.Time) domain.Run {
	return domain.Run{
		ID:            uuid.New().String(),
		Job:           job,
		FrameworkSlug: frameworkSlug,
		UpdatedBy:     updatedBy,
		DryRun:        dryRun,
		StartedAt:     now.UTC().Format(time.RFC3339),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.Run, error) {
	var (
		r        domain.Run
		dryRun   int
		finished sql.NullString
		summary  string
	)
	if err := row.Scan(&r.ID, &r.Job, &r.FrameworkSlug, &r.UpdatedBy, &dryRun, &r.StartedAt, &finished, &summary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, ErrNotFound
		}
		return r, err
	}
	r.DryRun = dryRun != 0
	if finished.Valid {
		r.FinishedAt = &finished.String
	}
	if summary != "" {
		if err := json.Unmarshal([]byte(summary), &r.Summary); err != nil {
			return r, fmt.Errorf("decode run %s summary: %w", r.ID, err)
		}
	}
	return r, nil
}

func (r Repo) CreateRun(ctx context.Context, run domain.Run) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO runs(id,job,framework_slug,updated_by,dry_run,started_at) VALUES (?,?,?,?,?,?)`,
		run.ID, run.Job, nullable(run.FrameworkSlug), nullable(run.UpdatedBy), boolInt(run.DryRun), run.StartedAt)
	return err
}

func (r Repo) FinishRun(ctx context.Context, id string, finishedAt time.Time, summary map[string]int) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE runs SET finished_at=?, summary_json=? WHERE id=?`,
		finishedAt.UTC().Format(time.RFC3339), string(data), id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetRun(ctx context.Context, id string) (domain.Run, error) {
	return scanRun(r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id))
}

// ListRuns returns the most recent runs first, optionally for one job.
func (r Repo) ListRuns(ctx context.Context, job string, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if job != "" {
		query += ` WHERE job=?`
		args = append(args, job)
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, run)
	}
	return res, rows.Err()
}

// LatestRun returns the newest finished, non dry-run run of a job for a framework.
func (r Repo) LatestRun(ctx context.Context, job, frameworkSlug string) (domain.Run, error) {
	return scanRun(r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs
WHERE job=? AND framework_slug=? AND finished_at IS NOT NULL AND dry_run=0
ORDER BY started_at DESC, rowid DESC LIMIT 1`, job, frameworkSlug))
}

func (r Repo) InsertOutcome(ctx context.Context, tx *sql.Tx, o domain.Outcome) error {
	const q = `INSERT INTO outcomes(run_id,seq,supplier_id,decision,reason,previous,written,submitted,not_submitted,detail,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`
	args := []any{o.RunID, o.Seq, o.SupplierID, o.Decision, o.Reason, o.Previous, boolInt(o.Written), o.Submitted, o.NotSubmitted, nullable(o.Detail), o.CreatedAt}
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, q, args...)
	} else {
		_, err = r.DB.ExecContext(ctx, q, args...)
	}
	return err
}

// ListOutcomes returns a run's outcomes in evaluation order, optionally filtered by decision.
func (r Repo) ListOutcomes(ctx context.Context, runID, decision string) ([]domain.Outcome, error) {
	query := `SELECT run_id,seq,supplier_id,decision,reason,previous,written,submitted,not_submitted,COALESCE(detail,''),created_at FROM outcomes WHERE run_id=?`
	args := []any{runID}
	if decision != "" {
		query += ` AND decision=?`
		args = append(args, strings.ToLower(decision))
	}
	query += ` ORDER BY seq`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Outcome
	for rows.Next() {
		var (
			o       domain.Outcome
			written int
		)
		if err := rows.Scan(&o.RunID, &o.Seq, &o.SupplierID, &o.Decision, &o.Reason, &o.Previous, &written, &o.Submitted, &o.NotSubmitted, &o.Detail, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Written = written != 0
		res = append(res, o)
	}
	return res, rows.Err()
}

// CountOutcomes tallies a run's outcomes by decision.
func (r Repo) CountOutcomes(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT decision, COUNT(*) FROM outcomes WHERE run_id=? GROUP BY decision`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var (
			decision string
			n        int
		)
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, err
		}
		counts[decision] = n
	}
	return counts, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, runID, evtType string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		where []string
		args  []any
	)
	if runID != "" {
		where = append(where, "run_id=?")
		args = append(args, runID)
	}
	if evtType != "" {
		where = append(where, "type=?")
		args = append(args, evtType)
	}
	query := `SELECT id,ts,type,COALESCE(run_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.RunID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
