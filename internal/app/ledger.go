package app

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"dmscripts/internal/db"
	"dmscripts/internal/domain"
	"dmscripts/internal/events"
	"dmscripts/internal/migrate"
	"dmscripts/internal/repo"
	"dmscripts/internal/results"
)

// Ledger is the local record of job runs and the API writes they made.
type Ledger struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
}

// OpenLedger opens and migrates the workspace ledger.
func OpenLedger(ctx context.Context, workspace string) (*Ledger, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return NewLedger(conn), nil
}

func NewLedger(conn *sql.DB) *Ledger {
	l := &Ledger{
		DB:   conn,
		Repo: repo.Repo{DB: conn},
		Now:  time.Now,
	}
	l.Events = events.Writer{DB: conn, Now: l.now}
	return l
}

func (l *Ledger) Close() error {
	return l.DB.Close()
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// StartRun inserts a run row and returns a recorder bound to it.
func (l *Ledger) StartRun(ctx context.Context, job, frameworkSlug, actor string, dryRun bool) (*RunRecorder, error) {
	run := repo.NewRun(job, frameworkSlug, actor, dryRun, l.now())
	if err := l.Repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return &RunRecorder{ledger: l, Run: run, actor: actor}, nil
}

// RunRecorder writes the outcomes and events of one run.
type RunRecorder struct {
	ledger *Ledger
	Run    domain.Run
	actor  string
	seq    int
}

// RecordOutcome stores a supplier decision, plus a result event when it was written to the API.
func (r *RunRecorder) RecordOutcome(ctx context.Context, o results.Outcome) error {
	r.seq++
	tx, err := r.ledger.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	rec := domain.Outcome{
		RunID:        r.Run.ID,
		Seq:          r.seq,
		SupplierID:   o.SupplierID,
		Decision:     string(o.Decision),
		Reason:       string(o.Reason),
		Previous:     o.Previous.String(),
		Written:      o.Written,
		Submitted:    o.Submitted,
		NotSubmitted: o.NotSubmitted,
		Detail:       o.Schema,
		CreatedAt:    r.ledger.now().UTC().Format(time.RFC3339),
	}
	if err := r.ledger.Repo.InsertOutcome(ctx, tx, rec); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	if o.Written {
		payload := events.Payload{
			"framework_slug": r.Run.FrameworkSlug,
			"on_framework":   o.Decision == results.DecisionPass,
			"previous":       o.Previous.String(),
		}
		if err := r.ledger.Events.Append(ctx, tx, events.TypeResultSet, r.Run.ID, "supplier", strconv.FormatInt(o.SupplierID, 10), r.actor, payload); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
	}
	return tx.Commit()
}

// RecordWrite appends an event for a write made outside the result procedure.
func (r *RunRecorder) RecordWrite(ctx context.Context, evtType, entityKind, entityID string, payload map[string]any) error {
	return r.ledger.Events.Append(ctx, nil, evtType, r.Run.ID, entityKind, entityID, r.actor, events.Payload(payload))
}

// Finish stamps the run with its summary.
func (r *RunRecorder) Finish(ctx context.Context, summary map[string]int) error {
	return r.ledger.Repo.FinishRun(ctx, r.Run.ID, r.ledger.now(), summary)
}
