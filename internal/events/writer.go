package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeResultSet       = "framework_result.set"
	TypeSupplierUpdated = "supplier.updated"
	TypeSupplierCreated = "supplier.created"
	TypeUserCreated     = "user.created"
)

// Writer appends ledger events for writes made against the Data API.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append writes an event inside tx, or directly on the DB when tx is nil.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, runID, entityKind, entityID, actorID string, payload Payload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	var ex execer = w.DB
	if tx != nil {
		ex = tx
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO events(ts,type,run_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), evtType, nullable(runID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
