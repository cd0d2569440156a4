package userlist

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dmscripts/internal/domain"
	dmapi "dmscripts/sdk/go"
)

const (
	auditRegisterInterest = "register_framework_interest"
	defaultWorkers        = 10
)

type DataAPI interface {
	FindUsers(ctx context.Context) ([]domain.User, error)
	FindAuditEvents(ctx context.Context, auditType, objectType string, objectID int64) ([]domain.AuditEvent, error)
	GetSelectionAnswers(ctx context.Context, supplierID int64, frameworkSlug string) (map[string]any, error)
}

type Options struct {
	FrameworkSlug string
	IncludeStatus bool
	Workers       int
}

// Row is one exported supplier user.
type Row struct {
	Status string
	User   domain.User
}

func (r Row) Record(withStatus bool) []string {
	var rec []string
	if withStatus {
		rec = append(rec, r.Status)
	}
	sup := r.User.Supplier
	return append(rec,
		r.User.EmailAddress,
		r.User.Name,
		strconv.FormatInt(sup.SupplierID, 10),
		sup.Name,
	)
}

type Exporter struct {
	client DataAPI
	logger *zap.Logger
}

func New(client DataAPI, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{client: client, logger: logger}
}

// SupplierUsers returns active users attached to a supplier.
func (e *Exporter) SupplierUsers(ctx context.Context) ([]domain.User, error) {
	all, err := e.client.FindUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	var out []domain.User
	for _, u := range all {
		if u.Active && u.Role == "supplier" && u.Supplier != nil {
			out = append(out, u)
		}
	}
	return out, nil
}

// Rows lists the supplier users, filtered and annotated per opts. Per-user
// API lookups run on a pool of opts.Workers; the input order is kept.
func (e *Exporter) Rows(ctx context.Context, opts Options) ([]Row, error) {
	if opts.IncludeStatus && opts.FrameworkSlug == "" {
		return nil, errors.New("selection status needs a framework")
	}
	users, err := e.SupplierUsers(ctx)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	if opts.FrameworkSlug != "" {
		keep := make([]bool, len(users))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, u := range users {
			g.Go(func() error {
				ok, err := e.registered(gctx, u.Supplier.SupplierID, opts.FrameworkSlug)
				if err != nil {
					return fmt.Errorf("audit events for supplier %d: %w", u.Supplier.SupplierID, err)
				}
				keep[i] = ok
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		filtered := users[:0:0]
		for i, u := range users {
			if keep[i] {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}

	rows := make([]Row, len(users))
	for i, u := range users {
		rows[i] = Row{User: u}
	}
	if !opts.IncludeStatus {
		return rows, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range rows {
		g.Go(func() error {
			rows[i].Status = e.SelectionStatus(gctx, rows[i].User.Supplier.SupplierID, opts.FrameworkSlug)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

func (e *Exporter) registered(ctx context.Context, supplierID int64, frameworkSlug string) (bool, error) {
	evts, err := e.client.FindAuditEvents(ctx, auditRegisterInterest, "suppliers", supplierID)
	if err != nil {
		return false, err
	}
	for _, ev := range evts {
		if slug, _ := ev.Data["frameworkSlug"].(string); slug == frameworkSlug {
			return true, nil
		}
	}
	return false, nil
}

// SelectionStatus reports the supplier's application status. Lookup failures
// become error-* statuses rather than aborting the export.
func (e *Exporter) SelectionStatus(ctx context.Context, supplierID int64, frameworkSlug string) string {
	answers, err := e.client.GetSelectionAnswers(ctx, supplierID, frameworkSlug)
	if err != nil {
		code := dmapi.StatusCode(err)
		if code == 404 {
			return "unstarted"
		}
		e.logger.Warn("selection answers lookup failed", zap.Int64("supplier_id", supplierID), zap.Error(err))
		return fmt.Sprintf("error-%d", code)
	}
	status, ok := lookup(answers, "selectionAnswers", "questionAnswers", "status")
	if !ok {
		return "error-key-error"
	}
	return status
}

func lookup(doc map[string]any, path ...string) (string, bool) {
	var cur any = doc
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		if cur, ok = m[key]; !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok
}

// Export writes the CSV to out and returns the number of rows.
func (e *Exporter) Export(ctx context.Context, out io.Writer, opts Options) (int, error) {
	rows, err := e.Rows(ctx, opts)
	if err != nil {
		return 0, err
	}
	w := csv.NewWriter(out)
	for _, r := range rows {
		if err := w.Write(r.Record(opts.IncludeStatus)); err != nil {
			return 0, err
		}
	}
	w.Flush()
	return len(rows), w.Error()
}
