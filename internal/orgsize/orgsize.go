package orgsize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"dmscripts/internal/domain"
	"dmscripts/internal/events"
	dmapi "dmscripts/sdk/go"
)

const (
	UpdatedIDsFile            = "updated_supplier_ids"
	InvalidSizeIDsFile        = "invalid_size_supplier_ids"
	InvalidDeclarationIDsFile = "invalid_declaration_supplier_ids"
)

var validSizes = map[string]bool{"micro": true, "small": true, "medium": true, "large": true}

type DataAPI interface {
	FindSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetSupplierFrameworks(ctx context.Context, supplierID int64) ([]domain.SupplierFramework, error)
	UpdateSupplier(ctx context.Context, supplierID int64, fields map[string]any, updatedBy string) error
}

// WriteRecorder is told about every supplier update that reached the API.
type WriteRecorder interface {
	RecordWrite(ctx context.Context, evtType, entityKind, entityID string, payload map[string]any) error
}

type Options struct {
	UpdatedBy string
	DryRun    bool
}

// UpdatedBy is the audit name used for updates made by this job.
func UpdatedBy(osUser string) string {
	return osUser + " (migrate organisation size script)"
}

type Report struct {
	Updated            []int64
	InvalidSize        []int64
	InvalidDeclaration []int64
	Skipped            int
	UpdateErrors       int
	Duration           time.Duration
}

type Migrator struct {
	client   DataAPI
	logger   *zap.Logger
	recorder WriteRecorder
	now      func() time.Time
}

func New(client DataAPI, logger *zap.Logger, recorder WriteRecorder) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{client: client, logger: logger, recorder: recorder, now: time.Now}
}

// Run copies organisationSize from each supplier's most recent returned
// declaration onto the supplier record.
func (m *Migrator) Run(ctx context.Context, opts Options) (Report, error) {
	if opts.UpdatedBy == "" {
		return Report{}, errors.New("updated by is required")
	}
	var rep Report
	start := m.now()
	suppliers, err := m.client.FindSuppliers(ctx)
	if err != nil {
		return rep, fmt.Errorf("find suppliers: %w", err)
	}
	for _, s := range suppliers {
		if s.OrganisationSize != "" {
			rep.Skipped++
			m.logger.Info(fmt.Sprintf("  already done: supplier ID %d", s.ID))
			continue
		}
		sf, err := m.latestDeclaration(ctx, s.ID)
		if err != nil {
			return rep, err
		}
		if sf == nil {
			rep.InvalidDeclaration = append(rep.InvalidDeclaration, s.ID)
			m.logger.Info(fmt.Sprintf("No valid framework declarations for supplier %d", s.ID))
			continue
		}
		m.logger.Info(fmt.Sprintf("Supplier %d: updating with data from framework %s", s.ID, sf.FrameworkSlug))
		size := sf.Declaration.String("organisationSize")
		if !validSizes[size] {
			rep.InvalidSize = append(rep.InvalidSize, s.ID)
			m.logger.Info(fmt.Sprintf("  Invalid organisation size %q", size))
			continue
		}
		if err := m.update(ctx, s.ID, size, opts); err != nil {
			rep.UpdateErrors++
			m.logger.Error("failed to update supplier", zap.Int64("supplier_id", s.ID), zap.Error(err))
			continue
		}
		rep.Updated = append(rep.Updated, s.ID)
	}
	rep.Duration = m.now().Sub(start)

	m.logger.Info(fmt.Sprintf("*** Updated %d suppliers in %s", len(rep.Updated), rep.Duration))
	m.logger.Info(fmt.Sprintf("*** Skipped %d suppliers that already have org size info", rep.Skipped))
	m.logger.Info(fmt.Sprintf("*** Skipped %d suppliers with no valid declaration", len(rep.InvalidDeclaration)))
	m.logger.Info(fmt.Sprintf("*** Skipped %d suppliers with bad org size info", len(rep.InvalidSize)))
	return rep, nil
}

// latestDeclaration picks the framework interest with a declaration and the
// latest agreementReturnedAt; ties keep API order. Nil when there is none.
func (m *Migrator) latestDeclaration(ctx context.Context, supplierID int64) (*domain.SupplierFramework, error) {
	sfs, err := m.client.GetSupplierFrameworks(ctx, supplierID)
	if err != nil {
		if dmapi.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("supplier %d frameworks: %w", supplierID, err)
	}
	var best *domain.SupplierFramework
	for i := range sfs {
		sf := &sfs[i]
		if len(sf.Declaration) == 0 || sf.AgreementReturnedAt == nil || *sf.AgreementReturnedAt == "" {
			continue
		}
		if best == nil || *sf.AgreementReturnedAt > *best.AgreementReturnedAt {
			best = sf
		}
	}
	return best, nil
}

func (m *Migrator) update(ctx context.Context, supplierID int64, size string, opts Options) error {
	m.logger.Info(fmt.Sprintf("Updating supplier %d with org size %s", supplierID, size))
	if opts.DryRun {
		return nil
	}
	fields := map[string]any{"organisationSize": size}
	if err := m.client.UpdateSupplier(ctx, supplierID, fields, opts.UpdatedBy); err != nil {
		return err
	}
	if m.recorder != nil {
		if err := m.recorder.RecordWrite(ctx, events.TypeSupplierUpdated, "supplier", strconv.FormatInt(supplierID, 10), fields); err != nil {
			m.logger.Warn("failed to record supplier update", zap.Int64("supplier_id", supplierID), zap.Error(err))
		}
	}
	return nil
}

// WriteFiles writes the three id lists, one id per line, into dir.
func (r Report) WriteFiles(dir string) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, ids := range map[string][]int64{
		UpdatedIDsFile:            r.Updated,
		InvalidSizeIDsFile:        r.InvalidSize,
		InvalidDeclarationIDsFile: r.InvalidDeclaration,
	} {
		var b strings.Builder
		for _, id := range ids {
			b.WriteString(strconv.FormatInt(id, 10))
			b.WriteByte('\n')
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Summary is the run summary stored in the ledger.
func (r Report) Summary() map[string]int {
	return map[string]int{
		"updated":             len(r.Updated),
		"skipped":             r.Skipped,
		"invalid_declaration": len(r.InvalidDeclaration),
		"invalid_size":        len(r.InvalidSize),
		"update_errors":       r.UpdateErrors,
	}
}
