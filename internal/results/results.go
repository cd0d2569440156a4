package results

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dmscripts/internal/domain"
	"dmscripts/internal/schema"
)

// DataAPI is the subset of the Data API the result procedure needs.
type DataAPI interface {
	GetInterestedSuppliers(ctx context.Context, frameworkSlug string) ([]int64, error)
	GetSupplierFrameworkInfo(ctx context.Context, supplierID int64, frameworkSlug string) (domain.SupplierFramework, error)
	FindDraftServicesByFramework(ctx context.Context, frameworkSlug string, supplierID int64) ([]domain.DraftService, error)
	SetFrameworkResult(ctx context.Context, supplierID int64, frameworkSlug string, onFramework bool, updatedBy string) error
}

// Recorder receives each supplier outcome as it is decided.
type Recorder interface {
	RecordOutcome(ctx context.Context, o Outcome) error
}

type Decision string

const (
	DecisionPass          Decision = "pass"
	DecisionFail          Decision = "fail"
	DecisionDiscretionary Decision = "discretionary"
	DecisionSkip          Decision = "skip"
)

type Reason string

const (
	ReasonAlreadyFailed         Reason = "already-failed"
	ReasonAlreadyPassed         Reason = "already-passed"
	ReasonDeclarationIncomplete Reason = "declaration-incomplete"
	ReasonNoSubmittedServices   Reason = "no-submitted-services"
	ReasonDefinitePass          Reason = "definite-pass"
	ReasonDiscretionaryFail     Reason = "discretionary-schema-failed"
	ReasonDiscretionary         Reason = "discretionary"
)

const (
	statusComplete     = "complete"
	statusSubmitted    = "submitted"
	statusNotSubmitted = "not-submitted"
)

// Outcome is the decision reached for one supplier.
type Outcome struct {
	SupplierID   int64
	Decision     Decision
	Reason       Reason
	Previous     domain.OnFramework
	Written      bool
	Submitted    int
	NotSubmitted int
	// Schema names the schema whose failure decided the outcome, if any.
	Schema string
}

// Config holds the inputs of a result run.
type Config struct {
	FrameworkSlug           string
	UpdatedBy               string
	SupplierIDs             []int64
	ExcludedSupplierIDs     []int64
	DefinitePassSchema      *schema.Validator
	DiscretionaryPassSchema *schema.Validator
	ReassessPassedSuppliers bool
	ReassessFailedSuppliers bool
	DryRun                  bool
	ValidationLogLevel      zapcore.Level
}

// Summary counts outcomes over a run.
type Summary struct {
	Interested    int
	Evaluated     int
	Pass          int
	Fail          int
	Discretionary int
	Skip          int
	Written       int
}

// Map flattens the summary for storage and display.
func (s Summary) Map() map[string]int {
	return map[string]int{
		"interested":    s.Interested,
		"evaluated":     s.Evaluated,
		"pass":          s.Pass,
		"fail":          s.Fail,
		"discretionary": s.Discretionary,
		"skip":          s.Skip,
		"written":       s.Written,
	}
}

func (s *Summary) add(o Outcome) {
	s.Evaluated++
	switch o.Decision {
	case DecisionPass:
		s.Pass++
	case DecisionFail:
		s.Fail++
	case DecisionDiscretionary:
		s.Discretionary++
	case DecisionSkip:
		s.Skip++
	}
	if o.Written {
		s.Written++
	}
}

// Marker decides framework results for suppliers.
type Marker struct {
	client   DataAPI
	cfg      Config
	logger   *zap.Logger
	recorder Recorder
}

type Option func(*Marker)

func WithLogger(l *zap.Logger) Option {
	return func(m *Marker) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(m *Marker) { m.recorder = r }
}

func New(client DataAPI, cfg Config, opts ...Option) (*Marker, error) {
	if client == nil {
		return nil, errors.New("data api client is required")
	}
	if cfg.FrameworkSlug == "" {
		return nil, errors.New("framework slug is required")
	}
	if cfg.UpdatedBy == "" {
		return nil, errors.New("updated by is required")
	}
	if cfg.DefinitePassSchema == nil {
		return nil, errors.New("definite pass schema is required")
	}
	m := &Marker{client: client, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Run evaluates every candidate supplier in order. The first API error aborts the run.
func (m *Marker) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	ids := m.cfg.SupplierIDs
	if len(ids) == 0 {
		interested, err := m.client.GetInterestedSuppliers(ctx, m.cfg.FrameworkSlug)
		if err != nil {
			return sum, fmt.Errorf("get interested suppliers: %w", err)
		}
		ids = interested
	}
	sum.Interested = len(ids)
	ids = exclude(ids, m.cfg.ExcludedSupplierIDs)

	for i, id := range ids {
		m.logger.Info(fmt.Sprintf("Supplier %d/%d: %d", i+1, sum.Interested, id),
			zap.Int("i", i+1), zap.Int64("supplier_id", id), zap.Int("total_interested_suppliers", sum.Interested))
		out, err := m.Evaluate(ctx, id)
		if err != nil {
			return sum, err
		}
		sum.add(out)
		if m.recorder != nil {
			if err := m.recorder.RecordOutcome(ctx, out); err != nil {
				return sum, fmt.Errorf("record supplier %d: %w", id, err)
			}
		}
	}
	return sum, nil
}

// Evaluate decides one supplier, writing PASS/FAIL back unless dry-run or unchanged.
func (m *Marker) Evaluate(ctx context.Context, supplierID int64) (Outcome, error) {
	log := m.logger.With(zap.Int64("supplier_id", supplierID))
	sf, err := m.client.GetSupplierFrameworkInfo(ctx, supplierID, m.cfg.FrameworkSlug)
	if err != nil {
		return Outcome{}, fmt.Errorf("supplier %d framework info: %w", supplierID, err)
	}
	out := Outcome{SupplierID: supplierID, Previous: sf.OnFramework}

	switch sf.OnFramework {
	case domain.OnFrameworkFailed:
		if !m.cfg.ReassessFailedSuppliers {
			log.Info("\tSkipping: already failed")
			out.Decision, out.Reason = DecisionSkip, ReasonAlreadyFailed
			return out, nil
		}
	case domain.OnFrameworkPassed:
		if !m.cfg.ReassessPassedSuppliers {
			log.Info("\tSkipping: already passed")
			out.Decision, out.Reason = DecisionSkip, ReasonAlreadyPassed
			return out, nil
		}
	}

	if sf.Declaration.Status() != statusComplete {
		return m.decide(ctx, log, sf, out, false, ReasonDeclarationIncomplete)
	}

	tally, err := m.assessDraftServices(ctx, log, supplierID)
	if err != nil {
		return out, err
	}
	out.Submitted, out.NotSubmitted = tally[statusSubmitted], tally[statusNotSubmitted]
	if out.Submitted == 0 {
		return m.decide(ctx, log, sf, out, false, ReasonNoSubmittedServices)
	}

	declaration := map[string]any(sf.Declaration)
	if m.cfg.DefinitePassSchema.Passes(log, m.cfg.ValidationLogLevel, declaration) {
		return m.decide(ctx, log, sf, out, true, ReasonDefinitePass)
	}
	out.Schema = m.cfg.DefinitePassSchema.Name

	if m.cfg.DiscretionaryPassSchema != nil {
		if !m.cfg.DiscretionaryPassSchema.Passes(log, m.cfg.ValidationLogLevel, declaration) {
			out.Schema = m.cfg.DiscretionaryPassSchema.Name
			return m.decide(ctx, log, sf, out, false, ReasonDiscretionaryFail)
		}
	}

	// DISCRETIONARY never overwrites, and never sets, a result
	msg := "\tResult: DISCRETIONARY"
	if sf.OnFramework != domain.OnFrameworkUnset {
		msg += fmt.Sprintf(" (but leaving as %s)", sf.OnFramework.Label())
	}
	log.Info(msg)
	out.Decision, out.Reason = DecisionDiscretionary, ReasonDiscretionary
	return out, nil
}

func (m *Marker) assessDraftServices(ctx context.Context, log *zap.Logger, supplierID int64) (map[string]int, error) {
	services, err := m.client.FindDraftServicesByFramework(ctx, m.cfg.FrameworkSlug, supplierID)
	if err != nil {
		return nil, fmt.Errorf("supplier %d draft services: %w", supplierID, err)
	}
	tally := map[string]int{}
	for _, s := range services {
		tally[s.Status]++
	}
	log.Info(fmt.Sprintf("\tDraft services:  %d submitted, %d not-submitted", tally[statusSubmitted], tally[statusNotSubmitted]))
	return tally, nil
}

func (m *Marker) decide(ctx context.Context, log *zap.Logger, sf domain.SupplierFramework, out Outcome, pass bool, reason Reason) (Outcome, error) {
	out.Reason = reason
	out.Decision = DecisionFail
	if pass {
		out.Decision = DecisionPass
	}
	log.Info("\tResult: " + domain.OnFrameworkFromBool(pass).Label())
	if m.cfg.DryRun {
		return out, nil
	}
	if sf.OnFramework == domain.OnFrameworkFromBool(pass) {
		log.Debug("\tUnchanged result - not re-setting")
		return out, nil
	}
	if err := m.client.SetFrameworkResult(ctx, out.SupplierID, m.cfg.FrameworkSlug, pass, m.cfg.UpdatedBy); err != nil {
		return out, fmt.Errorf("set result for supplier %d: %w", out.SupplierID, err)
	}
	out.Written = true
	return out, nil
}

func exclude(ids, excluded []int64) []int64 {
	if len(excluded) == 0 {
		return ids
	}
	skip := make(map[int64]struct{}, len(excluded))
	for _, id := range excluded {
		skip[id] = struct{}{}
	}
	res := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := skip[id]; ok {
			continue
		}
		skip[id] = struct{}{}
		res = append(res, id)
	}
	return res
}
