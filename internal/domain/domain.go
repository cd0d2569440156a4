package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OnFramework is the supplier's framework result: not yet decided, passed or failed.
type OnFramework int

const (
	OnFrameworkUnset OnFramework = iota
	OnFrameworkPassed
	OnFrameworkFailed
)

// OnFrameworkFromBool maps a decided result to its tri-state value.
func OnFrameworkFromBool(b bool) OnFramework {
	if b {
		return OnFrameworkPassed
	}
	return OnFrameworkFailed
}

func (o OnFramework) String() string {
	switch o {
	case OnFrameworkPassed:
		return "pass"
	case OnFrameworkFailed:
		return "fail"
	default:
		return "unset"
	}
}

// Label is the upper-case form used in result log lines.
func (o OnFramework) Label() string {
	switch o {
	case OnFrameworkPassed:
		return "PASS"
	case OnFrameworkFailed:
		return "FAIL"
	default:
		return "UNSET"
	}
}

func (o OnFramework) MarshalJSON() ([]byte, error) {
	switch o {
	case OnFrameworkPassed:
		return []byte("true"), nil
	case OnFrameworkFailed:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (o *OnFramework) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "null", "":
		*o = OnFrameworkUnset
	case "true":
		*o = OnFrameworkPassed
	case "false":
		*o = OnFrameworkFailed
	default:
		return fmt.Errorf("invalid onFramework value %s", data)
	}
	return nil
}

// Declaration holds a supplier's framework questionnaire answers. Its shape is
// framework specific and checked by JSON Schema rather than Go types.
type Declaration map[string]any

// Status returns the declaration status ("complete", "started", ...) or "".
func (d Declaration) Status() string {
	s, _ := d["status"].(string)
	return s
}

// String returns a string-valued answer or "".
func (d Declaration) String(key string) string {
	s, _ := d[key].(string)
	return s
}

type SupplierFramework struct {
	SupplierID          int64       `json:"supplierId"`
	SupplierName        string      `json:"supplierName,omitempty"`
	FrameworkSlug       string      `json:"frameworkSlug"`
	OnFramework         OnFramework `json:"onFramework"`
	Declaration         Declaration `json:"declaration"`
	AgreementReturnedAt *string     `json:"agreementReturnedAt,omitempty"`
}

type DraftService struct {
	ID            int64  `json:"id"`
	SupplierID    int64  `json:"supplierId"`
	FrameworkSlug string `json:"frameworkSlug"`
	Lot           string `json:"lot"`
	Status        string `json:"status"`
}

// Service is a live service listing. Free-text answers stay untyped.
type Service map[string]any

func (s Service) ID() string {
	switch v := s["id"].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func (s Service) Text(key string) string {
	v, _ := s[key].(string)
	return v
}

type Supplier struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	DUNSNumber       string `json:"dunsNumber,omitempty"`
	OrganisationSize string `json:"organisationSize,omitempty"`
}

type UserSupplier struct {
	SupplierID int64  `json:"supplierId"`
	Name       string `json:"name"`
}

type User struct {
	ID           int64         `json:"id"`
	EmailAddress string        `json:"emailAddress"`
	Name         string        `json:"name"`
	Role         string        `json:"role"`
	Active       bool          `json:"active"`
	Supplier     *UserSupplier `json:"supplier,omitempty"`
}

type AuditEvent struct {
	ID   int64          `json:"id"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

type Framework struct {
	ID     int64  `json:"id"`
	Slug   string `json:"slug"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Lots   []Lot  `json:"lots"`
}

type Lot struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Job names recorded on ledger runs.
const (
	JobMarkResults   = "mark-results"
	JobInsertResults = "insert-results"
	JobOrgSize       = "migrate-org-size"
	JobFixtures      = "create-users"
)

// Run is one recorded execution of a batch job.
type Run struct {
	ID            string         `json:"id"`
	Job           string         `json:"job"`
	FrameworkSlug string         `json:"framework_slug,omitempty"`
	UpdatedBy     string         `json:"updated_by,omitempty"`
	DryRun        bool           `json:"dry_run"`
	StartedAt     string         `json:"started_at" format:"date-time"`
	FinishedAt    *string        `json:"finished_at,omitempty" format:"date-time"`
	Summary       map[string]int `json:"summary,omitempty"`
}

// Outcome is one supplier's result within a run.
type Outcome struct {
	RunID        string `json:"run_id"`
	Seq          int    `json:"seq"`
	SupplierID   int64  `json:"supplier_id"`
	Decision     string `json:"decision" enum:"pass,fail,discretionary,skip"`
	Reason       string `json:"reason"`
	Previous     string `json:"previous" enum:"unset,pass,fail"`
	Written      bool   `json:"written"`
	Submitted    int    `json:"submitted"`
	NotSubmitted int    `json:"not_submitted"`
	Detail       string `json:"detail,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	RunID      string `json:"run_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
