package fixtures

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"dmscripts/internal/domain"
	"dmscripts/internal/events"
)

const DefaultPassword = "Password1234"

var ErrProduction = errors.New("refusing to create test users against production")

type DataAPI interface {
	FindSuppliersByDUNS(ctx context.Context, duns string) ([]domain.Supplier, error)
	CreateSupplier(ctx context.Context, fields map[string]any) (domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplierID int64, fields map[string]any, updatedBy string) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateUser(ctx context.Context, fields map[string]any) (domain.User, error)
}

type WriteRecorder interface {
	RecordWrite(ctx context.Context, evtType, entityKind, entityID string, payload map[string]any) error
}

type Options struct {
	FromDUNS   int64
	Count      int
	Password   string
	UpdatedBy  string
	Production bool
}

// Account is a ready-to-use supplier login.
type Account struct {
	Email      string
	Password   string
	SupplierID int64
}

type Seeder struct {
	client   DataAPI
	logger   *zap.Logger
	recorder WriteRecorder
}

func New(client DataAPI, logger *zap.Logger, recorder WriteRecorder) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{client: client, logger: logger, recorder: recorder}
}

// EmailFor is the login address of the test user for a DUNS number.
func EmailFor(duns string) string {
	return "supplier" + duns + "@example.com"
}

// CreateUsers ensures a supplier and user per DUNS number in
// [FromDUNS, FromDUNS+Count) and writes "email,password" lines to out.
func (s *Seeder) CreateUsers(ctx context.Context, out io.Writer, opts Options) ([]Account, error) {
	if opts.Production {
		return nil, ErrProduction
	}
	if opts.Count <= 0 {
		return nil, errors.New("count must be positive")
	}
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}
	if opts.UpdatedBy == "" {
		opts.UpdatedBy = "dmscripts fixtures"
	}
	var accounts []Account
	for i := 0; i < opts.Count; i++ {
		duns := strconv.FormatInt(opts.FromDUNS+int64(i), 10)
		supplier, err := s.EnsureSupplier(ctx, duns, opts.UpdatedBy)
		if err != nil {
			return accounts, err
		}
		user, err := s.EnsureUser(ctx, supplier.ID, duns, opts.Password)
		if err != nil {
			return accounts, err
		}
		acc := Account{Email: user.EmailAddress, Password: opts.Password, SupplierID: supplier.ID}
		accounts = append(accounts, acc)
		if out != nil {
			fmt.Fprintf(out, "%s,%s\n", acc.Email, acc.Password)
		}
	}
	return accounts, nil
}

func (s *Seeder) findOne(ctx context.Context, duns string) (*domain.Supplier, error) {
	found, err := s.client.FindSuppliersByDUNS(ctx, duns)
	if err != nil {
		return nil, fmt.Errorf("find supplier %s: %w", duns, err)
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("%d suppliers share DUNS number %s", len(found), duns)
	}
}

// EnsureSupplier finds or creates the test supplier for duns and confirms its company details.
func (s *Seeder) EnsureSupplier(ctx context.Context, duns, updatedBy string) (domain.Supplier, error) {
	supplier, err := s.findOne(ctx, duns)
	if err != nil {
		return domain.Supplier{}, err
	}
	if supplier == nil {
		s.logger.Info("creating test supplier", zap.String("duns", duns))
		created, err := s.client.CreateSupplier(ctx, newSupplierFields(duns))
		if err != nil {
			return domain.Supplier{}, fmt.Errorf("create supplier %s: %w", duns, err)
		}
		s.record(ctx, events.TypeSupplierCreated, "supplier", strconv.FormatInt(created.ID, 10), map[string]any{"duns_number": duns})
		supplier = &created
	}
	details := companyDetails()
	if err := s.client.UpdateSupplier(ctx, supplier.ID, details, updatedBy); err != nil {
		return domain.Supplier{}, fmt.Errorf("update supplier %d: %w", supplier.ID, err)
	}
	s.record(ctx, events.TypeSupplierUpdated, "supplier", strconv.FormatInt(supplier.ID, 10), details)
	supplier.OrganisationSize = details["organisationSize"].(string)
	return *supplier, nil
}

// EnsureUser finds or creates the supplier user for duns.
func (s *Seeder) EnsureUser(ctx context.Context, supplierID int64, duns, password string) (domain.User, error) {
	email := EmailFor(duns)
	existing, err := s.client.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user %s: %w", email, err)
	}
	if existing != nil {
		return *existing, nil
	}
	user, err := s.client.CreateUser(ctx, map[string]any{
		"emailAddress": email,
		"name":         "Test",
		"password":     password,
		"role":         "supplier",
		"phoneNumber":  "555123456788",
		"supplierId":   supplierID,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("create user %s: %w", email, err)
	}
	if user.EmailAddress == "" {
		user.EmailAddress = email
	}
	s.record(ctx, events.TypeUserCreated, "user", email, map[string]any{"supplier_id": supplierID})
	return user, nil
}

func (s *Seeder) record(ctx context.Context, evtType, kind, id string, payload map[string]any) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordWrite(ctx, evtType, kind, id, payload); err != nil {
		s.logger.Warn("failed to record write", zap.String("type", evtType), zap.String("entity_id", id), zap.Error(err))
	}
}

func newSupplierFields(duns string) map[string]any {
	return map[string]any{
		"companiesHouseNumber": "12345678",
		"contactInformation": []any{map[string]any{
			"address1":            "Supplier Contact Address 1",
			"city":                "Supplier Contact City",
			"contactName":         "Supplier Contact",
			"email":               "simulate-delivered@notifications.service.gov.uk",
			"personalDataRemoved": false,
			"phoneNumber":         "555123456788",
			"postcode":            "AA11 1AA",
		}},
		"description": "Test supplier",
		"dunsNumber":  duns,
		"name":        "Test Supplier",
	}
}

func companyDetails() map[string]any {
	return map[string]any{
		"companyDetailsConfirmed":        true,
		"organisationSize":               "small",
		"otherCompanyRegistrationNumber": "Test",
		"registeredName":                 "Test Supplier LIMITED",
		"registrationCountry":            "country:GB",
		"tradingStatus":                  "limited company (LTD)",
		"vatNumber":                      "123456788",
	}
}
