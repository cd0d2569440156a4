package userlist

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmscripts/internal/domain"
	dmapi "dmscripts/sdk/go"
)

type fakeAPI struct {
	mu        sync.Mutex
	users     []domain.User
	audits    map[int64][]domain.AuditEvent
	answers   map[int64]map[string]any
	answerErr map[int64]error
	calls     int
}

func (f *fakeAPI) FindUsers(ctx context.Context) ([]domain.User, error) {
	return f.users, nil
}

func (f *fakeAPI) FindAuditEvents(ctx context.Context, auditType, objectType string, objectID int64) ([]domain.AuditEvent, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if auditType != "register_framework_interest" || objectType != "suppliers" {
		return nil, errors.New("unexpected audit query")
	}
	return f.audits[objectID], nil
}

func (f *fakeAPI) GetSelectionAnswers(ctx context.Context, supplierID int64, frameworkSlug string) (map[string]any, error) {
	if err := f.answerErr[supplierID]; err != nil {
		return nil, err
	}
	return f.answers[supplierID], nil
}

func supplierUser(email string, supplierID int64, active bool) domain.User {
	return domain.User{
		EmailAddress: email,
		Name:         "Name " + email,
		Role:         "supplier",
		Active:       active,
		Supplier:     &domain.UserSupplier{SupplierID: supplierID, Name: "Supplier"},
	}
}

func newFake() *fakeAPI {
	return &fakeAPI{
		users: []domain.User{
			supplierUser("a@example.com", 1, true),
			supplierUser("b@example.com", 2, true),
			supplierUser("inactive@example.com", 1, false),
			{EmailAddress: "admin@example.com", Role: "admin", Active: true},
			supplierUser("c@example.com", 3, true),
		},
		audits: map[int64][]domain.AuditEvent{
			1: {{Data: map[string]any{"frameworkSlug": "g-cloud-7"}}},
			2: {{Data: map[string]any{"frameworkSlug": "g-cloud-6"}}},
			3: {{Data: map[string]any{}}, {Data: map[string]any{"frameworkSlug": "g-cloud-7"}}},
		},
		answers: map[int64]map[string]any{
			1: {"selectionAnswers": map[string]any{"questionAnswers": map[string]any{"status": "complete"}}},
			3: {"selectionAnswers": map[string]any{}},
		},
		answerErr: map[int64]error{
			2: &dmapi.HTTPError{StatusCode: 404, Message: "not found"},
		},
	}
}

func TestExportAllSupplierUsers(t *testing.T) {
	var buf bytes.Buffer
	n, err := New(newFake(), nil).Export(context.Background(), &buf, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t,
		"a@example.com,Name a@example.com,1,Supplier\n"+
			"b@example.com,Name b@example.com,2,Supplier\n"+
			"c@example.com,Name c@example.com,3,Supplier\n",
		buf.String())
}

func TestExportFiltersByRegisteredFramework(t *testing.T) {
	api := newFake()
	rows, err := New(api, nil).Rows(context.Background(), Options{FrameworkSlug: "g-cloud-7", Workers: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a@example.com", rows[0].User.EmailAddress)
	assert.Equal(t, "c@example.com", rows[1].User.EmailAddress)
	assert.Equal(t, 3, api.calls)
}

func TestExportWithSelectionStatus(t *testing.T) {
	api := newFake()
	api.audits[2] = append(api.audits[2], domain.AuditEvent{Data: map[string]any{"frameworkSlug": "g-cloud-7"}})
	var buf bytes.Buffer
	_, err := New(api, nil).Export(context.Background(), &buf, Options{FrameworkSlug: "g-cloud-7", IncludeStatus: true})
	require.NoError(t, err)
	assert.Equal(t,
		"complete,a@example.com,Name a@example.com,1,Supplier\n"+
			"unstarted,b@example.com,Name b@example.com,2,Supplier\n"+
			"error-key-error,c@example.com,Name c@example.com,3,Supplier\n",
		buf.String())
}

func TestSelectionStatusHTTPError(t *testing.T) {
	api := newFake()
	api.answerErr[1] = &dmapi.HTTPError{StatusCode: 500, Message: "boom"}
	assert.Equal(t, "error-500", New(api, nil).SelectionStatus(context.Background(), 1, "g-cloud-7"))
}

func TestStatusNeedsFramework(t *testing.T) {
	_, err := New(newFake(), nil).Rows(context.Background(), Options{IncludeStatus: true})
	assert.Error(t, err)
}
