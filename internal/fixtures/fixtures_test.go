package fixtures

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmscripts/internal/domain"
)

type fakeAPI struct {
	suppliers map[string][]domain.Supplier
	users     map[string]domain.User
	nextID    int64
	created   []map[string]any
	updated   []int64
	userMade  []map[string]any
}

func (f *fakeAPI) FindSuppliersByDUNS(ctx context.Context, duns string) ([]domain.Supplier, error) {
	return f.suppliers[duns], nil
}

func (f *fakeAPI) CreateSupplier(ctx context.Context, fields map[string]any) (domain.Supplier, error) {
	f.nextID++
	s := domain.Supplier{ID: f.nextID, Name: fields["name"].(string), DUNSNumber: fields["dunsNumber"].(string)}
	f.suppliers[s.DUNSNumber] = append(f.suppliers[s.DUNSNumber], s)
	f.created = append(f.created, fields)
	return s, nil
}

func (f *fakeAPI) UpdateSupplier(ctx context.Context, supplierID int64, fields map[string]any, updatedBy string) error {
	f.updated = append(f.updated, supplierID)
	return nil
}

func (f *fakeAPI) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, ok := f.users[email]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeAPI) CreateUser(ctx context.Context, fields map[string]any) (domain.User, error) {
	f.userMade = append(f.userMade, fields)
	u := domain.User{EmailAddress: fields["emailAddress"].(string), Role: "supplier"}
	f.users[u.EmailAddress] = u
	return u, nil
}

type fakeRecorder struct{ types []string }

func (r *fakeRecorder) RecordWrite(ctx context.Context, evtType, entityKind, entityID string, payload map[string]any) error {
	r.types = append(r.types, evtType)
	return nil
}

func TestCreateUsers(t *testing.T) {
	api := &fakeAPI{
		suppliers: map[string][]domain.Supplier{"123456787": {{ID: 50, DUNSNumber: "123456787"}}},
		users:     map[string]domain.User{"supplier123456787@example.com": {EmailAddress: "supplier123456787@example.com"}},
		nextID:    100,
	}
	rec := &fakeRecorder{}
	var out bytes.Buffer

	accounts, err := New(api, nil, rec).CreateUsers(context.Background(), &out, Options{FromDUNS: 123456787, Count: 3})
	require.NoError(t, err)
	require.Len(t, accounts, 3)

	assert.Equal(t,
		"supplier123456787@example.com,Password1234\n"+
			"supplier123456788@example.com,Password1234\n"+
			"supplier123456789@example.com,Password1234\n",
		out.String())
	assert.Equal(t, int64(50), accounts[0].SupplierID)
	assert.Equal(t, int64(101), accounts[1].SupplierID)
	assert.Len(t, api.created, 2)
	assert.Equal(t, []int64{50, 101, 102}, api.updated)
	require.Len(t, api.userMade, 2)
	assert.Equal(t, int64(101), api.userMade[0]["supplierId"])
	assert.Equal(t, []string{
		"supplier.updated",
		"supplier.created", "supplier.updated", "user.created",
		"supplier.created", "supplier.updated", "user.created",
	}, rec.types)
}

func TestCreateUsersRefusesProduction(t *testing.T) {
	api := &fakeAPI{suppliers: map[string][]domain.Supplier{}, users: map[string]domain.User{}}
	_, err := New(api, nil, nil).CreateUsers(context.Background(), nil, Options{FromDUNS: 1, Count: 1, Production: true})
	assert.ErrorIs(t, err, ErrProduction)
	assert.Empty(t, api.created)
}

func TestEnsureSupplierRejectsDuplicateDUNS(t *testing.T) {
	api := &fakeAPI{suppliers: map[string][]domain.Supplier{"9": {{ID: 1}, {ID: 2}}}, users: map[string]domain.User{}}
	_, err := New(api, nil, nil).EnsureSupplier(context.Background(), "9", "tester")
	assert.ErrorContains(t, err, "2 suppliers share DUNS number 9")
}
