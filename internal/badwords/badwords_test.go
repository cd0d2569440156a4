package badwords

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmscripts/internal/domain"
)

type fakeAPI struct {
	suppliers []domain.SupplierFramework
	services  map[int64][]domain.Service
	failures  map[int64]int
	calls     map[int64]int
}

func (f *fakeAPI) FindFrameworkSuppliers(ctx context.Context, frameworkSlug string) ([]domain.SupplierFramework, error) {
	return f.suppliers, nil
}

func (f *fakeAPI) FindServices(ctx context.Context, supplierID int64, frameworkSlug string) ([]domain.Service, error) {
	if f.calls == nil {
		f.calls = map[int64]int{}
	}
	f.calls[supplierID]++
	if f.failures[supplierID] >= f.calls[supplierID] {
		return nil, errors.New("timeout")
	}
	return f.services[supplierID], nil
}

func newFake() *fakeAPI {
	return &fakeAPI{
		suppliers: []domain.SupplierFramework{
			{SupplierID: 1, OnFramework: domain.OnFrameworkPassed},
			{SupplierID: 2, OnFramework: domain.OnFrameworkFailed},
			{SupplierID: 3, OnFramework: domain.OnFrameworkPassed},
		},
		services: map[int64][]domain.Service{
			1: {{
				"id":             "1234",
				"serviceName":    "Cloud Hosting",
				"serviceSummary": "The BEST hosting",
				"serviceFeatures": []any{
					"Guaranteed uptime",
					"bestest support",
					"best in class",
				},
			}},
			2: {{"id": "9", "serviceName": "best", "serviceSummary": "best"}},
			3: {{"id": float64(77), "serviceName": "Plain", "serviceSummary": "nothing here"}},
		},
	}
}

func TestLoadWords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nbest\n\n   \nguaranteed\n"), 0o644))
	words, err := LoadWords(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"best", "guaranteed"}, words)
}

func TestCheckServiceWholeWordsOnly(t *testing.T) {
	s, err := New(newFake(), []string{"best"}, nil, nil)
	require.NoError(t, err)
	matches := s.CheckService(1, "g-cloud-12", newFake().services[1][0])
	require.Len(t, matches, 2)
	assert.Equal(t, "serviceFeatures", matches[0].Location)
	assert.Equal(t, "best in class", matches[0].Context)
	assert.Equal(t, "serviceSummary", matches[1].Location)
	assert.Equal(t, "1234", matches[1].ServiceID)
	assert.Equal(t, "The BEST hosting", matches[1].ServiceDescription)
}

func TestCheckServiceUnicodeWordBoundaries(t *testing.T) {
	s, err := New(newFake(), []string{"café", "naïve"}, nil, nil)
	require.NoError(t, err)
	svc := domain.Service{
		"id":             "5",
		"serviceName":    "Café support",
		"serviceSummary": "cafés and naïveté",
		"serviceFeatures": []any{
			"a naïve approach",
			"décafé",
		},
	}
	matches := s.CheckService(1, "g-cloud-12", svc)
	require.Len(t, matches, 2)
	assert.Equal(t, "serviceFeatures", matches[0].Location)
	assert.Equal(t, "naïve", matches[0].Word)
	assert.Equal(t, "serviceName", matches[1].Location)
	assert.Equal(t, "café", matches[1].Word)
}

func TestSuppliersOnlyOnFrameworkExceptLegacy(t *testing.T) {
	s, err := New(newFake(), []string{"best"}, nil, nil)
	require.NoError(t, err)

	on, err := s.Suppliers(context.Background(), "g-cloud-12")
	require.NoError(t, err)
	assert.Len(t, on, 2)

	all, err := s.Suppliers(context.Background(), "g-cloud-6")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestWriteReport(t *testing.T) {
	api := newFake()
	api.failures = map[int64]int{3: 1}
	s, err := New(api, []string{"best", "guaranteed"}, nil, nil)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "reports")
	path, n, err := s.WriteReport(context.Background(), dir, "g-cloud-12")
	require.NoError(t, err)
	assert.Equal(t, ReportPath(dir, "g-cloud-12"), path)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, api.calls[3], "failed lookup is retried once")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, []string{"1", "g-cloud-12", "1234", "Cloud Hosting", "The BEST hosting", "serviceFeatures", "Guaranteed uptime", "guaranteed"}, rows[1])
}

func TestScanFailsAfterRetry(t *testing.T) {
	api := newFake()
	api.failures = map[int64]int{1: 2}
	s, err := New(api, []string{"best"}, nil, nil)
	require.NoError(t, err)
	_, err = s.Scan(context.Background(), "g-cloud-12", func(Match) error { return nil })
	assert.ErrorContains(t, err, "supplier 1 services")
}

func TestNewRequiresWords(t *testing.T) {
	_, err := New(newFake(), nil, nil, nil)
	assert.Error(t, err)
}
