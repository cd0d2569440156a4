package badwords

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"dmscripts/internal/domain"
)

// G-Cloud framework that predates onFramework results; every supplier is checked.
const legacyFramework = "g-cloud-6"

// DefaultKeys are the free-text answers of a G-Cloud service submission.
var DefaultKeys = []string{
	"apiType", "deprovisioningTime", "provisioningTime", "serviceBenefits", "serviceFeatures",
	"serviceName", "serviceSummary", "supportAvailability", "supportResponseTime", "vendorCertifications",
}

var Headers = []string{
	"Supplier ID",
	"Framework",
	"Service ID",
	"Service Name",
	"Service Description",
	"Blacklisted Word Location",
	"Blacklisted Word Context",
	"Blacklisted Word",
}

type DataAPI interface {
	FindFrameworkSuppliers(ctx context.Context, frameworkSlug string) ([]domain.SupplierFramework, error)
	FindServices(ctx context.Context, supplierID int64, frameworkSlug string) ([]domain.Service, error)
}

// Match is one disallowed word found in one answer.
type Match struct {
	SupplierID         int64
	Framework          string
	ServiceID          string
	ServiceName        string
	ServiceDescription string
	Location           string
	Context            string
	Word               string
}

func (m Match) Row() []string {
	return []string{
		strconv.FormatInt(m.SupplierID, 10), m.Framework, m.ServiceID, m.ServiceName,
		m.ServiceDescription, m.Location, m.Context, m.Word,
	}
}

// LoadWords reads one word per line, ignoring blank lines and # comments.
func LoadWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		words = append(words, strings.TrimSpace(line))
	}
	return words, sc.Err()
}

type word struct {
	text string
	re   *regexp.Regexp
}

// Scanner checks service answers for whole-word, case-insensitive matches.
type Scanner struct {
	client DataAPI
	keys   []string
	words  []word
	logger *zap.Logger
}

func New(client DataAPI, words, keys []string, logger *zap.Logger) (*Scanner, error) {
	if client == nil {
		return nil, errors.New("data api client is required")
	}
	if len(words) == 0 {
		return nil, errors.New("no words to check")
	}
	if len(keys) == 0 {
		keys = DefaultKeys
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scanner{client: client, keys: keys, logger: logger}
	for _, w := range words {
		re, err := regexp.Compile(`(?i)(?:^|[^\pL\pM\pN_])` + regexp.QuoteMeta(w) + `(?:$|[^\pL\pM\pN_])`)
		if err != nil {
			return nil, fmt.Errorf("word %q: %w", w, err)
		}
		s.words = append(s.words, word{text: w, re: re})
	}
	return s, nil
}

// Suppliers returns the suppliers whose services are checked.
func (s *Scanner) Suppliers(ctx context.Context, frameworkSlug string) ([]domain.SupplierFramework, error) {
	all, err := s.client.FindFrameworkSuppliers(ctx, frameworkSlug)
	if err != nil {
		return nil, fmt.Errorf("find framework suppliers: %w", err)
	}
	if frameworkSlug == legacyFramework {
		return all, nil
	}
	var on []domain.SupplierFramework
	for _, sf := range all {
		if sf.OnFramework == domain.OnFrameworkPassed {
			on = append(on, sf)
		}
	}
	return on, nil
}

// Scan checks every supplier's services, calling emit per match.
func (s *Scanner) Scan(ctx context.Context, frameworkSlug string, emit func(Match) error) (int, error) {
	suppliers, err := s.Suppliers(ctx, frameworkSlug)
	if err != nil {
		return 0, err
	}
	found := 0
	for _, sf := range suppliers {
		services, err := s.services(ctx, sf.SupplierID, frameworkSlug)
		if err != nil {
			return found, err
		}
		for _, svc := range services {
			for _, m := range s.CheckService(sf.SupplierID, frameworkSlug, svc) {
				if err := emit(m); err != nil {
					return found, err
				}
				found++
			}
		}
	}
	return found, nil
}

// services retries once before giving up on a supplier.
func (s *Scanner) services(ctx context.Context, supplierID int64, frameworkSlug string) ([]domain.Service, error) {
	services, err := s.client.FindServices(ctx, supplierID, frameworkSlug)
	if err == nil {
		return services, nil
	}
	s.logger.Warn("retrying services lookup", zap.Int64("supplier_id", supplierID), zap.Error(err))
	services, err = s.client.FindServices(ctx, supplierID, frameworkSlug)
	if err != nil {
		return nil, fmt.Errorf("supplier %d services: %w", supplierID, err)
	}
	return services, nil
}

// CheckService returns every (key, value, word) match in one service.
func (s *Scanner) CheckService(supplierID int64, frameworkSlug string, svc domain.Service) []Match {
	var out []Match
	check := func(key, value string) {
		for _, w := range s.words {
			if w.re.MatchString(value) {
				out = append(out, Match{
					SupplierID:         supplierID,
					Framework:          frameworkSlug,
					ServiceID:          svc.ID(),
					ServiceName:        svc.Text("serviceName"),
					ServiceDescription: svc.Text("serviceSummary"),
					Location:           key,
					Context:            value,
					Word:               w.text,
				})
			}
		}
	}
	for _, key := range s.keys {
		switch v := svc[key].(type) {
		case string:
			check(key, v)
		case []any:
			for _, item := range v {
				if str, ok := item.(string); ok {
					check(key, str)
				}
			}
		}
	}
	return out
}

// ReportPath is where WriteReport puts the CSV for a framework.
func ReportPath(outputDir, frameworkSlug string) string {
	return filepath.Join(outputDir, frameworkSlug+"-services-with-blacklisted-words.csv")
}

// WriteReport scans a framework and writes the CSV report, returning its path and match count.
func (s *Scanner) WriteReport(ctx context.Context, outputDir, frameworkSlug string) (string, int, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", 0, err
	}
	path := ReportPath(outputDir, frameworkSlug)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	w.UseCRLF = true
	if err := w.Write(Headers); err != nil {
		return "", 0, err
	}
	n, err := s.Scan(ctx, frameworkSlug, func(m Match) error {
		return w.Write(m.Row())
	})
	w.Flush()
	if err != nil {
		return path, n, err
	}
	if err := w.Error(); err != nil {
		return path, n, err
	}
	return path, n, f.Close()
}
