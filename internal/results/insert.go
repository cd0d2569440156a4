package results

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ResultSetter writes a single framework result.
type ResultSetter interface {
	SetFrameworkResult(ctx context.Context, supplierID int64, frameworkSlug string, onFramework bool, updatedBy string) error
}

// InsertResult sets one result and returns the report line for it.
func InsertResult(ctx context.Context, client ResultSetter, supplierID int64, frameworkSlug string, result bool, updatedBy string) string {
	if err := client.SetFrameworkResult(ctx, supplierID, frameworkSlug, result, updatedBy); err != nil {
		return fmt.Sprintf("Error inserting result for %d (%t): %s\n", supplierID, result, err)
	}
	return fmt.Sprintf("OK: %d\n", supplierID)
}

// InsertResults applies a CSV of "supplier_id,pass|fail" rows, writing one
// report line per row to out. Bad rows are reported and skipped.
func InsertResults(ctx context.Context, client ResultSetter, out io.Writer, frameworkSlug, csvPath, updatedBy string) error {
	f, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	line := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("read %s line %d: %w", csvPath, line, err)
		}
		supplierID, result, err := parseResultRow(record)
		if err != nil {
			if _, werr := fmt.Fprintf(out, "Error: %s; Bad line: %d\n", err, line); werr != nil {
				return werr
			}
			continue
		}
		if _, err := io.WriteString(out, InsertResult(ctx, client, supplierID, frameworkSlug, result, updatedBy)); err != nil {
			return err
		}
	}
}

func parseResultRow(record []string) (int64, bool, error) {
	if len(record) < 2 {
		return 0, false, fmt.Errorf("expected supplier id and result, got %d fields", len(record))
	}
	raw := strings.TrimSpace(record[0])
	supplierID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid supplier id '%s'", raw)
	}
	switch result := strings.ToLower(strings.TrimSpace(record[1])); result {
	case "pass":
		return supplierID, true, nil
	case "fail":
		return supplierID, false, nil
	default:
		return 0, false, fmt.Errorf("Result must be 'pass' or 'fail', not '%s'", result)
	}
}
