package directory

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ImportResult reports the outcome of a bulk CSV import.
// Rejected reasons are 1-based row references so they can be shown to the
// user against the uploaded file.
type ImportResult struct {
	Accepted int      `json:"accepted"`
	Rejected []string `json:"rejected,omitempty"`
}

// ImportCSV parses tabular input with column order
// phone, email, name, company, type and merges accepted rows into the
// directory. A header row is skipped when the first email column does not
// look like an email. Rows that fail phone normalization or email
// validation are rejected individually; the rest are written in batches,
// each batch atomic on its own.
func (s *Service) ImportCSV(ctx context.Context, csvContent string) (ImportResult, error) {
	if strings.TrimSpace(csvContent) == "" {
		return ImportResult{}, fmt.Errorf("%w: csvContent is required", ErrInvalidArgument)
	}

	r := csv.NewReader(strings.NewReader(csvContent))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var result ImportResult
	var batch []Record
	row := 0
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			result.Rejected = append(result.Rejected, fmt.Sprintf("row %d: %v", row, err))
			continue
		}
		if row == 1 && looksLikeHeader(fields) {
			continue
		}
		rec, err := rowToRecord(fields)
		if err != nil {
			result.Rejected = append(result.Rejected, fmt.Sprintf("row %d: %v", row, err))
			continue
		}
		batch = append(batch, rec)
		if len(batch) >= batchSize {
			if err := s.repo.PutBatch(ctx, batch); err != nil {
				return result, err
			}
			result.Accepted += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := s.repo.PutBatch(ctx, batch); err != nil {
			return result, err
		}
		result.Accepted += len(batch)
	}
	return result, nil
}

func rowToRecord(fields []string) (Record, error) {
	if len(fields) < 2 {
		return Record{}, fmt.Errorf("expected at least phone and email columns, got %d", len(fields))
	}
	rec := Record{
		PhoneNumber: strings.TrimSpace(fields[0]),
		Email:       strings.TrimSpace(fields[1]),
	}
	if len(fields) > 2 {
		rec.ContactName = strings.TrimSpace(fields[2])
	}
	if len(fields) > 3 {
		rec.CompanyName = strings.TrimSpace(fields[3])
	}
	if len(fields) > 4 {
		rec.PhoneType = strings.TrimSpace(fields[4])
	}
	prepared, err := prepare(rec)
	if err != nil {
		return Record{}, err
	}
	return prepared, nil
}

func looksLikeHeader(fields []string) bool {
	if len(fields) < 2 {
		return false
	}
	// A header row has no "@" in the email column and no digits in the
	// phone column.
	return !strings.Contains(fields[1], "@") && !strings.ContainsAny(fields[0], "0123456789")
}
