package records

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/rpattn/pawlog/internal/domain"
	"github.com/rpattn/pawlog/internal/quota"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not CSV or XLSX.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	timeLayouts = []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02 15:04",
		"2006-01-02 15:04:05",
		"2006/01/02",
		"02/01/2006",
		"01/02/2006",
	}
)

// Columns understood by the importer. Header matching ignores case,
// spaces and dashes.
const (
	columnType    = "type"
	columnTitle   = "title"
	columnDate    = "date"
	columnNotes   = "notes"
	columnNextDue = "next_due"
	columnValue   = "value"
)

var requiredColumns = []string{columnType, columnTitle, columnDate}

// ImportRequest describes an uploaded file of historical records.
type ImportRequest struct {
	PetID    uuid.UUID
	FileName string
	Data     io.Reader
}

// RowError reports why a row was skipped.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportSummary returns import level metrics.
type ImportSummary struct {
	TotalRows    int        `json:"total_rows"`
	ImportedRows int        `json:"imported_rows"`
	InvalidRows  int        `json:"invalid_rows"`
	Errors       []RowError `json:"errors"`
}

// Import reads a CSV or XLSX file and inserts every valid row as a record
// of the pet. Invalid rows are skipped and reported by their 1-based row number.
func (s *Service) Import(ctx context.Context, principal uuid.UUID, req ImportRequest) (ImportSummary, error) {
	summary := ImportSummary{Errors: []RowError{}}

	if err := s.gate.RequireFeature(ctx, principal, quota.FeatureImport); err != nil {
		return summary, err
	}
	pet, err := s.pets.Get(ctx, principal, req.PetID)
	if err != nil {
		return summary, err
	}
	if req.Data == nil {
		return summary, fmt.Errorf("%w: data reader is required", domain.ErrInvalid)
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, fmt.Errorf("%w: file is empty", domain.ErrInvalid)
	}

	rows, err := parseTable(req.FileName, payload)
	if err != nil {
		return summary, err
	}
	table, err := normalizeTable(rows)
	if err != nil {
		return summary, err
	}

	valid := make([]domain.HealthRecord, 0, len(table.rows))
	for _, row := range table.rows {
		summary.TotalRows++
		record, err := table.record(pet, row.values)
		if err != nil {
			summary.InvalidRows++
			summary.Errors = append(summary.Errors, RowError{Row: row.number, Message: err.Error()})
			continue
		}
		valid = append(valid, record)
	}

	inserted, err := s.records.CreateBatch(ctx, valid)
	if err != nil {
		return summary, fmt.Errorf("failed to store imported records: %w", err)
	}
	summary.ImportedRows = inserted

	s.logger.Info("health records imported",
		zap.Stringer("pet", pet.ID),
		zap.String("file", req.FileName),
		zap.Int("imported", inserted),
		zap.Int("invalid", summary.InvalidRows))
	return summary, nil
}

func parseTable(fileName string, payload []byte) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read csv: %v", domain.ErrInvalid, err)
	}
	return records, nil
}

func parseExcel(payload []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open xlsx: %v", domain.ErrInvalid, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: excel file has no sheets", domain.ErrInvalid)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return rows, nil
}

type tableRow struct {
	number int
	values []string
}

type table struct {
	columns map[string]int
	rows    []tableRow
}

// normalizeTable treats the first non-empty row as the header.
func normalizeTable(records [][]string) (table, error) {
	t := table{columns: map[string]int{}}
	headerSeen := false
	for idx, row := range records {
		if isEmptyRow(row) {
			continue
		}
		if !headerSeen {
			for col, cell := range row {
				key := normalizeHeader(cell)
				if _, dup := t.columns[key]; key != "" && !dup {
					t.columns[key] = col
				}
			}
			headerSeen = true
			continue
		}
		t.rows = append(t.rows, tableRow{number: idx + 1, values: row})
	}
	if !headerSeen {
		return table{}, fmt.Errorf("%w: no rows found in file", domain.ErrInvalid)
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := t.columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return table{}, fmt.Errorf("%w: missing required columns: %s", domain.ErrInvalid, strings.Join(missing, ", "))
	}
	return t, nil
}

func (t table) cell(row []string, column string) string {
	idx, ok := t.columns[column]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (t table) record(pet domain.Pet, row []string) (domain.HealthRecord, error) {
	recordType, err := domain.ParseRecordType(t.cell(row, columnType))
	if err != nil {
		return domain.HealthRecord{}, err
	}
	title := t.cell(row, columnTitle)
	notes := t.cell(row, columnNotes)

	occurred, err := parseTime(t.cell(row, columnDate))
	if err != nil {
		return domain.HealthRecord{}, fmt.Errorf("date: %w", err)
	}
	input := domain.HealthRecordInput{
		Type:       &recordType,
		Title:      &title,
		Notes:      &notes,
		OccurredAt: &occurred,
	}

	if raw := t.cell(row, columnNextDue); raw != "" {
		due, err := parseTime(raw)
		if err != nil {
			return domain.HealthRecord{}, fmt.Errorf("next_due: %w", err)
		}
		input.NextDueAt = &due
	}
	if raw := t.cell(row, columnValue); raw != "" {
		value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			return domain.HealthRecord{}, fmt.Errorf("value %q is not a number", raw)
		}
		input.Value = &value
	}
	return domain.NewHealthRecord(pet, input)
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("value is required")
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

func normalizeHeader(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.TrimPrefix(value, string(byteOrderMark))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(value)
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
