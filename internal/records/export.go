package records

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/rpattn/pawlog/internal/quota"
	"github.com/rpattn/pawlog/internal/timeline"
)

const exportSheet = "Records"

var exportHeaders = []any{"Type", "Title", "Date", "Notes", "Next due", "Value"}

// ExportFileName is the suggested download name for a pet's workbook.
func ExportFileName(petName string, now time.Time) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, strings.TrimSpace(petName))
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "pet"
	}
	return fmt.Sprintf("%s-records-%s.xlsx", slug, now.UTC().Format("20060102"))
}

// Export writes the pet's records matching active as an XLSX workbook.
// Export is a premium feature.
func (s *Service) Export(ctx context.Context, principal, petID uuid.UUID, active timeline.Set, w io.Writer) (string, error) {
	if err := s.gate.RequireFeature(ctx, principal, quota.FeatureExport); err != nil {
		return "", err
	}
	pet, err := s.pets.Get(ctx, principal, petID)
	if err != nil {
		return "", err
	}
	items, err := s.records.ListByPet(ctx, petID)
	if err != nil {
		return "", fmt.Errorf("list records: %w", err)
	}
	visible := timeline.Apply(active, items)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return "", fmt.Errorf("prepare sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for i, record := range visible {
		row := []any{
			string(record.Type),
			record.Title,
			record.OccurredAt.UTC().Format(time.RFC3339),
			record.Notes,
			"",
			"",
		}
		if record.NextDueAt != nil {
			row[4] = record.NextDueAt.UTC().Format(time.RFC3339)
		}
		if record.Value != nil {
			row[5] = *record.Value
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return "", fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return "", fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info("health records exported",
		zap.Stringer("pet", petID),
		zap.String("filters", active.String()),
		zap.Int("rows", len(visible)))
	return ExportFileName(pet.Name, time.Now()), nil
}
