package appointments

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Appointments"

var exportColumns = []string{
	"Appointment ID", "Patient", "Date", "Duration (min)", "Service", "Status", "Source", "Campaign ID",
}

// Archiver keeps a copy of generated exports.
type Archiver interface {
	ArchiveExport(ctx context.Context, report string, data []byte, rows int) (string, error)
}

// ExportFile is a generated appointment workbook.
type ExportFile struct {
	Name       string
	Data       []byte
	Rows       int
	ArchiveKey string
}

// Export renders the appointments selected by req as an XLSX workbook and
// archives a copy when an archiver is configured. Archive failures are
// logged and the workbook is still returned.
func (s *Service) Export(ctx context.Context, req ListRequest) (ExportFile, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.export")
	defer span.End()

	items, err := s.List(ctx, req)
	if err != nil {
		return ExportFile{}, err
	}
	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, items); err != nil {
		span.RecordError(err)
		return ExportFile{}, err
	}

	file := ExportFile{
		Name: fmt.Sprintf("appointments-%s.xlsx", s.now().UTC().Format("20060102T150405Z")),
		Data: buf.Bytes(),
		Rows: len(items),
	}
	if s.archive != nil {
		key, err := s.archive.ArchiveExport(ctx, "appointments", file.Data, file.Rows)
		if err != nil {
			s.logger.Warn("failed to archive appointment export", "error", err)
		}
		file.ArchiveKey = key
	}
	return file, nil
}

// WriteWorkbook writes items as a single-sheet workbook.
func WriteWorkbook(w io.Writer, items []ListItem) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return fmt.Errorf("appointments: rename sheet: %w", err)
	}

	header := make([]any, len(exportColumns))
	for i, col := range exportColumns {
		header[i] = col
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return fmt.Errorf("appointments: write header: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9E1F2"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("appointments: header style: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(exportColumns))
	if err := f.SetCellStyle(exportSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("appointments: apply header style: %w", err)
	}

	for i, item := range items {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			item.AppointmentID,
			item.PatientName,
			item.AppointmentDate,
			item.DurationMinutes,
			item.ServiceName,
			string(item.Status),
			string(item.CreatedFrom),
			deref(item.CampaignID),
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("appointments: write row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(exportSheet, "A", lastCol, 22); err != nil {
		return fmt.Errorf("appointments: column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("appointments: write workbook: %w", err)
	}
	return nil
}
