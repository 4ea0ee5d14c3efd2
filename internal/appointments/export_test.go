package appointments

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeArchiver struct {
	report string
	rows   int
	data   []byte
	err    error
}

func (a *fakeArchiver) ArchiveExport(ctx context.Context, report string, data []byte, rows int) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.report, a.rows, a.data = report, rows, data
	return "exports/appointments/test.xlsx", nil
}

func readRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows(exportSheet)
	require.NoError(t, err)
	return rows
}

func TestWriteWorkbook(t *testing.T) {
	campaignID := "c-1"
	items := []ListItem{
		{AppointmentID: "a-1", PatientName: "Jane Doe", AppointmentDate: "2025-03-10T10:00:00Z", DurationMinutes: 45, ServiceName: "Cleaning", Status: StatusBooked, CreatedFrom: SourceAIAgentForm, CampaignID: &campaignID},
		{AppointmentID: "a-2", PatientName: "John Roe", AppointmentDate: "2025-03-11T09:00:00Z", DurationMinutes: 30, ServiceName: "Exam", Status: StatusCompleted, CreatedFrom: SourceManualAdmin},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, items))

	rows := readRows(t, buf.Bytes())
	require.Len(t, rows, 3)
	assert.Equal(t, exportColumns, rows[0])
	assert.Equal(t, []string{"a-1", "Jane Doe", "2025-03-10T10:00:00Z", "45", "Cleaning", "booked", "ai_agent_form", "c-1"}, rows[1])
	assert.Equal(t, "manual_admin", rows[2][6])
}

func TestExportArchivesCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	archiver := &fakeArchiver{}
	f.svc.archive = archiver

	_, err := f.svc.CreateAdmin(ctx, AdminRequest{Name: "John Roe", Email: "john@x.com", AppointmentDate: "2025-03-12T09:00:00Z", ServiceName: "Exam"})
	require.NoError(t, err)

	file, err := f.svc.Export(ctx, ListRequest{StartDate: "2025-03-01", EndDate: "2025-03-31"})
	require.NoError(t, err)
	assert.Equal(t, 1, file.Rows)
	assert.Equal(t, "exports/appointments/test.xlsx", file.ArchiveKey)
	assert.Equal(t, "appointments", archiver.report)
	assert.Equal(t, file.Data, archiver.data)
	assert.Len(t, readRows(t, file.Data), 2)
}

func TestExportSurvivesArchiveFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.archive = &fakeArchiver{err: errors.New("bucket unavailable")}

	file, err := f.svc.Export(context.Background(), ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, file.ArchiveKey)
	assert.Len(t, readRows(t, file.Data), 1, "header only")
}
