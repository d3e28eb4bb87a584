package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/music-school-api/internal/accounting"
	"github.com/noah-isme/music-school-api/internal/models"
)

func TestParseObligationStatus(t *testing.T) {
	s, err := parseObligationStatus("paid")
	require.NoError(t, err)
	assert.Equal(t, models.ObligationStatusPaid, s)

	s, err = parseObligationStatus("all")
	require.NoError(t, err)
	assert.Empty(t, s)

	_, err = parseObligationStatus("overdue")
	assert.Error(t, err)
}

func TestRenderAvailabilityFlagsOverEnrollment(t *testing.T) {
	out := renderAvailability([]models.ClassAvailability{
		{Code: "PIA-0001", Seats: accounting.Availability(2, 3), Room: &models.RoomUsage{RoomName: "Aula 1", Capacity: accounting.Availability(15, 3)}},
		{Code: "GUI-0002", Seats: accounting.Availability(8, 1)},
	})
	assert.Contains(t, out, "PIA-0001")
	assert.Contains(t, out, "+1")
	assert.Contains(t, out, "Aula 1")
	assert.Contains(t, out, "GUI-0002")
}

func TestRenderObligationsTotals(t *testing.T) {
	out := renderObligations([]models.ObligationDetail{
		{TuitionObligation: models.TuitionObligation{Amount: decimal.NewFromInt(100), Status: models.ObligationStatusPending}, StudentName: "Ana", PaidSoFar: decimal.NewFromInt(40)},
		{TuitionObligation: models.TuitionObligation{Amount: decimal.NewFromInt(50), Status: models.ObligationStatusCancelled}, StudentName: "Ben"},
	})
	assert.Contains(t, out, "60.00")
	assert.Contains(t, out, "150.00")
	assert.Contains(t, out, "2 obligations")
}

func TestRootCommandHelpNeedsNoDatabase(t *testing.T) {
	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--help"})
	require.NoError(t, cmd.Execute())
	for _, sub := range []string{"migrate", "create-admin", "availability", "obligations", "report"} {
		assert.True(t, strings.Contains(buf.String(), sub), sub)
	}
}

func TestReportFlagsFilter(t *testing.T) {
	filter, err := reportFlags{from: "2026-01-01", to: "2026-01-31", status: " paid ", classID: "k1"}.filter()
	require.NoError(t, err)
	require.NotNil(t, filter.DateFrom)
	require.NotNil(t, filter.DateTo)
	assert.Equal(t, "PAID", filter.Status)
	assert.Equal(t, "k1", filter.ClassID)

	_, err = reportFlags{from: "01/02/2026"}.filter()
	assert.EqualError(t, err, "--from must be YYYY-MM-DD")

	_, err = reportFlags{from: "2026-02-01", to: "2026-01-01"}.filter()
	assert.Error(t, err)
}

func TestReportCommandRejectsUnknownKind(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"report", "grades"})
	assert.Error(t, cmd.Execute())
}
