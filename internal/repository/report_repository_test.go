package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/music-school-api/internal/models"
)

func TestPaymentTotalsGroupsByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND o.created_at::date >= $1 AND o.status = $2\nGROUP BY o.status")).
		WithArgs(from, "PENDING").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count", "amount", "collected", "outstanding"}).
			AddRow("PENDING", 2, "100.00", "30.00", "70.00"))

	totals, err := repo.PaymentTotals(context.Background(), models.ReportFilter{DateFrom: &from, Status: "PENDING"})
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, 2, totals[0].Count)
	assert.True(t, decimal.NewFromInt(70).Equal(totals[0].Outstanding))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRowsSearchAndLimit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(u.national_id, '') LIKE $1)\nORDER BY o.created_at, u.last_name, u.first_name LIMIT 50")).
		WithArgs("%0912%").
		WillReturnRows(sqlmock.NewRows([]string{"obligation_id", "created_at", "student_name", "username", "national_id", "course_name", "class_code", "teacher_name", "amount", "paid_so_far", "status", "last_payment_at"}).
			AddRow("obl-1", now, "Ana Pérez", "ana", "0912345678", "Piano I", "PIA-0001", nil, "50.00", "30.00", "PENDING", now))

	rows, err := repo.PaymentRows(context.Background(), models.ReportFilter{Search: "0912", Limit: 50})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, decimal.NewFromInt(30).Equal(rows[0].PaidSoFar))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRowsByTeacher(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND c.teacher_id = $1\nORDER BY a.date")).
		WithArgs("teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}))

	rows, err := repo.AttendanceRows(context.Background(), models.ReportFilter{TeacherID: "teacher-1"})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceTotalsAggregatesWithoutLimit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(DISTINCT u.id) AS students, COUNT(DISTINCT a.date) AS days")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "present", "late", "absent", "excused", "students", "days"}).
			AddRow(7000, 5000, 500, 1200, 300, 120, 30))

	totals, err := repo.AttendanceTotals(context.Background(), models.ReportFilter{ClassID: "class-1", Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, 7000, totals.Total)
	assert.Equal(t, 1200, totals.Absent)
	assert.Equal(t, 30, totals.Days)
	assert.NoError(t, mock.ExpectationsWereMet())
}
