package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminCounts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDashboardRepository(db)

	mock.ExpectQuery("AS outstanding_total").
		WillReturnRows(sqlmock.NewRows([]string{"students", "teachers", "courses", "rooms", "classes", "active_enrollments", "pending_obligations", "outstanding_total"}).
			AddRow(40, 5, 6, 4, 9, 38, 12, "640.00"))

	summary, err := repo.AdminCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, summary.Students)
	assert.Equal(t, 12, summary.PendingTuition)
	assert.True(t, decimal.NewFromInt(640).Equal(summary.OutstandingTotal))
	assert.NoError(t, mock.ExpectationsWereMet())
}
