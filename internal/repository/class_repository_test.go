package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/music-school-api/internal/models"
)

func TestCreateClassReturnsSequence(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO class_offerings")).
		WithArgs(sqlmock.AnyArg(), "course-1", nil, nil, 12, start, start.AddDate(0, 3, 0), "16:00", "17:30", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(7))

	class := &models.ClassOffering{CourseID: "course-1", Seats: 12, StartDate: start, EndDate: start.AddDate(0, 3, 0), StartTime: "16:00", EndTime: "17:30"}
	require.NoError(t, repo.Create(context.Background(), class))
	assert.Equal(t, int64(7), class.Seq)
	assert.NotEmpty(t, class.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOccupancy(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("AS active_count")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"class_id", "code", "seats", "room_id", "room_name", "room_capacity", "active_count"}).
			AddRow("class-1", "PIA-0007", 10, "room-1", "Aula 101", 8, 9))

	occ, err := repo.Occupancy(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, 9, occ.ActiveCount)
	require.NotNil(t, occ.RoomCapacity)
	assert.Equal(t, 8, *occ.RoomCapacity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOccupancyMissingClass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery("AS active_count").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.Occupancy(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRosterIncludesPaidFlag(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments e\nJOIN users u ON u.id = e.student_id\nWHERE e.class_id = $1")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"enrollment_id", "student_id", "student_name", "username", "national_id", "status", "enrolled_at", "paid"}).
			AddRow("enr-1", "s1", "Ana Pérez", "ana", nil, "ACTIVE", now, true).
			AddRow("enr-2", "s2", "Luis Gómez", "luis", "0912345678", "ACTIVE", now, false))

	roster, err := repo.Roster(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.True(t, roster[0].Paid)
	assert.False(t, roster[1].Paid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListClassesFiltersByTeacherAndCode(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND c.teacher_id = $1 AND")).
		WithArgs("teacher-1", "%PIA%").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM class_offerings c")).
		WithArgs("teacher-1", "%PIA%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	classes, total, err := repo.List(context.Background(), models.ClassFilter{TeacherID: "teacher-1", Code: "pia"})
	require.NoError(t, err)
	assert.Empty(t, classes)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsTaughtBy(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM class_offerings WHERE id = $1 AND teacher_id = $2)")).
		WithArgs("class-1", "teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.IsTaughtBy(context.Background(), "class-1", "teacher-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
