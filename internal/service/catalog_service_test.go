package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/music-school-api/internal/models"
	appErrors "github.com/noah-isme/music-school-api/pkg/errors"
)

type fakeCourseRepo struct {
	courses map[string]*models.Course
}

func (f *fakeCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var out []models.Course
	for _, c := range f.courses {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (f *fakeCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := f.courses[id]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if f.courses == nil {
		f.courses = map[string]*models.Course{}
	}
	copy := *course
	f.courses[course.ID] = &copy
	return nil
}

func (f *fakeCourseRepo) Update(ctx context.Context, course *models.Course) error {
	if _, ok := f.courses[course.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *course
	f.courses[course.ID] = &copy
	return nil
}

func (f *fakeCourseRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.courses, id)
	return nil
}

type fakeRoomRepo struct {
	rooms map[string]*models.Room
}

func (f *fakeRoomRepo) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error) {
	var out []models.Room
	for _, r := range f.rooms {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (f *fakeRoomRepo) FindByID(ctx context.Context, id string) (*models.Room, error) {
	if r, ok := f.rooms[id]; ok {
		copy := *r
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRoomRepo) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	for _, r := range f.rooms {
		if r.ID != excludeID && r.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRoomRepo) Create(ctx context.Context, room *models.Room) error {
	if f.rooms == nil {
		f.rooms = map[string]*models.Room{}
	}
	copy := *room
	f.rooms[room.ID] = &copy
	return nil
}

func (f *fakeRoomRepo) Update(ctx context.Context, room *models.Room) error {
	copy := *room
	f.rooms[room.ID] = &copy
	return nil
}

func (f *fakeRoomRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.rooms[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.rooms, id)
	return nil
}

type fakeOccupancy struct {
	byRoom map[string][]models.ClassOccupancy
}

func (f *fakeOccupancy) OccupancyByRoom(ctx context.Context, roomID string) ([]models.ClassOccupancy, error) {
	return f.byRoom[roomID], nil
}

func TestCourseServiceCreateDefaults(t *testing.T) {
	repo := &fakeCourseRepo{}
	svc := NewCourseService(repo, validator.New(), zap.NewNop())

	course, err := svc.Create(context.Background(), models.CourseRequest{Name: "  Piano I ", Instrument: "Piano"})
	require.NoError(t, err)
	assert.Equal(t, "Piano I", course.Name)
	assert.Equal(t, models.CourseLevelBeginner, course.Level)
	assert.True(t, course.Price.Equal(decimal.Zero))
	assert.Len(t, repo.courses, 1)
}

func TestCourseServiceRejectsBadInput(t *testing.T) {
	svc := NewCourseService(&fakeCourseRepo{}, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), models.CourseRequest{Name: "Violin", Level: "EXPERT"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	negative := decimal.NewFromInt(-5)
	_, err = svc.Create(context.Background(), models.CourseRequest{Name: "Violin", Price: &negative})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidInput.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceUpdateAndDelete(t *testing.T) {
	repo := &fakeCourseRepo{courses: map[string]*models.Course{"c1": {ID: "c1", Name: "Guitar", Level: models.CourseLevelBeginner}}}
	svc := NewCourseService(repo, validator.New(), zap.NewNop())

	price := decimal.RequireFromString("120.50")
	course, err := svc.Update(context.Background(), "c1", models.CourseRequest{Name: "Guitar II", Level: "intermediate", Price: &price})
	require.NoError(t, err)
	assert.Equal(t, models.CourseLevelIntermediate, course.Level)
	assert.True(t, repo.courses["c1"].Price.Equal(price))

	_, err = svc.Update(context.Background(), "missing", models.CourseRequest{Name: "X"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), "c1"))
	err = svc.Delete(context.Background(), "c1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRoomServiceCreateDefaults(t *testing.T) {
	repo := &fakeRoomRepo{}
	svc := NewRoomService(repo, &fakeOccupancy{}, validator.New(), zap.NewNop())

	room, err := svc.Create(context.Background(), models.RoomRequest{Name: "Aula 1"})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRoomCapacity, room.Capacity)
	assert.Equal(t, models.RoomSiteMain, room.Site)
	assert.Equal(t, models.RoomBuildingNew, room.Building)
	assert.Equal(t, 1, room.Floor)
	assert.True(t, room.Active)
	assert.Equal(t, "Main Campus - New Building - Floor 1", room.Location)
}

func TestRoomServiceRejectsDuplicateName(t *testing.T) {
	repo := &fakeRoomRepo{rooms: map[string]*models.Room{"r1": {ID: "r1", Name: "Aula 1"}}}
	svc := NewRoomService(repo, &fakeOccupancy{}, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), models.RoomRequest{Name: "Aula 1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.Update(context.Background(), "r1", models.RoomRequest{Name: "Aula 1", Floor: 2})
	require.NoError(t, err)
}

func TestRoomServiceRejectsFloorOutOfRange(t *testing.T) {
	svc := NewRoomService(&fakeRoomRepo{}, &fakeOccupancy{}, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), models.RoomRequest{Name: "Aula 9", Floor: 4})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), models.RoomRequest{Name: "Aula 9", Site: "SOUTH"})
	require.Error(t, err)
}

func TestRoomServiceAvailability(t *testing.T) {
	roomID := "r1"
	repo := &fakeRoomRepo{rooms: map[string]*models.Room{roomID: {ID: roomID, Name: "Aula 1", Capacity: 10, Site: models.RoomSiteNorth, Building: models.RoomBuildingOld, Floor: 3}}}
	occ := &fakeOccupancy{byRoom: map[string][]models.ClassOccupancy{
		roomID: {
			{ClassID: "a", Code: "PIA-0001", ActiveCount: 4},
			{ClassID: "b", Code: "GUI-0002", ActiveCount: 12},
		},
	}}
	svc := NewRoomService(repo, occ, validator.New(), zap.NewNop())

	result, err := svc.Availability(context.Background(), roomID)
	require.NoError(t, err)
	assert.Equal(t, "North Campus - Old Building - Floor 3", result.Room.Location)
	require.Len(t, result.Classes, 2)
	assert.Equal(t, 6, result.Classes[0].Available)
	assert.False(t, result.Classes[0].OverEnrolled)
	assert.Equal(t, 0, result.Classes[1].Available)
	assert.True(t, result.Classes[1].OverEnrolled)
	assert.Equal(t, 2, result.Classes[1].Excess)

	_, err = svc.Availability(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
