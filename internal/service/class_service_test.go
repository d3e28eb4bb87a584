package service

import (
	"context"
	"database/sql"
	"sort"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/music-school-api/internal/models"
	appErrors "github.com/noah-isme/music-school-api/pkg/errors"
)

type fakeClassRepo struct {
	classes   map[string]*models.ClassDetail
	occupancy map[string]*models.ClassOccupancy
	rosters   map[string][]models.RosterEntry
	nextSeq   int64
	created   []models.ClassOffering
	updated   []models.ClassOffering
}

func (f *fakeClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	var out []models.ClassDetail
	for _, c := range f.classes {
		if filter.TeacherID != "" && (c.TeacherID == nil || *c.TeacherID != filter.TeacherID) {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (f *fakeClassRepo) FindByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	if c, ok := f.classes[id]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeClassRepo) Create(ctx context.Context, class *models.ClassOffering) error {
	if f.classes == nil {
		f.classes = map[string]*models.ClassDetail{}
	}
	if class.ID == "" {
		class.ID = "new-class"
	}
	f.nextSeq++
	class.Seq = f.nextSeq
	f.created = append(f.created, *class)
	f.classes[class.ID] = &models.ClassDetail{ClassOffering: *class, Code: models.ClassCode("Piano", class.Seq)}
	return nil
}

func (f *fakeClassRepo) Update(ctx context.Context, class *models.ClassOffering) error {
	f.updated = append(f.updated, *class)
	detail := f.classes[class.ID]
	detail.ClassOffering = *class
	return nil
}

func (f *fakeClassRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.classes[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.classes, id)
	return nil
}

func (f *fakeClassRepo) Occupancy(ctx context.Context, classID string) (*models.ClassOccupancy, error) {
	if occ, ok := f.occupancy[classID]; ok {
		return occ, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeClassRepo) ListOccupancy(ctx context.Context, courseID string) ([]models.ClassOccupancy, error) {
	out := make([]models.ClassOccupancy, 0, len(f.occupancy))
	for _, occ := range f.occupancy {
		out = append(out, *occ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (f *fakeClassRepo) Roster(ctx context.Context, classID string) ([]models.RosterEntry, error) {
	return f.rosters[classID], nil
}

func (f *fakeClassRepo) IsTaughtBy(ctx context.Context, classID, teacherID string) (bool, error) {
	c, ok := f.classes[classID]
	return ok && c.TeacherID != nil && *c.TeacherID == teacherID, nil
}

type fakeUserLookup map[string]*models.User

func (f fakeUserLookup) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func strPtr(s string) *string { return &s }

func newClassServiceFixture() (*ClassService, *fakeClassRepo) {
	repo := &fakeClassRepo{}
	users := fakeUserLookup{
		"t1": {ID: "t1", Role: models.RoleTeacher},
		"s1": {ID: "s1", Role: models.RoleStudent},
	}
	courses := &fakeCourseRepo{courses: map[string]*models.Course{"c1": {ID: "c1", Name: "Piano"}}}
	rooms := &fakeRoomRepo{rooms: map[string]*models.Room{"r1": {ID: "r1", Name: "Aula 1", Capacity: 15}}}
	return NewClassService(repo, users, courses, rooms, validator.New(), zap.NewNop()), repo
}

func validClassRequest() models.ClassRequest {
	return models.ClassRequest{
		CourseID:  "c1",
		TeacherID: strPtr("t1"),
		RoomID:    strPtr("r1"),
		Seats:     10,
		StartDate: "2024-02-01",
		EndDate:   "2024-06-30",
		StartTime: "16:00",
		EndTime:   "17:30",
	}
}

func TestClassServiceCreate(t *testing.T) {
	svc, repo := newClassServiceFixture()

	detail, err := svc.Create(context.Background(), validClassRequest())
	require.NoError(t, err)
	assert.Equal(t, "PIA-0001", detail.Code)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "t1", *repo.created[0].TeacherID)
	assert.Equal(t, 2024, repo.created[0].StartDate.Year())
}

func TestClassServiceCreateBlankOptionalRefs(t *testing.T) {
	svc, repo := newClassServiceFixture()
	req := validClassRequest()
	req.TeacherID = strPtr("  ")
	req.RoomID = nil

	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, repo.created[0].TeacherID)
	assert.Nil(t, repo.created[0].RoomID)
}

func TestClassServiceCreateValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.ClassRequest)
		code   string
	}{
		{"end before start", func(r *models.ClassRequest) { r.EndDate = "2024-01-01" }, appErrors.ErrValidation.Code},
		{"end time not after start", func(r *models.ClassRequest) { r.EndTime = "16:00" }, appErrors.ErrValidation.Code},
		{"bad clock", func(r *models.ClassRequest) { r.StartTime = "25:00" }, appErrors.ErrValidation.Code},
		{"negative seats", func(r *models.ClassRequest) { r.Seats = -1 }, appErrors.ErrValidation.Code},
		{"teacher with wrong role", func(r *models.ClassRequest) { r.TeacherID = strPtr("s1") }, appErrors.ErrValidation.Code},
		{"unknown teacher", func(r *models.ClassRequest) { r.TeacherID = strPtr("nobody") }, appErrors.ErrNotFound.Code},
		{"unknown course", func(r *models.ClassRequest) { r.CourseID = "zzz" }, appErrors.ErrNotFound.Code},
		{"unknown room", func(r *models.ClassRequest) { r.RoomID = strPtr("r9") }, appErrors.ErrNotFound.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo := newClassServiceFixture()
			req := validClassRequest()
			tc.mutate(&req)
			_, err := svc.Create(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
			assert.Empty(t, repo.created)
		})
	}
}

func TestClassServiceUpdateKeepsSequence(t *testing.T) {
	svc, repo := newClassServiceFixture()
	created, err := svc.Create(context.Background(), validClassRequest())
	require.NoError(t, err)

	req := validClassRequest()
	req.Seats = 25
	updated, err := svc.Update(context.Background(), created.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 25, updated.Seats)
	assert.Equal(t, created.Seq, repo.updated[0].Seq)

	_, err = svc.Update(context.Background(), "missing", req)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestClassServiceAvailability(t *testing.T) {
	svc, repo := newClassServiceFixture()
	repo.occupancy = map[string]*models.ClassOccupancy{
		"k1": {ClassID: "k1", Code: "PIA-0001", Seats: 3, RoomID: strPtr("r1"), RoomName: strPtr("Aula 1"), RoomCapacity: intPtr(5), ActiveCount: 4},
		"k2": {ClassID: "k2", Code: "GUI-0002", Seats: 10, ActiveCount: 2},
	}

	a, err := svc.Availability(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, 0, a.Seats.Available)
	assert.True(t, a.Seats.OverEnrolled)
	assert.Equal(t, 1, a.Seats.Excess)
	require.NotNil(t, a.Room)
	assert.Equal(t, "Aula 1", a.Room.RoomName)
	assert.Equal(t, 1, a.Room.Available)
	assert.False(t, a.Room.OverEnrolled)

	b, err := svc.Availability(context.Background(), "k2")
	require.NoError(t, err)
	assert.Equal(t, 8, b.Seats.Available)
	assert.Nil(t, b.Room)

	_, err = svc.Availability(context.Background(), "nope")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestClassServiceAvailabilityOverview(t *testing.T) {
	svc, repo := newClassServiceFixture()
	repo.occupancy = map[string]*models.ClassOccupancy{
		"k1": {ClassID: "k1", Code: "PIA-0001", Seats: 3, RoomID: strPtr("r1"), RoomCapacity: intPtr(2), ActiveCount: 4},
		"k2": {ClassID: "k2", Code: "GUI-0002", Seats: 10, ActiveCount: 2},
	}

	items, err := svc.AvailabilityOverview(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "GUI-0002", items[0].Code)
	assert.Equal(t, 8, items[0].Seats.Available)
	assert.True(t, items[1].Seats.OverEnrolled)
	require.NotNil(t, items[1].Room)
	assert.Equal(t, 2, items[1].Room.Excess)
}

func TestClassServiceRosterTeacherScope(t *testing.T) {
	svc, repo := newClassServiceFixture()
	repo.classes = map[string]*models.ClassDetail{
		"k1": {ClassOffering: models.ClassOffering{ID: "k1", TeacherID: strPtr("t1")}},
	}
	repo.rosters = map[string][]models.RosterEntry{"k1": {{StudentID: "s1", Paid: true}}}

	roster, err := svc.Roster(context.Background(), "k1", &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	require.NoError(t, err)
	assert.Len(t, roster, 1)

	_, err = svc.Roster(context.Background(), "k1", &models.JWTClaims{UserID: "t2", Role: models.RoleTeacher})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Roster(context.Background(), "k1", &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	require.NoError(t, err)
}

func TestClassServiceDelete(t *testing.T) {
	svc, repo := newClassServiceFixture()
	repo.classes = map[string]*models.ClassDetail{"k1": {ClassOffering: models.ClassOffering{ID: "k1"}}}

	require.NoError(t, svc.Delete(context.Background(), "k1"))
	err := svc.Delete(context.Background(), "k1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func intPtr(v int) *int { return &v }
