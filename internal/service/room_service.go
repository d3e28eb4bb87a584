package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/music-school-api/internal/accounting"
	"github.com/noah-isme/music-school-api/internal/models"
	appErrors "github.com/noah-isme/music-school-api/pkg/errors"
)

type roomRepository interface {
	List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error)
	FindByID(ctx context.Context, id string) (*models.Room, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, room *models.Room) error
	Update(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, id string) error
}

type roomOccupancyReader interface {
	OccupancyByRoom(ctx context.Context, roomID string) ([]models.ClassOccupancy, error)
}

// RoomService manages rooms and their capacity accounting.
type RoomService struct {
	repo      roomRepository
	classes   roomOccupancyReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRoomService creates a new room service.
func NewRoomService(repo roomRepository, classes roomOccupancyReader, validate *validator.Validate, logger *zap.Logger) *RoomService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &RoomService{repo: repo, classes: classes, validator: validate, logger: logger}
	svc.validator.RegisterValidation("room_site", func(fl validator.FieldLevel) bool {
		site := models.RoomSite(strings.ToUpper(fl.Field().String()))
		return site == models.RoomSiteMain || site == models.RoomSiteNorth
	})
	svc.validator.RegisterValidation("room_building", func(fl validator.FieldLevel) bool {
		building := models.RoomBuilding(strings.ToUpper(fl.Field().String()))
		return building == models.RoomBuildingNew || building == models.RoomBuildingOld
	})
	return svc
}

// List returns paginated rooms with their location labels.
func (s *RoomService) List(ctx context.Context, filter models.RoomFilter) ([]models.RoomView, *models.Pagination, error) {
	rooms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	views := make([]models.RoomView, len(rooms))
	for i, room := range rooms {
		views[i] = models.NewRoomView(room)
	}
	return views, buildPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a room by identifier.
func (s *RoomService) Get(ctx context.Context, id string) (*models.RoomView, error) {
	room, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := models.NewRoomView(*room)
	return &view, nil
}

// Create registers a room. Capacity defaults to 15, site to MAIN, building
// to NEW and floor to 1.
func (s *RoomService) Create(ctx context.Context, req models.RoomRequest) (*models.RoomView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid room payload")
	}
	room := &models.Room{ID: uuid.NewString(), Active: true, Capacity: models.DefaultRoomCapacity}
	applyRoomRequest(room, req)
	if err := s.ensureUniqueName(ctx, room.Name, ""); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room")
	}
	view := models.NewRoomView(*room)
	return &view, nil
}

// Update replaces room attributes; capacity and active keep their current
// value when omitted.
func (s *RoomService) Update(ctx context.Context, id string, req models.RoomRequest) (*models.RoomView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid room payload")
	}
	room, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	applyRoomRequest(room, req)
	if err := s.ensureUniqueName(ctx, room.Name, room.ID); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update room")
	}
	view := models.NewRoomView(*room)
	return &view, nil
}

// Delete removes a room. Classes scheduled in it keep running without one.
func (s *RoomService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete room")
	}
	return nil
}

// Availability computes room capacity against the active enrollments of each
// offering scheduled in the room.
func (s *RoomService) Availability(ctx context.Context, id string) (*models.RoomAvailability, error) {
	room, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	occupancy, err := s.classes.OccupancyByRoom(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room occupancy")
	}
	result := &models.RoomAvailability{Room: models.NewRoomView(*room), Classes: make([]models.RoomClassUsage, 0, len(occupancy))}
	for _, occ := range occupancy {
		usage := models.RoomClassUsage{ClassID: occ.ClassID, Code: occ.Code, Capacity: accounting.Availability(room.Capacity, occ.ActiveCount)}
		if usage.OverEnrolled {
			s.logger.Warn("room over capacity",
				zap.String("room_id", room.ID),
				zap.String("class_id", occ.ClassID),
				zap.Int("capacity", room.Capacity),
				zap.Int("active", occ.ActiveCount))
		}
		result.Classes = append(result.Classes, usage)
	}
	return result, nil
}

func (s *RoomService) load(ctx context.Context, id string) (*models.Room, error) {
	room, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	return room, nil
}

func (s *RoomService) ensureUniqueName(ctx context.Context, name, excludeID string) error {
	exists, err := s.repo.ExistsByName(ctx, name, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room name")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "room name already exists")
	}
	return nil
}

func applyRoomRequest(room *models.Room, req models.RoomRequest) {
	room.Name = strings.TrimSpace(req.Name)
	room.Site = models.RoomSite(strings.ToUpper(string(req.Site)))
	if room.Site == "" {
		room.Site = models.RoomSiteMain
	}
	room.Building = models.RoomBuilding(strings.ToUpper(string(req.Building)))
	if room.Building == "" {
		room.Building = models.RoomBuildingNew
	}
	room.Floor = req.Floor
	if room.Floor == 0 {
		room.Floor = 1
	}
	if req.Capacity != nil {
		room.Capacity = *req.Capacity
	}
	if req.Active != nil {
		room.Active = *req.Active
	}
}
