package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/music-school-api/internal/models"
)

// classCodeExpr renders the human class code from the course alias co and
// the offering alias c.
const classCodeExpr = `UPPER(LEFT(TRIM(co.name), 3)) || '-' || CASE WHEN c.seq < 10000 THEN LPAD(c.seq::text, 4, '0') ELSE c.seq::text END`

const fullNameExpr = `NULLIF(TRIM(%[1]s.first_name || ' ' || %[1]s.last_name), '')`

var classDetailSelect = `SELECT c.id, c.seq, c.course_id, c.teacher_id, c.room_id, c.seats, c.start_date, c.end_date,
TO_CHAR(c.start_time, 'HH24:MI') AS start_time, TO_CHAR(c.end_time, 'HH24:MI') AS end_time, c.description, c.created_at, c.updated_at,
` + classCodeExpr + ` AS code,
co.name AS course_name, co.level AS course_level, co.instrument,
` + fmt.Sprintf(fullNameExpr, "t") + ` AS teacher_name,
r.name AS room_name, r.capacity AS room_capacity,
(SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id AND e.status = 'ACTIVE') AS active_count
FROM class_offerings c
JOIN courses co ON co.id = c.course_id
LEFT JOIN users t ON t.id = c.teacher_id
LEFT JOIN rooms r ON r.id = c.room_id`

// ClassRepository manages class offerings and their seat projections.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a ClassRepository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns class offerings with course, teacher and room details.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	var where whereBuilder
	if filter.CourseID != "" {
		where.add("c.course_id = ?", filter.CourseID)
	}
	if filter.TeacherID != "" {
		where.add("c.teacher_id = ?", filter.TeacherID)
	}
	if filter.RoomID != "" {
		where.add("c.room_id = ?", filter.RoomID)
	}
	if filter.Code != "" {
		where.add("("+classCodeExpr+") LIKE ?", "%"+toUpper(filter.Code)+"%")
	}
	if filter.ActiveOn != nil {
		where.add("? BETWEEN c.start_date AND c.end_date", *filter.ActiveOn)
	}
	conditions := " WHERE 1=1" + where.clause()

	allowedSorts := map[string]string{
		"start_date": "c.start_date",
		"course":     "co.name",
		"seats":      "c.seats",
		"created_at": "c.created_at",
	}
	limit, _, _ := pagination(filter.Page, filter.PageSize)

	var classes []models.ClassDetail
	query := classDetailSelect + conditions + ordering(filter.SortBy, filter.SortOrder, allowedSorts, "start_date") + limit
	if err := r.db.SelectContext(ctx, &classes, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM class_offerings c JOIN courses co ON co.id = c.course_id" + conditions
	if err := r.db.GetContext(ctx, &total, countQuery, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns a class offering with details.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	var class models.ClassDetail
	if err := r.db.GetContext(ctx, &class, classDetailSelect+" WHERE c.id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find class: %w", err)
	}
	return &class, nil
}

// Create inserts an offering; the database assigns its sequence number.
func (r *ClassRepository) Create(ctx context.Context, class *models.ClassOffering) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now
	const query = `INSERT INTO class_offerings (id, course_id, teacher_id, room_id, seats, start_date, end_date, start_time, end_time, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING seq`
	err := r.db.QueryRowxContext(ctx, query, class.ID, class.CourseID, class.TeacherID, class.RoomID, class.Seats,
		class.StartDate, class.EndDate, class.StartTime, class.EndTime, class.Description, class.CreatedAt, class.UpdatedAt).Scan(&class.Seq)
	if err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update persists changes to an offering.
func (r *ClassRepository) Update(ctx context.Context, class *models.ClassOffering) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_offerings SET course_id = $2, teacher_id = $3, room_id = $4, seats = $5, start_date = $6, end_date = $7,
start_time = $8, end_time = $9, description = $10, updated_at = $11 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, class.ID, class.CourseID, class.TeacherID, class.RoomID, class.Seats,
		class.StartDate, class.EndDate, class.StartTime, class.EndTime, class.Description, class.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an offering together with its enrollments and attendance.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM class_offerings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const occupancySelect = `SELECT c.id AS class_id, ` + classCodeExpr + ` AS code, c.seats, c.room_id, r.name AS room_name, r.capacity AS room_capacity,
(SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id AND e.status = 'ACTIVE') AS active_count
FROM class_offerings c
JOIN courses co ON co.id = c.course_id
LEFT JOIN rooms r ON r.id = c.room_id`

// Occupancy reads the live active enrollment count of one offering.
func (r *ClassRepository) Occupancy(ctx context.Context, classID string) (*models.ClassOccupancy, error) {
	var occ models.ClassOccupancy
	if err := r.db.GetContext(ctx, &occ, occupancySelect+" WHERE c.id = $1", classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("class occupancy: %w", err)
	}
	return &occ, nil
}

// OccupancyByRoom reads the active counts of every offering using a room.
func (r *ClassRepository) OccupancyByRoom(ctx context.Context, roomID string) ([]models.ClassOccupancy, error) {
	var items []models.ClassOccupancy
	if err := r.db.SelectContext(ctx, &items, occupancySelect+" WHERE c.room_id = $1 ORDER BY c.start_date, c.seq", roomID); err != nil {
		return nil, fmt.Errorf("room occupancy: %w", err)
	}
	return items, nil
}

// ListOccupancy reads active counts for all offerings, or only those of one
// course when courseID is set.
func (r *ClassRepository) ListOccupancy(ctx context.Context, courseID string) ([]models.ClassOccupancy, error) {
	query := occupancySelect
	var args []interface{}
	if courseID != "" {
		query += " WHERE c.course_id = $1"
		args = append(args, courseID)
	}
	query += " ORDER BY c.start_date, c.seq"
	var items []models.ClassOccupancy
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list occupancy: %w", err)
	}
	return items, nil
}

// Roster lists the enrollments of a class. Paid is true when the enrollment
// has a settled obligation and nothing pending.
func (r *ClassRepository) Roster(ctx context.Context, classID string) ([]models.RosterEntry, error) {
	query := `SELECT e.id AS enrollment_id, u.id AS student_id, ` + fmt.Sprintf(fullNameExpr, "u") + ` AS student_name, u.username, u.national_id,
e.status, e.enrolled_at,
(EXISTS (SELECT 1 FROM tuition_obligations o WHERE o.enrollment_id = e.id AND o.status = 'PAID')
 AND NOT EXISTS (SELECT 1 FROM tuition_obligations o WHERE o.enrollment_id = e.id AND o.status = 'PENDING')) AS paid
FROM enrollments e
JOIN users u ON u.id = e.student_id
WHERE e.class_id = $1
ORDER BY u.last_name, u.first_name`
	var entries []models.RosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, classID); err != nil {
		return nil, fmt.Errorf("class roster: %w", err)
	}
	return entries, nil
}

// IsTaughtBy reports whether the teacher is assigned to the class.
func (r *ClassRepository) IsTaughtBy(ctx context.Context, classID, teacherID string) (bool, error) {
	var ok bool
	const query = `SELECT EXISTS (SELECT 1 FROM class_offerings WHERE id = $1 AND teacher_id = $2)`
	if err := r.db.GetContext(ctx, &ok, query, classID, teacherID); err != nil {
		return false, fmt.Errorf("check class teacher: %w", err)
	}
	return ok, nil
}
