package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/music-school-api/internal/models"
)

// DashboardRepository reads the school-wide counters.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs a DashboardRepository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// AdminCounts aggregates the admin dashboard in one round trip.
func (r *DashboardRepository) AdminCounts(ctx context.Context) (*models.AdminDashboard, error) {
	const query = `SELECT
	(SELECT COUNT(*) FROM users WHERE role = 'STUDENT' AND active) AS students,
	(SELECT COUNT(*) FROM users WHERE role = 'TEACHER' AND active) AS teachers,
	(SELECT COUNT(*) FROM courses) AS courses,
	(SELECT COUNT(*) FROM rooms WHERE active) AS rooms,
	(SELECT COUNT(*) FROM class_offerings) AS classes,
	(SELECT COUNT(*) FROM enrollments WHERE status = 'ACTIVE') AS active_enrollments,
	(SELECT COUNT(*) FROM tuition_obligations WHERE status = 'PENDING') AS pending_obligations,
	(SELECT COALESCE(SUM(GREATEST(o.amount - COALESCE(p.paid, 0), 0)), 0)
		FROM tuition_obligations o
		LEFT JOIN (SELECT obligation_id, SUM(amount) AS paid FROM partial_payments GROUP BY obligation_id) p ON p.obligation_id = o.id
		WHERE o.status = 'PENDING') AS outstanding_total`

	var summary models.AdminDashboard
	if err := r.db.GetContext(ctx, &summary, query); err != nil {
		return nil, fmt.Errorf("admin dashboard counts: %w", err)
	}
	return &summary, nil
}
