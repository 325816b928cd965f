package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/portal-reports/internal/models"
)

// PortalRepository reads the portal's submission, staff and department records.
type PortalRepository struct {
	db *sqlx.DB
}

// NewPortalRepository constructs the repository.
func NewPortalRepository(db *sqlx.DB) *PortalRepository {
	return &PortalRepository{db: db}
}

const submissionSelect = `SELECT s.id, s.student_id, COALESCE(u.name, '') AS student_name, s.title,
COALESCE(d.name, '') AS department, s.status, s.submitted_at, s.reviewer_id, s.reviewed_at
FROM submissions s
LEFT JOIN users u ON u.id = s.student_id
LEFT JOIN departments d ON d.id = s.department_id
WHERE s.submitted_at >= $1 AND s.submitted_at <= $2`

// ListSubmissions returns submissions in [From, To], optionally restricted to department names.
func (r *PortalRepository) ListSubmissions(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	query := submissionSelect
	args := []interface{}{filter.From, filter.To}
	if len(filter.Departments) > 0 {
		query += ` AND d.name = ANY($3)`
		args = append(args, pq.Array(filter.Departments))
	}
	query += ` ORDER BY s.submitted_at ASC, s.id ASC`

	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// ListFaculty returns reviewing staff with their department name.
func (r *PortalRepository) ListFaculty(ctx context.Context) ([]models.Faculty, error) {
	const query = `SELECT u.id, u.name, u.email, COALESCE(d.name, '') AS department
FROM users u
LEFT JOIN departments d ON d.id = u.department_id
WHERE u.role = 'faculty'
ORDER BY u.name ASC, u.id ASC`
	var faculty []models.Faculty
	if err := r.db.SelectContext(ctx, &faculty, query); err != nil {
		return nil, fmt.Errorf("list faculty: %w", err)
	}
	return faculty, nil
}

// ListDepartments returns the institution's known departments.
func (r *PortalRepository) ListDepartments(ctx context.Context) ([]models.Department, error) {
	const query = `SELECT id, name, code FROM departments ORDER BY name ASC`
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}
