package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/chibale/darasa/core/course"
)

const courseColumns = `id, title, instructor_id, status, notes_price, live_session_price,
enrollment_deadline, max_enrollments, enrollment_count, created_at, updated_at`

type courseRow struct {
	ID                 string    `db:"id"`
	Title              string    `db:"title"`
	InstructorID       string    `db:"instructor_id"`
	Status             string    `db:"status"`
	NotesPrice         float64   `db:"notes_price"`
	LiveSessionPrice   float64   `db:"live_session_price"`
	EnrollmentDeadline null.Time `db:"enrollment_deadline"`
	MaxEnrollments     null.Int  `db:"max_enrollments"`
	EnrollmentCount    int       `db:"enrollment_count"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

type courseCatalog struct {
	db *sqlx.DB
}

var _ course.Catalog = (*courseCatalog)(nil) // interface compliance check

func NewCourseCatalog(db *sql.DB) *courseCatalog {
	return &courseCatalog{db: sqlx.NewDb(db, "postgres")}
}

func (repo courseCatalog) unpack(row courseRow) course.Course {
	return course.Course{
		ID:                 row.ID,
		Title:              row.Title,
		InstructorID:       row.InstructorID,
		Status:             row.Status,
		NotesPrice:         row.NotesPrice,
		LiveSessionPrice:   row.LiveSessionPrice,
		EnrollmentDeadline: row.EnrollmentDeadline,
		MaxEnrollments:     row.MaxEnrollments,
		EnrollmentCount:    row.EnrollmentCount,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

func (repo *courseCatalog) GetCourse(ctx context.Context, id string) (course.Course, error) {
	var row courseRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+courseColumns+` FROM course WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "getting course by ID")
	}
	return repo.unpack(row), nil
}

func (repo *courseCatalog) IncrementEnrollmentCount(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `
UPDATE course
SET enrollment_count = enrollment_count + 1,
    updated_at       = $2
WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "incrementing enrollment count")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.ErrNotFound
	}
	return nil
}

// CreateCourse provisions a course row. The catalog is owned by the course
// authoring system; this exists for seeding and tests.
func (repo *courseCatalog) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	crs.ID = uuid.New().String()
	now := time.Now().UTC()
	if crs.CreatedAt.IsZero() {
		crs.CreatedAt = now
	}
	crs.UpdatedAt = now

	_, err := repo.db.ExecContext(ctx, `
INSERT INTO course (id, title, instructor_id, status, notes_price, live_session_price,
                    enrollment_deadline, max_enrollments, enrollment_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		crs.ID, crs.Title, crs.InstructorID, crs.Status, crs.NotesPrice, crs.LiveSessionPrice,
		crs.EnrollmentDeadline, crs.MaxEnrollments, crs.EnrollmentCount, crs.CreatedAt, crs.UpdatedAt)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return crs, nil
}
