package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/chibale/darasa/core"
	"github.com/chibale/darasa/core/enrollment"
)

const enrollmentColumns = `id, student_id, course_id, enrollment_type, payment_amount, payment_status,
payment_method, transaction_id, is_active, expires_at,
can_access_notes, can_access_live_sessions, can_download_materials, can_submit_assignments,
completed_lessons, completed_assignments, total_progress, last_accessed_at,
enrolled_at, created_at, updated_at`

// constraint names from migrations; see 00003_create_enrollment.sql
const (
	activeEnrollmentConstraint = "enrollment_active_student_course_key"
	transactionIDConstraint    = "enrollment_transaction_id_key"
)

type enrollmentRow struct {
	ID                    string         `db:"id"`
	StudentID             string         `db:"student_id"`
	CourseID              string         `db:"course_id"`
	EnrollmentType        string         `db:"enrollment_type"`
	PaymentAmount         float64        `db:"payment_amount"`
	PaymentStatus         string         `db:"payment_status"`
	PaymentMethod         string         `db:"payment_method"`
	TransactionID         null.String    `db:"transaction_id"`
	IsActive              bool           `db:"is_active"`
	ExpiresAt             null.Time      `db:"expires_at"`
	CanAccessNotes        bool           `db:"can_access_notes"`
	CanAccessLiveSessions bool           `db:"can_access_live_sessions"`
	CanDownloadMaterials  bool           `db:"can_download_materials"`
	CanSubmitAssignments  bool           `db:"can_submit_assignments"`
	CompletedLessons      pq.StringArray `db:"completed_lessons"`
	CompletedAssignments  pq.StringArray `db:"completed_assignments"`
	TotalProgress         float64        `db:"total_progress"`
	LastAccessedAt        null.Time      `db:"last_accessed_at"`
	EnrolledAt            time.Time      `db:"enrolled_at"`
	CreatedAt             time.Time      `db:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at"`
}

type enrollmentRepository struct {
	db *sqlx.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *sql.DB) *enrollmentRepository {
	return &enrollmentRepository{db: sqlx.NewDb(db, "postgres")}
}

func (repo enrollmentRepository) pack(enr enrollment.Enrollment) enrollmentRow {
	return enrollmentRow{
		ID:                    enr.ID,
		StudentID:             enr.StudentID,
		CourseID:              enr.CourseID,
		EnrollmentType:        enr.EnrollmentType,
		PaymentAmount:         enr.PaymentAmount,
		PaymentStatus:         enr.PaymentStatus,
		PaymentMethod:         enr.PaymentMethod,
		TransactionID:         enr.TransactionID,
		IsActive:              enr.IsActive,
		ExpiresAt:             enr.ExpiresAt,
		CanAccessNotes:        enr.AccessPermissions.CanAccessNotes,
		CanAccessLiveSessions: enr.AccessPermissions.CanAccessLiveSessions,
		CanDownloadMaterials:  enr.AccessPermissions.CanDownloadMaterials,
		CanSubmitAssignments:  enr.AccessPermissions.CanSubmitAssignments,
		CompletedLessons:      pq.StringArray(enr.Progress.CompletedLessons),
		CompletedAssignments:  pq.StringArray(enr.Progress.CompletedAssignments),
		TotalProgress:         enr.Progress.TotalProgress,
		LastAccessedAt:        enr.Progress.LastAccessedAt,
		EnrolledAt:            enr.EnrolledAt.UTC(),
		CreatedAt:             enr.CreatedAt.UTC(),
		UpdatedAt:             enr.UpdatedAt.UTC(),
	}
}

func (repo enrollmentRepository) unpack(row enrollmentRow) enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:             row.ID,
		StudentID:      row.StudentID,
		CourseID:       row.CourseID,
		EnrollmentType: row.EnrollmentType,
		PaymentAmount:  row.PaymentAmount,
		PaymentStatus:  row.PaymentStatus,
		PaymentMethod:  row.PaymentMethod,
		TransactionID:  row.TransactionID,
		IsActive:       row.IsActive,
		ExpiresAt:      row.ExpiresAt,
		AccessPermissions: enrollment.AccessPermissions{
			CanAccessNotes:        row.CanAccessNotes,
			CanAccessLiveSessions: row.CanAccessLiveSessions,
			CanDownloadMaterials:  row.CanDownloadMaterials,
			CanSubmitAssignments:  row.CanSubmitAssignments,
		},
		Progress: enrollment.Progress{
			CompletedLessons:     row.CompletedLessons,
			CompletedAssignments: row.CompletedAssignments,
			TotalProgress:        row.TotalProgress,
			LastAccessedAt:       row.LastAccessedAt,
		},
		EnrolledAt: row.EnrolledAt,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

// trapNoRowsErr maps psql "no rows" err to enrollment.ErrNotFound
func (repo enrollmentRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return enrollment.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// trapConflictErr maps unique-constraint violations to typed domain errors so
// the loser of a concurrent duplicate create sees ErrAlreadyEnrolled, not a
// generic storage error.
func (repo enrollmentRepository) trapConflictErr(err error, msg string) error {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
		switch pqErr.Constraint {
		case activeEnrollmentConstraint:
			return enrollment.ErrAlreadyEnrolled
		case transactionIDConstraint:
			return enrollment.ErrTransactionExists
		}
	}
	return errors.Wrap(err, msg)
}

func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, enr enrollment.Enrollment) (enrollment.Enrollment, error) {
	enr.ID = uuid.New().String()
	row := repo.pack(enr)

	_, err := repo.db.NamedExecContext(ctx, `
INSERT INTO enrollment (id, student_id, course_id, enrollment_type, payment_amount, payment_status,
                        payment_method, transaction_id, is_active, expires_at,
                        can_access_notes, can_access_live_sessions, can_download_materials, can_submit_assignments,
                        completed_lessons, completed_assignments, total_progress, last_accessed_at,
                        enrolled_at, created_at, updated_at)
VALUES (:id, :student_id, :course_id, :enrollment_type, :payment_amount, :payment_status,
        :payment_method, :transaction_id, :is_active, :expires_at,
        :can_access_notes, :can_access_live_sessions, :can_download_materials, :can_submit_assignments,
        :completed_lessons, :completed_assignments, :total_progress, :last_accessed_at,
        :enrolled_at, :created_at, :updated_at)`, row)
	if err != nil {
		return enrollment.Enrollment{}, repo.trapConflictErr(err, "inserting enrollment")
	}
	return repo.unpack(row), nil
}

func (repo *enrollmentRepository) GetEnrollmentByID(ctx context.Context, id string) (enrollment.Enrollment, error) {
	var row enrollmentRow
	err := repo.db.GetContext(ctx, &row,
		fmt.Sprintf(`SELECT %s FROM enrollment WHERE id = $1`, enrollmentColumns), id)
	if err != nil {
		return enrollment.Enrollment{}, repo.trapNoRowsErr(err, "getting enrollment by ID")
	}
	return repo.unpack(row), nil
}

func (repo *enrollmentRepository) GetActiveEnrollment(ctx context.Context, studentID, courseID string) (enrollment.Enrollment, error) {
	var row enrollmentRow
	err := repo.db.GetContext(ctx, &row,
		fmt.Sprintf(`SELECT %s FROM enrollment WHERE student_id = $1 AND course_id = $2 AND is_active`, enrollmentColumns),
		studentID, courseID)
	if err != nil {
		return enrollment.Enrollment{}, repo.trapNoRowsErr(err, "getting active enrollment")
	}
	return repo.unpack(row), nil
}

func (repo *enrollmentRepository) FilterEnrollments(
	ctx context.Context,
	filter enrollment.QueryFilter,
	ordering []core.DBOrdering,
	page core.Pagination,
) ([]enrollment.Enrollment, error) {
	where := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)

	arg := func(val interface{}) string {
		args = append(args, val)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.StudentID != "" {
		where = append(where, "student_id = "+arg(filter.StudentID))
	}
	if filter.CourseID != "" {
		where = append(where, "course_id = "+arg(filter.CourseID))
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "payment_status = ANY("+arg(pq.Array(filter.Statuses))+")")
	}
	if filter.ActiveOnly {
		where = append(where, "is_active")
	}

	query := fmt.Sprintf(`SELECT %s FROM enrollment`, enrollmentColumns)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	orderBy := "enrolled_at DESC"
	if len(ordering) > 0 {
		parts := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			parts = append(parts, ord.String())
		}
		orderBy = strings.Join(parts, ", ")
	}
	query += " ORDER BY " + orderBy
	query += " LIMIT " + arg(page.LimitOrDefault())
	query += " OFFSET " + arg(page.Offset)

	var rows []enrollmentRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering enrollments")
	}

	enrs := make([]enrollment.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrs = append(enrs, repo.unpack(row))
	}
	return enrs, nil
}

func (repo *enrollmentRepository) SwapPaymentStatus(
	ctx context.Context,
	id, from, to string,
	transactionID null.String,
	perms enrollment.AccessPermissions,
) (bool, enrollment.Enrollment, error) {
	var row enrollmentRow
	err := repo.db.GetContext(ctx, &row, fmt.Sprintf(`
UPDATE enrollment
SET payment_status           = $3,
    transaction_id           = COALESCE($4, transaction_id),
    can_access_notes         = $5,
    can_access_live_sessions = $6,
    can_download_materials   = $7,
    can_submit_assignments   = $8,
    updated_at               = $9
WHERE id = $1
  AND payment_status = $2
RETURNING %s`, enrollmentColumns),
		id, from, to, transactionID,
		perms.CanAccessNotes, perms.CanAccessLiveSessions, perms.CanDownloadMaterials, perms.CanSubmitAssignments,
		time.Now().UTC())
	if err == nil {
		return true, repo.unpack(row), nil
	}
	if err != sql.ErrNoRows {
		return false, enrollment.Enrollment{}, repo.trapConflictErr(err, "swapping payment status")
	}

	// no swap: report the record as currently stored
	enr, err := repo.GetEnrollmentByID(ctx, id)
	if err != nil {
		return false, enrollment.Enrollment{}, err
	}
	return false, enr, nil
}

func (repo *enrollmentRepository) AddProgressItem(ctx context.Context, id, itemID, itemType string, at time.Time) (enrollment.Enrollment, error) {
	col := "completed_lessons"
	if itemType == enrollment.ItemAssignment {
		col = "completed_assignments"
	}

	// single-statement add-to-set: two concurrent adds of different items must
	// both be retained, and re-adding an existing item is a no-op
	var row enrollmentRow
	err := repo.db.GetContext(ctx, &row, fmt.Sprintf(`
UPDATE enrollment
SET %[1]s            = CASE WHEN $2 = ANY (%[1]s) THEN %[1]s ELSE array_append(%[1]s, $2) END,
    last_accessed_at = $3,
    updated_at       = $3
WHERE id = $1
RETURNING %[2]s`, col, enrollmentColumns),
		id, itemID, at.UTC())
	if err != nil {
		return enrollment.Enrollment{}, repo.trapNoRowsErr(err, "adding progress item")
	}
	return repo.unpack(row), nil
}

func (repo *enrollmentRepository) SetTotalProgress(ctx context.Context, id string, pct float64, at time.Time) (enrollment.Enrollment, error) {
	var row enrollmentRow
	err := repo.db.GetContext(ctx, &row, fmt.Sprintf(`
UPDATE enrollment
SET total_progress   = $2,
    last_accessed_at = $3,
    updated_at       = $3
WHERE id = $1
RETURNING %s`, enrollmentColumns),
		id, pct, at.UTC())
	if err != nil {
		return enrollment.Enrollment{}, repo.trapNoRowsErr(err, "setting total progress")
	}
	return repo.unpack(row), nil
}

func (repo *enrollmentRepository) CourseEnrollmentStats(ctx context.Context, courseID string) (enrollment.Stats, error) {
	rows, err := repo.db.QueryxContext(ctx, `
SELECT enrollment_type, COUNT(*), COALESCE(SUM(payment_amount), 0)
FROM enrollment
WHERE course_id = $1
  AND is_active
GROUP BY enrollment_type`, courseID)
	if err != nil {
		return enrollment.Stats{}, errors.Wrap(err, "querying enrollment stats")
	}
	defer func() { _ = rows.Close() }()

	stats := enrollment.Stats{ByType: make(map[string]enrollment.TypeStats)}
	for rows.Next() {
		var (
			typ     string
			count   int
			revenue float64
		)
		if err := rows.Scan(&typ, &count, &revenue); err != nil {
			return enrollment.Stats{}, errors.Wrap(err, "scanning enrollment stats")
		}
		stats.ByType[typ] = enrollment.TypeStats{Count: count, Revenue: revenue}
		stats.Total += count
		stats.TotalRevenue += revenue
	}
	if err := rows.Err(); err != nil {
		return enrollment.Stats{}, errors.Wrap(err, "scanning enrollment stats")
	}
	return stats, nil
}
