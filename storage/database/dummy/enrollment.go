package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/chibale/darasa/core"
	"github.com/chibale/darasa/core/enrollment"
)

type enrollmentRepository struct {
	db *enrollmentTable
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) *enrollmentRepository {
	return &enrollmentRepository{db: db.enrollment}
}

func (repo *enrollmentRepository) query() []enrollment.Enrollment {
	enrs := make([]enrollment.Enrollment, 0, len(repo.db.table))
	for _, enr := range repo.db.table {
		enrs = append(enrs, *enr)
	}
	return enrs
}

// CreateEnrollment holds the write lock across the duplicate check and the
// insert: the check-then-act is atomic here, same as the partial unique
// index gives the SQL store.
func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, enr enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, other := range repo.db.table {
		if other.IsActive && other.StudentID == enr.StudentID && other.CourseID == enr.CourseID {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
		if enr.TransactionID.Valid && other.TransactionID.Valid && other.TransactionID.String == enr.TransactionID.String {
			return enrollment.Enrollment{}, enrollment.ErrTransactionExists
		}
	}

	enr.ID = uuid.New().String()
	repo.db.table[enr.ID] = &enr
	return enr, nil
}

func (repo *enrollmentRepository) GetEnrollmentByID(ctx context.Context, id string) (enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if enr, ok := repo.db.table[id]; ok {
		return *enr, nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) GetActiveEnrollment(ctx context.Context, studentID, courseID string) (enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, enr := range repo.db.table {
		if enr.IsActive && enr.StudentID == studentID && enr.CourseID == courseID {
			return *enr, nil
		}
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) FilterEnrollments(
	ctx context.Context,
	filter enrollment.QueryFilter,
	ordering []core.DBOrdering,
	page core.Pagination,
) ([]enrollment.Enrollment, error) {
	repo.db.RLock()
	enrs := repo.query()
	repo.db.RUnlock()

	matches := make([]enrollment.Enrollment, 0, len(enrs))
	for _, enr := range enrs {
		if filter.StudentID != "" && enr.StudentID != filter.StudentID {
			continue
		}
		if filter.CourseID != "" && enr.CourseID != filter.CourseID {
			continue
		}
		if filter.ActiveOnly && !enr.IsActive {
			continue
		}
		if len(filter.Statuses) > 0 && !containsString(filter.Statuses, enr.PaymentStatus) {
			continue
		}
		matches = append(matches, enr)
	}

	sortEnrollments(matches, ordering)

	limit := page.LimitOrDefault()
	if page.Offset >= len(matches) {
		return []enrollment.Enrollment{}, nil
	}
	matches = matches[page.Offset:]
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (repo *enrollmentRepository) SwapPaymentStatus(
	ctx context.Context,
	id, from, to string,
	transactionID null.String,
	perms enrollment.AccessPermissions,
) (bool, enrollment.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	enr, ok := repo.db.table[id]
	if !ok {
		return false, enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	if enr.PaymentStatus != from {
		return false, *enr, nil
	}

	if transactionID.Valid {
		for _, other := range repo.db.table {
			if other.ID != id && other.TransactionID.Valid && other.TransactionID.String == transactionID.String {
				return false, enrollment.Enrollment{}, enrollment.ErrTransactionExists
			}
		}
		enr.TransactionID = transactionID
	}
	enr.PaymentStatus = to
	enr.AccessPermissions = perms
	enr.UpdatedAt = time.Now().UTC()
	return true, *enr, nil
}

func (repo *enrollmentRepository) AddProgressItem(ctx context.Context, id, itemID, itemType string, at time.Time) (enrollment.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	enr, ok := repo.db.table[id]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}

	set := &enr.Progress.CompletedLessons
	if itemType == enrollment.ItemAssignment {
		set = &enr.Progress.CompletedAssignments
	}
	if !containsString(*set, itemID) {
		*set = append(*set, itemID)
	}
	enr.Progress.LastAccessedAt = null.TimeFrom(at.UTC())
	enr.UpdatedAt = at.UTC()
	return *enr, nil
}

func (repo *enrollmentRepository) SetTotalProgress(ctx context.Context, id string, pct float64, at time.Time) (enrollment.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	enr, ok := repo.db.table[id]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	enr.Progress.TotalProgress = pct
	enr.Progress.LastAccessedAt = null.TimeFrom(at.UTC())
	enr.UpdatedAt = at.UTC()
	return *enr, nil
}

func (repo *enrollmentRepository) CourseEnrollmentStats(ctx context.Context, courseID string) (enrollment.Stats, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	stats := enrollment.Stats{ByType: make(map[string]enrollment.TypeStats)}
	for _, enr := range repo.db.table {
		if !enr.IsActive || enr.CourseID != courseID {
			continue
		}
		typStats := stats.ByType[enr.EnrollmentType]
		typStats.Count++
		typStats.Revenue += enr.PaymentAmount
		stats.ByType[enr.EnrollmentType] = typStats
		stats.Total++
		stats.TotalRevenue += enr.PaymentAmount
	}
	return stats, nil
}

// sortEnrollments orders by the first recognized ordering field, defaulting
// to most recently enrolled first.
func sortEnrollments(enrs []enrollment.Enrollment, ordering []core.DBOrdering) {
	less := func(i, j int) bool { return enrs[i].EnrolledAt.After(enrs[j].EnrolledAt) }
	for _, ord := range ordering {
		switch {
		case ord.Field == "enrolled_at" && ord.Ascending:
			less = func(i, j int) bool { return enrs[i].EnrolledAt.Before(enrs[j].EnrolledAt) }
		case ord.Field == "enrolled_at":
			// default, keep
		case ord.Field == "total_progress" && ord.Ascending:
			less = func(i, j int) bool { return enrs[i].Progress.TotalProgress < enrs[j].Progress.TotalProgress }
		case ord.Field == "total_progress":
			less = func(i, j int) bool { return enrs[i].Progress.TotalProgress > enrs[j].Progress.TotalProgress }
		default:
			continue
		}
		break
	}
	sort.Slice(enrs, less)
}

func containsString(slice []string, s string) bool {
	for _, val := range slice {
		if val == s {
			return true
		}
	}
	return false
}
