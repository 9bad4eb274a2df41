package enrollment

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/chibale/darasa/core"
	"github.com/chibale/darasa/core/course"
	"github.com/chibale/darasa/core/user"
)

var (
	// errors
	ErrNotFound              = errors.New("enrollment not found")
	ErrCourseUnavailable     = errors.New("course is not open for enrollment")
	ErrDeadlinePassed        = errors.New("enrollment deadline has passed")
	ErrCourseFull            = errors.New("course has reached its enrollment limit")
	ErrAlreadyEnrolled       = errors.New("student is already enrolled in this course")
	ErrInvalidEnrollmentType = errors.New("invalid enrollment type")
	ErrPaymentNotPending     = errors.New("enrollment payment is not pending")
	ErrTransactionExists     = errors.New("transaction reference already used")
)

type (
	// Repository is the enrollment record's persistence boundary. Implementations
	// must enforce the one-active-enrollment-per-(student,course) invariant on
	// CreateEnrollment (insert-if-absent, surfacing ErrAlreadyEnrolled), apply
	// SwapPaymentStatus as a compare-and-swap on the current stored status, and
	// apply AddProgressItem as an atomic add-to-set.
	Repository interface {
		CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
		GetEnrollmentByID(ctx context.Context, id string) (Enrollment, error)
		GetActiveEnrollment(ctx context.Context, studentID, courseID string) (Enrollment, error)
		// FilterEnrollments applies AND operation on available QueryFilter fields,
		// most recently enrolled first unless overridden by ordering.
		FilterEnrollments(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Enrollment, error)
		// SwapPaymentStatus transitions PaymentStatus from->to and stores the derived
		// permissions, only if the current stored status equals `from`. It reports
		// whether the swap happened and returns the (possibly untouched) record.
		SwapPaymentStatus(ctx context.Context, id, from, to string, transactionID null.String, perms AccessPermissions) (bool, Enrollment, error)
		AddProgressItem(ctx context.Context, id, itemID, itemType string, at time.Time) (Enrollment, error)
		SetTotalProgress(ctx context.Context, id string, pct float64, at time.Time) (Enrollment, error)
		CourseEnrollmentStats(ctx context.Context, courseID string) (Stats, error)
	}

	// Directory resolves user identities; satisfied by user.Repository.
	Directory interface {
		GetUserByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo    Repository
		catalog course.Catalog
		users   Directory
		mail    core.EmailService
		log     core.Logger
	}
)

func NewService(repo Repository, catalog course.Catalog, users Directory, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		users:   users,
		mail:    mailSvc,
		log:     logger,
	}
}

// Enroll admits a student into a course and creates the entitlement record.
// A zero-priced enrollment is auto-paid: it starts out completed and counts
// towards the course's enrollment count immediately.
func (svc *Service) Enroll(ctx context.Context, studentID, courseID string, ne NewEnrollment) (Enrollment, error) {
	crs, err := svc.catalog.GetCourse(ctx, courseID)
	if err != nil {
		return Enrollment{}, err
	}

	var alreadyEnrolled bool
	if _, err := svc.repo.GetActiveEnrollment(ctx, studentID, courseID); err == nil {
		alreadyEnrolled = true
	} else if err != ErrNotFound {
		return Enrollment{}, pkgerrors.Wrap(err, "checking active enrollment")
	}

	now := NowFunc().UTC()
	if err := Admit(crs, ne.EnrollmentType, alreadyEnrolled, now); err != nil {
		return Enrollment{}, err
	}

	amount := Price(crs, ne.EnrollmentType)
	status := StatusPending
	if amount == 0 {
		status = StatusCompleted
	}

	enr := Enrollment{
		StudentID:         studentID,
		CourseID:          courseID,
		EnrollmentType:    ne.EnrollmentType,
		PaymentAmount:     amount,
		PaymentStatus:     status,
		PaymentMethod:     ne.PaymentMethod,
		IsActive:          true,
		AccessPermissions: DerivePermissions(ne.EnrollmentType, status),
		EnrolledAt:        now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	enr, err = svc.repo.CreateEnrollment(ctx, enr)
	if err != nil {
		return Enrollment{}, err
	}

	if status == StatusCompleted {
		if err := svc.catalog.IncrementEnrollmentCount(ctx, courseID); err != nil {
			svc.log.Error("incrementing enrollment count", err)
		}
	}

	svc.notifyInstructor(ctx, crs, studentID)

	return enr, nil
}

// CompletePayment transitions a pending enrollment to completed on payment
// confirmation. The transition is a compare-and-swap on the stored status:
// re-delivery of a confirmation for an already-completed enrollment is a
// no-op success and the course counter is incremented at most once.
func (svc *Service) CompletePayment(ctx context.Context, enrollmentID string, cp CompletePayment) (Enrollment, error) {
	enr, err := svc.repo.GetEnrollmentByID(ctx, enrollmentID)
	if err != nil {
		return Enrollment{}, err
	}

	perms := DerivePermissions(enr.EnrollmentType, StatusCompleted)
	swapped, enr, err := svc.repo.SwapPaymentStatus(
		ctx, enrollmentID, StatusPending, StatusCompleted, null.StringFrom(cp.TransactionID), perms)
	if err != nil {
		return Enrollment{}, err
	}
	if !swapped {
		if enr.PaymentStatus == StatusCompleted {
			return enr, nil // idempotent re-confirmation
		}
		return Enrollment{}, ErrPaymentNotPending
	}

	if err := svc.catalog.IncrementEnrollmentCount(ctx, enr.CourseID); err != nil {
		svc.log.Error("incrementing enrollment count", err)
	}
	return enr, nil
}

// FailPayment transitions a pending enrollment to failed. The record stays
// active: the student cannot re-enroll until administrative action, which
// prevents payment retries from creating duplicate rows.
func (svc *Service) FailPayment(ctx context.Context, enrollmentID string) (Enrollment, error) {
	return svc.swapOrNotPending(ctx, enrollmentID, StatusPending, StatusFailed)
}

// RefundPayment transitions a completed enrollment to refunded. There is no
// way back to completed without a new enrollment record.
func (svc *Service) RefundPayment(ctx context.Context, enrollmentID string) (Enrollment, error) {
	return svc.swapOrNotPending(ctx, enrollmentID, StatusCompleted, StatusRefunded)
}

func (svc *Service) swapOrNotPending(ctx context.Context, enrollmentID, from, to string) (Enrollment, error) {
	enr, err := svc.repo.GetEnrollmentByID(ctx, enrollmentID)
	if err != nil {
		return Enrollment{}, err
	}
	perms := DerivePermissions(enr.EnrollmentType, to)
	swapped, enr, err := svc.repo.SwapPaymentStatus(ctx, enrollmentID, from, to, enr.TransactionID, perms)
	if err != nil {
		return Enrollment{}, err
	}
	if !swapped {
		return Enrollment{}, ErrPaymentNotPending
	}
	return enr, nil
}

// CheckAccess answers "can this student access this course resource right now?".
// Side-effect free and safe to call at high frequency; expiry is evaluated
// live, not read from stored permissions.
func (svc *Service) CheckAccess(ctx context.Context, studentID, courseID, accessType string) (bool, *Enrollment, error) {
	enr, err := svc.repo.GetActiveEnrollment(ctx, studentID, courseID)
	if err != nil {
		if err == ErrNotFound {
			return false, nil, nil
		}
		return false, nil, err
	}
	return enr.CanAccess(accessType, NowFunc().UTC()), &enr, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Enrollment, error) {
	return svc.repo.GetEnrollmentByID(ctx, id)
}

func (svc *Service) GetActive(ctx context.Context, studentID, courseID string) (Enrollment, error) {
	return svc.repo.GetActiveEnrollment(ctx, studentID, courseID)
}

// StudentEnrollment pairs an enrollment with a summary of its course, for
// the student dashboard.
type StudentEnrollment struct {
	Enrollment
	Course course.Summary `json:"course"`
}

// ListForStudent lists a student's active enrollments together with their
// course summaries, most recent first.
func (svc *Service) ListForStudent(ctx context.Context, studentID string, page core.Pagination) ([]StudentEnrollment, error) {
	enrs, err := svc.QueryByStudent(ctx, studentID, page)
	if err != nil {
		return nil, err
	}

	out := make([]StudentEnrollment, 0, len(enrs))
	for _, enr := range enrs {
		crs, err := svc.catalog.GetCourse(ctx, enr.CourseID)
		if err != nil {
			if err == course.ErrNotFound {
				continue // course was removed; skip the orphan
			}
			return nil, pkgerrors.Wrap(err, "fetching course summary")
		}
		out = append(out, StudentEnrollment{Enrollment: enr, Course: crs.Summary()})
	}
	return out, nil
}

// QueryByStudent lists a student's active enrollments, most recent first.
// Pending enrollments are included alongside completed ones; content access
// stays gated by CheckAccess.
func (svc *Service) QueryByStudent(ctx context.Context, studentID string, page core.Pagination) ([]Enrollment, error) {
	filter := QueryFilter{
		StudentID:  studentID,
		Statuses:   []string{StatusCompleted, StatusPending},
		ActiveOnly: true,
	}
	return svc.repo.FilterEnrollments(ctx, filter, nil, page)
}

// QueryByCourse lists a course's active enrollments, most recent first
// unless a custom ordering is given.
func (svc *Service) QueryByCourse(ctx context.Context, courseID string, ordering []core.DBOrdering, page core.Pagination) ([]Enrollment, error) {
	filter := QueryFilter{
		CourseID:   courseID,
		Statuses:   []string{StatusCompleted, StatusPending},
		ActiveOnly: true,
	}
	return svc.repo.FilterEnrollments(ctx, filter, ordering, page)
}

func (svc *Service) CourseStats(ctx context.Context, courseID string) (Stats, error) {
	return svc.repo.CourseEnrollmentStats(ctx, courseID)
}

// UpdateProgress applies a progress payload: an item completion (atomic
// add-to-set; re-adding a completed item is a no-op), an overall percentage
// (clamped to [0,100]), or both. Progress tracking does not require a
// completed payment; access gating is CheckAccess's job alone.
func (svc *Service) UpdateProgress(ctx context.Context, enrollmentID string, up UpdateProgress) (Enrollment, error) {
	enr, err := svc.repo.GetEnrollmentByID(ctx, enrollmentID)
	if err != nil {
		return Enrollment{}, err
	}

	now := NowFunc().UTC()
	if up.ItemID != "" {
		enr, err = svc.repo.AddProgressItem(ctx, enrollmentID, up.ItemID, up.ItemType, now)
		if err != nil {
			return Enrollment{}, err
		}
	}
	if up.ProgressPercentage != nil {
		enr, err = svc.repo.SetTotalProgress(ctx, enrollmentID, clampProgress(*up.ProgressPercentage), now)
		if err != nil {
			return Enrollment{}, err
		}
	}
	return enr, nil
}

func clampProgress(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// notifyInstructor sends a best-effort new-enrollment notice to the course's
// instructor. Failures are logged and swallowed: enrollment success never
// depends on notification delivery.
func (svc *Service) notifyInstructor(ctx context.Context, crs course.Course, studentID string) {
	instructor, err := svc.users.GetUserByID(ctx, crs.InstructorID)
	if err != nil {
		svc.log.Error("finding instructor for enrollment notice", err)
		return
	}
	if instructor.Email == "" {
		return
	}

	student, err := svc.users.GetUserByID(ctx, studentID)
	if err != nil {
		svc.log.Error("finding student for enrollment notice", err)
		return
	}

	svc.mail.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: instructor.Name, Address: instructor.Email}},
		Subject: "New enrollment in " + crs.Title,
		BodyStr: fmt.Sprintf("%s has just enrolled in your course %q.", student.Name, crs.Title),
	})
}
