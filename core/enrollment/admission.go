package enrollment

import (
	"time"

	"github.com/chibale/darasa/core/course"
)

// Admit validates that a student may begin enrollment in a course.
// Checks run in order and the first failure wins. Admit is a pure decision
// function over externally supplied state; the duplicate check is re-enforced
// at write time by the record store's uniqueness constraint, since the
// check-then-act sequence here is not atomic across concurrent requests.
func Admit(crs course.Course, enrollmentType string, alreadyEnrolled bool, now time.Time) error {
	if !crs.IsApproved() {
		return ErrCourseUnavailable
	}
	if crs.DeadlinePassed(now) {
		return ErrDeadlinePassed
	}
	if crs.IsFull() {
		return ErrCourseFull
	}
	if alreadyEnrolled {
		return ErrAlreadyEnrolled
	}
	if !ValidType(enrollmentType) {
		return ErrInvalidEnrollmentType
	}
	return nil
}
