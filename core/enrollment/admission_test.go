package enrollment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/chibale/darasa/core/course"
)

func Test_Admit(t *testing.T) {
	now := time.Now().UTC()

	approved := func() course.Course {
		return course.Course{Status: course.StatusApproved}
	}

	tests := []struct {
		name            string
		crs             course.Course
		enrollmentType  string
		alreadyEnrolled bool
		wantErr         error
	}{
		{name: "ok", crs: approved(), enrollmentType: TypeBoth},
		{name: "ok with future deadline", crs: course.Course{Status: course.StatusApproved, EnrollmentDeadline: null.TimeFrom(now.Add(time.Hour))}, enrollmentType: TypeNotes},
		{name: "draft course", crs: course.Course{Status: course.StatusDraft}, enrollmentType: TypeNotes, wantErr: ErrCourseUnavailable},
		{name: "rejected course", crs: course.Course{Status: course.StatusRejected}, enrollmentType: TypeNotes, wantErr: ErrCourseUnavailable},
		{name: "archived course", crs: course.Course{Status: course.StatusArchived}, enrollmentType: TypeNotes, wantErr: ErrCourseUnavailable},
		{
			name:           "deadline passed",
			crs:            course.Course{Status: course.StatusApproved, EnrollmentDeadline: null.TimeFrom(now.Add(-time.Hour))},
			enrollmentType: TypeNotes,
			wantErr:        ErrDeadlinePassed,
		},
		{
			name:           "course full",
			crs:            course.Course{Status: course.StatusApproved, MaxEnrollments: null.IntFrom(1), EnrollmentCount: 1},
			enrollmentType: TypeNotes,
			wantErr:        ErrCourseFull,
		},
		{
			// full beats the type check: a full course rejects any requested type
			name:           "course full regardless of type",
			crs:            course.Course{Status: course.StatusApproved, MaxEnrollments: null.IntFrom(1), EnrollmentCount: 1},
			enrollmentType: "lol",
			wantErr:        ErrCourseFull,
		},
		{name: "already enrolled", crs: approved(), enrollmentType: TypeNotes, alreadyEnrolled: true, wantErr: ErrAlreadyEnrolled},
		{name: "invalid type", crs: approved(), enrollmentType: "lol", wantErr: ErrInvalidEnrollmentType},
		{name: "empty type", crs: approved(), wantErr: ErrInvalidEnrollmentType},
		{
			// unavailability is checked before the deadline
			name:           "draft course with passed deadline",
			crs:            course.Course{Status: course.StatusDraft, EnrollmentDeadline: null.TimeFrom(now.Add(-time.Hour))},
			enrollmentType: TypeNotes,
			wantErr:        ErrCourseUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Admit(tt.crs, tt.enrollmentType, tt.alreadyEnrolled, now)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tt.wantErr, err)
			}
		})
	}
}
