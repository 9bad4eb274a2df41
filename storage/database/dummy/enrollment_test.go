package dummydb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chibale/darasa/core"
	"github.com/chibale/darasa/core/enrollment"
	dummydb "github.com/chibale/darasa/storage/database/dummy"
)

func Test_enrollmentRepository_FilterEnrollments_ordering(t *testing.T) {
	db, err := dummydb.Open()
	require.NoError(t, err)
	repo := dummydb.NewEnrollmentRepository(db)

	ctx := context.Background()
	now := time.Now().UTC()

	create := func(studentID string, enrolledAt time.Time, pct float64) {
		t.Helper()
		_, err := repo.CreateEnrollment(ctx, enrollment.Enrollment{
			StudentID:      studentID,
			CourseID:       "crs",
			EnrollmentType: enrollment.TypeNotes,
			PaymentStatus:  enrollment.StatusCompleted,
			IsActive:       true,
			Progress:       enrollment.Progress{TotalProgress: pct},
			EnrolledAt:     enrolledAt,
		})
		require.NoError(t, err)
	}
	create("early", now.Add(-2*time.Hour), 80)
	create("middle", now.Add(-time.Hour), 20)
	create("late", now, 50)

	studentIDs := func(enrs []enrollment.Enrollment) []string {
		ids := make([]string, 0, len(enrs))
		for _, enr := range enrs {
			ids = append(ids, enr.StudentID)
		}
		return ids
	}

	filter := enrollment.QueryFilter{CourseID: "crs"}
	var page core.Pagination

	tests := []struct {
		name     string
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "default is most recent first", want: []string{"late", "middle", "early"}},
		{
			name:     "enrolled_at ascending",
			ordering: []core.DBOrdering{{Field: "enrolled_at", Ascending: true}},
			want:     []string{"early", "middle", "late"},
		},
		{
			name:     "total_progress ascending",
			ordering: []core.DBOrdering{{Field: "total_progress", Ascending: true}},
			want:     []string{"middle", "late", "early"},
		},
		{
			name:     "total_progress descending",
			ordering: []core.DBOrdering{{Field: "total_progress"}},
			want:     []string{"early", "late", "middle"},
		},
		{
			name:     "unknown field falls back to default",
			ordering: []core.DBOrdering{{Field: "payment_amount", Ascending: true}},
			want:     []string{"late", "middle", "early"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enrs, err := repo.FilterEnrollments(ctx, filter, tt.ordering, page)
			require.NoError(t, err)
			assert.Equal(t, tt.want, studentIDs(enrs))
		})
	}
}
