package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chibale/darasa/core/course"
	"github.com/chibale/darasa/core/enrollment"
	"github.com/chibale/darasa/core/user"
	testutil "github.com/chibale/darasa/tests"
)

type apiActors struct {
	instructor user.User
	student    user.User
	admin      user.User
}

func createActors(t *testing.T, ta *testApp) apiActors {
	t.Helper()
	return apiActors{
		instructor: testutil.CreateUser(t, ta.usrRepo, "Teacher", "teach", "teach@test.cd", "", []string{user.RoleTeacher}, true),
		student:    testutil.CreateUser(t, ta.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true),
		admin:      testutil.CreateUser(t, ta.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true),
	}
}

func Test_enrollmentApi_enroll(t *testing.T) {
	ta := setup(t)
	actors := createActors(t, ta)

	crs := testutil.CreateCourse(t, ta.catalog, "Go 101", actors.instructor.ID, course.StatusApproved, 50, 30, 0)
	draft := testutil.CreateCourse(t, ta.catalog, "WIP", actors.instructor.ID, course.StatusDraft, 50, 30, 0)
	full := testutil.CreateCourse(t, ta.catalog, "Hot", actors.instructor.ID, course.StatusApproved, 50, 30, 1)
	closed := testutil.CreateCourse(t, ta.catalog, "Late", actors.instructor.ID, course.StatusApproved, 50, 30, 0,
		time.Now().UTC().Add(-time.Hour))

	// fill up the capped course
	other := testutil.CreateUser(t, ta.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)
	testutil.CreateEnrollment(t, ta.enrRepo, other.ID, full.ID, enrollment.TypeNotes, enrollment.StatusCompleted, 50)
	require.NoError(t, ta.catalog.IncrementEnrollmentCount(context.Background(), full.ID))

	path := func(courseID string) string { return fmt.Sprintf("/v1/courses/%s/enroll", courseID) }
	body := marshallObj(t, enrollment.NewEnrollment{EnrollmentType: enrollment.TypeBoth, PaymentMethod: "card"})

	tests := []httpTest{
		{name: "auth required", path: path(crs.ID), body: body, wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "learner required", path: path(crs.ID), body: body, token: getToken(t, actors.instructor),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unknown course", path: path("lol"), body: body, token: getToken(t, actors.student),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "course not found"}),
		},
		{
			name: "invalid enrollment type", path: path(crs.ID), token: getToken(t, actors.student),
			body:     marshallObj(t, enrollment.NewEnrollment{EnrollmentType: "lol"}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"enrollment_type": "enrollment type must be one of: notes, live_sessions, both"}),
		},
		{
			name: "draft course", path: path(draft.ID), body: body, token: getToken(t, actors.student),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "course is not open for enrollment"}),
		},
		{
			name: "course full", path: path(full.ID), body: body, token: getToken(t, actors.student),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "course has reached its enrollment limit"}),
		},
		{
			name: "deadline passed", path: path(closed.ID), body: body, token: getToken(t, actors.student),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "enrollment deadline has passed"}),
		},
		{name: "ok", path: path(crs.ID), body: body, token: getToken(t, actors.student), wantCode: http.StatusCreated},
		{
			name: "duplicate", path: path(crs.ID), body: body, token: getToken(t, actors.student),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "student is already enrolled in this course"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, tt.path, tt.token, tt.body)
			ta.app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				require.Equalf(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
				var enr enrollment.Enrollment
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enr))
				assert.Equal(t, actors.student.ID, enr.StudentID)
				assert.Equal(t, crs.ID, enr.CourseID)
				assert.Equal(t, 74.0, enr.PaymentAmount)
				assert.Equal(t, enrollment.StatusPending, enr.PaymentStatus)
				assert.Equal(t, enrollment.AccessPermissions{}, enr.AccessPermissions)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_enrollmentApi_completePayment(t *testing.T) {
	ta := setup(t)
	actors := createActors(t, ta)

	crs := testutil.CreateCourse(t, ta.catalog, "Go 101", actors.instructor.ID, course.StatusApproved, 50, 30, 0)
	enr := testutil.CreateEnrollment(t, ta.enrRepo, actors.student.ID, crs.ID, enrollment.TypeBoth, enrollment.StatusPending, 74)
	intruder := testutil.CreateUser(t, ta.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)

	path := func(id string) string { return fmt.Sprintf("/v1/enrollments/%s/complete-payment", id) }
	body := marshallObj(t, enrollment.CompletePayment{TransactionID: "txn-001"})

	tests := []httpTest{
		{name: "auth required", path: path(enr.ID), body: body, wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "missing transaction reference", path: path(enr.ID), token: getToken(t, actors.student),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"transaction_id": "this field is required"}),
		},
		{
			name: "not found", path: path("lol"), body: body, token: getToken(t, actors.student),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "enrollment not found"}),
		},
		{
			name: "not the owner", path: path(enr.ID), body: body, token: getToken(t, intruder),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "ok", path: path(enr.ID), body: body, token: getToken(t, actors.student), wantCode: http.StatusOK},
		{name: "re-confirmation is a no-op", path: path(enr.ID), body: body, token: getToken(t, actors.admin), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPut, tt.path, tt.token, tt.body)
			ta.app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				require.Equalf(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
				var got enrollment.Enrollment
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				assert.Equal(t, enrollment.StatusCompleted, got.PaymentStatus)
				assert.Equal(t, "txn-001", got.TransactionID.String)
				assert.True(t, got.AccessPermissions.CanAccessNotes)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	// the counter moved exactly once across confirmation + re-delivery
	got, err := ta.catalog.GetCourse(context.Background(), crs.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.EnrollmentCount)
}

func Test_enrollmentApi_myEnrollments(t *testing.T) {
	ta := setup(t)
	actors := createActors(t, ta)

	crs := testutil.CreateCourse(t, ta.catalog, "Go 101", actors.instructor.ID, course.StatusApproved, 50, 30, 0)
	enr := testutil.CreateEnrollment(t, ta.enrRepo, actors.student.ID, crs.ID, enrollment.TypeNotes, enrollment.StatusCompleted, 50)

	// another student's enrollment must not leak into the listing
	other := testutil.CreateUser(t, ta.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)
	testutil.CreateEnrollment(t, ta.enrRepo, other.ID, crs.ID, enrollment.TypeBoth, enrollment.StatusPending, 74)

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/my-enrollments")
		ta.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)}, rec)
	})

	t.Run("ok", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/my-enrollments", getToken(t, actors.student))
		ta.app.ServeHTTP(rec, req)
		require.Equalf(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

		var got []enrollment.StudentEnrollment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, enr.ID, got[0].ID)
		assert.Equal(t, crs.Title, got[0].Course.Title)
		assert.Equal(t, crs.InstructorID, got[0].Course.InstructorID)
	})

	t.Run("empty page", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/my-enrollments?page=5", getToken(t, actors.student))
		ta.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})
}

func Test_enrollmentApi_checkAccess(t *testing.T) {
	ta := setup(t)
	actors := createActors(t, ta)

	crs := testutil.CreateCourse(t, ta.catalog, "Go 101", actors.instructor.ID, course.StatusApproved, 50, 30, 0)
	testutil.CreateEnrollment(t, ta.enrRepo, actors.student.ID, crs.ID, enrollment.TypeNotes, enrollment.StatusCompleted, 50)

	expiredCrs := testutil.CreateCourse(t, ta.catalog, "Old", actors.instructor.ID, course.StatusApproved, 10, 0, 0)
	testutil.CreateEnrollment(t, ta.enrRepo, actors.student.ID, expiredCrs.ID, enrollment.TypeNotes, enrollment.StatusCompleted, 10,
		time.Now().UTC().Add(-time.Hour))

	path := func(courseID, accessType string) string {
		return fmt.Sprintf("/v1/courses/%s/access?access_type=%s", courseID, accessType)
	}
	token := getToken(t, actors.student)

	tests := []struct {
		name       string
		path       string
		wantAccess bool
	}{
		{name: "granted for the paid-for resource", path: path(crs.ID, enrollment.AccessNotes), wantAccess: true},
		{name: "denied for the unpaid resource", path: path(crs.ID, enrollment.AccessLiveSessions)},
		{name: "denied without enrollment", path: path("lol", enrollment.AccessNotes)},
		{name: "denied after expiry", path: path(expiredCrs.ID, enrollment.AccessNotes)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, token)
			ta.app.ServeHTTP(rec, req)
			require.Equalf(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

			var got struct {
				HasAccess bool `json:"has_access"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.wantAccess, got.HasAccess)
		})
	}

	t.Run("invalid access type", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path(crs.ID, "lol"), token)
		ta.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"access_type": "invalid access type"}),
		}, rec)
	})
}

func Test_enrollmentApi_updateProgress(t *testing.T) {
	ta := setup(t)
	actors := createActors(t, ta)

	crs := testutil.CreateCourse(t, ta.catalog, "Go 101", actors.instructor.ID, course.StatusApproved, 50, 30, 0)
	testutil.CreateEnrollment(t, ta.enrRepo, actors.student.ID, crs.ID, enrollment.TypeBoth, enrollment.StatusCompleted, 74)

	path := fmt.Sprintf("/v1/courses/%s/progress", crs.ID)
	token := getToken(t, actors.student)

	t.Run("empty payload", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, path, token, marshallObj(t, enrollment.UpdateProgress{}))
		ta.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "nothing to update"}),
		}, rec)
	})

	t.Run("no active enrollment", func(t *testing.T) {
		req, rec := newAuthRequest(
			http.MethodPut, "/v1/courses/lol/progress", token,
			marshallObj(t, enrollment.UpdateProgress{ItemID: "les-1", ItemType: enrollment.ItemLesson}))
		ta.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "enrollment not found"}),
		}, rec)
	})

	t.Run("item completion is a set add", func(t *testing.T) {
		body := marshallObj(t, enrollment.UpdateProgress{ItemID: "les-1", ItemType: enrollment.ItemLesson})
		for i := 0; i < 2; i++ {
			req, rec := newAuthRequest(http.MethodPut, path, token, body)
			ta.app.ServeHTTP(rec, req)
			require.Equalf(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

			var got enrollment.Enrollment
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, []string{"les-1"}, got.Progress.CompletedLessons)
		}
	})

	t.Run("percentage is clamped", func(t *testing.T) {
		pct := 120.0
		req, rec := newAuthRequest(http.MethodPut, path, token, marshallObj(t, enrollment.UpdateProgress{ProgressPercentage: &pct}))
		ta.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var got enrollment.Enrollment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, 100.0, got.Progress.TotalProgress)
	})
}

func Test_enrollmentApi_courseEnrollments(t *testing.T) {
	ta := setup(t)
	actors := createActors(t, ta)

	crs := testutil.CreateCourse(t, ta.catalog, "Go 101", actors.instructor.ID, course.StatusApproved, 50, 30, 0)
	testutil.CreateEnrollment(t, ta.enrRepo, actors.student.ID, crs.ID, enrollment.TypeNotes, enrollment.StatusCompleted, 50)

	rival := testutil.CreateUser(t, ta.usrRepo, "Rival", "rival", "rival@test.cd", "", []string{user.RoleTeacher}, true)

	path := fmt.Sprintf("/v1/courses/%s/enrollments", crs.ID)

	tests := []httpTest{
		{name: "auth required", path: path, wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "students may not peek", path: path, token: getToken(t, actors.student),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "only the owning instructor", path: path, token: getToken(t, rival),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unknown course", path: "/v1/courses/lol/enrollments", token: getToken(t, actors.admin),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "course not found"}),
		},
		{name: "instructor", path: path, token: getToken(t, actors.instructor), wantCode: http.StatusOK},
		{name: "admin", path: path, token: getToken(t, actors.admin), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			ta.app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				require.Equalf(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
				var got struct {
					Enrollments []enrollment.Enrollment `json:"enrollments"`
					Stats       enrollment.Stats        `json:"stats"`
				}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				require.Len(t, got.Enrollments, 1)
				assert.Equal(t, actors.student.ID, got.Enrollments[0].StudentID)
				assert.Equal(t, 1, got.Stats.Total)
				assert.Equal(t, 50.0, got.Stats.TotalRevenue)
				assert.Equal(t, 1, got.Stats.ByType[enrollment.TypeNotes].Count)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("ordering", func(t *testing.T) {
		second := testutil.CreateUser(t, ta.usrRepo, "Second", "second", "second@test.cd", "", []string{user.RoleStudent}, true)
		testutil.CreateEnrollment(t, ta.enrRepo, second.ID, crs.ID, enrollment.TypeNotes, enrollment.StatusCompleted, 50)

		var got struct {
			Enrollments []enrollment.Enrollment `json:"enrollments"`
		}

		// default: most recent first
		req, rec := newAuthRequest(http.MethodGet, path, getToken(t, actors.instructor))
		ta.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got.Enrollments, 2)
		assert.Equal(t, second.ID, got.Enrollments[0].StudentID)

		// oldest first
		req, rec = newAuthRequest(http.MethodGet, path+"?ordering=enrolled_at", getToken(t, actors.instructor))
		ta.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got.Enrollments, 2)
		assert.Equal(t, actors.student.ID, got.Enrollments[0].StudentID)
	})
}
