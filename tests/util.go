package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/chibale/darasa/core/course"
	"github.com/chibale/darasa/core/enrollment"
	"github.com/chibale/darasa/core/user"
)

type (
	userCreator interface {
		CreateUser(ctx context.Context, usr user.User) (user.User, error)
	}

	courseCreator interface {
		CreateCourse(ctx context.Context, crs course.Course) (course.Course, error)
	}

	enrollmentCreator interface {
		CreateEnrollment(ctx context.Context, enr enrollment.Enrollment) (enrollment.Enrollment, error)
	}
)

func CreateUser(
	t *testing.T,
	repo userCreator,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(
	t *testing.T,
	catalog courseCreator,
	title, instructorID, status string,
	notesPrice, liveSessionPrice float64,
	maxEnrollments int,
	deadline ...time.Time,
) course.Course {
	t.Helper()

	now := time.Now().UTC()
	crs := course.Course{
		Title:            title,
		InstructorID:     instructorID,
		Status:           status,
		NotesPrice:       notesPrice,
		LiveSessionPrice: liveSessionPrice,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if maxEnrollments > 0 {
		crs.MaxEnrollments = null.IntFrom(maxEnrollments)
	}
	if len(deadline) > 0 {
		crs.EnrollmentDeadline = null.TimeFrom(deadline[0].UTC())
	}
	crs, err := catalog.CreateCourse(context.Background(), crs)
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

func CreateEnrollment(
	t *testing.T,
	repo enrollmentCreator,
	studentID, courseID, enrollmentType, paymentStatus string,
	amount float64,
	expiresAt ...time.Time,
) enrollment.Enrollment {
	t.Helper()

	now := time.Now().UTC()
	enr := enrollment.Enrollment{
		StudentID:         studentID,
		CourseID:          courseID,
		EnrollmentType:    enrollmentType,
		PaymentAmount:     amount,
		PaymentStatus:     paymentStatus,
		IsActive:          true,
		AccessPermissions: enrollment.DerivePermissions(enrollmentType, paymentStatus),
		EnrolledAt:        now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if len(expiresAt) > 0 {
		enr.ExpiresAt = null.TimeFrom(expiresAt[0].UTC())
	}
	enr, err := repo.CreateEnrollment(context.Background(), enr)
	if err != nil {
		t.Fatalf("CreateEnrollment() failed: %v", err)
	}
	return enr
}
