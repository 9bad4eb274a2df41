package course

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"
)

// Statuses a Course moves through before it may take enrollments.
const (
	StatusDraft           = "draft"
	StatusPendingApproval = "pending_approval"
	StatusApproved        = "approved"
	StatusRejected        = "rejected"
	StatusArchived        = "archived"
)

var (
	// errors
	ErrNotFound = errors.New("course not found")
)

// Course is the catalog's view of a course. This subsystem reads it and owns
// only the EnrollmentCount write path.
type Course struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	InstructorID       string    `json:"instructor_id"`
	Status             string    `json:"status"`
	NotesPrice         float64   `json:"notes_price"`
	LiveSessionPrice   float64   `json:"live_session_price"`
	EnrollmentDeadline null.Time `json:"enrollment_deadline"`
	MaxEnrollments     null.Int  `json:"max_enrollments"`
	EnrollmentCount    int       `json:"enrollment_count"`
	CreatedAt          time.Time `json:"created_at"` // UTC
	UpdatedAt          time.Time `json:"updated_at"` // UTC
}

func (c *Course) IsApproved() bool {
	return c.Status == StatusApproved
}

// DeadlinePassed reports whether the enrollment deadline is set and behind `now`.
func (c *Course) DeadlinePassed(now time.Time) bool {
	return c.EnrollmentDeadline.Valid && now.After(c.EnrollmentDeadline.Time)
}

// IsFull reports whether the enrollment cap is set and reached.
func (c *Course) IsFull() bool {
	return c.MaxEnrollments.Valid && c.EnrollmentCount >= c.MaxEnrollments.Int
}

// Summary is the course digest embedded in enrollment API responses.
type Summary struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	InstructorID     string  `json:"instructor_id"`
	Status           string  `json:"status"`
	NotesPrice       float64 `json:"notes_price"`
	LiveSessionPrice float64 `json:"live_session_price"`
}

func (c *Course) Summary() Summary {
	return Summary{
		ID:               c.ID,
		Title:            c.Title,
		InstructorID:     c.InstructorID,
		Status:           c.Status,
		NotesPrice:       c.NotesPrice,
		LiveSessionPrice: c.LiveSessionPrice,
	}
}

// Catalog is the read boundary to the course store, plus the single counter
// write this subsystem owns.
type Catalog interface {
	GetCourse(ctx context.Context, id string) (Course, error)
	// IncrementEnrollmentCount bumps the course's enrollment counter by 1.
	IncrementEnrollmentCount(ctx context.Context, id string) error
}
