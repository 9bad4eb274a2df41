package enrollment

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/chibale/darasa/core"
)

// Enrollment types
const (
	TypeNotes        = "notes"
	TypeLiveSessions = "live_sessions"
	TypeBoth         = "both"
)

var AllTypes = []string{TypeNotes, TypeLiveSessions, TypeBoth}

// Payment statuses
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

// Progress item types
const (
	ItemLesson     = "lesson"
	ItemAssignment = "assignment"
)

// Access types for entitlement checks
const (
	AccessNotes        = "notes"
	AccessLiveSessions = "live_sessions"
)

// NowFunc is mockable for tests.
var NowFunc = time.Now

func ValidType(enrollmentType string) bool {
	for _, t := range AllTypes {
		if t == enrollmentType {
			return true
		}
	}
	return false
}

// AccessPermissions is derived state: always a pure function of
// (EnrollmentType, PaymentStatus). See DerivePermissions.
type AccessPermissions struct {
	CanAccessNotes        bool `json:"can_access_notes"`
	CanAccessLiveSessions bool `json:"can_access_live_sessions"`
	CanDownloadMaterials  bool `json:"can_download_materials"`
	CanSubmitAssignments  bool `json:"can_submit_assignments"`
}

// DerivePermissions computes the permissions owed to an enrollment. It must be
// invoked at every payment-status transition call site; permissions are never
// mutated independently.
func DerivePermissions(enrollmentType, paymentStatus string) AccessPermissions {
	if paymentStatus != StatusCompleted {
		return AccessPermissions{}
	}
	switch enrollmentType {
	case TypeNotes:
		return AccessPermissions{
			CanAccessNotes:       true,
			CanDownloadMaterials: true,
			CanSubmitAssignments: true,
		}
	case TypeLiveSessions:
		return AccessPermissions{
			CanAccessLiveSessions: true,
			CanSubmitAssignments:  true,
		}
	case TypeBoth:
		return AccessPermissions{
			CanAccessNotes:        true,
			CanAccessLiveSessions: true,
			CanDownloadMaterials:  true,
			CanSubmitAssignments:  true,
		}
	}
	return AccessPermissions{}
}

type Progress struct {
	CompletedLessons     []string  `json:"completed_lessons"`
	CompletedAssignments []string  `json:"completed_assignments"`
	TotalProgress        float64   `json:"total_progress"` // 0..100
	LastAccessedAt       null.Time `json:"last_accessed_at"`
}

// Enrollment binds a student to a course, carrying payment and access state.
type Enrollment struct {
	ID                string            `json:"id"`
	StudentID         string            `json:"student_id"`
	CourseID          string            `json:"course_id"`
	EnrollmentType    string            `json:"enrollment_type"` // immutable after creation
	PaymentAmount     float64           `json:"payment_amount"`  // computed once, never recomputed
	PaymentStatus     string            `json:"payment_status"`
	PaymentMethod     string            `json:"payment_method"`
	TransactionID     null.String       `json:"transaction_id"`
	IsActive          bool              `json:"is_active"`
	ExpiresAt         null.Time         `json:"expires_at"` // null = unlimited duration
	AccessPermissions AccessPermissions `json:"access_permissions"`
	Progress          Progress          `json:"progress"`
	EnrolledAt        time.Time         `json:"enrolled_at"` // UTC
	CreatedAt         time.Time         `json:"created_at"`  // UTC
	UpdatedAt         time.Time         `json:"updated_at"`  // UTC
}

// Expired reports whether the enrollment's access window has closed.
// Expiry is evaluated live, never cached in AccessPermissions.
func (e *Enrollment) Expired(now time.Time) bool {
	return e.ExpiresAt.Valid && now.After(e.ExpiresAt.Time)
}

// CanAccess answers an entitlement check for a single resource.
func (e *Enrollment) CanAccess(accessType string, now time.Time) bool {
	if e.Expired(now) {
		return false
	}
	switch accessType {
	case AccessNotes:
		return e.AccessPermissions.CanAccessNotes
	case AccessLiveSessions:
		return e.AccessPermissions.CanAccessLiveSessions
	}
	return false
}

// NewEnrollment contains information needed to enroll a student in a course.
type NewEnrollment struct {
	EnrollmentType string `json:"enrollment_type" validate:"required,enrollmenttype"`
	PaymentMethod  string `json:"payment_method"`
}

func (ne *NewEnrollment) Validate() error {
	ne.EnrollmentType = core.CleanString(ne.EnrollmentType, true /* lower */)
	ne.PaymentMethod = core.CleanString(ne.PaymentMethod)
	return core.Validate.Struct(ne)
}

// CompletePayment carries the external payment gateway's confirmation.
type CompletePayment struct {
	TransactionID    string `json:"transaction_id" validate:"required"`
	PaymentReference string `json:"payment_reference"`
}

func (cp *CompletePayment) Validate() error {
	cp.TransactionID = core.CleanString(cp.TransactionID)
	cp.PaymentReference = core.CleanString(cp.PaymentReference)
	return core.Validate.Struct(cp)
}

// UpdateProgress records completion of a single item, an overall percentage
// override, or both.
type UpdateProgress struct {
	ItemID             string   `json:"item_id" validate:"required_with=ItemType"`
	ItemType           string   `json:"item_type" validate:"required_with=ItemID,omitempty,itemtype"`
	ProgressPercentage *float64 `json:"progress_percentage"`
}

func (up *UpdateProgress) Validate() error {
	up.ItemID = core.CleanString(up.ItemID)
	up.ItemType = core.CleanString(up.ItemType, true /* lower */)
	return core.Validate.Struct(up)
}

func (up *UpdateProgress) IsEmpty() bool {
	return up.ItemID == "" && up.ProgressPercentage == nil
}

// QueryFilter applies AND operation on available fields.
type QueryFilter struct {
	StudentID  string
	CourseID   string
	Statuses   []string
	ActiveOnly bool
}

type (
	// TypeStats aggregates one enrollment type for a course.
	TypeStats struct {
		Count   int     `json:"count"`
		Revenue float64 `json:"revenue"`
	}

	// Stats aggregates a course's active enrollments.
	Stats struct {
		Total        int                  `json:"total"`
		TotalRevenue float64              `json:"total_revenue"`
		ByType       map[string]TypeStats `json:"by_type"`
	}
)
