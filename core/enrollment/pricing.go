package enrollment

import "github.com/chibale/darasa/core/course"

// bundleLiveSessionFactor is the bundle discount: 20% off the live-session
// price component only, when enrolling for both.
const bundleLiveSessionFactor = 0.8

// Price computes the amount owed for a requested enrollment type. A zero
// amount is meaningful: the enrollment is treated as auto-paid on creation.
func Price(crs course.Course, enrollmentType string) float64 {
	switch enrollmentType {
	case TypeNotes:
		return crs.NotesPrice
	case TypeLiveSessions:
		return crs.LiveSessionPrice
	case TypeBoth:
		return crs.NotesPrice + crs.LiveSessionPrice*bundleLiveSessionFactor
	}
	return 0
}
