package dummydb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chibale/darasa/core/course"
)

type courseCatalog struct {
	db *courseTable
}

var _ course.Catalog = (*courseCatalog)(nil) // interface compliance check

func NewCourseCatalog(db *DB) *courseCatalog {
	return &courseCatalog{db: db.course}
}

func (repo *courseCatalog) GetCourse(ctx context.Context, id string) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if crs, ok := repo.db.table[id]; ok {
		return *crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseCatalog) IncrementEnrollmentCount(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	crs, ok := repo.db.table[id]
	if !ok {
		return course.ErrNotFound
	}
	crs.EnrollmentCount++
	crs.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *courseCatalog) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	crs.ID = uuid.New().String()
	now := time.Now().UTC()
	if crs.CreatedAt.IsZero() {
		crs.CreatedAt = now
	}
	crs.UpdatedAt = now
	repo.db.table[crs.ID] = &crs
	return crs, nil
}
