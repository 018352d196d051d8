package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
)

type courseRepository interface {
	FindByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
}

// CourseService serves the read-only course catalog, cached when Redis is available.
type CourseService struct {
	repo   courseRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewCourseService constructs CourseService. cache may be nil.
func NewCourseService(repo courseRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// List returns catalog entries matching the filter.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	key := fmt.Sprintf("courses:list:%s:%s", filter.DepartmentID, strings.ToLower(filter.Search))
	courses, err := Remember(ctx, s.cache, key, s.ttl, func(ctx context.Context) ([]models.Course, error) {
		return s.repo.List(ctx, filter)
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// Get returns a single course. Unknown ids are not cached.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := Remember(ctx, s.cache, "courses:id:"+id, s.ttl, func(ctx context.Context) (*models.Course, error) {
		return s.repo.FindByID(ctx, nil, id)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrCourseNotFound, fmt.Sprintf("course %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	copied := *course
	return &copied, nil
}
