package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
)

type memCacheRepo struct {
	entries map[string][]byte
}

func (m *memCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func TestCourseServiceCachesCatalogReads(t *testing.T) {
	store := newMemStore()
	store.addCourse("C101", "Databases", 500)
	store.addCourse("C102", "Networks", 300)
	repo := &fakeCourseRepo{store: store}
	metrics := NewMetricsService()
	cache := NewCacheService(&memCacheRepo{entries: map[string][]byte{}}, metrics, time.Minute, nil, true)
	svc := NewCourseService(repo, cache, time.Minute, nil)

	first, err := svc.List(context.Background(), models.CourseFilter{})
	require.NoError(t, err)
	second, err := svc.List(context.Background(), models.CourseFilter{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.calls)

	course, err := svc.Get(context.Background(), "C101")
	require.NoError(t, err)
	assert.Equal(t, 500.0, course.Fee)
	_, err = svc.Get(context.Background(), "C101")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestCourseServiceCollapsesConcurrentMisses(t *testing.T) {
	store := newMemStore()
	store.addCourse("C101", "Databases", 500)
	release := make(chan struct{})
	repo := &blockingCourseRepo{fakeCourseRepo: fakeCourseRepo{store: store}, release: release}
	svc := NewCourseService(repo, NewCacheService(nil, nil, 0, nil, false), time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			course, err := svc.Get(context.Background(), "C101")
			assert.NoError(t, err)
			assert.Equal(t, "Databases", course.Name)
		}()
	}
	require.Eventually(t, func() bool { return repo.started() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, 1, repo.started())
}

type blockingCourseRepo struct {
	fakeCourseRepo
	mu      sync.Mutex
	entered int
	release chan struct{}
}

func (r *blockingCourseRepo) FindByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Course, error) {
	r.mu.Lock()
	r.entered++
	r.mu.Unlock()
	<-r.release
	return r.fakeCourseRepo.FindByID(ctx, tx, id)
}

func (r *blockingCourseRepo) started() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entered
}

func TestCourseServiceWithoutCache(t *testing.T) {
	store := newMemStore()
	repo := &fakeCourseRepo{store: store}
	svc := NewCourseService(repo, NewCacheService(nil, nil, 0, nil, false), time.Minute, nil)

	_, err := svc.Get(context.Background(), "C404")
	assertCode(t, err, appErrors.ErrCourseNotFound.Code)
	_, err = svc.Get(context.Background(), "C404")
	assertCode(t, err, appErrors.ErrCourseNotFound.Code)
	assert.Equal(t, 2, repo.calls)
}
