package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	"github.com/noah-isme/uni-enroll-api/internal/repository"
	"github.com/noah-isme/uni-enroll-api/pkg/database"
)

// memStore is an in-memory stand-in for the database shared by the fake repositories.
// memUnitOfWork serializes units of work on it and restores a snapshot when one fails.
type memStore struct {
	mu          sync.Mutex
	txMu        sync.Mutex
	seq         int
	persons     map[string]models.Person
	courses     map[string]models.Course
	students    map[string]models.Student
	enrollments map[string]models.Enrollment
	fees        map[string]models.Fee
	audits      []models.AuditLog

	failFeeCreate   error
	failLabelUpdate error
}

func newMemStore() *memStore {
	return &memStore{
		persons:     map[string]models.Person{},
		courses:     map[string]models.Course{},
		students:    map[string]models.Student{},
		enrollments: map[string]models.Enrollment{},
		fees:        map[string]models.Fee{},
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

type memSnapshot struct {
	persons     map[string]models.Person
	students    map[string]models.Student
	enrollments map[string]models.Enrollment
	fees        map[string]models.Fee
	audits      []models.AuditLog
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		persons:     copyMap(s.persons),
		students:    copyMap(s.students),
		enrollments: copyMap(s.enrollments),
		fees:        copyMap(s.fees),
		audits:      append([]models.AuditLog(nil), s.audits...),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persons = snap.persons
	s.students = snap.students
	s.enrollments = snap.enrollments
	s.fees = snap.fees
	s.audits = snap.audits
}

func (s *memStore) addPerson(id string, role models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persons[id] = models.Person{ID: id, Email: id + "@uni.test", FullName: "Person " + id, Role: role}
}

func (s *memStore) addCourse(id, name string, fee float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[id] = models.Course{ID: id, Name: name, DepartmentID: "CS", Fee: fee}
}

func (s *memStore) addStudent(id, personID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[id] = models.Student{ID: id, PersonID: personID}
}

func (s *memStore) addEnrollment(e models.Enrollment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[e.ID] = e
}

func (s *memStore) person(id string) models.Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persons[id]
}

func (s *memStore) enrollment(id string) models.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrollments[id]
}

func (s *memStore) feeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fees)
}

func (s *memStore) studentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.students)
}

func (s *memStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]string, 0, len(s.audits))
	for _, a := range s.audits {
		actions = append(actions, a.Action)
	}
	return actions
}

type memUnitOfWork struct {
	store *memStore
}

func (u memUnitOfWork) WithinTx(ctx context.Context, fn database.TxFunc) error {
	u.store.txMu.Lock()
	defer u.store.txMu.Unlock()
	snap := u.store.snapshot()
	if err := fn(ctx, nil); err != nil {
		u.store.restore(snap)
		return err
	}
	return nil
}

type fakePersonRepo struct{ store *memStore }

func (r fakePersonRepo) FindByID(ctx context.Context, id string) (*models.Person, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.persons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (r fakePersonRepo) FindByEmail(ctx context.Context, email string) (*models.Person, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range r.store.persons {
		if p.Email == email {
			p := p
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r fakePersonRepo) Create(ctx context.Context, person *models.Person) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range r.store.persons {
		if p.Email == person.Email {
			return repository.ErrDuplicate
		}
	}
	if person.ID == "" {
		person.ID = r.store.nextID("person")
	}
	r.store.persons[person.ID] = *person
	return nil
}

func (r fakePersonRepo) FindRole(ctx context.Context, tx *sqlx.Tx, id string) (models.Role, error) {
	p, err := r.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Role, nil
}

func (r fakePersonRepo) LockRole(ctx context.Context, tx *sqlx.Tx, id string) (models.Role, error) {
	return r.FindRole(ctx, tx, id)
}

func (r fakePersonRepo) TransitionRole(ctx context.Context, tx *sqlx.Tx, id string, from, to models.Role) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.persons[id]
	if !ok || p.Role != from {
		return false, nil
	}
	p.Role = to
	r.store.persons[id] = p
	return true, nil
}

func (r fakePersonRepo) UpdateRole(ctx context.Context, id string, role models.Role) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.persons[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Role = role
	r.store.persons[id] = p
	return nil
}

type fakeCourseRepo struct {
	store *memStore
	calls int
}

func (r *fakeCourseRepo) FindByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Course, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.calls++
	c, ok := r.store.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (r *fakeCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.calls++
	out := []models.Course{}
	for _, c := range r.store.courses {
		if filter.DepartmentID != "" && c.DepartmentID != filter.DepartmentID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeStudentRepo struct{ store *memStore }

func (r fakeStudentRepo) FindByPerson(ctx context.Context, tx *sqlx.Tx, personID string) (*models.Student, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, s := range r.store.students {
		if s.PersonID == personID {
			s := s
			return &s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r fakeStudentRepo) Create(ctx context.Context, tx *sqlx.Tx, student *models.Student) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, s := range r.store.students {
		if s.PersonID == student.PersonID {
			return false, nil
		}
	}
	if student.ID == "" {
		student.ID = r.store.nextID("stu")
	}
	r.store.students[student.ID] = *student
	return true, nil
}

func (r fakeStudentRepo) UpdateCourseLabel(ctx context.Context, tx *sqlx.Tx, id, label string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.failLabelUpdate != nil {
		return r.store.failLabelUpdate
	}
	s, ok := r.store.students[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.CourseLabel = &label
	r.store.students[id] = s
	return nil
}

type fakeEnrollmentRepo struct{ store *memStore }

func (r fakeEnrollmentRepo) Create(ctx context.Context, tx *sqlx.Tx, e *models.Enrollment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if e.ID == "" {
		e.ID = r.store.nextID("enr")
	}
	r.store.enrollments[e.ID] = *e
	return nil
}

func (r fakeEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	e, ok := r.store.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (r fakeEnrollmentRepo) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error) {
	return r.FindByID(ctx, id)
}

func (r fakeEnrollmentRepo) detail(e models.Enrollment) models.EnrollmentDetail {
	d := models.EnrollmentDetail{Enrollment: e}
	if c, ok := r.store.courses[e.CourseID]; ok {
		d.CourseName = c.Name
		d.CourseFee = c.Fee
	}
	if s, ok := r.store.students[e.StudentID]; ok {
		d.PersonID = s.PersonID
		d.PersonName = r.store.persons[s.PersonID].FullName
	}
	if f, ok := r.store.fees[e.ID]; ok {
		amount, due := f.Amount, f.DueDate
		d.FeeAmount = &amount
		d.FeeDueDate = &due
	}
	return d
}

func (r fakeEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	e, ok := r.store.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	d := r.detail(e)
	return &d, nil
}

func (r fakeEnrollmentRepo) MarkPaid(ctx context.Context, tx *sqlx.Tx, id string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	e, ok := r.store.enrollments[id]
	if !ok || e.PaymentStatus || e.Status != models.EnrollmentStatusPendingPayment {
		return false, nil
	}
	e.PaymentStatus = true
	e.Status = models.EnrollmentStatusActive
	r.store.enrollments[id] = e
	return true, nil
}

func (r fakeEnrollmentRepo) MarkDropped(ctx context.Context, tx *sqlx.Tx, id string, dropDate time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	e, ok := r.store.enrollments[id]
	if !ok || e.Status == models.EnrollmentStatusDropped {
		return false, nil
	}
	e.Status = models.EnrollmentStatusDropped
	if e.DropDate == nil {
		e.DropDate = &dropDate
	}
	r.store.enrollments[id] = e
	return true, nil
}

func (r fakeEnrollmentRepo) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []models.EnrollmentDetail{}
	for _, e := range r.store.enrollments {
		if e.StudentID == studentID {
			out = append(out, r.detail(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []models.EnrollmentDetail{}
	for _, e := range r.store.enrollments {
		if filter.CourseID != "" && e.CourseID != filter.CourseID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, r.detail(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r fakeEnrollmentRepo) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.enrollments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.store.enrollments, id)
	delete(r.store.fees, id)
	return nil
}

type fakeFeeRepo struct{ store *memStore }

func (r fakeFeeRepo) Create(ctx context.Context, tx *sqlx.Tx, fee *models.Fee) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.failFeeCreate != nil {
		return r.store.failFeeCreate
	}
	if _, exists := r.store.fees[fee.EnrollmentID]; exists {
		return repository.ErrDuplicate
	}
	if fee.ID == "" {
		fee.ID = r.store.nextID("fee")
	}
	r.store.fees[fee.EnrollmentID] = *fee
	return nil
}

func (r fakeFeeRepo) FindByEnrollment(ctx context.Context, tx *sqlx.Tx, enrollmentID string) (*models.Fee, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	f, ok := r.store.fees[enrollmentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &f, nil
}

type fakeAuditRepo struct{ store *memStore }

func (r fakeAuditRepo) Create(ctx context.Context, tx *sqlx.Tx, log *models.AuditLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.audits = append(r.store.audits, *log)
	return nil
}
