package catalog

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-courseware/internal/platform/apperr"
)

// Store persists the hierarchy. Implementations own order density: every
// link, unlink, replace, reorder and delete leaves each parent's children
// numbered 0..N-1.
type Store interface {
	CreateCourse(ctx context.Context, c *Course) error
	GetCourse(ctx context.Context, id uuid.UUID) (*Course, error)
	GetCourseBySlug(ctx context.Context, slug string) (*Course, error)
	ListCourses(ctx context.Context, orgID uuid.UUID) ([]Course, error)
	UpdateCourse(ctx context.Context, c *Course) error
	DeleteCourse(ctx context.Context, id uuid.UUID) error

	CreateModule(ctx context.Context, m *Module) error
	GetModule(ctx context.Context, id uuid.UUID) (*Module, error)
	GetModuleBySlug(ctx context.Context, slug string) (*Module, error)
	ListModules(ctx context.Context, orgID uuid.UUID) ([]Module, error)
	UpdateModule(ctx context.Context, m *Module) error
	DeleteModule(ctx context.Context, id uuid.UUID) error
	DetachModule(ctx context.Context, id uuid.UUID) error

	CreateLesson(ctx context.Context, l *Lesson) error
	GetLesson(ctx context.Context, id uuid.UUID) (*Lesson, error)
	GetLessonBySlug(ctx context.Context, slug string) (*Lesson, error)
	ListLessons(ctx context.Context, orgID uuid.UUID) ([]Lesson, error)
	UpdateLesson(ctx context.Context, l *Lesson) error
	DeleteLesson(ctx context.Context, id uuid.UUID) error

	LinkCourseModule(ctx context.Context, courseID, moduleID uuid.UUID, order int) error
	UnlinkCourseModule(ctx context.Context, courseID, moduleID uuid.UUID) error
	ReplaceCourseModules(ctx context.Context, courseID uuid.UUID, moduleIDs []uuid.UUID) error
	ReorderCourseModules(ctx context.Context, courseID uuid.UUID, moduleIDs []uuid.UUID) error
	CourseModules(ctx context.Context, courseID uuid.UUID) ([]LinkedModule, error)

	LinkModuleLesson(ctx context.Context, moduleID, lessonID uuid.UUID, order int) error
	UnlinkModuleLesson(ctx context.Context, moduleID, lessonID uuid.UUID) error
	ReplaceModuleLessons(ctx context.Context, moduleID uuid.UUID, lessonIDs []uuid.UUID) error
	ReorderModuleLessons(ctx context.Context, moduleID uuid.UUID, lessonIDs []uuid.UUID) error
	ModuleLessons(ctx context.Context, moduleID uuid.UUID) ([]LinkedLesson, error)

	SetQuizQuestions(ctx context.Context, lessonID uuid.UUID, questions []QuizQuestion) error
	QuizQuestions(ctx context.Context, lessonID uuid.UUID) ([]QuizQuestion, error)

	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	CreateEnrollment(ctx context.Context, e *Enrollment) error
	DeleteEnrollment(ctx context.Context, id uuid.UUID) error
	ListEnrollments(ctx context.Context, courseID uuid.UUID) ([]Enrollment, error)
	CreateCertificate(ctx context.Context, c *Certificate) error
	DeleteCertificate(ctx context.Context, id uuid.UUID) error
}

// LessonActivity reports whether learners have recorded work against a
// lesson. The progress stores implement it.
type LessonActivity interface {
	HasLessonActivity(ctx context.Context, lessonID uuid.UUID) (bool, error)
}

// memLink is a junction row whose order is its index in the parent's slice.
type memLink struct {
	child     uuid.UUID
	createdAt time.Time
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu sync.RWMutex

	courses map[uuid.UUID]Course
	modules map[uuid.UUID]Module
	lessons map[uuid.UUID]Lesson

	courseModules map[uuid.UUID][]memLink
	moduleLessons map[uuid.UUID][]memLink
	quiz          map[uuid.UUID][]QuizQuestion

	users        map[uuid.UUID]User
	enrollments  map[uuid.UUID]Enrollment
	certificates map[uuid.UUID]Certificate

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory catalog store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses:       make(map[uuid.UUID]Course),
		modules:       make(map[uuid.UUID]Module),
		lessons:       make(map[uuid.UUID]Lesson),
		courseModules: make(map[uuid.UUID][]memLink),
		moduleLessons: make(map[uuid.UUID][]memLink),
		quiz:          make(map[uuid.UUID][]QuizQuestion),
		users:         make(map[uuid.UUID]User),
		enrollments:   make(map[uuid.UUID]Enrollment),
		certificates:  make(map[uuid.UUID]Certificate),
		now:           time.Now,
	}
}

// Courses

func (s *MemoryStore) CreateCourse(ctx context.Context, c *Course) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.courses[c.ID]; ok {
		return apperr.Conflict("course %s already exists", c.ID)
	}
	if s.courseSlugTaken(c.Slug, uuid.Nil) {
		return apperr.Conflict("slug in use: %s", c.Slug)
	}
	stored := *c
	stored.Tags = cloneTags(c.Tags)
	s.courses[c.ID] = stored
	return nil
}

func (s *MemoryStore) GetCourse(ctx context.Context, id uuid.UUID) (*Course, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.courses[id]
	if !ok {
		return nil, apperr.NotFound("course not found: %s", id)
	}
	c.Tags = cloneTags(c.Tags)
	return &c, nil
}

func (s *MemoryStore) GetCourseBySlug(ctx context.Context, slug string) (*Course, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.courses {
		if c.Slug == slug {
			c.Tags = cloneTags(c.Tags)
			return &c, nil
		}
	}
	return nil, apperr.NotFound("course not found: %s", slug)
}

func (s *MemoryStore) ListCourses(ctx context.Context, orgID uuid.UUID) ([]Course, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Course{}
	for _, c := range s.courses {
		if c.OrgID == orgID {
			c.Tags = cloneTags(c.Tags)
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b Course) int {
		return compareEntity(a.Order, b.Order, a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) UpdateCourse(ctx context.Context, c *Course) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.courses[c.ID]; !ok {
		return apperr.NotFound("course not found: %s", c.ID)
	}
	if s.courseSlugTaken(c.Slug, c.ID) {
		return apperr.Conflict("slug in use: %s", c.Slug)
	}
	stored := *c
	stored.Tags = cloneTags(c.Tags)
	s.courses[c.ID] = stored
	return nil
}

func (s *MemoryStore) DeleteCourse(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.courses[id]; !ok {
		return apperr.NotFound("course not found: %s", id)
	}
	for _, e := range s.enrollments {
		if e.CourseID == id {
			return apperr.Conflict("course has enrollments")
		}
	}
	for _, c := range s.certificates {
		if c.CourseID == id {
			return apperr.Conflict("course has certificates")
		}
	}
	delete(s.courseModules, id)
	delete(s.courses, id)
	return nil
}

func (s *MemoryStore) courseSlugTaken(slug string, self uuid.UUID) bool {
	for id, c := range s.courses {
		if id != self && c.Slug == slug {
			return true
		}
	}
	return false
}

// Modules

func (s *MemoryStore) CreateModule(ctx context.Context, m *Module) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.modules[m.ID]; ok {
		return apperr.Conflict("module %s already exists", m.ID)
	}
	if s.moduleSlugTaken(m.Slug, uuid.Nil) {
		return apperr.Conflict("slug in use: %s", m.Slug)
	}
	stored := *m
	stored.Tags = cloneTags(m.Tags)
	s.modules[m.ID] = stored
	return nil
}

func (s *MemoryStore) GetModule(ctx context.Context, id uuid.UUID) (*Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.modules[id]
	if !ok {
		return nil, apperr.NotFound("module not found: %s", id)
	}
	m.Tags = cloneTags(m.Tags)
	return &m, nil
}

func (s *MemoryStore) GetModuleBySlug(ctx context.Context, slug string) (*Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.modules {
		if m.Slug == slug {
			m.Tags = cloneTags(m.Tags)
			return &m, nil
		}
	}
	return nil, apperr.NotFound("module not found: %s", slug)
}

func (s *MemoryStore) ListModules(ctx context.Context, orgID uuid.UUID) ([]Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Module{}
	for _, m := range s.modules {
		if m.OrgID == orgID {
			m.Tags = cloneTags(m.Tags)
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b Module) int {
		return compareEntity(a.Order, b.Order, a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) UpdateModule(ctx context.Context, m *Module) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.modules[m.ID]; !ok {
		return apperr.NotFound("module not found: %s", m.ID)
	}
	if s.moduleSlugTaken(m.Slug, m.ID) {
		return apperr.Conflict("slug in use: %s", m.Slug)
	}
	stored := *m
	stored.Tags = cloneTags(m.Tags)
	s.modules[m.ID] = stored
	return nil
}

// DeleteModule drops the module and its junction rows. Linked lessons stay.
func (s *MemoryStore) DeleteModule(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.modules[id]; !ok {
		return apperr.NotFound("module not found: %s", id)
	}
	for courseID, links := range s.courseModules {
		s.courseModules[courseID] = dropLink(links, id)
	}
	delete(s.moduleLessons, id)
	delete(s.modules, id)
	return nil
}

// DetachModule removes the module from every course that lists it. The
// module and its lessons stay.
func (s *MemoryStore) DetachModule(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.modules[id]; !ok {
		return apperr.NotFound("module not found: %s", id)
	}
	for courseID, links := range s.courseModules {
		s.courseModules[courseID] = dropLink(links, id)
	}
	return nil
}

func (s *MemoryStore) moduleSlugTaken(slug string, self uuid.UUID) bool {
	for id, m := range s.modules {
		if id != self && m.Slug == slug {
			return true
		}
	}
	return false
}

// Lessons

func (s *MemoryStore) CreateLesson(ctx context.Context, l *Lesson) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lessons[l.ID]; ok {
		return apperr.Conflict("lesson %s already exists", l.ID)
	}
	if s.lessonSlugTaken(l.Slug, uuid.Nil) {
		return apperr.Conflict("slug in use: %s", l.Slug)
	}
	stored := *l
	stored.Tags = cloneTags(l.Tags)
	s.lessons[l.ID] = stored
	return nil
}

func (s *MemoryStore) GetLesson(ctx context.Context, id uuid.UUID) (*Lesson, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lessons[id]
	if !ok {
		return nil, apperr.NotFound("lesson not found: %s", id)
	}
	l.Tags = cloneTags(l.Tags)
	return &l, nil
}

func (s *MemoryStore) GetLessonBySlug(ctx context.Context, slug string) (*Lesson, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.lessons {
		if l.Slug == slug {
			l.Tags = cloneTags(l.Tags)
			return &l, nil
		}
	}
	return nil, apperr.NotFound("lesson not found: %s", slug)
}

func (s *MemoryStore) ListLessons(ctx context.Context, orgID uuid.UUID) ([]Lesson, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Lesson{}
	for _, l := range s.lessons {
		if l.OrgID == orgID {
			l.Tags = cloneTags(l.Tags)
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b Lesson) int {
		return compareEntity(a.Order, b.Order, a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) UpdateLesson(ctx context.Context, l *Lesson) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lessons[l.ID]; !ok {
		return apperr.NotFound("lesson not found: %s", l.ID)
	}
	if s.lessonSlugTaken(l.Slug, l.ID) {
		return apperr.Conflict("slug in use: %s", l.Slug)
	}
	stored := *l
	stored.Tags = cloneTags(l.Tags)
	s.lessons[l.ID] = stored
	return nil
}

// DeleteLesson drops the lesson, its module links and its quiz questions.
// Learner activity is checked by the service, which can see the progress store.
func (s *MemoryStore) DeleteLesson(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lessons[id]; !ok {
		return apperr.NotFound("lesson not found: %s", id)
	}
	for moduleID, links := range s.moduleLessons {
		s.moduleLessons[moduleID] = dropLink(links, id)
	}
	delete(s.quiz, id)
	delete(s.lessons, id)
	return nil
}

func (s *MemoryStore) lessonSlugTaken(slug string, self uuid.UUID) bool {
	for id, l := range s.lessons {
		if id != self && l.Slug == slug {
			return true
		}
	}
	return false
}

// Course ↔ module links

func (s *MemoryStore) LinkCourseModule(ctx context.Context, courseID, moduleID uuid.UUID, order int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.courses[courseID]; !ok {
		return apperr.NotFound("course not found: %s", courseID)
	}
	if _, ok := s.modules[moduleID]; !ok {
		return apperr.NotFound("module not found: %s", moduleID)
	}
	links := s.courseModules[courseID]
	s.courseModules[courseID] = relink(links, placeAt(linkIDs(links), moduleID, order), s.now())
	return nil
}

func (s *MemoryStore) UnlinkCourseModule(ctx context.Context, courseID, moduleID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	links := s.courseModules[courseID]
	if !slices.Contains(linkIDs(links), moduleID) {
		return apperr.NotFound("module %s is not linked to course %s", moduleID, courseID)
	}
	s.courseModules[courseID] = dropLink(links, moduleID)
	return nil
}

func (s *MemoryStore) ReplaceCourseModules(ctx context.Context, courseID uuid.UUID, moduleIDs []uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkDistinct(moduleIDs); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.courses[courseID]; !ok {
		return apperr.NotFound("course not found: %s", courseID)
	}
	next := make([]memLink, 0, len(moduleIDs))
	now := s.now()
	for _, id := range moduleIDs {
		if _, ok := s.modules[id]; !ok {
			return apperr.NotFound("module not found: %s", id)
		}
		next = append(next, memLink{child: id, createdAt: now})
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.courseModules[courseID] = next
	return nil
}

func (s *MemoryStore) ReorderCourseModules(ctx context.Context, courseID uuid.UUID, moduleIDs []uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.courses[courseID]; !ok {
		return apperr.NotFound("course not found: %s", courseID)
	}
	links := s.courseModules[courseID]
	if err := checkFullSet(linkIDs(links), moduleIDs); err != nil {
		return err
	}
	s.courseModules[courseID] = relink(links, moduleIDs, s.now())
	return nil
}

func (s *MemoryStore) CourseModules(ctx context.Context, courseID uuid.UUID) ([]LinkedModule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.courses[courseID]; !ok {
		return nil, apperr.NotFound("course not found: %s", courseID)
	}
	links := s.courseModules[courseID]
	out := make([]LinkedModule, 0, len(links))
	for i, link := range links {
		m := s.modules[link.child]
		m.Tags = cloneTags(m.Tags)
		out = append(out, LinkedModule{
			Link:   CourseModule{CourseID: courseID, ModuleID: link.child, Order: i, CreatedAt: link.createdAt},
			Module: m,
		})
	}
	return out, nil
}

// Module ↔ lesson links

func (s *MemoryStore) LinkModuleLesson(ctx context.Context, moduleID, lessonID uuid.UUID, order int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.modules[moduleID]; !ok {
		return apperr.NotFound("module not found: %s", moduleID)
	}
	if _, ok := s.lessons[lessonID]; !ok {
		return apperr.NotFound("lesson not found: %s", lessonID)
	}
	links := s.moduleLessons[moduleID]
	s.moduleLessons[moduleID] = relink(links, placeAt(linkIDs(links), lessonID, order), s.now())
	return nil
}

func (s *MemoryStore) UnlinkModuleLesson(ctx context.Context, moduleID, lessonID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	links := s.moduleLessons[moduleID]
	if !slices.Contains(linkIDs(links), lessonID) {
		return apperr.NotFound("lesson %s is not linked to module %s", lessonID, moduleID)
	}
	s.moduleLessons[moduleID] = dropLink(links, lessonID)
	return nil
}

func (s *MemoryStore) ReplaceModuleLessons(ctx context.Context, moduleID uuid.UUID, lessonIDs []uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkDistinct(lessonIDs); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.modules[moduleID]; !ok {
		return apperr.NotFound("module not found: %s", moduleID)
	}
	next := make([]memLink, 0, len(lessonIDs))
	now := s.now()
	for _, id := range lessonIDs {
		if _, ok := s.lessons[id]; !ok {
			return apperr.NotFound("lesson not found: %s", id)
		}
		next = append(next, memLink{child: id, createdAt: now})
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.moduleLessons[moduleID] = next
	return nil
}

func (s *MemoryStore) ReorderModuleLessons(ctx context.Context, moduleID uuid.UUID, lessonIDs []uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.modules[moduleID]; !ok {
		return apperr.NotFound("module not found: %s", moduleID)
	}
	links := s.moduleLessons[moduleID]
	if err := checkFullSet(linkIDs(links), lessonIDs); err != nil {
		return err
	}
	s.moduleLessons[moduleID] = relink(links, lessonIDs, s.now())
	return nil
}

func (s *MemoryStore) ModuleLessons(ctx context.Context, moduleID uuid.UUID) ([]LinkedLesson, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.modules[moduleID]; !ok {
		return nil, apperr.NotFound("module not found: %s", moduleID)
	}
	links := s.moduleLessons[moduleID]
	out := make([]LinkedLesson, 0, len(links))
	for i, link := range links {
		l := s.lessons[link.child]
		l.Tags = cloneTags(l.Tags)
		out = append(out, LinkedLesson{
			Link:   ModuleLesson{ModuleID: moduleID, LessonID: link.child, Order: i, CreatedAt: link.createdAt},
			Lesson: l,
		})
	}
	return out, nil
}

// Quiz questions

func (s *MemoryStore) SetQuizQuestions(ctx context.Context, lessonID uuid.UUID, questions []QuizQuestion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lessons[lessonID]; !ok {
		return apperr.NotFound("lesson not found: %s", lessonID)
	}
	next := make([]QuizQuestion, len(questions))
	for i, q := range questions {
		q.LessonID = lessonID
		q.Order = i
		q.Answers = append([]string(nil), q.Answers...)
		next[i] = q
	}
	s.quiz[lessonID] = next
	return nil
}

func (s *MemoryStore) QuizQuestions(ctx context.Context, lessonID uuid.UUID) ([]QuizQuestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.lessons[lessonID]; !ok {
		return nil, apperr.NotFound("lesson not found: %s", lessonID)
	}
	qs := s.quiz[lessonID]
	out := make([]QuizQuestion, len(qs))
	for i, q := range qs {
		q.Answers = append([]string(nil), q.Answers...)
		out[i] = q
	}
	return out, nil
}

func linkIDs(links []memLink) []uuid.UUID {
	ids := make([]uuid.UUID, len(links))
	for i, l := range links {
		ids[i] = l.child
	}
	return ids
}

// relink lays links out in ids order, keeping the creation time of rows that
// already existed.
func relink(links []memLink, ids []uuid.UUID, now time.Time) []memLink {
	created := make(map[uuid.UUID]time.Time, len(links))
	for _, l := range links {
		created[l.child] = l.createdAt
	}
	out := make([]memLink, len(ids))
	for i, id := range ids {
		at, ok := created[id]
		if !ok {
			at = now
		}
		out[i] = memLink{child: id, createdAt: at}
	}
	return out
}

func dropLink(links []memLink, id uuid.UUID) []memLink {
	return slices.DeleteFunc(slices.Clone(links), func(l memLink) bool { return l.child == id })
}

// compareEntity orders by position, then creation time, then id.
func compareEntity(aOrder, bOrder int, aCreated, bCreated time.Time, aID, bID uuid.UUID) int {
	if aOrder != bOrder {
		return aOrder - bOrder
	}
	if c := aCreated.Compare(bCreated); c != 0 {
		return c
	}
	return bytes.Compare(aID[:], bID[:])
}
