package catalog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-courseware/internal/platform/apperr"
	"github.com/p-n-ai/pai-courseware/internal/status"
)

// CourseInput carries the fields of a create or full replace. Status and
// Difficulty accept external labels.
type CourseInput struct {
	OrgID       uuid.UUID
	Title       string
	Description string
	Category    string
	Status      string
	Difficulty  string
	Tags        []string
	Order       int
	Slug        string
}

// ModuleInput carries the fields of a module create or full replace.
type ModuleInput struct {
	OrgID       uuid.UUID
	Title       string
	Description string
	Category    string
	Status      string
	Difficulty  string
	Tags        []string
	Order       int
	Slug        string
	Duration    int
}

// LessonInput carries the fields of a lesson create or full replace.
type LessonInput struct {
	OrgID           uuid.UUID
	Title           string
	Description     string
	Category        string
	Status          string
	Difficulty      string
	Type            string
	DurationMinutes int
	Content         string
	VideoURL        string
	Tags            []string
	Order           int
	Slug            string
}

// CoursePatch updates only its non-nil fields.
type CoursePatch struct {
	Title       *string
	Description *string
	Category    *string
	Status      *string
	Difficulty  *string
	Tags        *[]string
	Order       *int
	Slug        *string
}

// ModulePatch updates only its non-nil fields.
type ModulePatch struct {
	Title       *string
	Description *string
	Category    *string
	Status      *string
	Difficulty  *string
	Tags        *[]string
	Order       *int
	Slug        *string
	Duration    *int
}

// LessonPatch updates only its non-nil fields.
type LessonPatch struct {
	Title           *string
	Description     *string
	Category        *string
	Status          *string
	Difficulty      *string
	Type            *string
	DurationMinutes *int
	Content         *string
	VideoURL        *string
	Tags            *[]string
	Order           *int
	Slug            *string
}

// QuestionInput is one authored quiz question.
type QuestionInput struct {
	Prompt       string
	Answers      []string
	CorrectIndex int
	Explanation  string
}

// ServiceConfig holds dependencies for the catalog service.
type ServiceConfig struct {
	Store    Store
	Activity LessonActivity // consulted before a lesson is deleted
	Cache    SummaryCache   // invalidated after every write
	Logger   *slog.Logger
	Now      func() time.Time
}

// Service validates operator input and applies it to the Store.
type Service struct {
	store    Store
	activity LessonActivity
	cache    SummaryCache
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	c := cfg.Cache
	if c == nil {
		c = NopSummaryCache{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    store,
		activity: cfg.Activity,
		cache:    c,
		logger:   logger.With("component", "catalog"),
		now:      now,
	}
}

// Store exposes the underlying store for read-side collaborators.
func (s *Service) Store() Store { return s.store }

// Courses

func (s *Service) CreateCourse(ctx context.Context, in CourseInput) (*Course, error) {
	diff, slug, err := prepareCourse(in)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	c := &Course{
		ID:          uuid.New(),
		OrgID:       in.OrgID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Status:      status.ToInternal(in.Status),
		Difficulty:  diff,
		Tags:        cloneTags(in.Tags),
		Order:       in.Order,
		Slug:        slug,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateCourse(ctx, c); err != nil {
		return nil, apperr.Storage("create course", err)
	}
	s.logger.Info("course created", "course_id", c.ID, "slug", c.Slug)
	s.invalidate(ctx)
	return c, nil
}

func (s *Service) UpdateCourse(ctx context.Context, id uuid.UUID, p CoursePatch) (*Course, error) {
	c, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get course", err)
	}
	in := CourseInput{
		OrgID: c.OrgID, Title: c.Title, Description: c.Description, Category: c.Category,
		Status: string(c.Status), Difficulty: string(c.Difficulty), Tags: c.Tags, Order: c.Order, Slug: c.Slug,
	}
	applyString(&in.Title, p.Title)
	applyString(&in.Description, p.Description)
	applyString(&in.Category, p.Category)
	applyString(&in.Status, p.Status)
	applyString(&in.Difficulty, p.Difficulty)
	applyString(&in.Slug, p.Slug)
	if p.Tags != nil {
		in.Tags = *p.Tags
	}
	if p.Order != nil {
		in.Order = *p.Order
	}
	return s.writeCourse(ctx, c, in, p.Slug != nil)
}

// ReplaceCourse overwrites every editable field. An empty Slug keeps the
// current one; OrgID cannot change.
func (s *Service) ReplaceCourse(ctx context.Context, id uuid.UUID, in CourseInput) (*Course, error) {
	c, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get course", err)
	}
	in.OrgID = c.OrgID
	explicit := strings.TrimSpace(in.Slug) != ""
	if !explicit {
		in.Slug = c.Slug
	}
	return s.writeCourse(ctx, c, in, explicit)
}

func (s *Service) writeCourse(ctx context.Context, c *Course, in CourseInput, reslug bool) (*Course, error) {
	diff, err := checkCommon(in.OrgID, false, in.Title, in.Description, in.Category, in.Difficulty)
	if err != nil {
		return nil, err
	}
	slug := c.Slug
	if reslug {
		if slug, err = resolveSlug(in.Slug, in.Title); err != nil {
			return nil, err
		}
	}
	c.Title = strings.TrimSpace(in.Title)
	c.Description = strings.TrimSpace(in.Description)
	c.Category = strings.TrimSpace(in.Category)
	c.Status = status.ToInternal(in.Status)
	c.Difficulty = diff
	c.Tags = cloneTags(in.Tags)
	c.Order = in.Order
	c.Slug = slug
	c.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateCourse(ctx, c); err != nil {
		return nil, apperr.Storage("update course", err)
	}
	s.invalidate(ctx)
	return c, nil
}

func (s *Service) DeleteCourse(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteCourse(ctx, id); err != nil {
		return apperr.Storage("delete course", err)
	}
	s.logger.Info("course deleted", "course_id", id)
	s.invalidate(ctx)
	return nil
}

func (s *Service) GetCourse(ctx context.Context, id uuid.UUID) (*Course, error) {
	c, err := s.store.GetCourse(ctx, id)
	return c, apperr.Storage("get course", err)
}

func (s *Service) CourseBySlug(ctx context.Context, slug string) (*Course, error) {
	c, err := s.store.GetCourseBySlug(ctx, strings.TrimSpace(slug))
	return c, apperr.Storage("get course by slug", err)
}

func (s *Service) ListCourses(ctx context.Context, orgID uuid.UUID) ([]Course, error) {
	cs, err := s.store.ListCourses(ctx, orgID)
	return cs, apperr.Storage("list courses", err)
}

// Modules

func (s *Service) CreateModule(ctx context.Context, in ModuleInput) (*Module, error) {
	diff, slug, err := prepareModule(in)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	m := &Module{
		ID:          uuid.New(),
		OrgID:       in.OrgID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Status:      status.ToInternal(in.Status),
		Difficulty:  diff,
		Tags:        cloneTags(in.Tags),
		Order:       in.Order,
		Slug:        slug,
		Duration:    in.Duration,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateModule(ctx, m); err != nil {
		return nil, apperr.Storage("create module", err)
	}
	s.logger.Info("module created", "module_id", m.ID, "slug", m.Slug)
	s.invalidate(ctx)
	return m, nil
}

func (s *Service) UpdateModule(ctx context.Context, id uuid.UUID, p ModulePatch) (*Module, error) {
	m, err := s.store.GetModule(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get module", err)
	}
	in := ModuleInput{
		OrgID: m.OrgID, Title: m.Title, Description: m.Description, Category: m.Category,
		Status: string(m.Status), Difficulty: string(m.Difficulty), Tags: m.Tags, Order: m.Order,
		Slug: m.Slug, Duration: m.Duration,
	}
	applyString(&in.Title, p.Title)
	applyString(&in.Description, p.Description)
	applyString(&in.Category, p.Category)
	applyString(&in.Status, p.Status)
	applyString(&in.Difficulty, p.Difficulty)
	applyString(&in.Slug, p.Slug)
	if p.Tags != nil {
		in.Tags = *p.Tags
	}
	if p.Order != nil {
		in.Order = *p.Order
	}
	if p.Duration != nil {
		in.Duration = *p.Duration
	}
	return s.writeModule(ctx, m, in, p.Slug != nil)
}

// ReplaceModule overwrites every editable field. An empty Slug keeps the
// current one; OrgID cannot change.
func (s *Service) ReplaceModule(ctx context.Context, id uuid.UUID, in ModuleInput) (*Module, error) {
	m, err := s.store.GetModule(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get module", err)
	}
	in.OrgID = m.OrgID
	explicit := strings.TrimSpace(in.Slug) != ""
	if !explicit {
		in.Slug = m.Slug
	}
	return s.writeModule(ctx, m, in, explicit)
}

func (s *Service) writeModule(ctx context.Context, m *Module, in ModuleInput, reslug bool) (*Module, error) {
	diff, err := checkCommon(in.OrgID, false, in.Title, in.Description, in.Category, in.Difficulty)
	if err != nil {
		return nil, err
	}
	if err := checkMinutes("duration", in.Duration); err != nil {
		return nil, err
	}
	slug := m.Slug
	if reslug {
		if slug, err = resolveSlug(in.Slug, in.Title); err != nil {
			return nil, err
		}
	}
	m.Title = strings.TrimSpace(in.Title)
	m.Description = strings.TrimSpace(in.Description)
	m.Category = strings.TrimSpace(in.Category)
	m.Status = status.ToInternal(in.Status)
	m.Difficulty = diff
	m.Tags = cloneTags(in.Tags)
	m.Order = in.Order
	m.Slug = slug
	m.Duration = in.Duration
	m.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateModule(ctx, m); err != nil {
		return nil, apperr.Storage("update module", err)
	}
	s.invalidate(ctx)
	return m, nil
}

// DeleteModule removes the module and its links. Lessons are left in place.
func (s *Service) DeleteModule(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteModule(ctx, id); err != nil {
		return apperr.Storage("delete module", err)
	}
	s.logger.Info("module deleted", "module_id", id)
	s.invalidate(ctx)
	return nil
}

// DetachModule takes the module out of every course while keeping the module,
// its lesson links and the lessons.
func (s *Service) DetachModule(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DetachModule(ctx, id); err != nil {
		return apperr.Storage("detach module", err)
	}
	s.logger.Info("module detached from courses", "module_id", id)
	s.invalidate(ctx)
	return nil
}

func (s *Service) GetModule(ctx context.Context, id uuid.UUID) (*Module, error) {
	m, err := s.store.GetModule(ctx, id)
	return m, apperr.Storage("get module", err)
}

func (s *Service) ModuleBySlug(ctx context.Context, slug string) (*Module, error) {
	m, err := s.store.GetModuleBySlug(ctx, strings.TrimSpace(slug))
	return m, apperr.Storage("get module by slug", err)
}

func (s *Service) ListModules(ctx context.Context, orgID uuid.UUID) ([]Module, error) {
	ms, err := s.store.ListModules(ctx, orgID)
	return ms, apperr.Storage("list modules", err)
}

// Lessons

func (s *Service) CreateLesson(ctx context.Context, in LessonInput) (*Lesson, error) {
	diff, typ, slug, err := prepareLesson(in)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	l := &Lesson{
		ID:              uuid.New(),
		OrgID:           in.OrgID,
		Title:           strings.TrimSpace(in.Title),
		Description:     strings.TrimSpace(in.Description),
		Category:        strings.TrimSpace(in.Category),
		Status:          status.ToInternal(in.Status),
		Difficulty:      diff,
		Type:            typ,
		DurationMinutes: in.DurationMinutes,
		Content:         in.Content,
		VideoURL:        strings.TrimSpace(in.VideoURL),
		Tags:            cloneTags(in.Tags),
		Order:           in.Order,
		Slug:            slug,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateLesson(ctx, l); err != nil {
		return nil, apperr.Storage("create lesson", err)
	}
	s.logger.Info("lesson created", "lesson_id", l.ID, "slug", l.Slug)
	s.invalidate(ctx)
	return l, nil
}

func (s *Service) UpdateLesson(ctx context.Context, id uuid.UUID, p LessonPatch) (*Lesson, error) {
	l, err := s.store.GetLesson(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get lesson", err)
	}
	in := LessonInput{
		OrgID: l.OrgID, Title: l.Title, Description: l.Description, Category: l.Category,
		Status: string(l.Status), Difficulty: string(l.Difficulty), Type: string(l.Type),
		DurationMinutes: l.DurationMinutes, Content: l.Content, VideoURL: l.VideoURL,
		Tags: l.Tags, Order: l.Order, Slug: l.Slug,
	}
	applyString(&in.Title, p.Title)
	applyString(&in.Description, p.Description)
	applyString(&in.Category, p.Category)
	applyString(&in.Status, p.Status)
	applyString(&in.Difficulty, p.Difficulty)
	applyString(&in.Type, p.Type)
	applyString(&in.Content, p.Content)
	applyString(&in.VideoURL, p.VideoURL)
	applyString(&in.Slug, p.Slug)
	if p.DurationMinutes != nil {
		in.DurationMinutes = *p.DurationMinutes
	}
	if p.Tags != nil {
		in.Tags = *p.Tags
	}
	if p.Order != nil {
		in.Order = *p.Order
	}
	return s.writeLesson(ctx, l, in, p.Slug != nil)
}

// ReplaceLesson overwrites every editable field. An empty Slug keeps the
// current one; OrgID cannot change.
func (s *Service) ReplaceLesson(ctx context.Context, id uuid.UUID, in LessonInput) (*Lesson, error) {
	l, err := s.store.GetLesson(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get lesson", err)
	}
	in.OrgID = l.OrgID
	explicit := strings.TrimSpace(in.Slug) != ""
	if !explicit {
		in.Slug = l.Slug
	}
	return s.writeLesson(ctx, l, in, explicit)
}

func (s *Service) writeLesson(ctx context.Context, l *Lesson, in LessonInput, reslug bool) (*Lesson, error) {
	diff, err := checkCommon(in.OrgID, false, in.Title, in.Description, in.Category, in.Difficulty)
	if err != nil {
		return nil, err
	}
	typ, err := ParseContentType(in.Type)
	if err != nil {
		return nil, err
	}
	if err := checkMinutes("duration_minutes", in.DurationMinutes); err != nil {
		return nil, err
	}
	slug := l.Slug
	if reslug {
		if slug, err = resolveSlug(in.Slug, in.Title); err != nil {
			return nil, err
		}
	}
	l.Title = strings.TrimSpace(in.Title)
	l.Description = strings.TrimSpace(in.Description)
	l.Category = strings.TrimSpace(in.Category)
	l.Status = status.ToInternal(in.Status)
	l.Difficulty = diff
	l.Type = typ
	l.DurationMinutes = in.DurationMinutes
	l.Content = in.Content
	l.VideoURL = strings.TrimSpace(in.VideoURL)
	l.Tags = cloneTags(in.Tags)
	l.Order = in.Order
	l.Slug = slug
	l.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateLesson(ctx, l); err != nil {
		return nil, apperr.Storage("update lesson", err)
	}
	s.invalidate(ctx)
	return l, nil
}

// DeleteLesson refuses while any learner has progress or quiz attempts on
// the lesson.
func (s *Service) DeleteLesson(ctx context.Context, id uuid.UUID) error {
	if s.activity != nil {
		busy, err := s.activity.HasLessonActivity(ctx, id)
		if err != nil {
			return apperr.Storage("check lesson activity", err)
		}
		if busy {
			return apperr.Conflict("lesson has learner progress")
		}
	}
	if err := s.store.DeleteLesson(ctx, id); err != nil {
		return apperr.Storage("delete lesson", err)
	}
	s.logger.Info("lesson deleted", "lesson_id", id)
	s.invalidate(ctx)
	return nil
}

func (s *Service) GetLesson(ctx context.Context, id uuid.UUID) (*Lesson, error) {
	l, err := s.store.GetLesson(ctx, id)
	return l, apperr.Storage("get lesson", err)
}

func (s *Service) LessonBySlug(ctx context.Context, slug string) (*Lesson, error) {
	l, err := s.store.GetLessonBySlug(ctx, strings.TrimSpace(slug))
	return l, apperr.Storage("get lesson by slug", err)
}

func (s *Service) ListLessons(ctx context.Context, orgID uuid.UUID) ([]Lesson, error) {
	ls, err := s.store.ListLessons(ctx, orgID)
	return ls, apperr.Storage("list lessons", err)
}

// Links

// LinkModuleToCourse inserts the link or moves an existing one to order.
// Order is clamped to [0, N] and siblings shift to keep the sequence dense.
func (s *Service) LinkModuleToCourse(ctx context.Context, courseID, moduleID uuid.UUID, order int) error {
	if err := s.store.LinkCourseModule(ctx, courseID, moduleID, order); err != nil {
		return apperr.Storage("link module to course", err)
	}
	s.logger.Debug("module linked", "course_id", courseID, "module_id", moduleID, "order", order)
	s.invalidate(ctx)
	return nil
}

func (s *Service) UnlinkModuleFromCourse(ctx context.Context, courseID, moduleID uuid.UUID) error {
	if err := s.store.UnlinkCourseModule(ctx, courseID, moduleID); err != nil {
		return apperr.Storage("unlink module from course", err)
	}
	s.invalidate(ctx)
	return nil
}

// ReplaceCourseModules swaps the course's module list for moduleIDs in the
// given order. The previous list survives any failure.
func (s *Service) ReplaceCourseModules(ctx context.Context, courseID uuid.UUID, moduleIDs []uuid.UUID) error {
	if err := checkDistinct(moduleIDs); err != nil {
		return err
	}
	if err := s.store.ReplaceCourseModules(ctx, courseID, moduleIDs); err != nil {
		return apperr.Storage("replace course modules", err)
	}
	s.invalidate(ctx)
	return nil
}

// ReorderCourseModules assigns order = index. moduleIDs must name every
// linked module exactly once.
func (s *Service) ReorderCourseModules(ctx context.Context, courseID uuid.UUID, moduleIDs []uuid.UUID) error {
	if err := s.store.ReorderCourseModules(ctx, courseID, moduleIDs); err != nil {
		return apperr.Storage("reorder course modules", err)
	}
	s.logger.Debug("course modules reordered", "course_id", courseID, "count", len(moduleIDs))
	s.invalidate(ctx)
	return nil
}

func (s *Service) CourseModules(ctx context.Context, courseID uuid.UUID) ([]LinkedModule, error) {
	ms, err := s.store.CourseModules(ctx, courseID)
	return ms, apperr.Storage("list course modules", err)
}

func (s *Service) LinkLessonToModule(ctx context.Context, moduleID, lessonID uuid.UUID, order int) error {
	if err := s.store.LinkModuleLesson(ctx, moduleID, lessonID, order); err != nil {
		return apperr.Storage("link lesson to module", err)
	}
	s.logger.Debug("lesson linked", "module_id", moduleID, "lesson_id", lessonID, "order", order)
	s.invalidate(ctx)
	return nil
}

func (s *Service) UnlinkLessonFromModule(ctx context.Context, moduleID, lessonID uuid.UUID) error {
	if err := s.store.UnlinkModuleLesson(ctx, moduleID, lessonID); err != nil {
		return apperr.Storage("unlink lesson from module", err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) ReplaceModuleLessons(ctx context.Context, moduleID uuid.UUID, lessonIDs []uuid.UUID) error {
	if err := checkDistinct(lessonIDs); err != nil {
		return err
	}
	if err := s.store.ReplaceModuleLessons(ctx, moduleID, lessonIDs); err != nil {
		return apperr.Storage("replace module lessons", err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) ReorderModuleLessons(ctx context.Context, moduleID uuid.UUID, lessonIDs []uuid.UUID) error {
	if err := s.store.ReorderModuleLessons(ctx, moduleID, lessonIDs); err != nil {
		return apperr.Storage("reorder module lessons", err)
	}
	s.logger.Debug("module lessons reordered", "module_id", moduleID, "count", len(lessonIDs))
	s.invalidate(ctx)
	return nil
}

func (s *Service) ModuleLessons(ctx context.Context, moduleID uuid.UUID) ([]LinkedLesson, error) {
	ls, err := s.store.ModuleLessons(ctx, moduleID)
	return ls, apperr.Storage("list module lessons", err)
}

// Quiz authoring

// SetQuizQuestions replaces the lesson's questions. Each question needs a
// prompt, at least two answers and a CorrectIndex pointing at one of them.
func (s *Service) SetQuizQuestions(ctx context.Context, lessonID uuid.UUID, in []QuestionInput) ([]QuizQuestion, error) {
	if err := ValidateQuestions(in); err != nil {
		return nil, err
	}
	qs := make([]QuizQuestion, 0, len(in))
	for i, q := range in {
		answers := make([]string, len(q.Answers))
		for j, a := range q.Answers {
			answers[j] = strings.TrimSpace(a)
		}
		qs = append(qs, QuizQuestion{
			ID:           uuid.New(),
			LessonID:     lessonID,
			Prompt:       strings.TrimSpace(q.Prompt),
			Answers:      answers,
			CorrectIndex: q.CorrectIndex,
			Explanation:  strings.TrimSpace(q.Explanation),
			Order:        i,
		})
	}
	if err := s.store.SetQuizQuestions(ctx, lessonID, qs); err != nil {
		return nil, apperr.Storage("set quiz questions", err)
	}
	s.logger.Info("quiz questions set", "lesson_id", lessonID, "count", len(qs))
	return qs, nil
}

func (s *Service) QuizQuestions(ctx context.Context, lessonID uuid.UUID) ([]QuizQuestion, error) {
	qs, err := s.store.QuizQuestions(ctx, lessonID)
	return qs, apperr.Storage("list quiz questions", err)
}

// invalidate runs after the write has committed. A failure leaves cached
// summaries to expire by TTL.
func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Error("invalidating summary cache", "error", err)
	}
}

func applyString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
