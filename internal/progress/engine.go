// Package progress tracks learner completion and quiz results against the
// catalog hierarchy.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-courseware/internal/catalog"
	"github.com/p-n-ai/pai-courseware/internal/platform/apperr"
)

const defaultPassPercent = 70

// Catalog is the read side of the hierarchy the engine walks.
// catalog.Store satisfies it.
type Catalog interface {
	GetCourse(ctx context.Context, id uuid.UUID) (*catalog.Course, error)
	GetModule(ctx context.Context, id uuid.UUID) (*catalog.Module, error)
	GetLesson(ctx context.Context, id uuid.UUID) (*catalog.Lesson, error)
	CourseModules(ctx context.Context, courseID uuid.UUID) ([]catalog.LinkedModule, error)
	ModuleLessons(ctx context.Context, moduleID uuid.UUID) ([]catalog.LinkedLesson, error)
	QuizQuestions(ctx context.Context, lessonID uuid.UUID) ([]catalog.QuizQuestion, error)
}

// EngineConfig holds dependencies for the progress engine.
type EngineConfig struct {
	Catalog     Catalog
	Store       Store
	Events      EventLogger
	PassPercent int // share of questions to answer correctly (default 70)
	Logger      *slog.Logger
	Now         func() time.Time
}

// Engine applies the completion rules.
type Engine struct {
	catalog     Catalog
	store       Store
	events      EventLogger
	passPercent int
	logger      *slog.Logger
	now         func() time.Time
}

func NewEngine(cfg EngineConfig) *Engine {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	pass := cfg.PassPercent
	if pass <= 0 || pass > 100 {
		pass = defaultPassPercent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		catalog:     cfg.Catalog,
		store:       store,
		events:      events,
		passPercent: pass,
		logger:      logger.With("component", "progress"),
		now:         now,
	}
}

// RequiredScore is the minimum score that passes a quiz of total questions.
func (e *Engine) RequiredScore(total int) int {
	return (e.passPercent*total + 99) / 100
}

// CompleteLesson marks a lesson completed for the user. A lesson with quiz
// questions can only be completed after an attempt that passes the quiz as
// it stands now: attempts scored against a different question count do not
// count. Completing an already completed lesson returns the original row.
func (e *Engine) CompleteLesson(ctx context.Context, userID, lessonID uuid.UUID) (*UserLessonProgress, error) {
	if _, err := e.catalog.GetLesson(ctx, lessonID); err != nil {
		return nil, apperr.Storage("get lesson", err)
	}

	existing, ok, err := e.store.LessonProgress(ctx, userID, lessonID)
	if err != nil {
		return nil, apperr.Storage("get lesson progress", err)
	}
	if ok && existing.Completed {
		return existing, nil
	}

	questions, err := e.catalog.QuizQuestions(ctx, lessonID)
	if err != nil {
		return nil, apperr.Storage("list quiz questions", err)
	}
	if len(questions) > 0 {
		total := len(questions)
		passed, err := e.store.HasPassedQuiz(ctx, userID, lessonID, total, e.RequiredScore(total))
		if err != nil {
			return nil, apperr.Storage("check quiz pass", err)
		}
		if !passed {
			return nil, apperr.PreconditionFailed("quiz required")
		}
	}

	p, created, err := e.store.MarkCompleted(ctx, userID, lessonID, e.now().UTC())
	if err != nil {
		return nil, apperr.Storage("complete lesson", err)
	}
	if created {
		e.logger.Info("lesson completed", "user_id", userID, "lesson_id", lessonID)
		e.logEvent(ctx, Event{
			UserID:    userID,
			LessonID:  lessonID,
			EventType: EventLessonCompleted,
			CreatedAt: p.CompletedAt,
		})
	}
	return p, nil
}

// SubmitQuizAttempt scores answers against the lesson's questions in order.
// A missing answer or -1 counts as wrong. Every submission is recorded,
// passing or not.
func (e *Engine) SubmitQuizAttempt(ctx context.Context, userID, lessonID uuid.UUID, answers []int) (*QuizResult, error) {
	if _, err := e.catalog.GetLesson(ctx, lessonID); err != nil {
		return nil, apperr.Storage("get lesson", err)
	}
	questions, err := e.catalog.QuizQuestions(ctx, lessonID)
	if err != nil {
		return nil, apperr.Storage("list quiz questions", err)
	}
	if len(questions) == 0 {
		return nil, apperr.Validation("lesson has no quiz questions")
	}
	if len(answers) > len(questions) {
		return nil, apperr.Validation(fmt.Sprintf("got %d answers for %d questions", len(answers), len(questions)))
	}

	correct := make([]bool, len(questions))
	score := 0
	for i, q := range questions {
		if i < len(answers) && answers[i] >= 0 && answers[i] == q.CorrectIndex {
			correct[i] = true
			score++
		}
	}

	required := e.RequiredScore(len(questions))
	attempt := QuizAttempt{
		ID:        uuid.New(),
		UserID:    userID,
		LessonID:  lessonID,
		Score:     score,
		Total:     len(questions),
		Passed:    score >= required,
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.AddQuizAttempt(ctx, &attempt); err != nil {
		return nil, apperr.Storage("record quiz attempt", err)
	}

	e.logger.Info("quiz submitted",
		"user_id", userID,
		"lesson_id", lessonID,
		"score", score,
		"total", attempt.Total,
		"passed", attempt.Passed,
	)
	e.logEvent(ctx, Event{
		UserID:    userID,
		LessonID:  lessonID,
		EventType: EventQuizSubmitted,
		Data: map[string]any{
			"attempt_id": attempt.ID.String(),
			"score":      score,
			"total":      attempt.Total,
			"passed":     attempt.Passed,
		},
		CreatedAt: attempt.CreatedAt,
	})

	return &QuizResult{Attempt: attempt, Required: required, Correct: correct}, nil
}

// QuizAttempts returns the user's attempts on a lesson, oldest first.
func (e *Engine) QuizAttempts(ctx context.Context, userID, lessonID uuid.UUID) ([]QuizAttempt, error) {
	if _, err := e.catalog.GetLesson(ctx, lessonID); err != nil {
		return nil, apperr.Storage("get lesson", err)
	}
	attempts, err := e.store.QuizAttempts(ctx, userID, lessonID)
	return attempts, apperr.Storage("list quiz attempts", err)
}

// LessonState reports NotStarted, InProgress (attempted but not completed)
// or Completed for one lesson.
func (e *Engine) LessonState(ctx context.Context, userID, lessonID uuid.UUID) (*LessonState, error) {
	if _, err := e.catalog.GetLesson(ctx, lessonID); err != nil {
		return nil, apperr.Storage("get lesson", err)
	}
	questions, err := e.catalog.QuizQuestions(ctx, lessonID)
	if err != nil {
		return nil, apperr.Storage("list quiz questions", err)
	}
	attempts, err := e.store.QuizAttempts(ctx, userID, lessonID)
	if err != nil {
		return nil, apperr.Storage("list quiz attempts", err)
	}
	p, done, err := e.store.LessonProgress(ctx, userID, lessonID)
	if err != nil {
		return nil, apperr.Storage("get lesson progress", err)
	}

	state := &LessonState{
		LessonID:     lessonID,
		Status:       NotStarted,
		QuizRequired: len(questions) > 0,
		Attempts:     len(attempts),
	}
	total := len(questions)
	for _, a := range attempts {
		if a.Total == total && a.Score >= e.RequiredScore(total) {
			state.QuizPassed = true
			break
		}
	}
	switch {
	case done && p.Completed:
		state.Status = Completed
		at := p.CompletedAt
		state.CompletedAt = &at
	case len(attempts) > 0:
		state.Status = InProgress
	}
	return state, nil
}

// ModuleProgress reports completion over the module's linked lessons.
func (e *Engine) ModuleProgress(ctx context.Context, userID, moduleID uuid.UUID) (*ModuleProgress, error) {
	m, err := e.catalog.GetModule(ctx, moduleID)
	if err != nil {
		return nil, apperr.Storage("get module", err)
	}
	lessons, err := e.catalog.ModuleLessons(ctx, moduleID)
	if err != nil {
		return nil, apperr.Storage("list module lessons", err)
	}
	done, err := e.store.CompletedLessons(ctx, userID, lessonIDs(lessons))
	if err != nil {
		return nil, apperr.Storage("list completed lessons", err)
	}
	mp := moduleProgress(*m, 0, lessons, done)
	return &mp, nil
}

// CourseProgress counts each distinct lesson once, however many of the
// course's modules link it.
func (e *Engine) CourseProgress(ctx context.Context, userID, courseID uuid.UUID) (*CourseProgress, error) {
	c, err := e.catalog.GetCourse(ctx, courseID)
	if err != nil {
		return nil, apperr.Storage("get course", err)
	}
	modules, err := e.catalog.CourseModules(ctx, courseID)
	if err != nil {
		return nil, apperr.Storage("list course modules", err)
	}

	perModule := make([][]catalog.LinkedLesson, len(modules))
	seen := make(map[uuid.UUID]bool)
	var distinct []uuid.UUID
	for i, lm := range modules {
		lessons, err := e.catalog.ModuleLessons(ctx, lm.Module.ID)
		if err != nil {
			return nil, apperr.Storage("list module lessons", err)
		}
		perModule[i] = lessons
		for _, ll := range lessons {
			if !seen[ll.Lesson.ID] {
				seen[ll.Lesson.ID] = true
				distinct = append(distinct, ll.Lesson.ID)
			}
		}
	}

	done, err := e.store.CompletedLessons(ctx, userID, distinct)
	if err != nil {
		return nil, apperr.Storage("list completed lessons", err)
	}

	cp := &CourseProgress{
		CourseID:         c.ID,
		Title:            c.Title,
		TotalLessons:     len(distinct),
		CompletedLessons: len(done),
		Percentage:       percentage(len(done), len(distinct)),
		TotalModules:     len(modules),
		Modules:          make([]ModuleProgress, 0, len(modules)),
	}
	for i, lm := range modules {
		mp := moduleProgress(lm.Module, lm.Link.Order, perModule[i], done)
		if mp.Completed {
			cp.CompletedModules++
		}
		cp.Modules = append(cp.Modules, mp)
	}
	return cp, nil
}

func (e *Engine) logEvent(ctx context.Context, event Event) {
	if err := e.events.LogEvent(ctx, event); err != nil {
		e.logger.Warn("failed to log learning event",
			"type", event.EventType,
			"user_id", event.UserID,
			"error", err,
		)
	}
}

// moduleProgress treats a module with no lessons as not completed.
func moduleProgress(m catalog.Module, order int, lessons []catalog.LinkedLesson, done map[uuid.UUID]bool) ModuleProgress {
	mp := ModuleProgress{
		ModuleID:     m.ID,
		Title:        m.Title,
		Order:        order,
		TotalLessons: len(lessons),
	}
	for _, ll := range lessons {
		if done[ll.Lesson.ID] {
			mp.CompletedLessons++
		}
	}
	mp.Percentage = percentage(mp.CompletedLessons, mp.TotalLessons)
	mp.Completed = mp.TotalLessons > 0 && mp.CompletedLessons == mp.TotalLessons
	return mp
}

func lessonIDs(lessons []catalog.LinkedLesson) []uuid.UUID {
	ids := make([]uuid.UUID, len(lessons))
	for i, ll := range lessons {
		ids[i] = ll.Lesson.ID
	}
	return ids
}

func percentage(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}
