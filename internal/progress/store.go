package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists completion rows and quiz attempts. It is the only writer of
// either table.
type Store interface {
	// MarkCompleted records the completion if none exists. It returns the
	// stored row and whether this call created it.
	MarkCompleted(ctx context.Context, userID, lessonID uuid.UUID, at time.Time) (*UserLessonProgress, bool, error)
	LessonProgress(ctx context.Context, userID, lessonID uuid.UUID) (*UserLessonProgress, bool, error)
	CompletedLessons(ctx context.Context, userID uuid.UUID, lessonIDs []uuid.UUID) (map[uuid.UUID]bool, error)

	AddQuizAttempt(ctx context.Context, a *QuizAttempt) error
	QuizAttempts(ctx context.Context, userID, lessonID uuid.UUID) ([]QuizAttempt, error)
	// HasPassedQuiz reports whether any attempt scored at least required
	// against a quiz of exactly total questions.
	HasPassedQuiz(ctx context.Context, userID, lessonID uuid.UUID, total, required int) (bool, error)

	HasLessonActivity(ctx context.Context, lessonID uuid.UUID) (bool, error)
}

type progressKey struct {
	user   uuid.UUID
	lesson uuid.UUID
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu       sync.RWMutex
	progress map[progressKey]UserLessonProgress
	attempts map[progressKey][]QuizAttempt
}

// NewMemoryStore creates an empty in-memory progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		progress: make(map[progressKey]UserLessonProgress),
		attempts: make(map[progressKey][]QuizAttempt),
	}
}

func (s *MemoryStore) MarkCompleted(ctx context.Context, userID, lessonID uuid.UUID, at time.Time) (*UserLessonProgress, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := progressKey{userID, lessonID}
	if p, ok := s.progress[key]; ok {
		return &p, false, nil
	}
	p := UserLessonProgress{UserID: userID, LessonID: lessonID, Completed: true, CompletedAt: at}
	s.progress[key] = p
	return &p, true, nil
}

func (s *MemoryStore) LessonProgress(ctx context.Context, userID, lessonID uuid.UUID) (*UserLessonProgress, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[progressKey{userID, lessonID}]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (s *MemoryStore) CompletedLessons(ctx context.Context, userID uuid.UUID, lessonIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	done := make(map[uuid.UUID]bool)
	for _, id := range lessonIDs {
		if p, ok := s.progress[progressKey{userID, id}]; ok && p.Completed {
			done[id] = true
		}
	}
	return done, nil
}

func (s *MemoryStore) AddQuizAttempt(ctx context.Context, a *QuizAttempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := progressKey{a.UserID, a.LessonID}
	s.attempts[key] = append(s.attempts[key], *a)
	return nil
}

func (s *MemoryStore) QuizAttempts(ctx context.Context, userID, lessonID uuid.UUID) ([]QuizAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]QuizAttempt{}, s.attempts[progressKey{userID, lessonID}]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) HasPassedQuiz(ctx context.Context, userID, lessonID uuid.UUID, total, required int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.attempts[progressKey{userID, lessonID}] {
		if a.Total == total && a.Score >= required {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) HasLessonActivity(ctx context.Context, lessonID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key := range s.progress {
		if key.lesson == lessonID {
			return true, nil
		}
	}
	for key, list := range s.attempts {
		if key.lesson == lessonID && len(list) > 0 {
			return true, nil
		}
	}
	return false, nil
}
