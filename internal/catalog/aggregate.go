package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-courseware/internal/platform/cache"
)

const (
	defaultAggregateWorkers = 4
	summaryNamespace        = "catalog"
)

// LessonRef is a lesson as it appears inside a module summary.
type LessonRef struct {
	ID              uuid.UUID   `json:"id"`
	Title           string      `json:"title"`
	Slug            string      `json:"slug"`
	Type            ContentType `json:"type"`
	DurationMinutes int         `json:"duration_minutes"`
	Order           int         `json:"order"`
}

// ModuleSummary is the read-side roll-up of one module.
type ModuleSummary struct {
	ModuleID    uuid.UUID   `json:"module_id"`
	Title       string      `json:"title"`
	Slug        string      `json:"slug"`
	Order       int         `json:"order"` // position in the enclosing course, 0 when standalone
	LessonCount int         `json:"lesson_count"`
	Duration    int         `json:"duration"`
	Lessons     []LessonRef `json:"lessons"`
}

// CourseSummary is the read-side roll-up of one course.
type CourseSummary struct {
	CourseID      uuid.UUID       `json:"course_id"`
	Title         string          `json:"title"`
	Slug          string          `json:"slug"`
	ModuleCount   int             `json:"module_count"`
	LessonCount   int             `json:"lesson_count"`
	TotalDuration int             `json:"total_duration"`
	Modules       []ModuleSummary `json:"modules"`
}

// SummaryCache stores computed summaries under a generation number. Every
// structural write calls Invalidate, which advances the generation so that
// entries written under an older one are never read again.
type SummaryCache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, gen int64, key string, dest any) (bool, error)
	Set(ctx context.Context, gen int64, key string, value any) error
	Invalidate(ctx context.Context) error
}

// NopSummaryCache never hits.
type NopSummaryCache struct{}

func (NopSummaryCache) Generation(context.Context) (int64, error) { return 0, nil }
func (NopSummaryCache) Get(context.Context, int64, string, any) (bool, error) { return false, nil }
func (NopSummaryCache) Set(context.Context, int64, string, any) error { return nil }
func (NopSummaryCache) Invalidate(context.Context) error { return nil }

// MemorySummaryCache keeps JSON-encoded summaries in memory for tests.
type MemorySummaryCache struct {
	mu      sync.Mutex
	gen     int64
	entries map[string][]byte
}

func NewMemorySummaryCache() *MemorySummaryCache {
	return &MemorySummaryCache{entries: make(map[string][]byte)}
}

func (c *MemorySummaryCache) Generation(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *MemorySummaryCache) Get(_ context.Context, gen int64, key string, dest any) (bool, error) {
	c.mu.Lock()
	data, ok := c.entries[versionedKey(gen, key)]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *MemorySummaryCache) Set(_ context.Context, gen int64, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	c.mu.Lock()
	c.entries[versionedKey(gen, key)] = data
	c.mu.Unlock()
	return nil
}

func (c *MemorySummaryCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[string][]byte)
	return nil
}

// RedisSummaryCache keeps summaries in Redis/Dragonfly.
type RedisSummaryCache struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewRedisSummaryCache(c *cache.Cache, ttl time.Duration) *RedisSummaryCache {
	return &RedisSummaryCache{cache: c, ttl: ttl}
}

func (r *RedisSummaryCache) Generation(ctx context.Context) (int64, error) {
	return r.cache.Generation(ctx, summaryNamespace)
}

func (r *RedisSummaryCache) Get(ctx context.Context, gen int64, key string, dest any) (bool, error) {
	return r.cache.GetJSON(ctx, summaryNamespace+":"+versionedKey(gen, key), dest)
}

func (r *RedisSummaryCache) Set(ctx context.Context, gen int64, key string, value any) error {
	return r.cache.SetJSON(ctx, summaryNamespace+":"+versionedKey(gen, key), value, r.ttl)
}

func (r *RedisSummaryCache) Invalidate(ctx context.Context) error {
	return r.cache.Bump(ctx, summaryNamespace)
}

func versionedKey(gen int64, key string) string {
	return fmt.Sprintf("g%d:%s", gen, key)
}

// Aggregator derives counts and durations from the live hierarchy.
type Aggregator struct {
	store   Store
	cache   SummaryCache
	workers int
	logger  *slog.Logger
}

// AggregatorConfig holds dependencies for the aggregator.
type AggregatorConfig struct {
	Store   Store
	Cache   SummaryCache // optional
	Workers int          // concurrent module summaries per course (default 4)
	Logger  *slog.Logger
}

func NewAggregator(cfg AggregatorConfig) *Aggregator {
	c := cfg.Cache
	if c == nil {
		c = NopSummaryCache{}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultAggregateWorkers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		store:   cfg.Store,
		cache:   c,
		workers: workers,
		logger:  logger.With("component", "aggregator"),
	}
}

// ModuleSummary counts the module's live lesson links. Duration is the sum of
// the linked lessons' durations, or the module's own Duration when no lesson
// is linked.
func (a *Aggregator) ModuleSummary(ctx context.Context, moduleID uuid.UUID) (*ModuleSummary, error) {
	key := "module:" + moduleID.String()
	var cached ModuleSummary
	gen, hit := a.lookup(ctx, key, &cached)
	if hit {
		return &cached, nil
	}

	m, err := a.store.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	sum, err := a.summarizeModule(ctx, *m, 0)
	if err != nil {
		return nil, err
	}
	a.remember(ctx, gen, key, sum)
	return sum, nil
}

// CourseSummary rolls module summaries up to the course. Modules appear in
// course order and are summarized concurrently.
func (a *Aggregator) CourseSummary(ctx context.Context, courseID uuid.UUID) (*CourseSummary, error) {
	key := "course:" + courseID.String()
	var cached CourseSummary
	gen, hit := a.lookup(ctx, key, &cached)
	if hit {
		return &cached, nil
	}

	c, err := a.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	linked, err := a.store.CourseModules(ctx, courseID)
	if err != nil {
		return nil, err
	}

	modules := make([]ModuleSummary, len(linked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, lm := range linked {
		g.Go(func() error {
			sum, err := a.summarizeModule(gctx, lm.Module, lm.Link.Order)
			if err != nil {
				return fmt.Errorf("summarize module %s: %w", lm.Module.ID, err)
			}
			modules[i] = *sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum := &CourseSummary{
		CourseID:    c.ID,
		Title:       c.Title,
		Slug:        c.Slug,
		ModuleCount: len(modules),
		Modules:     modules,
	}
	for _, m := range modules {
		sum.LessonCount += m.LessonCount
		sum.TotalDuration += m.Duration
	}
	a.remember(ctx, gen, key, sum)
	return sum, nil
}

func (a *Aggregator) summarizeModule(ctx context.Context, m Module, order int) (*ModuleSummary, error) {
	linked, err := a.store.ModuleLessons(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	sum := &ModuleSummary{
		ModuleID:    m.ID,
		Title:       m.Title,
		Slug:        m.Slug,
		Order:       order,
		LessonCount: len(linked),
		Lessons:     make([]LessonRef, 0, len(linked)),
	}
	for _, ll := range linked {
		sum.Duration += ll.Lesson.DurationMinutes
		sum.Lessons = append(sum.Lessons, LessonRef{
			ID:              ll.Lesson.ID,
			Title:           ll.Lesson.Title,
			Slug:            ll.Lesson.Slug,
			Type:            ll.Lesson.Type,
			DurationMinutes: ll.Lesson.DurationMinutes,
			Order:           ll.Link.Order,
		})
	}
	if len(linked) == 0 {
		sum.Duration = m.Duration
	}
	return sum, nil
}

// lookup returns the generation the caller must store under, read before the
// store so that a concurrent write always lands in a newer generation.
func (a *Aggregator) lookup(ctx context.Context, key string, dest any) (int64, bool) {
	gen, err := a.cache.Generation(ctx)
	if err != nil {
		a.logger.Warn("summary cache unavailable", "key", key, "error", err)
		return -1, false
	}
	hit, err := a.cache.Get(ctx, gen, key, dest)
	if err != nil {
		a.logger.Warn("summary cache read failed", "key", key, "error", err)
		return gen, false
	}
	return gen, hit
}

func (a *Aggregator) remember(ctx context.Context, gen int64, key string, value any) {
	if gen < 0 {
		return
	}
	if err := a.cache.Set(ctx, gen, key, value); err != nil {
		a.logger.Warn("summary cache write failed", "key", key, "error", err)
	}
}
