package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-courseware/internal/catalog"
	"github.com/p-n-ai/pai-courseware/internal/platform/apperr"
	"github.com/p-n-ai/pai-courseware/internal/platform/database/dbtest"
	"github.com/p-n-ai/pai-courseware/internal/status"
)

var (
	_ catalog.Store = (*catalog.MemoryStore)(nil)
	_ catalog.Store = (*catalog.PostgresStore)(nil)
)

type env struct {
	svc *catalog.Service
	agg *catalog.Aggregator
	org uuid.UUID
}

type storeCase struct {
	name string
	run  func(t *testing.T, e env)
}

// storeCases run unchanged against every Store implementation.
var storeCases = []storeCase{
	{"SlugDerivedFromTitle", testSlugDerivedFromTitle},
	{"SlugConflict", testSlugConflict},
	{"CreateReportsMissingFields", testCreateReportsMissingFields},
	{"PatchKeepsUnsetFields", testPatchKeepsUnsetFields},
	{"ReplaceRequiresFields", testReplaceRequiresFields},
	{"ReorderLessons", testReorderLessons},
	{"ReorderRejectsWrongSet", testReorderRejectsWrongSet},
	{"LinkMovesAndClamps", testLinkMovesAndClamps},
	{"UnlinkCompacts", testUnlinkCompacts},
	{"ReplaceLinksAtomic", testReplaceLinksAtomic},
	{"ConcurrentReorders", testConcurrentReorders},
	{"DeleteLessonWhileLinking", testDeleteLessonWhileLinking},
	{"DeleteModuleKeepsLessons", testDeleteModuleKeepsLessons},
	{"DetachModuleFromCourses", testDetachModuleFromCourses},
	{"DeleteLessonCompactsModules", testDeleteLessonCompactsModules},
	{"DeleteUserWithEnrollment", testDeleteUserWithEnrollment},
	{"DeleteCourseWithDependents", testDeleteCourseWithDependents},
	{"QuizQuestions", testQuizQuestions},
	{"CourseSummary", testCourseSummary},
	{"NotFound", testNotFound},
}

func newEnv(store catalog.Store) env {
	return env{
		svc: catalog.NewService(catalog.ServiceConfig{Store: store}),
		agg: catalog.NewAggregator(catalog.AggregatorConfig{Store: store}),
		org: uuid.New(),
	}
}

func TestService_MemoryStore(t *testing.T) {
	for _, tc := range storeCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.run(t, newEnv(catalog.NewMemoryStore()))
		})
	}
}

func TestService_PostgresStore(t *testing.T) {
	pool := dbtest.NewPool(t)
	store, err := catalog.NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	for _, tc := range storeCases {
		t.Run(tc.name, func(t *testing.T) {
			dbtest.Reset(t, pool)
			tc.run(t, newEnv(store))
		})
	}
	t.Run("ReplaceRollsBackFailedInsert", func(t *testing.T) {
		dbtest.Reset(t, pool)
		testReplaceRollsBackFailedInsert(t, newEnv(store), pool)
	})
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	if _, err := catalog.NewPostgresStore(nil); err == nil {
		t.Fatal("NewPostgresStore(nil) should fail")
	}
}

// Fixtures

func mustCourse(t *testing.T, e env, title string) *catalog.Course {
	t.Helper()
	c, err := e.svc.CreateCourse(t.Context(), catalog.CourseInput{
		OrgID: e.org, Title: title, Description: "about " + title, Category: "security",
	})
	if err != nil {
		t.Fatalf("CreateCourse(%q) error = %v", title, err)
	}
	return c
}

func mustModule(t *testing.T, e env, title string, duration int) *catalog.Module {
	t.Helper()
	m, err := e.svc.CreateModule(t.Context(), catalog.ModuleInput{
		OrgID: e.org, Title: title, Description: "about " + title, Category: "security", Duration: duration,
	})
	if err != nil {
		t.Fatalf("CreateModule(%q) error = %v", title, err)
	}
	return m
}

func mustLesson(t *testing.T, e env, title string, minutes int) *catalog.Lesson {
	t.Helper()
	l, err := e.svc.CreateLesson(t.Context(), catalog.LessonInput{
		OrgID: e.org, Title: title, Description: "about " + title, Category: "security",
		Type: "Video", DurationMinutes: minutes,
	})
	if err != nil {
		t.Fatalf("CreateLesson(%q) error = %v", title, err)
	}
	return l
}

func mustLinkLessons(t *testing.T, e env, moduleID uuid.UUID, lessons ...*catalog.Lesson) {
	t.Helper()
	for i, l := range lessons {
		if err := e.svc.LinkLessonToModule(t.Context(), moduleID, l.ID, i); err != nil {
			t.Fatalf("LinkLessonToModule(%s) error = %v", l.Title, err)
		}
	}
}

func lessonOrder(t *testing.T, e env, moduleID uuid.UUID) ([]uuid.UUID, []int) {
	t.Helper()
	linked, err := e.svc.ModuleLessons(t.Context(), moduleID)
	if err != nil {
		t.Fatalf("ModuleLessons() error = %v", err)
	}
	ids := make([]uuid.UUID, len(linked))
	orders := make([]int, len(linked))
	for i, ll := range linked {
		ids[i] = ll.Lesson.ID
		orders[i] = ll.Link.Order
	}
	return ids, orders
}

func moduleOrder(t *testing.T, e env, courseID uuid.UUID) ([]uuid.UUID, []int) {
	t.Helper()
	linked, err := e.svc.CourseModules(t.Context(), courseID)
	if err != nil {
		t.Fatalf("CourseModules() error = %v", err)
	}
	ids := make([]uuid.UUID, len(linked))
	orders := make([]int, len(linked))
	for i, lm := range linked {
		ids[i] = lm.Module.ID
		orders[i] = lm.Link.Order
	}
	return ids, orders
}

func assertDense(t *testing.T, orders []int) {
	t.Helper()
	for i, o := range orders {
		if o != i {
			t.Fatalf("orders = %v, want dense 0..%d", orders, len(orders)-1)
		}
	}
}

func assertIDs(t *testing.T, got []uuid.UUID, want ...uuid.UUID) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d ids, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if !apperr.Is(err, kind) {
		t.Fatalf("error = %v, want kind %s", err, kind)
	}
}

// Cases

func testSlugDerivedFromTitle(t *testing.T, e env) {
	c := mustCourse(t, e, "Security 101!")
	if c.Slug != "security-101" {
		t.Errorf("Slug = %q, want %q", c.Slug, "security-101")
	}
	got, err := e.svc.CourseBySlug(t.Context(), "security-101")
	if err != nil {
		t.Fatalf("CourseBySlug() error = %v", err)
	}
	if got.ID != c.ID {
		t.Errorf("CourseBySlug() returned %s, want %s", got.ID, c.ID)
	}
	if got.Status != status.Draft {
		t.Errorf("Status = %q, want Draft by default", got.Status)
	}
}

func testSlugConflict(t *testing.T, e env) {
	mustCourse(t, e, "Security 101")
	_, err := e.svc.CreateCourse(t.Context(), catalog.CourseInput{
		OrgID: e.org, Title: "Security 101!", Description: "dup", Category: "security",
	})
	assertKind(t, err, apperr.KindConflict)

	other := mustCourse(t, e, "Networking")
	slug := "security-101"
	_, err = e.svc.UpdateCourse(t.Context(), other.ID, catalog.CoursePatch{Slug: &slug})
	assertKind(t, err, apperr.KindConflict)

	// Slugs are unique per table, so a module may reuse a course slug.
	if _, err := e.svc.CreateModule(t.Context(), catalog.ModuleInput{
		OrgID: e.org, Title: "Security 101", Description: "m", Category: "security",
	}); err != nil {
		t.Fatalf("CreateModule() with course slug error = %v", err)
	}
}

func testCreateReportsMissingFields(t *testing.T, e env) {
	_, err := e.svc.CreateLesson(t.Context(), catalog.LessonInput{Title: "  "})
	assertKind(t, err, apperr.KindValidation)

	var ae *apperr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("error %T is not *apperr.Error", err)
	}
	for _, field := range []string{"org_id", "title", "description", "category"} {
		if _, ok := ae.Fields[field]; !ok {
			t.Errorf("Fields missing %q: %v", field, ae.Fields)
		}
	}

	_, err = e.svc.CreateLesson(t.Context(), catalog.LessonInput{
		OrgID: e.org, Title: "t", Description: "d", Category: "c", Type: "podcast",
	})
	assertKind(t, err, apperr.KindValidation)

	_, err = e.svc.CreateModule(t.Context(), catalog.ModuleInput{
		OrgID: e.org, Title: "t", Description: "d", Category: "c", Duration: -5,
	})
	assertKind(t, err, apperr.KindValidation)

	_, err = e.svc.CreateCourse(t.Context(), catalog.CourseInput{
		OrgID: e.org, Title: "!!!", Description: "d", Category: "c",
	})
	assertKind(t, err, apperr.KindValidation)
}

func testPatchKeepsUnsetFields(t *testing.T, e env) {
	l := mustLesson(t, e, "Phishing Basics", 12)
	published := "Published"
	got, err := e.svc.UpdateLesson(t.Context(), l.ID, catalog.LessonPatch{Status: &published})
	if err != nil {
		t.Fatalf("UpdateLesson() error = %v", err)
	}
	if got.Status != status.Published {
		t.Errorf("Status = %q, want PUBLISHED", got.Status)
	}
	if got.Title != l.Title || got.DurationMinutes != 12 || got.Slug != l.Slug || got.Type != catalog.Video {
		t.Errorf("patch changed unset fields: %+v", got)
	}

	title := "Phishing Advanced"
	got, err = e.svc.UpdateLesson(t.Context(), l.ID, catalog.LessonPatch{Title: &title})
	if err != nil {
		t.Fatalf("UpdateLesson(title) error = %v", err)
	}
	if got.Slug != l.Slug {
		t.Errorf("title change moved slug to %q", got.Slug)
	}

	empty := ""
	got, err = e.svc.UpdateLesson(t.Context(), l.ID, catalog.LessonPatch{Slug: &empty})
	if err != nil {
		t.Fatalf("UpdateLesson(empty slug) error = %v", err)
	}
	if got.Slug != "phishing-advanced" {
		t.Errorf("Slug = %q, want re-derived %q", got.Slug, "phishing-advanced")
	}

	stored, err := e.svc.GetLesson(t.Context(), l.ID)
	if err != nil {
		t.Fatalf("GetLesson() error = %v", err)
	}
	if stored.Status != status.Published || stored.Title != "Phishing Advanced" {
		t.Errorf("stored lesson = %+v", stored)
	}
}

func testReplaceRequiresFields(t *testing.T, e env) {
	m := mustModule(t, e, "Threat Models", 30)
	_, err := e.svc.ReplaceModule(t.Context(), m.ID, catalog.ModuleInput{Title: "Only title"})
	assertKind(t, err, apperr.KindValidation)

	got, err := e.svc.ReplaceModule(t.Context(), m.ID, catalog.ModuleInput{
		Title: "Threat Modeling", Description: "new", Category: "appsec", Status: "archived", Difficulty: "Expert",
	})
	if err != nil {
		t.Fatalf("ReplaceModule() error = %v", err)
	}
	if got.Slug != m.Slug {
		t.Errorf("Slug = %q, want kept %q", got.Slug, m.Slug)
	}
	if got.Status != status.Archived || got.Difficulty != catalog.Expert || got.Duration != 0 {
		t.Errorf("replace result = %+v", got)
	}
	if got.OrgID != e.org {
		t.Errorf("OrgID changed to %s", got.OrgID)
	}
}

func testReorderLessons(t *testing.T, e env) {
	m := mustModule(t, e, "Module M", 0)
	l1 := mustLesson(t, e, "L1", 10)
	l2 := mustLesson(t, e, "L2", 20)
	l3 := mustLesson(t, e, "L3", 5)
	mustLinkLessons(t, e, m.ID, l1, l2, l3)

	sum, err := e.agg.ModuleSummary(t.Context(), m.ID)
	if err != nil {
		t.Fatalf("ModuleSummary() error = %v", err)
	}
	if sum.Duration != 35 || sum.LessonCount != 3 {
		t.Fatalf("summary = %d min / %d lessons, want 35 / 3", sum.Duration, sum.LessonCount)
	}

	if err := e.svc.ReorderModuleLessons(t.Context(), m.ID, []uuid.UUID{l3.ID, l1.ID, l2.ID}); err != nil {
		t.Fatalf("ReorderModuleLessons() error = %v", err)
	}
	ids, orders := lessonOrder(t, e, m.ID)
	assertIDs(t, ids, l3.ID, l1.ID, l2.ID)
	assertDense(t, orders)

	// Same request again is a no-op.
	if err := e.svc.ReorderModuleLessons(t.Context(), m.ID, []uuid.UUID{l3.ID, l1.ID, l2.ID}); err != nil {
		t.Fatalf("second ReorderModuleLessons() error = %v", err)
	}

	sum, err = e.agg.ModuleSummary(t.Context(), m.ID)
	if err != nil {
		t.Fatalf("ModuleSummary() error = %v", err)
	}
	if sum.Duration != 35 {
		t.Errorf("Duration after reorder = %d, want 35", sum.Duration)
	}
	if sum.Lessons[0].ID != l3.ID {
		t.Errorf("first summary lesson = %s, want L3", sum.Lessons[0].Title)
	}
}

func testReorderRejectsWrongSet(t *testing.T, e env) {
	c := mustCourse(t, e, "Course C")
	m1 := mustModule(t, e, "M1", 0)
	m2 := mustModule(t, e, "M2", 0)
	stranger := mustModule(t, e, "Stranger", 0)
	for i, m := range []*catalog.Module{m1, m2} {
		if err := e.svc.LinkModuleToCourse(t.Context(), c.ID, m.ID, i); err != nil {
			t.Fatalf("LinkModuleToCourse() error = %v", err)
		}
	}

	tests := []struct {
		name string
		ids  []uuid.UUID
	}{
		{"partial", []uuid.UUID{m2.ID}},
		{"duplicate", []uuid.UUID{m2.ID, m2.ID}},
		{"foreign", []uuid.UUID{m2.ID, stranger.ID}},
		{"extra", []uuid.UUID{m2.ID, m1.ID, stranger.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.svc.ReorderCourseModules(t.Context(), c.ID, tt.ids)
			assertKind(t, err, apperr.KindValidation)
			ids, _ := moduleOrder(t, e, c.ID)
			assertIDs(t, ids, m1.ID, m2.ID)
		})
	}

	err := e.svc.ReorderCourseModules(t.Context(), uuid.New(), nil)
	assertKind(t, err, apperr.KindNotFound)
}

func testLinkMovesAndClamps(t *testing.T, e env) {
	m := mustModule(t, e, "Module", 0)
	a := mustLesson(t, e, "A", 1)
	b := mustLesson(t, e, "B", 1)
	c := mustLesson(t, e, "C", 1)
	mustLinkLessons(t, e, m.ID, a, b, c)

	// Existing pair moves instead of duplicating.
	if err := e.svc.LinkLessonToModule(t.Context(), m.ID, c.ID, 0); err != nil {
		t.Fatalf("LinkLessonToModule(move) error = %v", err)
	}
	ids, orders := lessonOrder(t, e, m.ID)
	assertIDs(t, ids, c.ID, a.ID, b.ID)
	assertDense(t, orders)

	// Out-of-range orders clamp to the ends.
	d := mustLesson(t, e, "D", 1)
	if err := e.svc.LinkLessonToModule(t.Context(), m.ID, d.ID, 99); err != nil {
		t.Fatalf("LinkLessonToModule(99) error = %v", err)
	}
	if err := e.svc.LinkLessonToModule(t.Context(), m.ID, a.ID, -3); err != nil {
		t.Fatalf("LinkLessonToModule(-3) error = %v", err)
	}
	ids, orders = lessonOrder(t, e, m.ID)
	assertIDs(t, ids, a.ID, c.ID, b.ID, d.ID)
	assertDense(t, orders)

	err := e.svc.LinkLessonToModule(t.Context(), m.ID, uuid.New(), 0)
	assertKind(t, err, apperr.KindNotFound)
}

func testUnlinkCompacts(t *testing.T, e env) {
	m := mustModule(t, e, "Module", 0)
	a := mustLesson(t, e, "A", 1)
	b := mustLesson(t, e, "B", 1)
	c := mustLesson(t, e, "C", 1)
	mustLinkLessons(t, e, m.ID, a, b, c)

	if err := e.svc.UnlinkLessonFromModule(t.Context(), m.ID, b.ID); err != nil {
		t.Fatalf("UnlinkLessonFromModule() error = %v", err)
	}
	ids, orders := lessonOrder(t, e, m.ID)
	assertIDs(t, ids, a.ID, c.ID)
	assertDense(t, orders)

	err := e.svc.UnlinkLessonFromModule(t.Context(), m.ID, b.ID)
	assertKind(t, err, apperr.KindNotFound)

	if _, err := e.svc.GetLesson(t.Context(), b.ID); err != nil {
		t.Errorf("unlinked lesson should still exist: %v", err)
	}
}

func testReplaceLinksAtomic(t *testing.T, e env) {
	c := mustCourse(t, e, "Course")
	m1 := mustModule(t, e, "M1", 0)
	m2 := mustModule(t, e, "M2", 0)
	m3 := mustModule(t, e, "M3", 0)
	if err := e.svc.ReplaceCourseModules(t.Context(), c.ID, []uuid.UUID{m2.ID, m1.ID}); err != nil {
		t.Fatalf("ReplaceCourseModules() error = %v", err)
	}

	err := e.svc.ReplaceCourseModules(t.Context(), c.ID, []uuid.UUID{m3.ID, uuid.New()})
	assertKind(t, err, apperr.KindNotFound)
	ids, orders := moduleOrder(t, e, c.ID)
	assertIDs(t, ids, m2.ID, m1.ID)
	assertDense(t, orders)

	err = e.svc.ReplaceCourseModules(t.Context(), c.ID, []uuid.UUID{m3.ID, m3.ID})
	assertKind(t, err, apperr.KindValidation)
	ids, _ = moduleOrder(t, e, c.ID)
	assertIDs(t, ids, m2.ID, m1.ID)

	if err := e.svc.ReplaceCourseModules(t.Context(), c.ID, []uuid.UUID{m3.ID, m1.ID, m2.ID}); err != nil {
		t.Fatalf("ReplaceCourseModules() error = %v", err)
	}
	ids, orders = moduleOrder(t, e, c.ID)
	assertIDs(t, ids, m3.ID, m1.ID, m2.ID)
	assertDense(t, orders)

	if err := e.svc.ReplaceCourseModules(t.Context(), c.ID, nil); err != nil {
		t.Fatalf("ReplaceCourseModules(empty) error = %v", err)
	}
	ids, _ = moduleOrder(t, e, c.ID)
	if len(ids) != 0 {
		t.Errorf("modules after empty replace = %d, want 0", len(ids))
	}
}

func testConcurrentReorders(t *testing.T, e env) {
	m := mustModule(t, e, "Module R", 0)
	lessons := make([]*catalog.Lesson, 5)
	for i := range lessons {
		lessons[i] = mustLesson(t, e, fmt.Sprintf("Lesson %d", i), 5)
	}
	mustLinkLessons(t, e, m.ID, lessons...)

	// Every writer submits a different rotation of the same set.
	rotations := make([][]uuid.UUID, len(lessons))
	for r := range rotations {
		for i := range lessons {
			rotations[r] = append(rotations[r], lessons[(r+i)%len(lessons)].ID)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(rotations))
	for _, ids := range rotations {
		wg.Go(func() {
			errs <- e.svc.ReorderModuleLessons(t.Context(), m.ID, ids)
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ReorderModuleLessons() error = %v", err)
		}
	}

	ids, orders := lessonOrder(t, e, m.ID)
	assertDense(t, orders)
	if !slices.ContainsFunc(rotations, func(r []uuid.UUID) bool { return slices.Equal(r, ids) }) {
		t.Errorf("final order %v is none of the submitted orders", ids)
	}
}

func testDeleteLessonWhileLinking(t *testing.T, e env) {
	target := mustLesson(t, e, "Target", 5)
	modules := make([]*catalog.Module, 6)
	for i := range modules {
		modules[i] = mustModule(t, e, fmt.Sprintf("Module %d", i), 0)
		mustLinkLessons(t, e, modules[i].ID, mustLesson(t, e, fmt.Sprintf("Filler %d", i), 5))
	}
	if err := e.svc.LinkLessonToModule(t.Context(), modules[0].ID, target.ID, 0); err != nil {
		t.Fatalf("LinkLessonToModule() error = %v", err)
	}

	var wg sync.WaitGroup
	linkErrs := make(chan error, len(modules))
	for _, m := range modules[1:] {
		wg.Go(func() {
			linkErrs <- e.svc.LinkLessonToModule(t.Context(), m.ID, target.ID, 0)
		})
	}
	var deleteErr error
	wg.Go(func() {
		deleteErr = e.svc.DeleteLesson(t.Context(), target.ID)
	})
	wg.Wait()
	close(linkErrs)

	if deleteErr != nil {
		t.Fatalf("DeleteLesson() error = %v", deleteErr)
	}
	for err := range linkErrs {
		if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			t.Errorf("LinkLessonToModule() error = %v, want nil or not found", err)
		}
	}
	for _, m := range modules {
		ids, orders := lessonOrder(t, e, m.ID)
		assertDense(t, orders)
		if slices.Contains(ids, target.ID) {
			t.Errorf("%s still links the deleted lesson", m.Title)
		}
	}
}

// testReplaceRollsBackFailedInsert fails the INSERT half of a replace, after
// the old links are already deleted inside the transaction.
func testReplaceRollsBackFailedInsert(t *testing.T, e env, pool *pgxpool.Pool) {
	ctx := t.Context()
	m := mustModule(t, e, "Module", 0)
	a := mustLesson(t, e, "A", 1)
	b := mustLesson(t, e, "B", 1)
	broken := mustLesson(t, e, "Broken", 1)
	mustLinkLessons(t, e, m.ID, a, b)

	if _, err := pool.Exec(ctx, `
		CREATE FUNCTION reject_link() RETURNS trigger LANGUAGE plpgsql AS $$
		BEGIN
			IF NEW.lesson_id = '`+broken.ID.String()+`' THEN
				RAISE EXCEPTION 'link rejected';
			END IF;
			RETURN NEW;
		END $$`); err != nil {
		t.Fatalf("create function: %v", err)
	}
	if _, err := pool.Exec(ctx, `CREATE TRIGGER reject_link BEFORE INSERT ON module_lessons
		FOR EACH ROW EXECUTE FUNCTION reject_link()`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	t.Cleanup(func() {
		if _, err := pool.Exec(context.Background(), `DROP TRIGGER reject_link ON module_lessons`); err != nil {
			t.Errorf("drop trigger: %v", err)
		}
		if _, err := pool.Exec(context.Background(), `DROP FUNCTION reject_link()`); err != nil {
			t.Errorf("drop function: %v", err)
		}
	})

	err := e.svc.ReplaceModuleLessons(ctx, m.ID, []uuid.UUID{b.ID, broken.ID, a.ID})
	assertKind(t, err, apperr.KindStorage)

	ids, orders := lessonOrder(t, e, m.ID)
	assertIDs(t, ids, a.ID, b.ID)
	assertDense(t, orders)
}

func testDeleteModuleKeepsLessons(t *testing.T, e env) {
	c1 := mustCourse(t, e, "Course One")
	c2 := mustCourse(t, e, "Course Two")
	keep := mustModule(t, e, "Keep", 0)
	m := mustModule(t, e, "Shared", 0)
	l := mustLesson(t, e, "Shared Lesson", 15)
	mustLinkLessons(t, e, m.ID, l)
	for _, c := range []*catalog.Course{c1, c2} {
		if err := e.svc.ReplaceCourseModules(t.Context(), c.ID, []uuid.UUID{m.ID, keep.ID}); err != nil {
			t.Fatalf("ReplaceCourseModules() error = %v", err)
		}
	}

	if err := e.svc.DeleteModule(t.Context(), m.ID); err != nil {
		t.Fatalf("DeleteModule() error = %v", err)
	}
	for _, c := range []*catalog.Course{c1, c2} {
		ids, orders := moduleOrder(t, e, c.ID)
		assertIDs(t, ids, keep.ID)
		assertDense(t, orders)
	}
	if _, err := e.svc.GetLesson(t.Context(), l.ID); err != nil {
		t.Errorf("lesson should survive module delete: %v", err)
	}
	_, err := e.svc.GetModule(t.Context(), m.ID)
	assertKind(t, err, apperr.KindNotFound)

	err = e.svc.DeleteModule(t.Context(), m.ID)
	assertKind(t, err, apperr.KindNotFound)
}

func testDetachModuleFromCourses(t *testing.T, e env) {
	c1 := mustCourse(t, e, "Course One")
	c2 := mustCourse(t, e, "Course Two")
	m := mustModule(t, e, "Shared", 0)
	l := mustLesson(t, e, "Lesson", 15)
	mustLinkLessons(t, e, m.ID, l)
	for _, c := range []*catalog.Course{c1, c2} {
		if err := e.svc.LinkModuleToCourse(t.Context(), c.ID, m.ID, 0); err != nil {
			t.Fatalf("LinkModuleToCourse() error = %v", err)
		}
	}

	if err := e.svc.DetachModule(t.Context(), m.ID); err != nil {
		t.Fatalf("DetachModule() error = %v", err)
	}
	for _, c := range []*catalog.Course{c1, c2} {
		if ids, _ := moduleOrder(t, e, c.ID); len(ids) != 0 {
			t.Errorf("course %s still has %d modules", c.Title, len(ids))
		}
	}
	if _, err := e.svc.GetModule(t.Context(), m.ID); err != nil {
		t.Errorf("module should remain: %v", err)
	}
	ids, _ := lessonOrder(t, e, m.ID)
	assertIDs(t, ids, l.ID)
}

func testDeleteLessonCompactsModules(t *testing.T, e env) {
	m := mustModule(t, e, "Module", 0)
	a := mustLesson(t, e, "A", 1)
	b := mustLesson(t, e, "B", 1)
	c := mustLesson(t, e, "C", 1)
	mustLinkLessons(t, e, m.ID, a, b, c)
	if _, err := e.svc.SetQuizQuestions(t.Context(), a.ID, []catalog.QuestionInput{
		{Prompt: "q", Answers: []string{"x", "y"}, CorrectIndex: 0},
	}); err != nil {
		t.Fatalf("SetQuizQuestions() error = %v", err)
	}

	if err := e.svc.DeleteLesson(t.Context(), a.ID); err != nil {
		t.Fatalf("DeleteLesson() error = %v", err)
	}
	ids, orders := lessonOrder(t, e, m.ID)
	assertIDs(t, ids, b.ID, c.ID)
	assertDense(t, orders)

	_, err := e.svc.QuizQuestions(t.Context(), a.ID)
	assertKind(t, err, apperr.KindNotFound)
}

func testDeleteUserWithEnrollment(t *testing.T, e env) {
	c := mustCourse(t, e, "Course")
	u, err := e.svc.CreateUser(t.Context(), e.org, "Ada", "ada@example.com")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	enr, err := e.svc.Enroll(t.Context(), u.ID, c.ID)
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	_, err = e.svc.Enroll(t.Context(), u.ID, c.ID)
	assertKind(t, err, apperr.KindConflict)

	err = e.svc.DeleteUser(t.Context(), u.ID)
	assertKind(t, err, apperr.KindConflict)

	if err := e.svc.Unenroll(t.Context(), enr.ID); err != nil {
		t.Fatalf("Unenroll() error = %v", err)
	}
	if err := e.svc.DeleteUser(t.Context(), u.ID); err != nil {
		t.Fatalf("DeleteUser() after unenroll error = %v", err)
	}
	_, err = e.svc.GetUser(t.Context(), u.ID)
	assertKind(t, err, apperr.KindNotFound)
}

func testDeleteCourseWithDependents(t *testing.T, e env) {
	c := mustCourse(t, e, "Course")
	m := mustModule(t, e, "Module", 0)
	if err := e.svc.LinkModuleToCourse(t.Context(), c.ID, m.ID, 0); err != nil {
		t.Fatalf("LinkModuleToCourse() error = %v", err)
	}
	u, err := e.svc.CreateUser(t.Context(), e.org, "Grace", "grace@example.com")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	cert, err := e.svc.IssueCertificate(t.Context(), u.ID, c.ID, "")
	if err != nil {
		t.Fatalf("IssueCertificate() error = %v", err)
	}

	err = e.svc.DeleteCourse(t.Context(), c.ID)
	assertKind(t, err, apperr.KindConflict)
	err = e.svc.DeleteUser(t.Context(), u.ID)
	assertKind(t, err, apperr.KindConflict)

	if err := e.svc.RevokeCertificate(t.Context(), cert.ID); err != nil {
		t.Fatalf("RevokeCertificate() error = %v", err)
	}
	if err := e.svc.DeleteCourse(t.Context(), c.ID); err != nil {
		t.Fatalf("DeleteCourse() error = %v", err)
	}
	if _, err := e.svc.GetModule(t.Context(), m.ID); err != nil {
		t.Errorf("module should survive course delete: %v", err)
	}
}

func testQuizQuestions(t *testing.T, e env) {
	l := mustLesson(t, e, "Quiz Lesson", 5)

	tests := []struct {
		name string
		in   catalog.QuestionInput
	}{
		{"no prompt", catalog.QuestionInput{Answers: []string{"a", "b"}}},
		{"one answer", catalog.QuestionInput{Prompt: "p", Answers: []string{"a"}}},
		{"index out of range", catalog.QuestionInput{Prompt: "p", Answers: []string{"a", "b"}, CorrectIndex: 2}},
		{"negative index", catalog.QuestionInput{Prompt: "p", Answers: []string{"a", "b"}, CorrectIndex: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.SetQuizQuestions(t.Context(), l.ID, []catalog.QuestionInput{tt.in})
			assertKind(t, err, apperr.KindValidation)
		})
	}

	in := []catalog.QuestionInput{
		{Prompt: "First?", Answers: []string{"yes", "no"}, CorrectIndex: 0},
		{Prompt: "Second?", Answers: []string{"a", "b", "c"}, CorrectIndex: 2, Explanation: "c it is"},
	}
	if _, err := e.svc.SetQuizQuestions(t.Context(), l.ID, in); err != nil {
		t.Fatalf("SetQuizQuestions() error = %v", err)
	}
	qs, err := e.svc.QuizQuestions(t.Context(), l.ID)
	if err != nil {
		t.Fatalf("QuizQuestions() error = %v", err)
	}
	if len(qs) != 2 || qs[0].Prompt != "First?" || qs[1].CorrectIndex != 2 || qs[1].Order != 1 {
		t.Errorf("QuizQuestions() = %+v", qs)
	}

	// A second set replaces the first.
	if _, err := e.svc.SetQuizQuestions(t.Context(), l.ID, in[:1]); err != nil {
		t.Fatalf("SetQuizQuestions() error = %v", err)
	}
	qs, _ = e.svc.QuizQuestions(t.Context(), l.ID)
	if len(qs) != 1 {
		t.Errorf("questions after replace = %d, want 1", len(qs))
	}

	_, err = e.svc.SetQuizQuestions(t.Context(), uuid.New(), in)
	assertKind(t, err, apperr.KindNotFound)
}

func testCourseSummary(t *testing.T, e env) {
	c := mustCourse(t, e, "Course")
	withLessons := mustModule(t, e, "With Lessons", 999)
	manual := mustModule(t, e, "Manual", 45)
	l1 := mustLesson(t, e, "L1", 10)
	l2 := mustLesson(t, e, "L2", 20)
	mustLinkLessons(t, e, withLessons.ID, l1, l2)
	if err := e.svc.ReplaceCourseModules(t.Context(), c.ID, []uuid.UUID{manual.ID, withLessons.ID}); err != nil {
		t.Fatalf("ReplaceCourseModules() error = %v", err)
	}

	sum, err := e.agg.CourseSummary(t.Context(), c.ID)
	if err != nil {
		t.Fatalf("CourseSummary() error = %v", err)
	}
	if sum.ModuleCount != 2 || sum.LessonCount != 2 || sum.TotalDuration != 75 {
		t.Errorf("summary = %d modules / %d lessons / %d min, want 2 / 2 / 75",
			sum.ModuleCount, sum.LessonCount, sum.TotalDuration)
	}
	if sum.Modules[0].ModuleID != manual.ID || sum.Modules[0].Duration != 45 {
		t.Errorf("first module = %+v, want manual duration 45", sum.Modules[0])
	}
	if sum.Modules[1].Duration != 30 || sum.Modules[1].Order != 1 {
		t.Errorf("second module = %+v, want lesson-derived 30 at order 1", sum.Modules[1])
	}

	view := catalog.NewCourseView(*c, sum)
	if view.Status != "Draft" || view.Difficulty != "Beginner" || view.TotalDuration != 75 {
		t.Errorf("view = %+v", view)
	}

	empty := mustCourse(t, e, "Empty")
	sum, err = e.agg.CourseSummary(t.Context(), empty.ID)
	if err != nil {
		t.Fatalf("CourseSummary(empty) error = %v", err)
	}
	if sum.ModuleCount != 0 || sum.TotalDuration != 0 {
		t.Errorf("empty summary = %+v", sum)
	}
}

func testNotFound(t *testing.T, e env) {
	id := uuid.New()
	checks := map[string]error{}
	_, checks["GetCourse"] = e.svc.GetCourse(t.Context(), id)
	_, checks["GetModule"] = e.svc.GetModule(t.Context(), id)
	_, checks["LessonBySlug"] = e.svc.LessonBySlug(t.Context(), "missing")
	_, checks["UpdateCourse"] = e.svc.UpdateCourse(t.Context(), id, catalog.CoursePatch{})
	checks["DeleteCourse"] = e.svc.DeleteCourse(t.Context(), id)
	checks["DeleteLesson"] = e.svc.DeleteLesson(t.Context(), id)
	checks["DeleteUser"] = e.svc.DeleteUser(t.Context(), id)
	_, checks["CourseModules"] = e.svc.CourseModules(t.Context(), id)
	_, checks["Enroll"] = e.svc.Enroll(t.Context(), id, id)
	for name, err := range checks {
		if !apperr.Is(err, apperr.KindNotFound) {
			t.Errorf("%s error = %v, want not found", name, err)
		}
	}
}

// Memory-only behavior

type fakeActivity map[uuid.UUID]bool

func (f fakeActivity) HasLessonActivity(_ context.Context, id uuid.UUID) (bool, error) {
	return f[id], nil
}

func TestService_DeleteLessonWithActivity(t *testing.T) {
	store := catalog.NewMemoryStore()
	busy := fakeActivity{}
	e := env{
		svc: catalog.NewService(catalog.ServiceConfig{Store: store, Activity: busy}),
		org: uuid.New(),
	}
	l := mustLesson(t, e, "Busy", 5)
	busy[l.ID] = true

	err := e.svc.DeleteLesson(t.Context(), l.ID)
	assertKind(t, err, apperr.KindConflict)
	if _, err := e.svc.GetLesson(t.Context(), l.ID); err != nil {
		t.Fatalf("lesson should remain: %v", err)
	}

	busy[l.ID] = false
	if err := e.svc.DeleteLesson(t.Context(), l.ID); err != nil {
		t.Fatalf("DeleteLesson() error = %v", err)
	}
}

func TestService_CancelledContextLeavesState(t *testing.T) {
	e := newEnv(catalog.NewMemoryStore())
	m := mustModule(t, e, "Module", 0)
	a := mustLesson(t, e, "A", 1)
	b := mustLesson(t, e, "B", 1)
	mustLinkLessons(t, e, m.ID, a, b)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := e.svc.ReorderModuleLessons(ctx, m.ID, []uuid.UUID{b.ID, a.ID}); !errors.Is(err, context.Canceled) {
		t.Errorf("ReorderModuleLessons() error = %v, want context.Canceled", err)
	}
	if err := e.svc.ReplaceModuleLessons(ctx, m.ID, []uuid.UUID{b.ID}); !errors.Is(err, context.Canceled) {
		t.Errorf("ReplaceModuleLessons() error = %v, want context.Canceled", err)
	}
	if err := e.svc.DeleteLesson(ctx, a.ID); !errors.Is(err, context.Canceled) {
		t.Errorf("DeleteLesson() error = %v, want context.Canceled", err)
	}

	ids, orders := lessonOrder(t, e, m.ID)
	assertIDs(t, ids, a.ID, b.ID)
	assertDense(t, orders)
}

func TestService_ListByOrg(t *testing.T) {
	e := newEnv(catalog.NewMemoryStore())
	second := mustCourse(t, e, "Second")
	first, err := e.svc.CreateCourse(t.Context(), catalog.CourseInput{
		OrgID: e.org, Title: "First", Description: "d", Category: "c", Order: -1,
	})
	if err != nil {
		t.Fatalf("CreateCourse() error = %v", err)
	}
	other := e
	other.org = uuid.New()
	mustCourse(t, other, "Elsewhere")

	got, err := e.svc.ListCourses(t.Context(), e.org)
	if err != nil {
		t.Fatalf("ListCourses() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != first.ID || got[1].ID != second.ID {
		t.Errorf("ListCourses() = %+v", got)
	}
}
