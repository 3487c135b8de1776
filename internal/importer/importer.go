// Package importer loads catalog bundles written in YAML into the catalog.
// Entities are matched by slug, so importing the same bundle twice creates
// nothing the second time.
package importer

import (
	"context"
	_ "embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-courseware/internal/catalog"
	"github.com/p-n-ai/pai-courseware/internal/platform/apperr"
)

//go:embed bundle.schema.json
var bundleSchema []byte

// Importer writes bundles through the catalog service.
type Importer struct {
	svc    *catalog.Service
	orgID  uuid.UUID
	schema *gojsonschema.Schema
	logger *slog.Logger
}

// Config holds dependencies for the importer.
type Config struct {
	Service *catalog.Service
	OrgID   uuid.UUID // owner of every entity the importer creates
	Logger  *slog.Logger
}

func New(cfg Config) (*Importer, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("catalog service is nil")
	}
	if cfg.OrgID == uuid.Nil {
		return nil, fmt.Errorf("org id is required")
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(bundleSchema))
	if err != nil {
		return nil, fmt.Errorf("compile bundle schema: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		svc:    cfg.Service,
		orgID:  cfg.OrgID,
		schema: schema,
		logger: logger.With("component", "importer"),
	}, nil
}

// ImportDir imports every .yaml and .yml file under root in lexical path
// order, so a bundle may reference slugs defined by an earlier file.
func (im *Importer) ImportDir(ctx context.Context, root string) (Result, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("walk %s: %w", root, err)
	}

	var total Result
	for _, path := range paths {
		res, err := im.ImportFile(ctx, path)
		if err != nil {
			return total, err
		}
		total.add(res)
	}
	im.logger.Info("catalog imported",
		"dir", root,
		"files", len(paths),
		"lessons_created", total.LessonsCreated,
		"modules_created", total.ModulesCreated,
		"courses_created", total.CoursesCreated,
	)
	return total, nil
}

func (im *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read bundle: %w", err)
	}
	res, err := im.Import(ctx, data)
	if err != nil {
		return res, fmt.Errorf("import %s: %w", path, err)
	}
	im.logger.Debug("bundle imported", "path", path)
	return res, nil
}

// Import validates data against the bundle schema, runs the catalog's own
// input validation on every entity and resolves every slug reference before
// the first write. A bundle that fails any of these changes nothing.
func (im *Importer) Import(ctx context.Context, data []byte) (Result, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Result{}, apperr.New(apperr.KindValidation, "parse bundle", err)
	}
	if raw == nil {
		return Result{}, nil
	}
	if err := im.validate(raw); err != nil {
		return Result{}, err
	}

	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Result{}, apperr.New(apperr.KindValidation, "decode bundle", err)
	}
	if err := im.check(ctx, b); err != nil {
		return Result{}, err
	}
	return im.apply(ctx, b)
}

func (im *Importer) validate(doc any) error {
	res, err := im.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return apperr.New(apperr.KindValidation, "validate bundle", err)
	}
	if res.Valid() {
		return nil
	}
	fields := make(map[string]string, len(res.Errors()))
	for _, e := range res.Errors() {
		fields[e.Field()] = e.Description()
	}
	return apperr.ValidationFields("invalid catalog bundle", fields)
}

// check catches what the schema cannot: entities the catalog service would
// reject, such as a title with no word characters, and slug references that
// resolve to nothing.
func (im *Importer) check(ctx context.Context, b Bundle) error {
	fields := make(map[string]string)

	lessons := make(map[string]bool, len(b.Lessons))
	for i, d := range b.Lessons {
		lessons[slugOf(d.Common)] = true
		if err := catalog.ValidateLessonInput(im.lessonInput(d)); err != nil {
			fields[fmt.Sprintf("lessons.%d", i)] = err.Error()
		}
		if err := catalog.ValidateQuestions(questionInputs(d.Quiz)); err != nil {
			fields[fmt.Sprintf("lessons.%d.quiz", i)] = err.Error()
		}
	}
	modules := make(map[string]bool, len(b.Modules))
	for i, d := range b.Modules {
		modules[slugOf(d.Common)] = true
		if err := catalog.ValidateModuleInput(im.moduleInput(d)); err != nil {
			fields[fmt.Sprintf("modules.%d", i)] = err.Error()
		}
		for _, ref := range d.Lessons {
			if lessons[ref] {
				continue
			}
			if ok, err := exists(ctx, ref, im.lessonID); err != nil {
				return err
			} else if !ok {
				fields[fmt.Sprintf("modules.%d.lessons", i)] = "unknown lesson " + ref
			}
		}
	}
	for i, d := range b.Courses {
		if err := catalog.ValidateCourseInput(im.courseInput(d)); err != nil {
			fields[fmt.Sprintf("courses.%d", i)] = err.Error()
		}
		for _, ref := range d.Modules {
			if modules[ref] {
				continue
			}
			if ok, err := exists(ctx, ref, im.moduleID); err != nil {
				return err
			} else if !ok {
				fields[fmt.Sprintf("courses.%d.modules", i)] = "unknown module " + ref
			}
		}
	}

	if len(fields) > 0 {
		return apperr.ValidationFields("invalid catalog bundle", fields)
	}
	return nil
}

func (im *Importer) apply(ctx context.Context, b Bundle) (Result, error) {
	var res Result
	lessonIDs := make(map[string]uuid.UUID)
	moduleIDs := make(map[string]uuid.UUID)

	for _, d := range b.Lessons {
		id, created, err := im.lesson(ctx, d)
		if err != nil {
			return res, err
		}
		lessonIDs[slugOf(d.Common)] = id
		if created {
			res.LessonsCreated++
		} else {
			res.LessonsReused++
		}
	}

	for _, d := range b.Modules {
		slug := slugOf(d.Common)
		if m, err := im.svc.ModuleBySlug(ctx, slug); err == nil {
			moduleIDs[slug] = m.ID
			res.ModulesReused++
			continue
		} else if !apperr.Is(err, apperr.KindNotFound) {
			return res, err
		}

		m, err := im.svc.CreateModule(ctx, im.moduleInput(d))
		if err != nil {
			return res, fmt.Errorf("create module %s: %w", slug, err)
		}
		ids, err := resolve(ctx, d.Lessons, lessonIDs, im.lessonID)
		if err != nil {
			return res, err
		}
		if err := im.svc.ReplaceModuleLessons(ctx, m.ID, ids); err != nil {
			return res, fmt.Errorf("link lessons of %s: %w", slug, err)
		}
		moduleIDs[slug] = m.ID
		res.ModulesCreated++
	}

	for _, d := range b.Courses {
		slug := slugOf(d.Common)
		if _, err := im.svc.CourseBySlug(ctx, slug); err == nil {
			res.CoursesReused++
			continue
		} else if !apperr.Is(err, apperr.KindNotFound) {
			return res, err
		}

		c, err := im.svc.CreateCourse(ctx, im.courseInput(d))
		if err != nil {
			return res, fmt.Errorf("create course %s: %w", slug, err)
		}
		ids, err := resolve(ctx, d.Modules, moduleIDs, im.moduleID)
		if err != nil {
			return res, err
		}
		if err := im.svc.ReplaceCourseModules(ctx, c.ID, ids); err != nil {
			return res, fmt.Errorf("link modules of %s: %w", slug, err)
		}
		res.CoursesCreated++
	}
	return res, nil
}

func (im *Importer) lesson(ctx context.Context, d LessonDoc) (uuid.UUID, bool, error) {
	slug := slugOf(d.Common)
	if l, err := im.svc.LessonBySlug(ctx, slug); err == nil {
		return l.ID, false, nil
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return uuid.Nil, false, err
	}

	l, err := im.svc.CreateLesson(ctx, im.lessonInput(d))
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("create lesson %s: %w", slug, err)
	}

	if len(d.Quiz) > 0 {
		if _, err := im.svc.SetQuizQuestions(ctx, l.ID, questionInputs(d.Quiz)); err != nil {
			return uuid.Nil, false, fmt.Errorf("set quiz of %s: %w", slug, err)
		}
	}
	return l.ID, true, nil
}

func (im *Importer) lessonInput(d LessonDoc) catalog.LessonInput {
	return catalog.LessonInput{
		OrgID:           im.orgID,
		Title:           d.Title,
		Description:     d.Description,
		Category:        d.Category,
		Status:          d.Status,
		Difficulty:      d.Difficulty,
		Type:            d.Type,
		DurationMinutes: d.DurationMinutes,
		Content:         d.Content,
		VideoURL:        d.VideoURL,
		Tags:            d.Tags,
		Order:           d.Order,
		Slug:            slugOf(d.Common),
	}
}

func (im *Importer) moduleInput(d ModuleDoc) catalog.ModuleInput {
	return catalog.ModuleInput{
		OrgID:       im.orgID,
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		Status:      d.Status,
		Difficulty:  d.Difficulty,
		Tags:        d.Tags,
		Order:       d.Order,
		Slug:        slugOf(d.Common),
		Duration:    d.Duration,
	}
}

func (im *Importer) courseInput(d CourseDoc) catalog.CourseInput {
	return catalog.CourseInput{
		OrgID:       im.orgID,
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		Status:      d.Status,
		Difficulty:  d.Difficulty,
		Tags:        d.Tags,
		Order:       d.Order,
		Slug:        slugOf(d.Common),
	}
}

func questionInputs(docs []QuestionDoc) []catalog.QuestionInput {
	qs := make([]catalog.QuestionInput, len(docs))
	for i, q := range docs {
		qs[i] = catalog.QuestionInput{
			Prompt:       q.Prompt,
			Answers:      q.Answers,
			CorrectIndex: q.Correct,
			Explanation:  q.Explanation,
		}
	}
	return qs
}

func (im *Importer) lessonID(ctx context.Context, slug string) (uuid.UUID, error) {
	l, err := im.svc.LessonBySlug(ctx, slug)
	if err != nil {
		return uuid.Nil, err
	}
	return l.ID, nil
}

func (im *Importer) moduleID(ctx context.Context, slug string) (uuid.UUID, error) {
	m, err := im.svc.ModuleBySlug(ctx, slug)
	if err != nil {
		return uuid.Nil, err
	}
	return m.ID, nil
}

type lookupFunc func(ctx context.Context, slug string) (uuid.UUID, error)

func exists(ctx context.Context, slug string, lookup lookupFunc) (bool, error) {
	_, err := lookup(ctx, slug)
	if err == nil {
		return true, nil
	}
	if apperr.Is(err, apperr.KindNotFound) {
		return false, nil
	}
	return false, err
}

// resolve maps slugs to ids, preferring entities from the current bundle.
func resolve(ctx context.Context, slugs []string, known map[string]uuid.UUID, lookup lookupFunc) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(slugs))
	for _, slug := range slugs {
		if id, ok := known[slug]; ok {
			ids = append(ids, id)
			continue
		}
		id, err := lookup(ctx, slug)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", slug, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func slugOf(c Common) string {
	if s := strings.TrimSpace(c.Slug); s != "" {
		return s
	}
	return catalog.Slugify(c.Title)
}
