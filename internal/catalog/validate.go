package catalog

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-courseware/internal/platform/apperr"
)

// ValidateCourseInput returns the error CreateCourse would return for in
// before it reaches the store. Slug availability is not checked.
func ValidateCourseInput(in CourseInput) error {
	_, _, err := prepareCourse(in)
	return err
}

// ValidateModuleInput is ValidateCourseInput for modules.
func ValidateModuleInput(in ModuleInput) error {
	_, _, err := prepareModule(in)
	return err
}

// ValidateLessonInput is ValidateCourseInput for lessons.
func ValidateLessonInput(in LessonInput) error {
	_, _, _, err := prepareLesson(in)
	return err
}

// ValidateQuestions checks a quiz the way SetQuizQuestions does. Each
// question needs a prompt, at least two answers and a CorrectIndex pointing
// at one of them.
func ValidateQuestions(in []QuestionInput) error {
	for i, q := range in {
		fields := map[string]string{}
		if strings.TrimSpace(q.Prompt) == "" {
			fields["prompt"] = "required"
		}
		if len(q.Answers) < 2 {
			fields["answers"] = "at least two answers required"
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Answers) {
			fields["correct_index"] = "out of range"
		}
		if len(fields) > 0 {
			return apperr.ValidationFields(questionLabel(i), fields)
		}
	}
	return nil
}

func prepareCourse(in CourseInput) (Difficulty, string, error) {
	diff, err := checkCommon(in.OrgID, true, in.Title, in.Description, in.Category, in.Difficulty)
	if err != nil {
		return "", "", err
	}
	slug, err := resolveSlug(in.Slug, in.Title)
	if err != nil {
		return "", "", err
	}
	return diff, slug, nil
}

func prepareModule(in ModuleInput) (Difficulty, string, error) {
	diff, err := checkCommon(in.OrgID, true, in.Title, in.Description, in.Category, in.Difficulty)
	if err != nil {
		return "", "", err
	}
	if err := checkMinutes("duration", in.Duration); err != nil {
		return "", "", err
	}
	slug, err := resolveSlug(in.Slug, in.Title)
	if err != nil {
		return "", "", err
	}
	return diff, slug, nil
}

func prepareLesson(in LessonInput) (Difficulty, ContentType, string, error) {
	diff, err := checkCommon(in.OrgID, true, in.Title, in.Description, in.Category, in.Difficulty)
	if err != nil {
		return "", "", "", err
	}
	typ, err := ParseContentType(in.Type)
	if err != nil {
		return "", "", "", err
	}
	if err := checkMinutes("duration_minutes", in.DurationMinutes); err != nil {
		return "", "", "", err
	}
	slug, err := resolveSlug(in.Slug, in.Title)
	if err != nil {
		return "", "", "", err
	}
	return diff, typ, slug, nil
}

// checkCommon validates the fields shared by every entity and reports all
// missing ones together.
func checkCommon(orgID uuid.UUID, needOrg bool, title, description, category, difficulty string) (Difficulty, error) {
	fields := map[string]string{}
	if needOrg && orgID == uuid.Nil {
		fields["org_id"] = "required"
	}
	if strings.TrimSpace(title) == "" {
		fields["title"] = "required"
	}
	if strings.TrimSpace(description) == "" {
		fields["description"] = "required"
	}
	if strings.TrimSpace(category) == "" {
		fields["category"] = "required"
	}
	diff, err := ParseDifficulty(difficulty)
	if err != nil {
		fields["difficulty"] = "must be Beginner, Intermediate or Expert"
	}
	if len(fields) > 0 {
		return "", apperr.ValidationFields("missing or invalid fields", fields)
	}
	return diff, nil
}

func resolveSlug(supplied, title string) (string, error) {
	slug := strings.TrimSpace(supplied)
	if slug == "" {
		slug = Slugify(title)
	}
	if slug == "" {
		return "", apperr.ValidationFields("cannot derive slug", map[string]string{"slug": "title has no word characters"})
	}
	if len(slug) > MaxSlugLen {
		return "", apperr.ValidationFields("slug too long", map[string]string{"slug": "at most 100 characters"})
	}
	return slug, nil
}

func checkMinutes(field string, v int) error {
	if v < 0 {
		return apperr.ValidationFields("negative duration", map[string]string{field: "must not be negative"})
	}
	return nil
}

func questionLabel(i int) string {
	return "invalid question " + strconv.Itoa(i)
}
