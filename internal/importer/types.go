package importer

// Bundle is one YAML catalog file. Modules reference lessons and courses
// reference modules by slug; a slug may name an entity from an earlier bundle
// or one already in the store.
type Bundle struct {
	Lessons []LessonDoc `yaml:"lessons"`
	Modules []ModuleDoc `yaml:"modules"`
	Courses []CourseDoc `yaml:"courses"`
}

// Common holds the fields every entity shares.
type Common struct {
	Slug        string   `yaml:"slug"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Category    string   `yaml:"category"`
	Status      string   `yaml:"status"`
	Difficulty  string   `yaml:"difficulty"`
	Tags        []string `yaml:"tags"`
	Order       int      `yaml:"order"`
}

type LessonDoc struct {
	Common          `yaml:",inline"`
	Type            string        `yaml:"type"`
	DurationMinutes int           `yaml:"duration_minutes"`
	Content         string        `yaml:"content"`
	VideoURL        string        `yaml:"video_url"`
	Quiz            []QuestionDoc `yaml:"quiz"`
}

type QuestionDoc struct {
	Prompt      string   `yaml:"prompt"`
	Answers     []string `yaml:"answers"`
	Correct     int      `yaml:"correct"`
	Explanation string   `yaml:"explanation"`
}

type ModuleDoc struct {
	Common   `yaml:",inline"`
	Duration int      `yaml:"duration"`
	Lessons  []string `yaml:"lessons"`
}

type CourseDoc struct {
	Common  `yaml:",inline"`
	Modules []string `yaml:"modules"`
}

// Result counts what an import touched.
type Result struct {
	LessonsCreated int
	LessonsReused  int
	ModulesCreated int
	ModulesReused  int
	CoursesCreated int
	CoursesReused  int
}

func (r *Result) add(o Result) {
	r.LessonsCreated += o.LessonsCreated
	r.LessonsReused += o.LessonsReused
	r.ModulesCreated += o.ModulesCreated
	r.ModulesReused += o.ModulesReused
	r.CoursesCreated += o.CoursesCreated
	r.CoursesReused += o.CoursesReused
}
