// Package report exports course progress as an XLSX workbook.
package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-courseware/internal/catalog"
	"github.com/p-n-ai/pai-courseware/internal/progress"
)

const (
	SummarySheet  = "Summary"
	LearnersSheet = "Learners"
)

// learnerColumns precede one percentage column per module.
var learnerColumns = []any{"User ID", "Name", "Email", "Enrolled", "Completed Lessons", "Total Lessons", "Progress %"}

// Reporter builds course progress workbooks.
type Reporter struct {
	catalog    *catalog.Service
	aggregator *catalog.Aggregator
	progress   *progress.Engine
	logger     *slog.Logger
}

// Config holds dependencies for the reporter.
type Config struct {
	Catalog    *catalog.Service
	Aggregator *catalog.Aggregator
	Progress   *progress.Engine
	Logger     *slog.Logger
}

func New(cfg Config) *Reporter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		catalog:    cfg.Catalog,
		aggregator: cfg.Aggregator,
		progress:   cfg.Progress,
		logger:     logger.With("component", "report"),
	}
}

// CourseProgress builds a workbook with a Summary sheet for the course and a
// Learners sheet holding one row per enrollment. The caller closes the file.
func (r *Reporter) CourseProgress(ctx context.Context, courseID uuid.UUID) (*excelize.File, error) {
	sum, err := r.aggregator.CourseSummary(ctx, courseID)
	if err != nil {
		return nil, err
	}
	enrollments, err := r.catalog.Enrollments(ctx, courseID)
	if err != nil {
		return nil, err
	}

	rows := make([][]any, 0, len(enrollments))
	totalPct := 0
	for _, e := range enrollments {
		u, err := r.catalog.GetUser(ctx, e.UserID)
		if err != nil {
			return nil, err
		}
		cp, err := r.progress.CourseProgress(ctx, e.UserID, courseID)
		if err != nil {
			return nil, err
		}
		row := []any{
			u.ID.String(), u.Name, u.Email, e.CreatedAt.UTC().Format("2006-01-02"),
			cp.CompletedLessons, cp.TotalLessons, cp.Percentage,
		}
		for _, mp := range cp.Modules {
			row = append(row, mp.Percentage)
		}
		rows = append(rows, row)
		totalPct += cp.Percentage
	}

	f := excelize.NewFile()
	if err := r.writeSummary(f, sum, len(enrollments), totalPct); err != nil {
		f.Close()
		return nil, err
	}
	if err := r.writeLearners(f, sum, rows); err != nil {
		f.Close()
		return nil, err
	}

	r.logger.Info("course progress report built", "course_id", courseID, "learners", len(rows))
	return f, nil
}

// WriteCourseProgress streams the workbook to w.
func (r *Reporter) WriteCourseProgress(ctx context.Context, courseID uuid.UUID, w io.Writer) error {
	f, err := r.CourseProgress(ctx, courseID)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func (r *Reporter) writeSummary(f *excelize.File, sum *catalog.CourseSummary, learners, totalPct int) error {
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	avg := 0
	if learners > 0 {
		avg = totalPct / learners
	}
	rows := [][]any{
		{"Course", sum.Title},
		{"Slug", sum.Slug},
		{"Modules", sum.ModuleCount},
		{"Lessons", sum.LessonCount},
		{"Total Duration (min)", sum.TotalDuration},
		{"Learners", learners},
		{"Average Progress %", avg},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	if err := f.SetCellStyle(SummarySheet, "A1", fmt.Sprintf("A%d", len(rows)), bold); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}
	return f.SetColWidth(SummarySheet, "A", "B", 24)
}

func (r *Reporter) writeLearners(f *excelize.File, sum *catalog.CourseSummary, rows [][]any) error {
	if _, err := f.NewSheet(LearnersSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	header := append([]any{}, learnerColumns...)
	for _, m := range sum.Modules {
		header = append(header, m.Title+" %")
	}
	if err := f.SetSheetRow(LearnersSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(LearnersSheet, cell, &row); err != nil {
			return fmt.Errorf("write learner row: %w", err)
		}
	}

	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	if err := f.SetCellStyle(LearnersSheet, "A1", last, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	return f.SetPanes(LearnersSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
