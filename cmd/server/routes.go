package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-courseware/internal/platform/apperr"
)

const (
	readyTimeout = 2 * time.Second
	xlsxType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type checker interface {
	HealthCheck(ctx context.Context) error
}

type reportWriter interface {
	WriteCourseProgress(ctx context.Context, courseID uuid.UUID, w io.Writer) error
}

type server struct {
	checks  map[string]checker
	reports reportWriter
}

// newMux creates the HTTP router with health check and report endpoints.
func newMux(s *server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	if s.reports != nil {
		mux.HandleFunc("GET /reports/courses/{id}/progress.xlsx", s.handleCourseReport)
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	var failed []string
	for name, c := range s.checks {
		if err := c.HealthCheck(ctx); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			failed = append(failed, name)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if len(failed) > 0 {
		sort.Strings(failed)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (s *server) handleCourseReport(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, apperr.Validation("invalid course id"))
		return
	}

	// Buffer so a failure halfway through still yields a clean error status.
	var buf bytes.Buffer
	if err := s.reports.WriteCourseProgress(r.Context(), courseID, &buf); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", xlsxType)
	w.Header().Set("Content-Disposition", `attachment; filename="course-`+courseID.String()+`-progress.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var ae *apperr.Error
	if errors.As(err, &ae) {
		status = ae.Status()
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
