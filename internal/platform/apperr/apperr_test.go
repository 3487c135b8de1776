package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/p-n-ai/pai-courseware/internal/platform/apperr"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"nil", nil, ""},
		{"validation", apperr.Validation("bad"), apperr.KindValidation},
		{"wrapped conflict", fmt.Errorf("create: %w", apperr.Conflict("slug %q in use", "x")), apperr.KindConflict},
		{"plain error", errors.New("boom"), apperr.KindStorage},
		{"storage keeps typed", apperr.Storage("load", apperr.NotFound("lesson %s", "1")), apperr.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apperr.KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Status(t *testing.T) {
	tests := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindValidation, http.StatusBadRequest},
		{apperr.KindConflict, http.StatusConflict},
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindPreconditionFailed, http.StatusPreconditionFailed},
		{apperr.KindStorage, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e := apperr.New(tt.kind, "x", nil)
			if e.Status() != tt.want {
				t.Errorf("Status() = %d, want %d", e.Status(), tt.want)
			}
		})
	}
}

func TestError_MessageListsFields(t *testing.T) {
	err := apperr.ValidationFields("missing required fields", map[string]string{
		"title":    "required",
		"category": "required",
	})

	want := "missing required fields (category: required, title: required)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestStorage_NilPassesThrough(t *testing.T) {
	if err := apperr.Storage("op", nil); err != nil {
		t.Errorf("Storage(nil) = %v, want nil", err)
	}
}

func TestStorage_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := apperr.Storage("insert lesson", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if !apperr.Is(err, apperr.KindStorage) {
		t.Error("expected storage kind")
	}
}
