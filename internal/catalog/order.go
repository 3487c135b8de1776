package catalog

import (
	"github.com/google/uuid"

	"github.com/p-n-ai/pai-courseware/internal/platform/apperr"
)

// placeAt moves id to position pos within ids, clamping pos to [0, len]. The
// returned slice's indices are the new dense order values.
func placeAt(ids []uuid.UUID, id uuid.UUID, pos int) []uuid.UUID {
	rest := without(ids, id)
	if pos < 0 {
		pos = 0
	}
	if pos > len(rest) {
		pos = len(rest)
	}
	out := make([]uuid.UUID, 0, len(rest)+1)
	out = append(out, rest[:pos]...)
	out = append(out, id)
	return append(out, rest[pos:]...)
}

func without(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func checkDistinct(ids []uuid.UUID) error {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return apperr.ValidationFields("duplicate id in list", map[string]string{"id": id.String()})
		}
		seen[id] = struct{}{}
	}
	return nil
}

// checkFullSet verifies that requested is exactly the current child set in
// some order. A partial list would strand the unlisted siblings' positions.
func checkFullSet(current, requested []uuid.UUID) error {
	if err := checkDistinct(requested); err != nil {
		return err
	}
	if len(requested) != len(current) {
		return apperr.ValidationFields("reorder list must contain every child exactly once", map[string]string{
			"count": "mismatch with current children",
		})
	}
	have := make(map[uuid.UUID]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	for _, id := range requested {
		if _, ok := have[id]; !ok {
			return apperr.ValidationFields("reorder list names an item that is not a child", map[string]string{
				"id": id.String(),
			})
		}
	}
	return nil
}
