package analysis

import (
	"github.com/APIExplore/api-explore-backend/internal/types"
)

// Compare reports how the current run diverges from the previous run of the
// same sequence. Runs of different lengths yield a single warning.
func Compare(previous, current []types.CallResult) []types.Warning {
	if len(previous) != len(current) {
		return []types.Warning{types.Warningf(
			"Call sequence length changed from %d to %d calls", len(previous), len(current))}
	}

	var warnings []types.Warning
	for i := range current {
		prev, cur := &previous[i], &current[i]
		if prev.Operation() != cur.Operation() {
			warnings = append(warnings, types.Warningf(
				"Call %d changed operation from %s to %s", i+1, prev.Operation(), cur.Operation()))
			continue
		}
		if status(prev) != status(cur) {
			warnings = append(warnings, types.Warningf(
				"Call %d (%s) returned status %d instead of %d", i+1, cur.Operation(), status(cur), status(prev)))
		}
		if !Equal(data(prev), data(cur)) {
			warnings = append(warnings, types.Warningf(
				"Call %d (%s) returned different data than in the previous run", i+1, cur.Operation()))
		}
	}
	return warnings
}

func status(r *types.CallResult) int {
	if r.Response == nil {
		return 0
	}
	return r.Response.Status
}

func data(r *types.CallResult) any {
	if r.Response == nil {
		return nil
	}
	return r.Response.Data
}

// SameResponse reports whether two calls got equal status and data
func SameResponse(a, b *types.CallResult) bool {
	return status(a) == status(b) && Equal(data(a), data(b))
}
