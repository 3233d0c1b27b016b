package analysis

import (
	"net/http"
	"strings"

	"github.com/APIExplore/api-explore-backend/internal/types"
)

// Interval is a pair of positions of the same read operation whose responses differ
type Interval struct {
	Start int
	End   int
}

// Analyze annotates calls in place with the relationships inferred between
// them and returns the same slice
func Analyze(calls []types.CallResult) []types.CallResult {
	for i := range calls {
		calls[i].Relationships = nil
	}
	intervals := tagPairs(calls)

	for i := range calls {
		if calls[i].Response != nil && calls[i].Response.Status >= http.StatusInternalServerError {
			calls[i].Tag(types.Fuzz, types.RoleEnd)
		}
	}

	for k := 0; k+1 < len(intervals); k++ {
		first, second := intervals[k], intervals[k+1]
		if !SameResponse(&calls[first.Start], &calls[second.End]) {
			continue
		}
		calls[first.Start].Tag(types.StateIdentity, types.RoleStart)
		calls[first.End].Tag(types.StateIdentity, types.RoleMid)
		if second.Start != first.End {
			calls[second.Start].Tag(types.StateIdentity, types.RoleMid)
		}
		calls[second.End].Tag(types.StateIdentity, types.RoleEnd)
	}

	return calls
}

// MutationIntervals returns the (start, end) positions of read operations
// whose response changed between consecutive occurrences
func MutationIntervals(calls []types.CallResult) []Interval {
	var intervals []Interval
	forEachPair(calls, func(i, j int) {
		if isRead(&calls[i]) && !SameResponse(&calls[i], &calls[j]) {
			intervals = append(intervals, Interval{Start: i, End: j})
		}
	})
	return intervals
}

func tagPairs(calls []types.CallResult) []Interval {
	var intervals []Interval
	forEachPair(calls, func(i, j int) {
		a, b := &calls[i], &calls[j]
		if SameResponse(a, b) {
			a.Tag(types.ResponseEquality, types.RoleStart)
			b.Tag(types.ResponseEquality, types.RoleEnd)
			return
		}

		a.Tag(types.ResponseInequality, types.RoleStart)
		b.Tag(types.ResponseInequality, types.RoleEnd)
		if isRead(a) {
			a.Tag(types.StateMutation, types.RoleStart)
			b.Tag(types.StateMutation, types.RoleEnd)
			intervals = append(intervals, Interval{Start: i, End: j})
		}
	})
	return intervals
}

// forEachPair visits every call that has a response together with the next
// occurrence of the same operation
func forEachPair(calls []types.CallResult, fn func(i, j int)) {
	for i := range calls {
		if calls[i].Response == nil {
			continue
		}
		for j := i + 1; j < len(calls); j++ {
			if calls[j].Operation() != calls[i].Operation() || calls[j].Response == nil {
				continue
			}
			fn(i, j)
			break
		}
	}
}

func isRead(call *types.CallResult) bool {
	return strings.EqualFold(call.Method, http.MethodGet)
}
