// Package scoring turns evaluation results into points and keeps the
// gradebook monotonic across re-reviews.
package scoring

import (
	"math"

	"gradeflow/internal/review/model"
)

// ratioEpsilon absorbs float error so 10 * 0.7 rounds up to 7, not 8.
const ratioEpsilon = 1e-9

// TaskPoints returns the points earned for one task: the passed share of the
// task's points, less one point per passed case when the compiler printed
// anything, rounded up and never negative. An unsubmitted or uncompiled task
// earns nothing; a clean compile of a task without test cases earns all.
func TaskPoints(r model.TaskResult) int {
	if r.Status != model.TaskSubmitted || !r.Compiled {
		return 0
	}
	total := len(r.Task.TestCases)
	if total == 0 {
		if r.Warnings {
			return 0
		}
		return r.Task.Points
	}
	passed := r.Passed()
	num := r.Task.Points * passed
	if r.Warnings {
		num -= passed * total
	}
	if num <= 0 {
		return 0
	}
	return (num + total - 1) / total
}

// Apply fills Points on every result and returns the earned total and the
// maximum achievable total.
func Apply(results []model.TaskResult) (earned, max int) {
	for i := range results {
		results[i].Points = TaskPoints(results[i])
		earned += results[i].Points
		max += results[i].Task.Points
	}
	return earned, max
}

// Scale applies a lateness ratio to raw points, rounding up.
func Scale(points int, ratio float64) int {
	if ratio >= 1 {
		return points
	}
	if ratio <= 0 || points <= 0 {
		return 0
	}
	return int(math.Ceil(float64(points)*ratio - ratioEpsilon))
}

// Reconcile merges newly earned per-task points into the stored ones. Each
// position keeps the larger of the stored value and the new value scaled by
// ratio, so a weaker re-review never lowers a recorded grade.
func Reconcile(prev, earned []int, ratio float64) []int {
	n := len(prev)
	if len(earned) > n {
		n = len(earned)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		var old, fresh int
		if i < len(prev) {
			old = prev[i]
		}
		if i < len(earned) {
			fresh = Scale(earned[i], ratio)
		}
		out[i] = old
		if fresh > old {
			out[i] = fresh
		}
	}
	return out
}
