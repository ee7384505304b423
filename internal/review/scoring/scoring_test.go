package scoring_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"gradeflow/internal/review/model"
	"gradeflow/internal/review/scoring"
	pkgerrors "gradeflow/pkg/errors"
)

func cases(n int) []model.TestCase {
	out := make([]model.TestCase, n)
	for i := range out {
		out[i] = model.TestCase{Input: fmt.Sprint(i), Output: fmt.Sprint(i)}
	}
	return out
}

func result(points, total, passed int, warnings bool) model.TaskResult {
	r := model.TaskResult{
		Task:     model.Task{Number: 1, Points: points, TestCases: cases(total)},
		Status:   model.TaskSubmitted,
		Compiled: true,
		Warnings: warnings,
	}
	for i := 0; i < total; i++ {
		outcome := model.OutcomeMismatch
		if i < passed {
			outcome = model.OutcomePass
		}
		r.Tests = append(r.Tests, model.TestResult{Index: i + 1, Outcome: outcome})
	}
	return r
}

func TestTaskPoints(t *testing.T) {
	t.Parallel()
	uncompiled := result(5, 2, 0, false)
	uncompiled.Compiled = false
	unsubmitted := model.TaskResult{Task: model.Task{Points: 5}, Status: model.TaskUnsubmitted}

	tests := []struct {
		name string
		in   model.TaskResult
		want int
	}{
		{name: "all pass clean", in: result(4, 3, 3, false), want: 4},
		{name: "two of three", in: result(4, 3, 2, false), want: 3},
		{name: "none pass", in: result(4, 3, 0, false), want: 0},
		{name: "warnings subtract passed count", in: result(4, 3, 3, true), want: 1},
		{name: "warnings clamp at zero", in: result(2, 3, 3, true), want: 0},
		{name: "warnings round up", in: result(10, 4, 3, true), want: 5},
		{name: "no test cases clean", in: result(3, 0, 0, false), want: 3},
		{name: "uncompiled", in: uncompiled, want: 0},
		{name: "unsubmitted", in: unsubmitted, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoring.TaskPoints(tt.in); got != tt.want {
				t.Fatalf("TaskPoints = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestApply(t *testing.T) {
	t.Parallel()
	results := []model.TaskResult{result(4, 3, 2, false), result(6, 2, 2, false)}
	earned, max := scoring.Apply(results)
	if earned != 9 || max != 10 {
		t.Fatalf("expected 9 of 10, got %d of %d", earned, max)
	}
	if results[0].Points != 3 || results[1].Points != 6 {
		t.Fatalf("points not stored on results: %+v", results)
	}
}

func TestReconcile(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		prev   []int
		earned []int
		ratio  float64
		want   []int
	}{
		{name: "monotonic max", prev: []int{3, 5}, earned: []int{2, 6}, ratio: 1, want: []int{3, 6}},
		{name: "empty cell", prev: nil, earned: []int{4, 0}, ratio: 1, want: []int{4, 0}},
		{name: "lateness applied", prev: []int{0}, earned: []int{10}, ratio: 0.7, want: []int{7}},
		{name: "lateness rounds up", prev: []int{0}, earned: []int{5}, ratio: 0.49, want: []int{3}},
		{name: "late never lowers", prev: []int{9}, earned: []int{10}, ratio: 0.7, want: []int{9}},
		{name: "stored longer than new", prev: []int{1, 2, 3}, earned: []int{4}, ratio: 1, want: []int{4, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scoring.Reconcile(tt.prev, tt.earned, tt.ratio)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Reconcile = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormula(t *testing.T) {
	t.Parallel()
	points, err := scoring.ParseFormula("=2+5+10+1")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !reflect.DeepEqual(points, []int{2, 5, 10, 1}) {
		t.Fatalf("unexpected points %v", points)
	}
	if got := scoring.RenderFormula([]int{3, 5, 10, 3}); got != "=3+5+10+3" {
		t.Fatalf("unexpected formula %q", got)
	}
	empty, err := scoring.ParseFormula("")
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty cell should parse to no points, got %v %v", empty, err)
	}
	if _, err := scoring.ParseFormula("=2+x"); !pkgerrors.Is(err, pkgerrors.FormulaInvalid) {
		t.Fatalf("expected FormulaInvalid, got %v", err)
	}
}

type memorySheet struct {
	mu     sync.Mutex
	cells  map[string]string
	writes int
}

func (s *memorySheet) ReadCell(_ context.Context, row, col string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cells[row+"|"+col], nil
}

func (s *memorySheet) WriteCell(_ context.Context, row, col, formula string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells[row+"|"+col] = formula
	s.writes++
	return nil
}

type memoryBook struct {
	sheets map[string]*memorySheet
}

func (b *memoryBook) SelectSheet(_ context.Context, name string) (scoring.Sheet, error) {
	s, ok := b.sheets[name]
	if !ok {
		return nil, errors.New("no such sheet")
	}
	return s, nil
}

func TestSyncerReconcilesCell(t *testing.T) {
	t.Parallel()
	sheet := &memorySheet{cells: map[string]string{"Ana Petrova|H7": "=3+5"}}
	book := &memoryBook{sheets: map[string]*memorySheet{"B": sheet}}
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	syncer := scoring.NewSyncer(book, nil).WithClock(func() time.Time { return end.Add(-time.Hour) })

	student := model.Student{Class: "B", Number: 12, FirstName: "Ana", LastName: "Petrova"}
	assignment := model.Assignment{Number: 7, Type: model.AssignmentHomework, End: end}
	results := []model.TaskResult{
		{Task: model.Task{Number: 2}, Points: 6},
		{Task: model.Task{Number: 1}, Points: 2},
	}

	stored, err := syncer.Sync(context.Background(), student, assignment, results)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if !reflect.DeepEqual(stored, []int{3, 6}) {
		t.Fatalf("unexpected stored points %v", stored)
	}
	if got := sheet.cells["Ana Petrova|H7"]; got != "=3+6" {
		t.Fatalf("unexpected cell %q", got)
	}

	// A weaker re-review leaves the cell untouched.
	results[0].Points = 1
	if _, err := syncer.Sync(context.Background(), student, assignment, results); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if sheet.writes != 1 {
		t.Fatalf("expected no write for unchanged cell, got %d writes", sheet.writes)
	}
}

func TestSyncerMissingSheet(t *testing.T) {
	t.Parallel()
	syncer := scoring.NewSyncer(&memoryBook{sheets: map[string]*memorySheet{}}, nil)
	_, err := syncer.Sync(context.Background(), model.Student{Class: "G"}, model.Assignment{Number: 1}, nil)
	if !pkgerrors.Is(err, pkgerrors.GradebookNoSheet) {
		t.Fatalf("expected GradebookNoSheet, got %v", err)
	}
}

func TestSyncerConcurrentReviewsKeepMaximum(t *testing.T) {
	t.Parallel()
	sheet := &memorySheet{cells: map[string]string{}}
	book := &memoryBook{sheets: map[string]*memorySheet{"A": sheet}}
	syncer := scoring.NewSyncer(book, nil)
	student := model.Student{Class: "A", FirstName: "Ivan", LastName: "Ivanov"}
	assignment := model.Assignment{Number: 3}

	var wg sync.WaitGroup
	for p := 1; p <= 10; p++ {
		wg.Add(1)
		go func(points int) {
			defer wg.Done()
			_, _ = syncer.Sync(context.Background(), student, assignment,
				[]model.TaskResult{{Task: model.Task{Number: 1}, Points: points}})
		}(p)
	}
	wg.Wait()
	if got := sheet.cells["Ivan Ivanov|H3"]; got != "=10" {
		t.Fatalf("expected the maximum to survive, got %q", got)
	}
}
