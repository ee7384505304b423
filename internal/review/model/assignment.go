package model

import (
	"math"
	"time"
)

// AssignmentType is the kind of graded work.
type AssignmentType string

const (
	AssignmentHomework AssignmentType = "H"
	AssignmentExam     AssignmentType = "E"
	AssignmentPractice AssignmentType = "P"
)

// TargetAll marks an assignment open to every class section.
const TargetAll = "ALL"

// LatePenaltyBase is the multiplier applied per full week past the deadline.
const LatePenaltyBase = 0.7

// DefaultTestTimeout bounds a single test-case run when neither the case nor
// the engine config set one.
const DefaultTestTimeout = time.Second

// Assignment groups the tasks students solve for one deadline.
type Assignment struct {
	ID     int64          `json:"id"`
	Number int            `json:"number"`
	Name   string         `json:"name"`
	Type   AssignmentType `json:"type"`
	Target string         `json:"target"`
	Code   string         `json:"code"`
	Start  time.Time      `json:"start"`
	End    time.Time      `json:"end"`
	Tasks  []Task         `json:"tasks"`
}

// Task is one numbered exercise of an assignment.
type Task struct {
	ID        int64      `json:"id"`
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Points    int        `json:"points"`
	TestCases []TestCase `json:"test_cases"`
}

// TestCase is one stdin/expected-stdout pair. Timeout 0 uses the default.
type TestCase struct {
	Input   string        `json:"input"`
	Output  string        `json:"output"`
	Timeout time.Duration `json:"timeout"`
}

// ScoreRatio returns 1.0 until End has passed, then LatePenaltyBase raised to
// the number of full weeks late.
func (a Assignment) ScoreRatio(now time.Time) float64 {
	if a.End.IsZero() || !now.After(a.End) {
		return 1.0
	}
	daysLate := int(now.Sub(a.End) / (24 * time.Hour))
	weeks := daysLate / 7
	return math.Pow(LatePenaltyBase, float64(weeks))
}

// MaxPoints sums the point values of all tasks.
func (a Assignment) MaxPoints() int {
	total := 0
	for _, t := range a.Tasks {
		total += t.Points
	}
	return total
}

// Task looks up a task by its 1-based number.
func (a Assignment) Task(number int) (Task, bool) {
	for _, t := range a.Tasks {
		if t.Number == number {
			return t, true
		}
	}
	return Task{}, false
}

// Accepts reports whether students of class may submit to the assignment.
func (a Assignment) Accepts(class string) bool {
	return a.Target == "" || a.Target == TargetAll || a.Target == class
}

// GradebookColumn is the column key the assignment occupies, e.g. "H7".
func (a Assignment) GradebookColumn() string {
	typ := a.Type
	if typ == "" {
		typ = AssignmentHomework
	}
	return string(typ) + itoa(a.Number)
}
