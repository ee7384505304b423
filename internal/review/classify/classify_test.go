package classify_test

import (
	"testing"

	"gradeflow/internal/review/classify"
	"gradeflow/internal/review/model"
)

func TestClassify(t *testing.T) {
	c := classify.New("", nil)

	tests := []struct {
		path string
		ok   bool
		want classify.Location
	}{
		{"B/07/12/07_sort.c", true, classify.Location{Class: "B", Assignment: 7, Student: 12, Task: 7}},
		{"A/3/5/1_hello.c", true, classify.Location{Class: "A", Assignment: 3, Student: 5, Task: 1}},
		{"G/10/01/task2.c", true, classify.Location{Class: "G", Assignment: 10, Student: 1, Task: 2}},
		{"V/01/22/03.c", true, classify.Location{Class: "V", Assignment: 1, Student: 22, Task: 3}},
		{"foo.c", false, classify.Location{}},
		{"B/07/12/README.md", false, classify.Location{}},
		{"B/07/12/sort.c", false, classify.Location{}},
		{"B/07/12/00_zero.c", false, classify.Location{}},
		{"b/07/12/01_lower.c", false, classify.Location{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := c.Classify(tt.path)
			if ok != tt.ok {
				t.Fatalf("Classify(%q) ok = %v, want %v", tt.path, ok, tt.ok)
			}
			if !ok {
				return
			}
			tt.want.Path = tt.path
			if got != tt.want {
				t.Fatalf("Classify(%q) = %+v, want %+v", tt.path, got, tt.want)
			}
		})
	}
}

func TestClassifyWithRoot(t *testing.T) {
	c := classify.New("homework/", nil)
	if _, ok := c.Classify("B/07/12/07_sort.c"); ok {
		t.Fatalf("paths outside root must not match")
	}
	loc, ok := c.Classify("homework/B/07/12/07_sort.c")
	if !ok || loc.Task != 7 || loc.Path != "homework/B/07/12/07_sort.c" {
		t.Fatalf("unexpected location %+v ok=%v", loc, ok)
	}
}

func TestSelect(t *testing.T) {
	c := classify.New("", nil)
	author := model.Student{Class: "B", Number: 12}
	assignment := model.Assignment{
		Number: 7,
		Tasks:  []model.Task{{Number: 1, Points: 3}, {Number: 2, Points: 5}},
	}

	sel := c.Select([]string{
		"notes.txt",
		"B/07/12/02_b.c",
		"B/07/12/01_sum.c",
		"B/07/13/01_sum.c",
		"B/06/12/01_old.c",
		"B/07/12/05_extra.c",
		"B/07/12/task1.c",
	}, author, assignment)

	if len(sel.Files) != 2 || sel.Files[1] != "B/07/12/01_sum.c" || sel.Files[2] != "B/07/12/02_b.c" {
		t.Fatalf("unexpected files %v", sel.Files)
	}
	wantIssues := map[string]string{
		"notes.txt":          classify.ReasonUnrecognized,
		"B/07/13/01_sum.c":   classify.ReasonOtherFolder,
		"B/06/12/01_old.c":   classify.ReasonOtherHomework,
		"B/07/12/05_extra.c": classify.ReasonUnknownTask,
		"B/07/12/task1.c":    classify.ReasonDuplicateTask,
	}
	if len(sel.Issues) != len(wantIssues) {
		t.Fatalf("unexpected issues %+v", sel.Issues)
	}
	for _, issue := range sel.Issues {
		if wantIssues[issue.Path] != issue.Reason {
			t.Fatalf("issue for %s = %q, want %q", issue.Path, issue.Reason, wantIssues[issue.Path])
		}
	}
}
