package classify

import (
	"sort"

	"gradeflow/internal/review/model"
)

// Selection is the outcome of sorting a change-set into gradable task files
// and rejected files.
type Selection struct {
	// Files maps task number to the repository path to evaluate.
	Files  map[int]string
	Issues []model.FileIssue
}

// Select classifies every changed path and keeps the ones that belong to the
// author's personal folder of the given assignment. Files in another
// student's folder are rejected outright. When several files name the same
// task, the lexically first path wins.
func (c *Classifier) Select(paths []string, author model.Student, assignment model.Assignment) Selection {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	sel := Selection{Files: make(map[int]string)}
	for _, p := range sorted {
		loc, ok := c.Classify(p)
		if !ok {
			sel.Issues = append(sel.Issues, model.FileIssue{Path: p, Reason: ReasonUnrecognized})
			continue
		}
		if loc.Class != author.Class || loc.Student != author.Number {
			sel.Issues = append(sel.Issues, model.FileIssue{Path: p, Reason: ReasonOtherFolder})
			continue
		}
		if loc.Assignment != assignment.Number {
			sel.Issues = append(sel.Issues, model.FileIssue{Path: p, Reason: ReasonOtherHomework})
			continue
		}
		if _, ok := assignment.Task(loc.Task); !ok {
			sel.Issues = append(sel.Issues, model.FileIssue{Path: p, Reason: ReasonUnknownTask})
			continue
		}
		if _, dup := sel.Files[loc.Task]; dup {
			sel.Issues = append(sel.Issues, model.FileIssue{Path: p, Reason: ReasonDuplicateTask})
			continue
		}
		sel.Files[loc.Task] = p
	}
	return sel
}
