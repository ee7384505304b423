// Package classify maps changed file paths to the assignment task they solve.
package classify

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// Location identifies the personal folder and task a file belongs to.
type Location struct {
	Class      string
	Assignment int
	Student    int
	Task       int
	Path       string
}

// Rule is one (pattern, extractor) entry of the classification table.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Extract func(m []string) (Location, error)
}

// Reasons reported for files that cannot be graded.
const (
	ReasonUnrecognized  = "unrecognized file name"
	ReasonOtherFolder   = "not in your personal folder"
	ReasonOtherHomework = "belongs to a different assignment"
	ReasonUnknownTask   = "no such task in this assignment"
	ReasonDuplicateTask = "another file already submitted for this task"
)

// DefaultRules is the layout "<class>/<assignment>/<student>/<task>_<name>.c"
// plus the shorter task file spellings used by older assignments. Order
// matters: the first matching rule wins.
func DefaultRules() []Rule {
	folder := `(?P<class>[A-Z])/(?P<assignment>\d{1,3})/(?P<student>\d{1,3})/`
	return []Rule{
		{
			Name:    "numbered-source",
			Pattern: regexp.MustCompile(`^` + folder + `(?P<task>\d{1,2})_[^/]+\.c$`),
			Extract: extractNamed,
		},
		{
			Name:    "task-source",
			Pattern: regexp.MustCompile(`^` + folder + `(?i:task)_?(?P<task>\d{1,2})\.c$`),
			Extract: extractNamed,
		},
		{
			Name:    "bare-number-source",
			Pattern: regexp.MustCompile(`^` + folder + `(?P<task>\d{1,2})\.c$`),
			Extract: extractNamed,
		},
	}
}

// Classifier applies an ordered rule table to repository paths.
type Classifier struct {
	root  string
	rules []Rule
}

// New builds a classifier. root, when set, is a directory prefix stripped
// from paths before matching, e.g. "homework".
func New(root string, rules []Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	root = strings.Trim(path.Clean("/"+root), "/")
	return &Classifier{root: root, rules: rules}
}

// Classify returns the location of p, or false when no rule matches.
func (c *Classifier) Classify(p string) (Location, bool) {
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	if c.root != "" {
		if !strings.HasPrefix(rel, c.root+"/") {
			return Location{}, false
		}
		rel = strings.TrimPrefix(rel, c.root+"/")
	}
	for _, rule := range c.rules {
		m := rule.Pattern.FindStringSubmatch(rel)
		if m == nil {
			continue
		}
		loc, err := rule.Extract(namedGroups(rule.Pattern, m))
		if err != nil {
			continue
		}
		loc.Path = p
		return loc, true
	}
	return Location{}, false
}

// namedGroups reorders submatches as [class, assignment, student, task].
func namedGroups(re *regexp.Regexp, m []string) []string {
	out := make([]string, 4)
	for i, name := range re.SubexpNames() {
		switch name {
		case "class":
			out[0] = m[i]
		case "assignment":
			out[1] = m[i]
		case "student":
			out[2] = m[i]
		case "task":
			out[3] = m[i]
		}
	}
	return out
}

func extractNamed(m []string) (Location, error) {
	assignment, err := strconv.Atoi(m[1])
	if err != nil {
		return Location{}, fmt.Errorf("assignment: %w", err)
	}
	student, err := strconv.Atoi(m[2])
	if err != nil {
		return Location{}, fmt.Errorf("student: %w", err)
	}
	task, err := strconv.Atoi(m[3])
	if err != nil {
		return Location{}, fmt.Errorf("task: %w", err)
	}
	if task <= 0 {
		return Location{}, fmt.Errorf("task number must be positive")
	}
	return Location{Class: m[0], Assignment: assignment, Student: student, Task: task}, nil
}
