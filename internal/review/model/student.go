package model

import (
	"strconv"
	"strings"
)

// Student is a roster entry resolved from a change-request author.
type Student struct {
	ID        int64  `json:"id"`
	GitHub    string `json:"github"`
	GitHubID  int64  `json:"github_id"`
	Class     string `json:"class"`
	Number    int    `json:"number"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// DisplayName is the name used as the gradebook row key.
func (s Student) DisplayName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// PersonalFolder is the repository folder of the student for an assignment,
// e.g. "B/07/12".
func (s Student) PersonalFolder(assignment int) string {
	return s.Class + "/" + pad2(assignment) + "/" + pad2(s.Number)
}

func pad2(n int) string {
	if n >= 0 && n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
