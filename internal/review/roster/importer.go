package roster

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gradeflow/internal/common/db"
	"gradeflow/internal/review/model"
	appErr "gradeflow/pkg/errors"
	"gradeflow/pkg/utils/logger"

	"go.uber.org/zap"
)

// classLetters maps the Cyrillic section letters used in school lists to
// the Latin folder names.
var classLetters = map[string]string{
	"А": "A", "Б": "B", "В": "V", "Г": "G",
	"а": "A", "б": "B", "в": "V", "г": "G",
}

// NormalizeClass converts a section name to its repository folder letter.
func NormalizeClass(class string) string {
	class = strings.TrimSpace(class)
	if latin, ok := classLetters[class]; ok {
		return latin
	}
	return strings.ToUpper(class)
}

// ImportResult summarizes one import.
type ImportResult struct {
	Imported int          `json:"imported"`
	Skipped  []RowProblem `json:"skipped,omitempty"`
}

// RowProblem explains why a CSV row was not imported.
type RowProblem struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Importer loads roster CSV files with the columns
// class,number,first_name,last_name,github. A header row is detected and
// skipped.
type Importer struct {
	store *Store
}

func NewImporter(store *Store) *Importer {
	return &Importer{store: store}
}

// Import parses r and upserts every valid row in one transaction. Invalid
// rows are reported and skipped.
func (im *Importer) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	var res ImportResult
	students, problems, err := ParseCSV(r)
	if err != nil {
		return res, err
	}
	res.Skipped = problems

	err = im.store.Transaction(ctx, func(tx db.Transaction) error {
		for _, st := range students {
			if err := im.store.Upsert(ctx, tx, st); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, appErr.Wrapf(err, appErr.RosterImportFailed, "roster import failed")
	}
	res.Imported = len(students)
	logger.Info(ctx, "roster imported", zap.Int("imported", res.Imported), zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

// ParseCSV reads roster rows without touching the store.
func ParseCSV(r io.Reader) ([]model.Student, []RowProblem, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		students []model.Student
		problems []RowProblem
	)
	for line := 1; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, appErr.Wrapf(err, appErr.InvalidFormat, "roster csv line %d", line)
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		st, err := parseRow(rec)
		if err != nil {
			problems = append(problems, RowProblem{Line: line, Reason: err.Error()})
			continue
		}
		students = append(students, st)
	}
	return students, problems, nil
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := strconv.Atoi(strings.TrimSpace(rec[min(1, len(rec)-1)]))
	return err != nil
}

func parseRow(rec []string) (model.Student, error) {
	if len(rec) < 5 {
		return model.Student{}, fmt.Errorf("expected 5 columns, got %d", len(rec))
	}
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	class := NormalizeClass(rec[0])
	if len(class) != 1 || class[0] < 'A' || class[0] > 'Z' {
		return model.Student{}, fmt.Errorf("invalid class %q", rec[0])
	}
	number, err := strconv.Atoi(rec[1])
	if err != nil || number <= 0 {
		return model.Student{}, fmt.Errorf("invalid student number %q", rec[1])
	}
	login := strings.TrimPrefix(rec[4], "@")
	if login == "" {
		return model.Student{}, fmt.Errorf("missing github login")
	}
	return model.Student{
		Class:     class,
		Number:    number,
		FirstName: rec[2],
		LastName:  rec[3],
		GitHub:    login,
	}, nil
}
