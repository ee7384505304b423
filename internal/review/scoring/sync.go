package scoring

import (
	"context"
	"sort"
	"time"

	"gradeflow/internal/common/lock"
	"gradeflow/internal/review/model"
	pkgerrors "gradeflow/pkg/errors"
	"gradeflow/pkg/utils/logger"

	"go.uber.org/zap"
)

// Sheet is one worksheet of the gradebook.
type Sheet interface {
	ReadCell(ctx context.Context, row, col string) (string, error)
	WriteCell(ctx context.Context, row, col, formula string) error
}

// Gradebook is the external grade store.
type Gradebook interface {
	SelectSheet(ctx context.Context, name string) (Sheet, error)
}

// Syncer writes review points to the gradebook.
type Syncer struct {
	book   Gradebook
	locker *lock.KeyedLocker
	now    func() time.Time
}

func NewSyncer(book Gradebook, locker *lock.KeyedLocker) *Syncer {
	if locker == nil {
		locker = lock.NewKeyedLocker(nil, lock.Config{})
	}
	return &Syncer{book: book, locker: locker, now: time.Now}
}

// WithClock overrides the time source used for the lateness ratio.
func (s *Syncer) WithClock(now func() time.Time) *Syncer {
	s.now = now
	return s
}

// TaskVector lists the earned points per task in ascending task order.
func TaskVector(results []model.TaskResult) []int {
	sorted := append([]model.TaskResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Task.Number < sorted[j].Task.Number })
	out := make([]int, len(sorted))
	for i, r := range sorted {
		out[i] = r.Points
	}
	return out
}

// Sync reconciles the student's cell for the assignment with results and
// returns the stored per-task points. The read-modify-write of one cell is
// serialized.
func (s *Syncer) Sync(ctx context.Context, student model.Student, assignment model.Assignment, results []model.TaskResult) ([]int, error) {
	sheetName := student.Class
	row := student.DisplayName()
	col := assignment.GradebookColumn()
	ratio := assignment.ScoreRatio(s.now())
	earned := TaskVector(results)

	var stored []int
	key := "gradebook:" + sheetName + ":" + row + ":" + col
	err := s.locker.WithLock(ctx, key, func(ctx context.Context) error {
		sheet, err := s.book.SelectSheet(ctx, sheetName)
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.GradebookNoSheet, "select sheet %s", sheetName)
		}
		current, err := sheet.ReadCell(ctx, row, col)
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.GradebookError, "read cell %s/%s", row, col)
		}
		prev, err := ParseFormula(current)
		if err != nil {
			return err
		}
		stored = Reconcile(prev, earned, ratio)
		if equal(prev, stored) {
			return nil
		}
		if err := sheet.WriteCell(ctx, row, col, RenderFormula(stored)); err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.GradebookError, "write cell %s/%s", row, col)
		}
		logger.Info(ctx, "gradebook updated",
			zap.String("sheet", sheetName), zap.String("row", row), zap.String("col", col),
			zap.Ints("points", stored), zap.Float64("ratio", ratio))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func equal(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
