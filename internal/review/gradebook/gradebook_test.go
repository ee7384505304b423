package gradebook_test

import (
	"context"
	"testing"

	"gradeflow/internal/common/db/dbtest"
	"gradeflow/internal/review/gradebook"
	"gradeflow/internal/review/model"
	"gradeflow/internal/review/scoring"
	appErr "gradeflow/pkg/errors"
)

func TestSelectSheetMissing(t *testing.T) {
	t.Parallel()
	book := gradebook.NewMySQLGradebook(dbtest.New(), false)
	if _, err := book.SelectSheet(context.Background(), "B"); !appErr.Is(err, appErr.GradebookNoSheet) {
		t.Fatalf("expected GradebookNoSheet, got %v", err)
	}
}

func TestSelectSheetAutoCreate(t *testing.T) {
	t.Parallel()
	fake := dbtest.New()
	book := gradebook.NewMySQLGradebook(fake, true)
	if _, err := book.SelectSheet(context.Background(), "B"); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if len(fake.CallsMatching("INSERT IGNORE INTO gradebook_sheets")) != 1 {
		t.Fatalf("expected sheet creation, calls %+v", fake.Calls())
	}
}

func TestSyncThroughMySQLGradebook(t *testing.T) {
	t.Parallel()
	fake := dbtest.New()
	fake.On("FROM gradebook_sheets", []interface{}{"B"})
	fake.On("SELECT formula FROM gradebook_cells", []interface{}{"=3+5"})
	syncer := scoring.NewSyncer(gradebook.NewMySQLGradebook(fake, false), nil)

	stored, err := syncer.Sync(context.Background(),
		model.Student{Class: "B", FirstName: "Ana", LastName: "Petrova"},
		model.Assignment{Number: 7},
		[]model.TaskResult{{Task: model.Task{Number: 1}, Points: 2}, {Task: model.Task{Number: 2}, Points: 6}})
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if len(stored) != 2 || stored[0] != 3 || stored[1] != 6 {
		t.Fatalf("unexpected stored points %v", stored)
	}
	writes := fake.CallsMatching("INSERT INTO gradebook_cells")
	if len(writes) != 1 {
		t.Fatalf("expected one write, got %d", len(writes))
	}
	args := writes[0].Args
	if args[0] != "B" || args[1] != "Ana Petrova" || args[2] != "H7" || args[3] != "=3+6" {
		t.Fatalf("unexpected write args %v", args)
	}
}
