package roster_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gradeflow/internal/common/cache"
	"gradeflow/internal/common/db/dbtest"
	"gradeflow/internal/review/roster"
	appErr "gradeflow/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestNormalizeClass(t *testing.T) {
	t.Parallel()
	tests := map[string]string{"А": "A", "Б": "B", "В": "V", "Г": "G", "б": "B", "b": "B", " V ": "V"}
	for in, want := range tests {
		if got := roster.NormalizeClass(in); got != want {
			t.Errorf("NormalizeClass(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseCSV(t *testing.T) {
	t.Parallel()
	input := strings.Join([]string{
		"class,number,first_name,last_name,github",
		"Б,12,Ana,Petrova,ana-p",
		"A, 3, Ivan, Ivanov, @ivan",
		"Б,x,Bad,Number,bad",
		"Г,4,No,Login,",
		"short,row",
	}, "\n")
	students, problems, err := roster.ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(students) != 2 {
		t.Fatalf("expected 2 students, got %+v", students)
	}
	if s := students[0]; s.Class != "B" || s.Number != 12 || s.GitHub != "ana-p" || s.DisplayName() != "Ana Petrova" {
		t.Fatalf("unexpected first student %+v", s)
	}
	if s := students[1]; s.Class != "A" || s.Number != 3 || s.GitHub != "ivan" {
		t.Fatalf("unexpected second student %+v", s)
	}
	if len(problems) != 3 || problems[0].Line != 4 || problems[2].Line != 6 {
		t.Fatalf("unexpected problems %+v", problems)
	}
}

func TestImporterUpsertsInTransaction(t *testing.T) {
	t.Parallel()
	fake := dbtest.New()
	im := roster.NewImporter(roster.NewStore(fake, nil, 0))

	res, err := im.Import(context.Background(), strings.NewReader("В,1,Maria,Georgieva,maria\nA,2,Petar,Petrov,petar\n"))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if res.Imported != 2 || len(res.Skipped) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	calls := fake.CallsMatching("INSERT INTO students")
	if len(calls) != 2 || calls[0].Args[0] != "maria" || calls[0].Args[2] != "V" {
		t.Fatalf("unexpected inserts %+v", calls)
	}
	if fake.Commits() != 1 {
		t.Fatalf("expected one committed transaction, got %d", fake.Commits())
	}
}

func TestImporterRollsBackOnFailure(t *testing.T) {
	t.Parallel()
	fake := dbtest.New()
	fake.On("INSERT INTO students").Err = errors.New("connection reset")
	im := roster.NewImporter(roster.NewStore(fake, nil, 0))

	_, err := im.Import(context.Background(), strings.NewReader("A,1,X,Y,xy\n"))
	if !appErr.Is(err, appErr.RosterImportFailed) {
		t.Fatalf("expected RosterImportFailed, got %v", err)
	}
	if fake.Rollbacks() != 1 {
		t.Fatalf("expected rollback, got %d", fake.Rollbacks())
	}
}

func TestFindByGitHubCachesHitsAndMisses(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rc, _ := cache.NewRedisCacheWithClient(client)

	fake := dbtest.New()
	fake.On("FROM students WHERE", []interface{}{int64(1), "Ana-P", int64(77), "B", 12, "Ana", "Petrova"}).Times = 1
	store := roster.NewStore(fake, rc, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		st, err := store.FindByGitHub(ctx, "ana-p")
		if err != nil || st == nil || st.Number != 12 {
			t.Fatalf("lookup %d: %+v %v", i, st, err)
		}
	}
	if n := len(fake.CallsMatching("FROM students WHERE")); n != 1 {
		t.Fatalf("expected cached second lookup, got %d queries", n)
	}

	for i := 0; i < 2; i++ {
		st, err := store.FindByGitHub(ctx, "stranger")
		if err != nil || st != nil {
			t.Fatalf("unknown author should be (nil, nil), got %+v %v", st, err)
		}
	}
	if n := len(fake.CallsMatching("FROM students WHERE")); n != 2 {
		t.Fatalf("expected cached miss, got %d queries", n)
	}
}
