package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"dmscripts/internal/db"
	"dmscripts/internal/domain"
	"dmscripts/internal/events"
	"dmscripts/internal/migrate"
	"dmscripts/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	applied, err := migrate.Migrate(context.Background(), conn)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(applied) == 0 {
		t.Fatalf("expected migrations to apply on a fresh ledger")
	}
	again, err := migrate.Migrate(context.Background(), conn)
	if err != nil || len(again) != 0 {
		t.Fatalf("re-migrate applied %v, err %v", again, err)
	}
	return repo.Repo{DB: conn}
}

func TestRunLifecycle(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	run := repo.NewRun("mark-results", "g-cloud-12", "tester", false, start)
	if err := r.CreateRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	got, err := r.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.FinishedAt != nil || got.DryRun || got.FrameworkSlug != "g-cloud-12" {
		t.Fatalf("unexpected run %+v", got)
	}
	if _, err := r.LatestRun(ctx, "mark-results", "g-cloud-12"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unfinished run should not be latest, got %v", err)
	}

	if err := r.FinishRun(ctx, run.ID, start.Add(time.Minute), map[string]int{"pass": 2}); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	got, err = r.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FinishedAt == nil || got.Summary["pass"] != 2 {
		t.Fatalf("unexpected finished run %+v", got)
	}
	latest, err := r.LatestRun(ctx, "mark-results", "g-cloud-12")
	if err != nil || latest.ID != run.ID {
		t.Fatalf("latest run = %+v, %v", latest, err)
	}

	if err := r.FinishRun(ctx, "missing", start, nil); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := r.GetRun(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var ids []string
	for i, job := range []string{"mark-results", "bad-words", "mark-results"} {
		run := repo.NewRun(job, "g-cloud-12", "tester", true, base.Add(time.Duration(i)*time.Hour))
		if err := r.CreateRun(ctx, run); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, run.ID)
	}
	runs, err := r.ListRuns(ctx, "mark-results", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[0] {
		t.Fatalf("unexpected runs %+v", runs)
	}
	all, err := r.ListRuns(ctx, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("limit not applied: %d runs", len(all))
	}
}

func TestOutcomesFilterAndCount(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	run := repo.NewRun("mark-results", "g-cloud-12", "tester", false, time.Now())
	if err := r.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	decisions := []string{"pass", "discretionary", "fail", "discretionary"}
	for i, d := range decisions {
		o := domain.Outcome{
			RunID:      run.ID,
			Seq:        i + 1,
			SupplierID: int64(100 + i),
			Decision:   d,
			Reason:     d,
			Previous:   domain.OnFrameworkUnset.String(),
			Written:    d != "discretionary",
			Submitted:  i,
			CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		}
		if err := r.InsertOutcome(ctx, nil, o); err != nil {
			t.Fatalf("insert outcome: %v", err)
		}
	}
	disc, err := r.ListOutcomes(ctx, run.ID, "DISCRETIONARY")
	if err != nil {
		t.Fatal(err)
	}
	if len(disc) != 2 || disc[0].SupplierID != 101 || disc[1].SupplierID != 103 || disc[0].Written {
		t.Fatalf("unexpected discretionary outcomes %+v", disc)
	}
	counts, err := r.CountOutcomes(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if counts["discretionary"] != 2 || counts["pass"] != 1 || counts["fail"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestEventsAppendAndFilter(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	run := repo.NewRun("mark-results", "g-cloud-12", "tester", false, time.Now())
	if err := r.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	w := events.Writer{DB: r.DB, Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }}
	if err := w.Append(ctx, nil, events.TypeResultSet, run.ID, "supplier", "42", "tester", events.Payload{"on_framework": true}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(ctx, nil, events.TypeSupplierUpdated, "", "supplier", "43", "tester", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	evts, err := r.LatestEvents(ctx, 10, run.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 || evts[0].EntityID != "42" || evts[0].TS != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected events %+v", evts)
	}
	all, err := r.LatestEvents(ctx, 10, "", events.TypeSupplierUpdated)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].RunID != "" || all[0].Payload != "{}" {
		t.Fatalf("unexpected events %+v", all)
	}
}
