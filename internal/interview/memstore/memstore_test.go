package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/intervox/internal/analysis"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/interview/memstore"
	"github.com/MrWong99/intervox/internal/questions"
	"github.com/MrWong99/intervox/internal/report"
)

func newSession(id, user string, created time.Time) *interview.Session {
	return &interview.Session{
		ID:        id,
		UserID:    user,
		Status:    interview.StatusInProgress,
		CreatedAt: created,
		Exchanges: []interview.Exchange{{ID: id + "-q0", SessionID: id}},
	}
}

func TestStore_ConditionalUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memstore.New()
	if err := s.Create(ctx, newSession("s1", "u1", time.Now())); err != nil {
		t.Fatalf("Create: %v", err)
	}

	a, _ := s.Get(ctx, "s1")
	b, _ := s.Get(ctx, "s1")

	a.Phase = interview.PhaseSmallTalk
	if err := s.Update(ctx, a); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if a.Version != 1 {
		t.Errorf("Version = %d, want 1", a.Version)
	}

	b.Phase = interview.PhaseWrapUp
	if err := s.Update(ctx, b); !errors.Is(err, interview.ErrConflict) {
		t.Fatalf("stale update: err = %v, want ErrConflict", err)
	}

	got, _ := s.Get(ctx, "s1")
	if got.Phase != interview.PhaseSmallTalk {
		t.Errorf("Phase = %s, want small_talk", got.Phase)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memstore.New()
	orig := newSession("s1", "u1", time.Now())
	_ = s.Create(ctx, orig)
	orig.Exchanges[0].Answer = "mutated after create"

	got, _ := s.Get(ctx, "s1")
	got.Exchanges[0].Answer = "mutated after get"

	again, _ := s.Get(ctx, "s1")
	if again.Exchanges[0].Answer != "" {
		t.Errorf("stored exchange was mutated: %q", again.Exchanges[0].Answer)
	}
}

func TestStore_CopiesAnalysisAndReport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memstore.New()
	orig := newSession("s1", "u1", time.Now())
	orig.Exchanges[0].Answer = "I led the rollout."
	orig.Exchanges[0].Analysis = &analysis.Result{
		Judgment: analysis.Judgment{Score: 80, Strengths: []string{"clear"}, Suggestions: []string{"quantify"}},
		Metrics:  analysis.SpeechMetrics{Fillers: map[string]int{"um": 2}},
	}
	orig.Report = &report.Report{
		OverallScore: 80,
		Categories:   []report.Category{{Type: "behavioral", Count: 1, AverageScore: 80}},
		Strengths:    []string{"clear"},
	}
	if err := s.Create(ctx, orig); err != nil {
		t.Fatalf("Create: %v", err)
	}
	orig.Exchanges[0].Analysis.Strengths[0] = "changed"
	orig.Exchanges[0].Analysis.Metrics.Fillers["um"] = 9
	orig.Report.Categories[0].AverageScore = 1

	got, _ := s.Get(ctx, "s1")
	got.Exchanges[0].Analysis.Suggestions[0] = "changed"
	got.Report.Strengths[0] = "changed"

	again, _ := s.Get(ctx, "s1")
	a := again.Exchanges[0].Analysis
	if a.Strengths[0] != "clear" || a.Suggestions[0] != "quantify" || a.Metrics.Fillers["um"] != 2 {
		t.Errorf("stored analysis was mutated: %+v", *a)
	}
	if r := again.Report; r.Categories[0].AverageScore != 80 || r.Strengths[0] != "clear" {
		t.Errorf("stored report was mutated: %+v", *r)
	}
}

func TestStore_NotFoundAndDuplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memstore.New()
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, interview.ErrSessionNotFound) {
		t.Errorf("Get: err = %v", err)
	}
	if err := s.Update(ctx, newSession("nope", "u1", time.Now())); !errors.Is(err, interview.ErrSessionNotFound) {
		t.Errorf("Update: err = %v", err)
	}
	_ = s.Create(ctx, newSession("s1", "u1", time.Now()))
	if err := s.Create(ctx, newSession("s1", "u1", time.Now())); err == nil {
		t.Error("duplicate Create succeeded")
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memstore.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = s.Create(ctx, newSession("old", "u1", base))
	_ = s.Create(ctx, newSession("new", "u1", base.Add(time.Hour)))
	_ = s.Create(ctx, newSession("other", "u2", base.Add(2*time.Hour)))

	list, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "old" {
		t.Fatalf("List = %v", list)
	}
	if empty, _ := s.List(ctx, "nobody"); empty == nil || len(empty) != 0 {
		t.Errorf("List(nobody) = %v, want empty slice", empty)
	}
}

func TestStore_History(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memstore.New()

	if _, ok, err := s.NearestAsked(ctx, "u1", []float32{1, 0}); ok || err != nil {
		t.Fatalf("empty history: ok=%v err=%v", ok, err)
	}
	_ = s.RecordAsked(ctx, "u1", []questions.Asked{
		{Text: "conflict", Embedding: []float32{1, 0}},
		{Text: "design", Embedding: []float32{0, 1}},
	})
	m, ok, err := s.NearestAsked(ctx, "u1", []float32{0.1, 1})
	if err != nil || !ok {
		t.Fatalf("NearestAsked: ok=%v err=%v", ok, err)
	}
	if m.Text != "design" || m.Distance > 0.01 {
		t.Errorf("match = %+v, want design", m)
	}
	if _, ok, _ := s.NearestAsked(ctx, "u2", []float32{1, 0}); ok {
		t.Error("history leaked across users")
	}
}
