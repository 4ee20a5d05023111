package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/researcher/internal/config"
	"github.com/nextlevelbuilder/researcher/internal/research"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sub", "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func saveReport(t *testing.T, s Store, query, topic, summary string, at time.Time) *Record {
	t.Helper()
	rec := NewRecord(query, research.ReportResponse(&research.Report{
		Topic:     topic,
		Summary:   summary,
		Sources:   []string{"https://en.wikipedia.org/wiki/" + topic},
		ToolsUsed: []string{"wikipedia"},
	}), []string{"wikipedia"}, "gemini-1.5-flash", 1500*time.Millisecond)
	rec.CreatedAt = at
	if err := s.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return rec
}

func TestSQLiteStore_SaveGet(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := saveReport(t, s, "who was alan turing", "Alan Turing", "English mathematician.", at)

	got, err := s.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Query != rec.Query || got.Model != "gemini-1.5-flash" || got.DurationMS != 1500 {
		t.Errorf("record mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(at) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, at)
	}
	if got.Response.Report == nil || got.Response.Report.Topic != "Alan Turing" {
		t.Errorf("response = %+v", got.Response)
	}
	if len(got.ToolsUsed) != 1 || got.ToolsUsed[0] != "wikipedia" {
		t.Errorf("tools = %v", got.ToolsUsed)
	}
}

func TestSQLiteStore_GetNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC().Truncate(time.Millisecond)
	saveReport(t, s, "q1", "One", "first", base.Add(-2*time.Minute))
	saveReport(t, s, "q2", "Two", "second", base.Add(-1*time.Minute))
	saveReport(t, s, "q3", "Three", "third", base)

	recs, err := s.List(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Query != "q3" || recs[1].Query != "q2" {
		t.Errorf("unexpected order: %v", queries(recs))
	}
}

func TestSQLiteStore_Search(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	saveReport(t, s, "history of computing", "Alan Turing", "Pioneer of theoretical computer science.", now)
	saveReport(t, s, "french cuisine", "Croissant", "A buttery pastry.", now)

	text := NewRecord("plain answer", research.TextResponse("Quantum entanglement explained simply"), nil, "m", 0)
	if err := s.Save(context.Background(), text); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		q    string
		want []string
	}{
		{"turing", []string{"history of computing"}},
		{"comput", []string{"history of computing"}},
		{"pastry", []string{"french cuisine"}},
		{"entanglement", []string{"plain answer"}},
		{`"unbalanced AND OR (`, nil},
	}
	for _, tt := range tests {
		recs, err := s.Search(context.Background(), tt.q, 10)
		if err != nil {
			t.Errorf("Search(%q): %v", tt.q, err)
			continue
		}
		got := queries(recs)
		if len(got) != len(tt.want) {
			t.Errorf("Search(%q) = %v, want %v", tt.q, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Search(%q) = %v, want %v", tt.q, got, tt.want)
			}
		}
	}
}

func TestSQLiteStore_SearchEmptyFallsBackToList(t *testing.T) {
	s := newTestStore(t)
	saveReport(t, s, "q", "T", "S", time.Now())
	recs, err := s.Search(context.Background(), "   ", 10)
	if err != nil || len(recs) != 1 {
		t.Errorf("got %d records, err %v", len(recs), err)
	}
}

func TestFTSMatchExpr(t *testing.T) {
	if got := ftsMatchExpr(`alan "turing`); got != `"alan"* """turing"*` {
		t.Errorf("got %s", got)
	}
	if ftsMatchExpr("  ") != "" {
		t.Error("blank query should produce empty expression")
	}
}

func TestOpen_Disabled(t *testing.T) {
	s, err := Open(context.Background(), config.DatabaseConfig{Disabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(Nop); !ok {
		t.Errorf("got %T, want Nop", s)
	}
}

func TestOpen_SQLite(t *testing.T) {
	s, err := Open(context.Background(), config.DatabaseConfig{SQLitePath: filepath.Join(t.TempDir(), "h.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("got %T, want *SQLiteStore", s)
	}
}

func queries(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Query
	}
	return out
}
