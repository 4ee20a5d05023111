package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nextlevelbuilder/researcher/internal/client"
	"github.com/nextlevelbuilder/researcher/internal/render"
	"github.com/nextlevelbuilder/researcher/internal/research"
	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

type stubQuerier struct {
	queries []string
	resp    *protocol.AgentResponse
	err     error
}

func (s *stubQuerier) Query(_ context.Context, q string) (*protocol.AgentResponse, error) {
	s.queries = append(s.queries, q)
	return s.resp, s.err
}

func newModel(q Querier) Model {
	return New(context.Background(), q, render.Options{Plain: true})
}

func typeText(m Model, s string) Model {
	m.input.SetValue(s)
	return m
}

func enter(t *testing.T, m Model) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

// runSearch executes the batch returned by submit and returns the query's message.
func runSearch(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	batch, ok := cmd().(tea.BatchMsg)
	if !ok {
		t.Fatalf("expected BatchMsg")
	}
	for _, c := range batch {
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case resultMsg, errMsg:
			return msg
		}
	}
	t.Fatal("no search command in batch")
	return nil
}

func TestInitialView(t *testing.T) {
	v := newModel(&stubQuerier{}).View()
	for _, want := range []string{title, placeholder, searchLabel} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestEmptyQueryIgnored(t *testing.T) {
	q := &stubQuerier{}
	m, cmd := enter(t, typeText(newModel(q), "   "))
	if cmd != nil || m.loading {
		t.Error("blank query must not start a search")
	}
}

func TestSubmitShowsLoading(t *testing.T) {
	q := &stubQuerier{resp: &protocol.AgentResponse{Response: research.TextResponse("ok")}}
	m, cmd := enter(t, typeText(newModel(q), " quantum computing "))
	if !m.loading {
		t.Fatal("expected loading state")
	}
	if !strings.Contains(m.View(), busyLabel) {
		t.Errorf("view missing %q", busyLabel)
	}
	if m.input.Focused() {
		t.Error("input must be disabled while loading")
	}

	// Keys are ignored while loading.
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if got := next.(Model).input.Value(); got != " quantum computing " {
		t.Errorf("input changed while loading: %q", got)
	}
	if _, again := enter(t, m); again != nil {
		t.Error("enter while loading must not start another search")
	}

	msg := runSearch(t, cmd)
	if len(q.queries) != 1 || q.queries[0] != "quantum computing" {
		t.Errorf("queries = %v", q.queries)
	}
	next, _ = m.Update(msg)
	m = next.(Model)
	if m.loading {
		t.Error("loading not cleared")
	}
	if !strings.Contains(m.View(), "ok") {
		t.Errorf("result not shown:\n%s", m.View())
	}
}

func TestReportResult(t *testing.T) {
	resp := research.ReportResponse(&research.Report{
		Topic:   "Quantum",
		Summary: "Qubits.",
		Sources: []string{"https://example.com"},
	})
	m := newModel(&stubQuerier{})
	next, _ := m.Update(resultMsg{resp: resp})
	v := next.(Model).View()
	for _, want := range []string{"Quantum", "Qubits.", "Sources:", "https://example.com"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestErrorShowsFixedMessage(t *testing.T) {
	q := &stubQuerier{err: errors.New("connection refused")}
	m, cmd := enter(t, typeText(newModel(q), "anything"))
	next, _ := m.Update(runSearch(t, cmd))
	m = next.(Model)
	v := m.View()
	if !strings.Contains(v, client.FetchFailedMessage) {
		t.Errorf("view missing error message:\n%s", v)
	}
	if strings.Contains(v, "connection refused") {
		t.Error("raw error leaked into the view")
	}
	if !m.input.Focused() {
		t.Error("input must be re-enabled after an error")
	}
}

func TestNewSearchClearsPreviousState(t *testing.T) {
	q := &stubQuerier{resp: &protocol.AgentResponse{Response: research.TextResponse("second")}}
	m := newModel(q)
	next, _ := m.Update(errMsg{err: errors.New("x")})
	m = typeText(next.(Model), "again")
	m, _ = enter(t, m)
	if m.errText != "" || !m.result.IsEmpty() {
		t.Errorf("state not cleared: err=%q result=%+v", m.errText, m.result)
	}
}

func TestQuitKeys(t *testing.T) {
	for _, k := range []tea.KeyType{tea.KeyCtrlC, tea.KeyEsc} {
		_, cmd := newModel(&stubQuerier{}).Update(tea.KeyMsg{Type: k})
		if cmd == nil {
			t.Fatalf("key %v: expected quit", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("key %v: expected QuitMsg", k)
		}
	}
}
