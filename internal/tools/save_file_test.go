package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveFileTool_AppendsRecords(t *testing.T) {
	dir := t.TempDir()
	fixed := time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local)
	tool := NewSaveFileTool(SaveFileConfig{Dir: dir, Now: func() time.Time { return fixed }})

	for _, data := range []string{"first", "second"} {
		res := tool.Execute(context.Background(), map[string]any{"data": data})
		if res.IsError {
			t.Fatalf("unexpected error: %s", res.ForLLM)
		}
		if res.ForLLM != "data successfully saved to research_output.txt" {
			t.Errorf("result = %q", res.ForLLM)
		}
	}

	raw, err := os.ReadFile(filepath.Join(dir, DefaultOutputFile))
	if err != nil {
		t.Fatal(err)
	}
	want := "--- Research Output --- \nTimestamp: 2025-03-14 09:26:53\n\nfirst\n\n" +
		"--- Research Output --- \nTimestamp: 2025-03-14 09:26:53\n\nsecond\n\n"
	if string(raw) != want {
		t.Errorf("file content:\n%q\nwant:\n%q", raw, want)
	}
}

func TestSaveFileTool_CustomFilename(t *testing.T) {
	dir := t.TempDir()
	tool := NewSaveFileTool(SaveFileConfig{Dir: dir})
	res := tool.Execute(context.Background(), map[string]any{"data": "x", "filename": "notes/turing.txt"})
	if res.IsError {
		t.Fatal(res.ForLLM)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes", "turing.txt")); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

func TestSaveFileTool_RejectsEscapes(t *testing.T) {
	tool := NewSaveFileTool(SaveFileConfig{Dir: t.TempDir()})
	for _, name := range []string{"../outside.txt", "/etc/passwd", "a/../../b.txt", ".."} {
		res := tool.Execute(context.Background(), map[string]any{"data": "x", "filename": name})
		if !res.IsError || !strings.Contains(res.ForLLM, "filename") {
			t.Errorf("%q: expected rejection, got %+v", name, res)
		}
	}
}

func TestSaveFileTool_RequiresData(t *testing.T) {
	tool := NewSaveFileTool(SaveFileConfig{Dir: t.TempDir()})
	if res := tool.Execute(context.Background(), map[string]any{}); !res.IsError {
		t.Error("expected error")
	}
}
