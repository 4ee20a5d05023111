package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/researcher/internal/research"
)

const DefaultOutputFile = "research_output.txt"

// SaveFileConfig holds configuration for the save_text_to_file tool.
type SaveFileConfig struct {
	Dir             string // output directory, created on first write
	DefaultFilename string
	Now             func() time.Time
}

// SaveFileTool appends timestamped research records to a text file inside Dir.
type SaveFileTool struct {
	dir      string
	filename string
	now      func() time.Time
	mu       sync.Mutex
}

func NewSaveFileTool(cfg SaveFileConfig) *SaveFileTool {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	name := cfg.DefaultFilename
	if name == "" {
		name = DefaultOutputFile
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SaveFileTool{dir: dir, filename: name, now: now}
}

func (t *SaveFileTool) Name() string { return "save_text_to_file" }

func (t *SaveFileTool) Description() string {
	return "Saves structured research data to a text file."
}

func (t *SaveFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"data": map[string]any{
				"type":        "string",
				"description": "The research text to save.",
			},
			"filename": map[string]any{
				"type":        "string",
				"description": "Target file name. Default: " + t.filename,
			},
		},
		"required": []string{"data"},
	}
}

func (t *SaveFileTool) Execute(ctx context.Context, args map[string]any) *Result {
	data := stringArg(args, "data")
	if data == "" {
		return ErrorResult("data is required")
	}
	name := strings.TrimSpace(stringArg(args, "filename"))
	if name == "" {
		name = t.filename
	}

	path, err := t.resolve(name)
	if err != nil {
		slog.Warn("security.path_rejected", "tool", t.Name(), "filename", name, "error", err)
		return ErrorResult(err.Error())
	}

	if err := t.appendRecord(path, research.SaveRecord(data, t.now())); err != nil {
		return ErrorResult(fmt.Sprintf("failed to save data: %v", err)).WithError(err)
	}
	return NewResult("data successfully saved to " + name)
}

// resolve maps a model-supplied name to a path inside the output directory.
func (t *SaveFileTool) resolve(name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("filename must be relative: %s", name)
	}
	clean := filepath.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("filename escapes output directory: %s", name)
	}
	return filepath.Join(t.dir, clean), nil
}

func (t *SaveFileTool) appendRecord(path, record string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(record); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
