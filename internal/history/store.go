// Package history persists completed research runs for listing and search.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/researcher/internal/research"
)

// ErrNotFound is returned by Get for an unknown ID.
var ErrNotFound = errors.New("history record not found")

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Record is one completed research run.
type Record struct {
	ID         uuid.UUID         `json:"id"`
	Query      string            `json:"query"`
	Response   research.Response `json:"response"`
	ToolsUsed  []string          `json:"tools_used"`
	Model      string            `json:"model"`
	DurationMS int64             `json:"duration_ms"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewRecord stamps a record with a time-ordered UUID v7 and the current time.
func NewRecord(query string, resp research.Response, toolsUsed []string, model string, took time.Duration) *Record {
	if toolsUsed == nil {
		toolsUsed = []string{}
	}
	return &Record{
		ID:         uuid.Must(uuid.NewV7()),
		Query:      query,
		Response:   resp,
		ToolsUsed:  toolsUsed,
		Model:      model,
		DurationMS: took.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
}

// Store persists research runs.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	// List returns the most recent runs first.
	List(ctx context.Context, limit int) ([]Record, error)
	// Search matches the query text and the report topic and summary.
	Search(ctx context.Context, query string, limit int) ([]Record, error)
	Close() error
}

// indexFields extracts the searchable report fields.
func indexFields(resp research.Response) (topic, summary string) {
	if resp.Report != nil {
		return resp.Report.Topic, resp.Report.Summary
	}
	return "", resp.Text
}

func encodeRecord(rec *Record) (respJSON, toolsJSON []byte, err error) {
	if respJSON, err = json.Marshal(rec.Response); err != nil {
		return nil, nil, fmt.Errorf("marshal response: %w", err)
	}
	tools := rec.ToolsUsed
	if tools == nil {
		tools = []string{}
	}
	if toolsJSON, err = json.Marshal(tools); err != nil {
		return nil, nil, fmt.Errorf("marshal tools: %w", err)
	}
	return respJSON, toolsJSON, nil
}

func decodeInto(rec *Record, respJSON, toolsJSON []byte) error {
	if err := json.Unmarshal(respJSON, &rec.Response); err != nil {
		return fmt.Errorf("decode response of %s: %w", rec.ID, err)
	}
	if len(toolsJSON) > 0 {
		if err := json.Unmarshal(toolsJSON, &rec.ToolsUsed); err != nil {
			return fmt.Errorf("decode tools of %s: %w", rec.ID, err)
		}
	}
	if rec.ToolsUsed == nil {
		rec.ToolsUsed = []string{}
	}
	return nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}

// Nop discards everything. Used when history is disabled.
type Nop struct{}

func (Nop) Save(context.Context, *Record) error                   { return nil }
func (Nop) Get(context.Context, uuid.UUID) (*Record, error)       { return nil, ErrNotFound }
func (Nop) List(context.Context, int) ([]Record, error)           { return []Record{}, nil }
func (Nop) Search(context.Context, string, int) ([]Record, error) { return []Record{}, nil }
func (Nop) Close() error                                          { return nil }
