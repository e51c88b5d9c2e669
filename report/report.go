// Package report renders run summaries and stores them as artifacts.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/hairizuanbinnoorazman/rateloop/logger"
	"github.com/hairizuanbinnoorazman/rateloop/orchestrator"
	"github.com/hairizuanbinnoorazman/rateloop/session"
	"github.com/hairizuanbinnoorazman/rateloop/storage"
)

// StampLayout formats timestamps used in artifact names. It avoids colons
// so names are valid on every filesystem.
const StampLayout = "2006-01-02T15-04-05"

// timeLayout is ISO 8601 in UTC with milliseconds.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Stamp returns the artifact name stamp for t.
func Stamp(t time.Time) string {
	return t.UTC().Format(StampLayout)
}

// Text renders the plain text summary.
func Text(summary *orchestrator.Summary) []byte {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "==== AUTOMATION REPORT SUMMARY ====")
	fmt.Fprintf(&buf, "Time: %s\n", summary.EndedAt.UTC().Format(timeLayout))
	fmt.Fprintf(&buf, "Total Sessions: %d\n", summary.Total())
	fmt.Fprintf(&buf, "Successful: %d\n", summary.SuccessCount())
	fmt.Fprintf(&buf, "Failed: %d\n", summary.FailCount())
	fmt.Fprintln(&buf)
	fmt.Fprint(&buf, "==== SESSION DETAILS ====")
	for _, r := range summary.Sorted() {
		outcome := "Failed"
		if r.Success {
			outcome = "Success"
		}
		fmt.Fprintf(&buf, "\nSession %d (%s): %s", r.ID, r.Username, outcome)
	}
	return buf.Bytes()
}

// Document is the JSON form of a summary.
type Document struct {
	RunID      string           `json:"run_id,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	EndedAt    time.Time        `json:"ended_at"`
	ElapsedMs  int64            `json:"elapsed_ms"`
	Total      int              `json:"total"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Sessions   []session.Result `json:"sessions"`
}

// NewDocument builds the JSON document of summary.
func NewDocument(runID string, summary *orchestrator.Summary) Document {
	return Document{
		RunID:      runID,
		StartedAt:  summary.StartedAt,
		EndedAt:    summary.EndedAt,
		ElapsedMs:  summary.Elapsed.Milliseconds(),
		Total:      summary.Total(),
		Successful: summary.SuccessCount(),
		Failed:     summary.FailCount(),
		Sessions:   summary.Sorted(),
	}
}

// Artifacts are the storage paths written for one run.
type Artifacts struct {
	TextPath string `json:"text_path"`
	JSONPath string `json:"json_path"`
}

// Writer stores summaries in blob storage.
type Writer struct {
	storage storage.BlobStorage
	logger  logger.Logger
}

// NewWriter creates a Writer.
func NewWriter(blobStorage storage.BlobStorage, log logger.Logger) *Writer {
	return &Writer{
		storage: blobStorage,
		logger:  log,
	}
}

// Write stores the text and JSON summaries under dir.
func (w *Writer) Write(ctx context.Context, dir, runID string, summary *orchestrator.Summary) (Artifacts, error) {
	stamp := Stamp(summary.StartedAt)
	artifacts := Artifacts{
		TextPath: path.Join(dir, "summary_"+stamp+".txt"),
		JSONPath: path.Join(dir, "summary_"+stamp+".json"),
	}

	if err := storage.Put(ctx, w.storage, artifacts.TextPath, Text(summary)); err != nil {
		return Artifacts{}, fmt.Errorf("failed to store text summary: %w", err)
	}

	doc, err := json.MarshalIndent(NewDocument(runID, summary), "", "  ")
	if err != nil {
		return Artifacts{}, fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := storage.Put(ctx, w.storage, artifacts.JSONPath, doc); err != nil {
		return Artifacts{}, fmt.Errorf("failed to store json summary: %w", err)
	}

	w.logger.Info(ctx, "report summary saved", map[string]interface{}{
		"text_path": artifacts.TextPath,
		"json_path": artifacts.JSONPath,
	})
	return artifacts, nil
}
