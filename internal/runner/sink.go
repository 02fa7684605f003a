package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andrej220/netcheck/internal/diffengine"
)

// ReportSink persists a finished diff report.
type ReportSink interface {
	Persist(report *diffengine.Report) error
}

// FileSink writes one report per host under Dir: the rendered text next to a
// JSON document for downstream tooling.
type FileSink struct {
	Dir string
}

var _ ReportSink = (*FileSink)(nil)

func (s *FileSink) Persist(report *diffengine.Report) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	textPath := filepath.Join(s.Dir, report.Host+".diff")
	if err := os.WriteFile(textPath, []byte(report.Render()), 0644); err != nil {
		return fmt.Errorf("write report %s: %w", textPath, err)
	}

	bytes, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal report for %s: %w", report.Host, err)
	}
	jsonPath := filepath.Join(s.Dir, report.Host+"-diff.json")
	if err := os.WriteFile(jsonPath, bytes, 0644); err != nil {
		return fmt.Errorf("write report %s: %w", jsonPath, err)
	}
	return nil
}

// discardSink drops reports; used when the caller only wants the in-memory
// result.
type discardSink struct{}

func (discardSink) Persist(*diffengine.Report) error { return nil }
