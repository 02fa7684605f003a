// Package diffengine pairs pre/post captures per host and reports, command by
// command, exactly what changed. Output is compared literally: timestamps,
// counters and whitespace churn are for the operator to judge.
package diffengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/andrej220/netcheck/internal/capture"
	"github.com/andrej220/netcheck/pkg/lg"
)

// ErrMissingCounterpart marks a command captured in only one phase. The
// command is excluded from the report body and surfaced in Skipped.
var ErrMissingCounterpart = errors.New("no counterpart capture")

// NoDifferences is the marker recorded for a command whose pre and post
// outputs are byte-identical.
const NoDifferences = "no differences detected"

const contextLines = 3

// Entry is the comparison result for one command.
type Entry struct {
	Command string
	Changed bool
	Unified string // unified-diff block, empty when !Changed
}

// Skip records a command left out of the comparison and why.
type Skip struct {
	Command string
	Reason  string
}

// Report aggregates one host's entries in pre-capture order. Every compared
// command appears, changed or not, so the report is a complete audit trail.
type Report struct {
	Host        string
	RunID       string
	GeneratedAt time.Time
	Entries     []Entry
	Skipped     []Skip
}

// Changed counts the entries with differences.
func (r *Report) Changed() int {
	n := 0
	for _, e := range r.Entries {
		if e.Changed {
			n++
		}
	}
	return n
}

type Engine struct {
	store *capture.Store
	lg    lg.Logger
}

func NewEngine(store *capture.Store, logger lg.Logger) *Engine {
	if logger == nil {
		logger = lg.Discard
	}
	return &Engine{store: store, lg: logger}
}

// Diff compares every command captured in both phases for host. Commands
// lacking a counterpart or with unreadable artifacts are skipped with a
// logged reason; they never fail the report.
func (e *Engine) Diff(ctx context.Context, host string) (*Report, error) {
	report := &Report{Host: host, GeneratedAt: time.Now()}

	pairing, err := e.store.PairedCommands(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", host, err)
	}

	for _, cmd := range pairing.PreOnly {
		e.lg.Warn("command captured in pre only",
			lg.String("host", host), lg.String("command", cmd), lg.Err(ErrMissingCounterpart))
		report.Skipped = append(report.Skipped, Skip{Command: cmd, Reason: missingCounterpart(capture.PhasePre)})
	}
	for _, cmd := range pairing.PostOnly {
		e.lg.Warn("command captured in post only",
			lg.String("host", host), lg.String("command", cmd), lg.Err(ErrMissingCounterpart))
		report.Skipped = append(report.Skipped, Skip{Command: cmd, Reason: missingCounterpart(capture.PhasePost)})
	}

	for _, cmd := range pairing.Paired {
		pre, err := e.store.Read(ctx, host, cmd, capture.PhasePre)
		if err != nil {
			e.lg.Error("pre artifact unreadable",
				lg.String("host", host), lg.String("command", cmd), lg.Err(err))
			report.Skipped = append(report.Skipped, Skip{Command: cmd, Reason: "pre artifact unreadable"})
			continue
		}
		post, err := e.store.Read(ctx, host, cmd, capture.PhasePost)
		if err != nil {
			e.lg.Error("post artifact unreadable",
				lg.String("host", host), lg.String("command", cmd), lg.Err(err))
			report.Skipped = append(report.Skipped, Skip{Command: cmd, Reason: "post artifact unreadable"})
			continue
		}

		unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(pre),
			B:        difflib.SplitLines(post),
			FromFile: fmt.Sprintf("%s %s (pre)", host, cmd),
			ToFile:   fmt.Sprintf("%s %s (post)", host, cmd),
			Context:  contextLines,
		})
		if err != nil {
			e.lg.Error("diff failed",
				lg.String("host", host), lg.String("command", cmd), lg.Err(err))
			report.Skipped = append(report.Skipped, Skip{Command: cmd, Reason: "diff failed"})
			continue
		}

		report.Entries = append(report.Entries, Entry{
			Command: cmd,
			Changed: unified != "",
			Unified: unified,
		})
	}

	e.lg.Info("diff report built",
		lg.String("host", host),
		lg.Int("compared", len(report.Entries)),
		lg.Int("changed", report.Changed()),
		lg.Int("skipped", len(report.Skipped)))
	return report, nil
}

// missingCounterpart names the phase a one-sided capture lacks.
func missingCounterpart(have capture.Phase) string {
	return fmt.Sprintf("no %s counterpart", have.Counterpart())
}

const separator = "------------------------------------------------------------"
const banner = "============================================================"

// Render formats the report the way the consolidated captures are formatted:
// one block per command, a fixed delimiter between blocks.
func (r *Report) Render() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s\n", banner)
	fmt.Fprintf(&sb, " Pre/Post Health Check Diff Report\n")
	fmt.Fprintf(&sb, " Host:      %s\n", r.Host)
	if r.RunID != "" {
		fmt.Fprintf(&sb, " Run:       %s\n", r.RunID)
	}
	fmt.Fprintf(&sb, " Generated: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, " Compared:  %d commands, %d changed, %d skipped\n",
		len(r.Entries), r.Changed(), len(r.Skipped))
	fmt.Fprintf(&sb, "%s\n\n", banner)

	for _, e := range r.Entries {
		fmt.Fprintf(&sb, "%s\n Command: %s\n%s\n", separator, e.Command, separator)
		if e.Changed {
			sb.WriteString(e.Unified)
		} else {
			sb.WriteString(NoDifferences + "\n")
		}
		sb.WriteString("\n")
	}

	for _, s := range r.Skipped {
		fmt.Fprintf(&sb, "%s\n Skipped: %s (%s)\n%s\n\n", separator, s.Command, s.Reason, separator)
	}

	return sb.String()
}
