package capture

import (
	"context"
	"fmt"

	"github.com/andrej220/netcheck/pkg/lg"
)

// Recorder persists one command's raw output: the individual artifact is
// overwritten, the consolidated artifact grows. Re-running the same
// (host, command, phase) in one run therefore duplicates the consolidated
// entry; callers own that decision.
type Recorder struct {
	backend ArtifactBackend
	lg      lg.Logger
}

func NewRecorder(backend ArtifactBackend, logger lg.Logger) *Recorder {
	if logger == nil {
		logger = lg.Discard
	}
	return &Recorder{backend: backend, lg: logger}
}

func (r *Recorder) Record(ctx context.Context, host, command string, phase Phase, output string) (CaptureRecord, error) {
	rec := CaptureRecord{Host: host, Command: command, Phase: phase, Bytes: len(output)}

	if err := r.backend.WriteArtifact(ctx, host, command, phase, output); err != nil {
		return rec, fmt.Errorf("record %s/%s: %w", host, command, err)
	}
	if err := r.backend.AppendConsolidated(ctx, host, phase, command, output); err != nil {
		return rec, fmt.Errorf("consolidate %s/%s: %w", host, command, err)
	}

	r.lg.Debug("capture recorded",
		lg.String("host", host),
		lg.String("command", command),
		lg.String("phase", string(phase)),
		lg.Int("bytes", len(output)))
	return rec, nil
}
