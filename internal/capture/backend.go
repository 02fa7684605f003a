package capture

import "context"

// ArtifactBackend abstracts where capture artifacts live. Writes to distinct
// (host, phase, command) keys are independent; implementations must tolerate
// concurrent writers on different hosts.
type ArtifactBackend interface {
	// WriteArtifact stores the individual artifact, replacing any previous
	// content for the same key.
	WriteArtifact(ctx context.Context, host, command string, phase Phase, output string) error
	// AppendConsolidated adds one command entry to the per-(host, phase)
	// consolidated artifact, preserving capture order.
	AppendConsolidated(ctx context.Context, host string, phase Phase, command, output string) error
	// ReadArtifact returns the individual artifact's content.
	// Returns ErrArtifactNotFound if the key was never written.
	ReadArtifact(ctx context.Context, host, command string, phase Phase) (string, error)
	// ListCommands returns the commands captured for (host, phase) in
	// first-capture order, without duplicates. An absent consolidated
	// artifact yields an empty list, not an error.
	ListCommands(ctx context.Context, host string, phase Phase) ([]string, error)
}
