package capture

import (
	"context"
)

// Store is the read side of the capture backend: listing what was captured
// and pairing pre/post artifacts for diffing.
type Store struct {
	backend ArtifactBackend
}

func NewStore(backend ArtifactBackend) *Store {
	return &Store{backend: backend}
}

// ListArtifacts returns the commands captured for (host, phase) in capture order.
func (s *Store) ListArtifacts(ctx context.Context, host string, phase Phase) ([]string, error) {
	return s.backend.ListCommands(ctx, host, phase)
}

// Read returns the raw output captured for (host, command, phase).
func (s *Store) Read(ctx context.Context, host, command string, phase Phase) (string, error) {
	return s.backend.ReadArtifact(ctx, host, command, phase)
}

// Pairing partitions a host's captured commands by phase coverage. Paired
// keeps the first-seen order of the pre capture; the other two slices are the
// commands lacking a counterpart.
type Pairing struct {
	Paired   []string
	PreOnly  []string
	PostOnly []string
}

// PairedCommands intersects the pre and post listings for host.
func (s *Store) PairedCommands(ctx context.Context, host string) (Pairing, error) {
	var p Pairing

	pre, err := s.ListArtifacts(ctx, host, PhasePre)
	if err != nil {
		return p, err
	}
	post, err := s.ListArtifacts(ctx, host, PhasePost)
	if err != nil {
		return p, err
	}

	inPost := make(map[string]bool, len(post))
	for _, c := range post {
		inPost[c] = true
	}
	inPre := make(map[string]bool, len(pre))
	for _, c := range pre {
		inPre[c] = true
	}

	for _, c := range pre {
		if inPost[c] {
			p.Paired = append(p.Paired, c)
		} else {
			p.PreOnly = append(p.PreOnly, c)
		}
	}
	for _, c := range post {
		if !inPre[c] {
			p.PostOnly = append(p.PostOnly, c)
		}
	}
	return p, nil
}
