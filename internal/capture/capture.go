// Package capture persists raw command output per (host, command, phase) and
// reads it back for diffing. Artifacts live behind a pluggable backend; the
// filesystem backend is the default.
package capture

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
)

// Phase tells a capture apart from its counterpart taken after the change.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// ParsePhase accepts "pre" or "post" in any case.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pre":
		return PhasePre, nil
	case "post":
		return PhasePost, nil
	default:
		return "", fmt.Errorf("invalid phase %q: want pre or post", s)
	}
}

// Counterpart returns the opposite phase.
func (p Phase) Counterpart() Phase {
	if p == PhasePre {
		return PhasePost
	}
	return PhasePre
}

// ConsolidatedSuffix is the extension of the per-host consolidated artifact.
func (p Phase) ConsolidatedSuffix() string { return string(p) + "check" }

var (
	// ErrArtifactNotFound means no capture exists for the requested key.
	ErrArtifactNotFound = errors.New("capture artifact not found")
	// ErrArtifactRead means a capture exists but could not be read back.
	ErrArtifactRead = errors.New("capture artifact unreadable")
)

// CaptureRecord identifies one persisted command output.
type CaptureRecord struct {
	Host    string
	Command string
	Phase   Phase
	Bytes   int
}

var sanitizer = strings.NewReplacer(
	" ", "_",
	"\t", "_",
	"/", "_",
	"\\", "_",
	"|", "",
)

// SanitizeCommand makes a command safe to embed in a file name.
func SanitizeCommand(command string) string {
	return sanitizer.Replace(command)
}

// ArtifactName derives the individual artifact key for (host, command, phase).
// The readable sanitized form is not injective ("show a_b" vs "show a b"), so
// a short hash of the raw command is appended to keep keys collision-free.
func ArtifactName(host, command string, phase Phase) string {
	h := fnv.New32a()
	h.Write([]byte(command))
	return fmt.Sprintf("%s-%s-%08x.%s", host, SanitizeCommand(command), h.Sum32(), phase)
}

// ConsolidatedName derives the per-host consolidated artifact key.
func ConsolidatedName(host string, phase Phase) string {
	return fmt.Sprintf("%s.%s", host, phase.ConsolidatedSuffix())
}

// CommandHeader is the delimiter line written before each command's output in
// the consolidated artifact.
func CommandHeader(command string) string {
	return fmt.Sprintf("--- %s ---", command)
}
