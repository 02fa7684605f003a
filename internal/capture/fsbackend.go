package capture

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSBackend stores artifacts as plain files under Dir, one file per
// (host, command, phase) plus one consolidated file per (host, phase).
type FSBackend struct {
	Dir string
}

func NewFSBackend(dir string) *FSBackend {
	return &FSBackend{Dir: dir}
}

var _ ArtifactBackend = (*FSBackend)(nil)

func (b *FSBackend) WriteArtifact(_ context.Context, host, command string, phase Phase, output string) error {
	path := filepath.Join(b.Dir, ArtifactName(host, command, phase))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(output), 0644); err != nil {
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	return nil
}

func (b *FSBackend) AppendConsolidated(_ context.Context, host string, phase Phase, command, output string) error {
	path := filepath.Join(b.Dir, ConsolidatedName(host, phase))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open consolidated %s: %w", path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s\n%s\n\n", CommandHeader(command), escapeHeaderLines(output)); err != nil {
		return fmt.Errorf("append consolidated %s: %w", path, err)
	}
	return nil
}

func isHeaderLine(line string) bool {
	return strings.HasPrefix(line, "--- ") && strings.HasSuffix(line, " ---")
}

// escapeHeaderLines indents any output line that would parse as a command
// header, so device output cannot forge entries in the consolidated listing.
// Individual artifacts stay verbatim; only the consolidated file carries the
// header convention.
func escapeHeaderLines(output string) string {
	if !strings.Contains(output, "--- ") {
		return output
	}
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		if isHeaderLine(line) {
			lines[i] = " " + line
		}
	}
	return strings.Join(lines, "\n")
}

func (b *FSBackend) ReadArtifact(_ context.Context, host, command string, phase Phase) (string, error) {
	path := filepath.Join(b.Dir, ArtifactName(host, command, phase))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", path, ErrArtifactNotFound)
		}
		return "", fmt.Errorf("%s: %v: %w", path, err, ErrArtifactRead)
	}
	return string(data), nil
}

// ListCommands parses the consolidated artifact's header lines. The
// consolidated file is the authority on capture order; directory listings
// cannot preserve it.
func (b *FSBackend) ListCommands(_ context.Context, host string, phase Phase) ([]string, error) {
	path := filepath.Join(b.Dir, ConsolidatedName(host, phase))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %v: %w", path, err, ErrArtifactRead)
	}
	defer f.Close()

	var commands []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !isHeaderLine(line) {
			continue
		}
		command := strings.TrimSuffix(strings.TrimPrefix(line, "--- "), " ---")
		if command == "" || seen[command] {
			continue
		}
		seen[command] = true
		commands = append(commands, command)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, ErrArtifactRead)
	}
	return commands, nil
}
