// Package inventory loads host lists and per-device-class command lists.
// Both formats are one entry per line; blank lines and #-comments are
// ignored, order is preserved.
package inventory

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadLines returns the non-blank, non-comment lines of filename in order.
func ReadLines(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// LoadHosts reads the host list file: one identifier (name or address) per line.
func LoadHosts(filename string) ([]string, error) {
	hosts, err := ReadLines(filename)
	if err != nil {
		return nil, fmt.Errorf("host list %s: %w", filename, err)
	}
	return hosts, nil
}

// CommandSet holds the diagnostic command lists, keyed by device class, with
// a default list for hosts whose class has no dedicated file.
type CommandSet struct {
	Default []string
	Classes map[string][]string
}

// LoadCommandSet reads the default command file plus any per-class files.
// The default file is mandatory; a missing class file is an error since the
// caller named it explicitly.
func LoadCommandSet(defaultFile string, classFiles map[string]string) (*CommandSet, error) {
	cs := &CommandSet{Classes: make(map[string][]string)}

	cmds, err := ReadLines(defaultFile)
	if err != nil {
		return nil, fmt.Errorf("default command list %s: %w", defaultFile, err)
	}
	cs.Default = cmds

	for class, file := range classFiles {
		cmds, err := ReadLines(file)
		if err != nil {
			return nil, fmt.Errorf("command list for class %q (%s): %w", class, file, err)
		}
		cs.Classes[class] = cmds
	}

	return cs, nil
}

// CommandsFor returns the command list for class, falling back to Default.
func (cs *CommandSet) CommandsFor(class string) []string {
	if cmds, ok := cs.Classes[class]; ok && len(cmds) > 0 {
		return cmds
	}
	return cs.Default
}
