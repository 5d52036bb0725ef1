// Package registry scans a directory of executable scripts and extracts
// the "## key: value" declaration lines embedded in their source, the way
// the scripts this service runs document their own name, description, and
// argument schema.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Argument describes one positional parameter a script declares via an
// "## arg: <type> <description>" line.
type Argument struct {
	Type        string
	Description *string
}

// Script is an immutable descriptor for one discovered executable.
type Script struct {
	ExecutablePath string
	// Basename is the file's name within its directory; identity for lookup
	// purposes is this basename, not DisplayName.
	Basename    string
	DisplayName string
	Description *string
	Args        []Argument
}

var declarationLine = regexp.MustCompile(`^##\s*([^:]*?)\s*:\s*(.*)$`)

type declaration struct {
	Key   string
	Value string
}

// extractDeclarations scans text line by line for "## key: value" lines,
// preserving both order and multiplicity. A line qualifies only when "##"
// is the first non-whitespace token.
func extractDeclarations(text string) []declaration {
	var decls []declaration
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if !strings.HasPrefix(trimmed, "##") {
			continue
		}
		m := declarationLine.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		decls = append(decls, declaration{Key: m[1], Value: m[2]})
	}
	return decls
}

var argSpec = regexp.MustCompile(`^(\S+)\s*(.*)$`)

// parseArgument splits an "arg" declaration's value into its type token and
// optional free-text description.
func parseArgument(spec string) Argument {
	trimmed := strings.TrimSpace(spec)
	m := argSpec.FindStringSubmatch(trimmed)
	if m == nil {
		return Argument{Type: trimmed}
	}
	argType := m[1]
	desc := strings.TrimSpace(m[2])
	if desc == "" {
		return Argument{Type: argType}
	}
	return Argument{Type: argType, Description: &desc}
}

// displayNameFromFilename strips only the last extension from a filename,
// e.g. "two.extensions.sh" becomes "two.extensions".
func displayNameFromFilename(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext)
}

// scriptFromFile builds a Script from one candidate executable's path and
// contents.
func scriptFromFile(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("reading %s: %w", path, err)
	}

	basename := filepath.Base(path)
	script := Script{
		ExecutablePath: path,
		Basename:       basename,
		DisplayName:    displayNameFromFilename(basename),
	}

	for _, d := range extractDeclarations(string(data)) {
		switch d.Key {
		case "name":
			name := d.Value
			script.DisplayName = name
		case "description":
			desc := d.Value
			script.Description = &desc
		case "arg":
			script.Args = append(script.Args, parseArgument(d.Value))
		}
	}

	return script, nil
}

// isExecutableByUser reports whether info represents a regular file with
// at least one executable bit set, which on POSIX systems is the closest
// portable proxy for "executable by the current user" without re-deriving
// full permission-bit semantics.
func isExecutableByUser(info os.FileInfo) bool {
	if info.IsDir() {
		return false
	}
	if !info.Mode().IsRegular() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}

// Enumerate scans directory non-recursively and returns one Script per
// regular, executable entry. All other entries are silently skipped.
func Enumerate(directory string) ([]Script, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, fmt.Errorf("reading script directory %s: %w", directory, err)
	}

	var scripts []Script
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !isExecutableByUser(info) {
			continue
		}
		path := filepath.Join(directory, entry.Name())
		script, err := scriptFromFile(path)
		if err != nil {
			continue
		}
		scripts = append(scripts, script)
	}

	return scripts, nil
}

// Lookup returns the single Script in directory whose basename matches
// executableBasename, or false if none do.
func Lookup(directory, executableBasename string) (Script, bool, error) {
	scripts, err := Enumerate(directory)
	if err != nil {
		return Script{}, false, err
	}
	for _, s := range scripts {
		if s.Basename == executableBasename {
			return s, true, nil
		}
	}
	return Script{}, false, nil
}
