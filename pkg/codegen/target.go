package codegen

import (
	"errors"
	"fmt"
	"strings"
)

// Target selects the language a workflow is compiled to.
type Target string

const (
	TargetPython Target = "python"
	// TargetRust is experimental: the generated crate needs the dependencies
	// listed in its header comment.
	TargetRust Target = "rust"
)

// ErrUnknownTarget is returned for target names no language handles.
var ErrUnknownTarget = errors.New("unknown target language")

// Targets lists the supported targets.
func Targets() []Target { return []Target{TargetPython, TargetRust} }

// ParseTarget accepts a target name or a common alias ("py", "rs").
func ParseTarget(s string) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "python", "py", "python3":
		return TargetPython, nil
	case "rust", "rs":
		return TargetRust, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTarget, s)
}

// Extension is the conventional source file extension, including the dot.
func (t Target) Extension() string {
	switch t {
	case TargetPython:
		return ".py"
	case TargetRust:
		return ".rs"
	}
	return ".txt"
}

// ContentType is the MIME type used when serving generated source.
func (t Target) ContentType() string {
	switch t {
	case TargetPython:
		return "text/x-python; charset=utf-8"
	case TargetRust:
		return "text/x-rust; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}
