package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format names a workflow document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
	FormatDOT  Format = "dot"
)

// ErrUnknownFormat is returned for file extensions and format names that no
// decoder handles.
var ErrUnknownFormat = errors.New("unknown workflow format")

// FormatFromPath picks a format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".hcl":
		return FormatHCL, nil
	case ".dot", ".gv":
		return FormatDOT, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
}

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatYAML, FormatHCL, FormatDOT:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "gv":
		return FormatDOT, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// LoadFile reads and decodes the workflow document at path, choosing the
// decoder from the file extension.
func LoadFile(path string) (*Document, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	doc, err := Decode(src, format, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Decode decodes src in the given format. name labels HCL diagnostics.
func Decode(src []byte, format Format, name string) (*Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(src))
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(src, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatHCL:
		return DecodeHCL(src, name)
	case FormatDOT:
		return ParseDOT(string(src))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return &doc, nil
}

// Encode writes doc in the given format. DOT output goes through RenderDOT.
func Encode(doc *Document, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatHCL:
		return EncodeHCL(doc), nil
	case FormatDOT:
		name := ""
		if doc.Metadata != nil {
			name = doc.Metadata.Name
		}
		s, err := RenderDOT(doc.Graph(), name)
		return []byte(s), err
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}
