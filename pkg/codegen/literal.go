package codegen

import (
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// LiteralKind classifies a formatted literal.
type LiteralKind string

const (
	KindNone         LiteralKind = "none"
	KindBool         LiteralKind = "bool"
	KindInt          LiteralKind = "int"
	KindFloat        LiteralKind = "float"
	KindString       LiteralKind = "string"
	KindInterpolated LiteralKind = "interpolated"
)

// Literal is a target-language expression produced from a raw property value.
type Literal struct {
	Text string
	Kind LiteralKind
}

func (l Literal) String() string { return l.Text }

var (
	numberPattern      = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	identPattern       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// segment is one piece of a string with placeholders: literal text, or the
// name of a variable to substitute.
type segment struct {
	text string
	name string
}

// splitPlaceholders breaks s into literal and placeholder segments. The
// second result is false when s contains no placeholders.
func splitPlaceholders(s string) ([]segment, bool) {
	locs := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return nil, false
	}
	var segs []segment
	last := 0
	for _, loc := range locs {
		if loc[0] > last {
			segs = append(segs, segment{text: s[last:loc[0]]})
		}
		segs = append(segs, segment{name: s[loc[2]:loc[3]]})
		last = loc[1]
	}
	if last < len(s) {
		segs = append(segs, segment{text: s[last:]})
	}
	return segs, true
}

// HasPlaceholders reports whether s contains {identifier} placeholders.
func HasPlaceholders(s string) bool {
	return placeholderPattern.MatchString(s)
}

// IsIdentifier reports whether s is a bare identifier.
func IsIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

// normalizeNumber returns the canonical spelling of a numeric literal that
// both targets accept, and whether it is an integer.
func normalizeNumber(raw string) (string, bool, bool) {
	s := strings.TrimSpace(raw)
	if !numberPattern.MatchString(s) {
		return "", false, false
	}
	if !strings.ContainsAny(s, ".eE") {
		var n big.Int
		if _, ok := n.SetString(strings.TrimPrefix(s, "+"), 10); !ok {
			return "", false, false
		}
		return n.String(), true, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", false, false
	}
	out := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(out, ".eE") {
		out += ".0"
	}
	return out, false, true
}

// parseBool recognises boolean spellings. The second result is false when
// s is not one.
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true
	}
	return false
}

// formatLiteral implements the literal rules shared by every language; the
// language supplies the spelling of each kind.
func formatLiteral(lang Language, raw, hint string) Literal {
	hint = strings.ToLower(strings.TrimSpace(hint))
	switch hint {
	case "bool":
		hint = "boolean"
	case "str", "text":
		hint = "string"
	case "int", "integer", "float":
		hint = "number"
	}

	if raw == "" {
		if hint == "string" {
			return Literal{Text: lang.StringLiteral(""), Kind: KindString}
		}
		return Literal{Text: lang.NoneLiteral(), Kind: KindNone}
	}
	if hint == "boolean" {
		b, ok := parseBool(raw)
		if !ok {
			b = truthy(raw)
		}
		return Literal{Text: lang.BoolLiteral(b), Kind: KindBool}
	}
	if hint != "string" {
		if b, ok := parseBool(raw); ok {
			return Literal{Text: lang.BoolLiteral(b), Kind: KindBool}
		}
		if num, isInt, ok := normalizeNumber(raw); ok {
			if isInt {
				return Literal{Text: lang.IntLiteral(num), Kind: KindInt}
			}
			return Literal{Text: num, Kind: KindFloat}
		}
	}
	if segs, ok := splitPlaceholders(raw); ok {
		return Literal{Text: lang.interpolate(segs), Kind: KindInterpolated}
	}
	return Literal{Text: lang.StringLiteral(raw), Kind: KindString}
}

// sanitize turns arbitrary text into an identifier that is not a keyword.
func sanitize(s string, keywords map[string]bool) string {
	var sb strings.Builder
	for i, r := range strings.TrimSpace(s) {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				sb.WriteString("n_")
			}
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := sb.String()
	if out == "" {
		out = "_value"
	}
	if keywords[out] {
		out += "_"
	}
	return out
}

// escapeString escapes s for a double-quoted string literal. ctrl spells a
// control character that has no short escape.
func escapeString(s string, ctrl func(r rune) string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				sb.WriteString(ctrl(r))
			} else {
				sb.WriteRune(r)
			}
		}
	}
	return sb.String()
}
