package workflow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Stringify renders a property value the way the editor displays it: strings
// verbatim, numbers without a trailing ".0", everything else as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// PropBool interprets a property as a boolean. Strings such as "true", "yes"
// and "1" count as true; a missing property yields def.
func (n *Node) PropBool(key string, def bool) bool {
	v, ok := n.Properties[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	switch strings.ToLower(strings.TrimSpace(Stringify(v))) {
	case "true", "yes", "on", "1":
		return true
	case "false", "no", "off", "0":
		return false
	case "":
		return def
	}
	return def
}

// PropInt interprets a property as an integer, falling back to def when the
// property is missing or not numeric.
func (n *Node) PropInt(key string, def int) int {
	v, ok := n.Properties[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	}
	s := strings.TrimSpace(Stringify(v))
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return def
}
