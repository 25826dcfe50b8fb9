package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint identifies a tool call as name + canonical JSON of its
// arguments with keys sorted recursively. Two calls with the same semantics
// always produce the same fingerprint regardless of key order.
func Fingerprint(name, argsJSON string) string {
	var args any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		// Unparseable args still need a stable identity.
		return name + ":" + strings.TrimSpace(argsJSON)
	}
	var sb strings.Builder
	writeCanonical(&sb, args)
	return name + ":" + sb.String()
}

func writeCanonical(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			keyJSON, _ := json.Marshal(k)
			sb.Write(keyJSON)
			sb.WriteByte(':')
			writeCanonical(sb, val[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			fmt.Fprintf(sb, "%v", val)
			return
		}
		sb.Write(encoded)
	}
}
