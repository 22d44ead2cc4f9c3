// Package template substitutes tenant- and model-scoped variables into node
// configuration before execution.
package template

import (
	"strings"
)

// Variables maps a fixed set of namespaces to key/value pairs, e.g.
// vars["model"]["name"]. Only namespaces present in the map resolve.
type Variables map[string]map[string]string

// Resolve walks config recursively and replaces every {{namespace.key}}
// occurrence inside string values with the variable's value. Maps and slices
// are copied; other value types pass through untouched. Unresolved variables
// are left in place verbatim rather than erroring, so a typo in a template
// survives into the executed config unchanged.
func Resolve(config map[string]any, vars Variables) map[string]any {
	if config == nil {
		return nil
	}
	out := make(map[string]any, len(config))
	for key, value := range config {
		out[key] = resolveValue(value, vars)
	}
	return out
}

// ResolveString replaces variable occurrences in a single string. Substitution
// is a single left-to-right pass: substituted values are emitted as-is and
// never rescanned, so a variable whose value contains {{...}} text cannot
// trigger further expansion.
func ResolveString(s string, vars Variables) string {
	var out strings.Builder
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			break
		}
		end += start
		name := strings.TrimSpace(s[start+2 : end])
		if value, ok := lookup(name, vars); ok {
			out.WriteString(s[:start])
			out.WriteString(value)
		} else {
			// Unknown variable survives verbatim.
			out.WriteString(s[:end+2])
		}
		s = s[end+2:]
	}
	if out.Len() == 0 {
		return s
	}
	out.WriteString(s)
	return out.String()
}

func resolveValue(value any, vars Variables) any {
	switch v := value.(type) {
	case string:
		return ResolveString(v, vars)
	case map[string]any:
		return Resolve(v, vars)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolveValue(item, vars)
		}
		return out
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = ResolveString(item, vars)
		}
		return out
	default:
		return value
	}
}

func lookup(name string, vars Variables) (string, bool) {
	idx := strings.Index(name, ".")
	if idx <= 0 || idx == len(name)-1 {
		return "", false
	}
	namespace, key := name[:idx], name[idx+1:]
	kv, ok := vars[namespace]
	if !ok {
		return "", false
	}
	value, ok := kv[key]
	return value, ok
}
