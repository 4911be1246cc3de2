package config

import (
	"sort"
	"strings"
)

// Setting is one leaf of the config tree under its dotted key, e.g.
// "agent.model".
type Setting struct {
	Key   string
	Value any
}

var secretKeys = map[string]bool{
	"agent.api_key":  true,
	"telegram.token": true,
}

// listKeys hold comma-separated values on the command line.
var listKeys = map[string]bool{
	"telegram.subscribers": true,
}

// IsSecretKey reports whether the value at key must not be displayed.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Settings returns the leaves of tree ordered by key.
func Settings(tree map[string]any) []Setting {
	var out []Setting
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for k, v := range node {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(key, child)
				continue
			}
			out = append(out, Setting{Key: key, Value: v})
		}
	}
	walk("", tree)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// lookup returns the leaf at key. Sections are not leaves.
func lookup(tree map[string]any, key string) (any, bool) {
	parts := strings.Split(key, ".")
	node := tree
	for _, p := range parts[:len(parts)-1] {
		child, ok := node[p].(map[string]any)
		if !ok {
			return nil, false
		}
		node = child
	}
	v, ok := node[parts[len(parts)-1]]
	if _, section := v.(map[string]any); section {
		return nil, false
	}
	return v, ok
}

// assign sets the leaf at key, creating missing sections.
func assign(tree map[string]any, key string, v any) {
	parts := strings.Split(key, ".")
	node := tree
	for _, p := range parts[:len(parts)-1] {
		child, ok := node[p].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[p] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = v
}

// Redact hides a secret value behind its last four characters. Other
// values and empty secrets are returned unchanged.
func Redact(key string, v any) any {
	s, ok := v.(string)
	if !IsSecretKey(key) || !ok || s == "" {
		return v
	}
	if len(s) > 4 {
		s = s[len(s)-4:]
	}
	return "***" + s
}
