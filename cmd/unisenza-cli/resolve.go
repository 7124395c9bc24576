package main

import (
	"fmt"
	"sort"
	"strings"
)

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	name = replacer.Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return name
}

type namedID struct {
	label string
	id    string
}

// resolveNamedID maps a human label to an id. Labels that normalize to the
// same name are ambiguous and must be addressed by id.
func resolveNamedID(kind, input string, options []namedID) (string, error) {
	needle := normalizeName(input)
	var matches []string
	for _, option := range options {
		if normalizeName(option.label) == needle {
			matches = append(matches, option.id)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
	default:
		sort.Strings(matches)
		return "", fmt.Errorf("%s %q is ambiguous, use one of: %s", kind, input, strings.Join(matches, ", "))
	}

	available := make([]string, 0, len(options))
	for _, option := range options {
		available = append(available, option.label)
	}
	sort.Strings(available)
	return "", fmt.Errorf("%s %q not found. Available: %s", kind, input, strings.Join(available, ", "))
}
