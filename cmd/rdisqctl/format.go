package main

import (
	"fmt"
	"sort"
	"strings"
)

// tagsString renders a receiver's tag map as a deterministic "k=v,k2=v2"
// string for table output.
func tagsString(tags map[string]string) string {
	if len(tags) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, tags[k]))
	}
	return strings.Join(parts, ",")
}
