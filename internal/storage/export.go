// ABOUTME: Serialization of schema statistics for the stats command and MCP resource.
// ABOUTME: Supports JSON, YAML and a plain text summary.
package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToJSON renders stats as indented JSON.
func (s *SchemaStats) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return data, nil
}

// ToYAML renders stats as YAML.
func (s *SchemaStats) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}
	return data, nil
}

// ToText renders a human summary, one table per line.
func (s *SchemaStats) ToText() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Schema version: %s\n", s.SchemaVersion)
	fmt.Fprintf(&sb, "Total records: %d\n\n", s.TotalRecords)

	tables := make([]string, 0, len(s.Tables))
	for t := range s.Tables {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	for _, t := range tables {
		fmt.Fprintf(&sb, "%-16s %8d", t, s.Tables[t])
		if r, ok := s.DateRanges[t]; ok {
			fmt.Fprintf(&sb, "  %s → %s", r.Earliest, r.Latest)
		}
		sb.WriteString("\n")

		sources := s.Sources[t]
		names := make([]string, 0, len(sources))
		for name := range sources {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "  %-14s %8d\n", name, sources[name])
		}
	}
	return sb.String()
}

// Format renders stats in the named format: text, json or yaml.
func (s *SchemaStats) Format(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return []byte(s.ToText()), nil
	case "json":
		return s.ToJSON()
	case "yaml", "yml":
		return s.ToYAML()
	default:
		return nil, fmt.Errorf("unknown format: %s", format)
	}
}
