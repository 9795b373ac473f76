// Package fingerprint implements the canonical server capability model.
// This file implements the structural comparison between two fingerprints.
package fingerprint

// file: internal/fingerprint/diff.go

import (
	"sort"
)

// Fields a modified tool can differ in.
const (
	FieldDescription = "description"
	FieldParameters  = "parameters"
)

// ModifiedTool names the fields that changed for a tool present in both
// fingerprints.
type ModifiedTool struct {
	Name          string   `json:"name"`
	ChangedFields []string `json:"changed_fields"`
}

// ConfigDiff is the itemized delta between two fingerprints. A non-empty diff
// against the stored trust record forces re-approval before any further tool
// invocation.
type ConfigDiff struct {
	AddedTools   []string       `json:"added_tools,omitempty"`
	RemovedTools []string       `json:"removed_tools,omitempty"`
	Modified     []ModifiedTool `json:"modified_tools,omitempty"`
	// NewInstructions carries the b-side instructions value, present only when
	// the instruction strings differ.
	NewInstructions *string `json:"new_instructions,omitempty"`
}

// HasDifferences reports whether any component of the diff is non-empty.
func (d *ConfigDiff) HasDifferences() bool {
	return len(d.AddedTools) > 0 || len(d.RemovedTools) > 0 ||
		len(d.Modified) > 0 || d.NewInstructions != nil
}

// Compare produces the structural delta from fingerprint a to fingerprint b.
// Tool membership is compared as a name set; tools present in both are
// compared field-wise with parameter order significant; instructions are
// compared verbatim.
func Compare(a, b *ServerConfig) *ConfigDiff {
	diff := &ConfigDiff{}

	aTools := toolIndex(a)
	bTools := toolIndex(b)

	for name := range bTools {
		if _, ok := aTools[name]; !ok {
			diff.AddedTools = append(diff.AddedTools, name)
		}
	}
	for name := range aTools {
		if _, ok := bTools[name]; !ok {
			diff.RemovedTools = append(diff.RemovedTools, name)
		}
	}
	sort.Strings(diff.AddedTools)
	sort.Strings(diff.RemovedTools)

	shared := make([]string, 0, len(aTools))
	for name := range aTools {
		if _, ok := bTools[name]; ok {
			shared = append(shared, name)
		}
	}
	sort.Strings(shared)

	for _, name := range shared {
		changed := compareTools(aTools[name], bTools[name])
		if len(changed) > 0 {
			diff.Modified = append(diff.Modified, ModifiedTool{Name: name, ChangedFields: changed})
		}
	}

	if a.Instructions != b.Instructions {
		instructions := b.Instructions
		diff.NewInstructions = &instructions
	}
	return diff
}

// toolIndex builds a name lookup over a fingerprint's tool set.
func toolIndex(c *ServerConfig) map[string]*ToolDefinition {
	index := make(map[string]*ToolDefinition, len(c.Tools))
	for i := range c.Tools {
		index[c.Tools[i].Name] = &c.Tools[i]
	}
	return index
}

// compareTools returns the names of the fields that differ between two
// definitions of the same tool.
func compareTools(a, b *ToolDefinition) []string {
	var changed []string
	if a.Description != b.Description {
		changed = append(changed, FieldDescription)
	}
	if !parametersEqual(a.Parameters, b.Parameters) {
		changed = append(changed, FieldParameters)
	}
	return changed
}

// parametersEqual compares parameter lists element-wise; order is significant.
func parametersEqual(a, b []ParameterDefinition) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name ||
			a[i].Description != b[i].Description ||
			a[i].Type != b[i].Type ||
			a[i].Required != b[i].Required {
			return false
		}
		if len(a[i].Enum) != len(b[i].Enum) {
			return false
		}
		for j := range a[i].Enum {
			if a[i].Enum[j] != b[i].Enum[j] {
				return false
			}
		}
	}
	return true
}
