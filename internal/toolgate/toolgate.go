// Package toolgate filters a tool catalogue by worker role. The filter is
// a pure function over its inputs: no registry, no ordering or concurrency
// concerns, equal inputs always produce equal output sets.
package toolgate

// Tool is a catalogue entry, optionally annotated with the roles allowed
// to use it. A nil Roles slice means every role may use the tool (open
// default, backward compatible); an empty non-nil slice disables the tool
// for everyone.
type Tool struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Roles       []string `json:"roles,omitempty" yaml:"roles,omitempty"`
}

// Allowed reports whether role may use t.
func Allowed(t Tool, role string) bool {
	if t.Roles == nil {
		return true
	}
	for _, r := range t.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Filter returns the subset of catalogue usable by role, preserving
// catalogue order. The input slice is never mutated.
func Filter(role string, catalogue []Tool) []Tool {
	var out []Tool
	for _, t := range catalogue {
		if Allowed(t, role) {
			out = append(out, t)
		}
	}
	return out
}

// Names is a convenience projection of Filter for prompts and display.
func Names(role string, catalogue []Tool) []string {
	var out []string
	for _, t := range catalogue {
		if Allowed(t, role) {
			out = append(out, t.Name)
		}
	}
	return out
}
