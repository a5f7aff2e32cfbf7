package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ModuleID identifies a row within one build. Bundlers emit both numeric and
// string ids, so the JSON form accepts either and writes integers back as
// numbers.
type ModuleID string

// IsNumeric reports whether the id is a canonical non-negative integer.
func (id ModuleID) IsNumeric() bool {
	s := string(id)
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (id ModuleID) String() string { return string(id) }

// MarshalJSON writes numeric ids as JSON numbers and everything else as strings.
func (id ModuleID) MarshalJSON() ([]byte, error) {
	if id.IsNumeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts a number, a string, null or false. The last two
// appear in deps tables for ignored or unresolvable specifiers and decode to
// the empty id.
func (id *ModuleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		*id = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ModuleID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("module id must be a string or number, got %s", data)
		}
		if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
			return fmt.Errorf("module id must be an integer, got %s", data)
		}
		*id = ModuleID(n.String())
		return nil
	}
}

// ModuleRow is a single source module of the build.
type ModuleRow struct {
	ID        ModuleID            `json:"id"`
	Index     *int                `json:"index,omitempty"`
	File      string              `json:"file"`
	Source    string              `json:"source"`
	Deps      map[string]ModuleID `json:"deps"`
	IndexDeps map[string]int      `json:"indexDeps,omitempty"`
	Entry     bool                `json:"entry,omitempty"`
	Order     *int                `json:"order,omitempty"`
	Expose    bool                `json:"expose,omitempty"`

	// External marks a reference to a module that is not part of this
	// graph, such as a runtime helper bundled elsewhere.
	External bool `json:"-"`
}

// Removed records the dependency table entries taken out by RemoveEdge so
// that RestoreEdge can put back exactly what was there.
type Removed struct {
	Deps      map[string]ModuleID
	IndexDeps map[string]int
}

// Empty reports whether nothing was removed.
func (r Removed) Empty() bool {
	return len(r.Deps) == 0 && len(r.IndexDeps) == 0
}

// DuplicateIDError is returned when two rows share an id.
type DuplicateIDError struct {
	ID    ModuleID
	First string
	Again string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate module id %q: %s and %s", e.ID, e.First, e.Again)
}
