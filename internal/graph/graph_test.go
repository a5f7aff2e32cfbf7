package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

// addRow is a helper that adds a row with the given deps to the graph.
func addRow(t *testing.T, g *Graph, id string, deps map[string]ModuleID) *ModuleRow {
	t.Helper()
	row := &ModuleRow{ID: ModuleID(id), File: "/app/" + id + ".js", Deps: deps}
	require.NoError(t, g.Add(row))
	return row
}

func TestAdd_RejectsDuplicateID(t *testing.T) {
	g := New()
	addRow(t, g, "a", nil)

	err := g.Add(&ModuleRow{ID: "a", File: "/other/a.js"})
	var dup *DuplicateIDError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, ModuleID("a"), dup.ID)
	assert.Equal(t, 1, g.Len())
}

func TestByFile(t *testing.T) {
	g := New()
	row := addRow(t, g, "a", nil)

	got, ok := g.ByFile("/app/./a.js")
	require.True(t, ok)
	assert.Same(t, row, got)

	_, ok = g.ByFile("/app/missing.js")
	assert.False(t, ok)
}

func TestEntries_KeepArrivalOrder(t *testing.T) {
	g := New()
	require.NoError(t, g.Add(&ModuleRow{ID: "z", Entry: true}))
	require.NoError(t, g.Add(&ModuleRow{ID: "m"}))
	require.NoError(t, g.Add(&ModuleRow{ID: "a", Entry: true}))

	var ids []ModuleID
	for _, row := range g.Entries() {
		ids = append(ids, row.ID)
	}
	assert.Equal(t, []ModuleID{"z", "a"}, ids)
}

func TestClosure(t *testing.T) {
	t.Run("linear chain with external dependency", func(t *testing.T) {
		g := New()
		addRow(t, g, "a", map[string]ModuleID{"./b": "b", "fs": "external"})
		addRow(t, g, "b", map[string]ModuleID{"./c": "c"})
		addRow(t, g, "c", nil)

		assert.Equal(t, []ModuleID{"a", "b", "c"}, g.Closure("a"))
	})

	t.Run("cycles terminate", func(t *testing.T) {
		g := New()
		addRow(t, g, "a", map[string]ModuleID{"./b": "b"})
		addRow(t, g, "b", map[string]ModuleID{"./a": "a"})

		assert.Equal(t, []ModuleID{"a", "b"}, g.Closure("a"))
	})

	t.Run("multiple roots share visits", func(t *testing.T) {
		g := New()
		addRow(t, g, "a", map[string]ModuleID{"./shared": "s"})
		addRow(t, g, "b", map[string]ModuleID{"./shared": "s"})
		addRow(t, g, "s", nil)

		assert.Equal(t, []ModuleID{"a", "s", "b"}, g.Closure("a", "b"))
	})

	t.Run("deps are visited in specifier order", func(t *testing.T) {
		g := New()
		addRow(t, g, "a", map[string]ModuleID{"./z": "z", "./b": "b", "ignored": ""})
		addRow(t, g, "b", nil)
		addRow(t, g, "z", nil)

		assert.Equal(t, []ModuleID{"a", "b", "z"}, g.Closure("a"))
	})
}

func TestRemoveAndRestoreEdge(t *testing.T) {
	g := New()
	a := addRow(t, g, "a", map[string]ModuleID{"./d": "d", "./d.js": "d", "./e": "e"})
	a.IndexDeps = map[string]int{"./d": 4, "./d.js": 4, "./e": 5}
	d := addRow(t, g, "d", nil)
	d.Index = intPtr(4)
	addRow(t, g, "e", nil)

	removed := g.RemoveEdge("a", "d")
	assert.Equal(t, map[string]ModuleID{"./d": "d", "./d.js": "d"}, removed.Deps)
	assert.Equal(t, map[string]int{"./d": 4, "./d.js": 4}, removed.IndexDeps)
	assert.Equal(t, map[string]ModuleID{"./e": "e"}, a.Deps)
	assert.Equal(t, map[string]int{"./e": 5}, a.IndexDeps)

	g.RestoreEdge("a", removed)
	assert.Equal(t, map[string]ModuleID{"./d": "d", "./d.js": "d", "./e": "e"}, a.Deps)
	assert.Equal(t, map[string]int{"./d": 4, "./d.js": 4, "./e": 5}, a.IndexDeps)
}

func TestRemoveEdge_UnknownCaller(t *testing.T) {
	g := New()
	assert.True(t, g.RemoveEdge("nope", "d").Empty())
}

func TestModuleIDJSON(t *testing.T) {
	var row ModuleRow
	require.NoError(t, json.Unmarshal([]byte(`{"id":3,"file":"/a.js","source":"","deps":{"./b":"/b.js","x":false,"y":null,"z":7}}`), &row))
	assert.Equal(t, ModuleID("3"), row.ID)
	assert.Equal(t, map[string]ModuleID{"./b": "/b.js", "x": "", "y": "", "z": "7"}, row.Deps)

	out, err := json.Marshal(map[string]ModuleID{"n": "12", "s": "/b.js", "lead": "012"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":12,"s":"/b.js","lead":"012"}`, string(out))

	var bad ModuleID
	assert.Error(t, json.Unmarshal([]byte(`1.5`), &bad))
}
