package rowio

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/bundlesplit/internal/graph"
)

func TestRead_Array(t *testing.T) {
	in := `
[{"id":1,"file":"/app/a.js","source":"require('./b')","deps":{"./b":2,"fs":false},"entry":true,"order":0},
 {"id":"b","file":"/app/b.js","source":"","deps":{}}]`

	rows, err := ReadAll(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, graph.ModuleID("1"), rows[0].ID)
	assert.Equal(t, map[string]graph.ModuleID{"./b": "2", "fs": ""}, rows[0].Deps)
	assert.True(t, rows[0].Entry)
	require.NotNil(t, rows[0].Order)
	assert.Equal(t, 0, *rows[0].Order)
	assert.Equal(t, graph.ModuleID("b"), rows[1].ID)
}

func TestRead_NDJSON(t *testing.T) {
	in := "{\"id\":1,\"file\":\"/a.js\",\"deps\":{}}\n{\"id\":2,\"file\":\"/b.js\",\"deps\":{}}\n"
	rows, err := ReadAll(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "/b.js", rows[1].File)
}

func TestRead_Empty(t *testing.T) {
	rows, err := ReadAll(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRead_ReportsRowNumber(t *testing.T) {
	_, err := ReadAll(strings.NewReader(`[{"id":1},{"id":{}}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestRead_StopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := Read(strings.NewReader(`[{"id":1},{"id":2}]`), func(*graph.ModuleRow) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestWrite_RoundTrip(t *testing.T) {
	rows := []*graph.ModuleRow{
		{ID: "1", File: "/a.js", Source: "x", Deps: map[string]graph.ModuleID{"./b": "2"}, Entry: true, Expose: true},
		{ID: "2", File: "/b.js", Deps: map[string]graph.ModuleID{}},
	}
	for _, format := range []Format{JSON, NDJSON} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, rows, format))
			got, err := ReadAll(&buf)
			require.NoError(t, err)
			assert.Equal(t, rows, got)
		})
	}
}

func TestWrite_NumericIDs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []*graph.ModuleRow{{ID: "1", Deps: map[string]graph.ModuleID{}}}, NDJSON))
	assert.Contains(t, buf.String(), `"id":1`)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, JSON, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
