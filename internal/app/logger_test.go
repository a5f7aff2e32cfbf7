package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("WARN", "json", &buf)
	logger.Info("Hidden.")
	logger.Warn("Shown.", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Shown.", rec["msg"])
	assert.Equal(t, "v", rec["k"])
}

func TestNewLogger_UnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("loud", "text", &buf)
	logger.Debug("Hidden.")
	logger.Info("Shown.")
	assert.NotContains(t, buf.String(), "Hidden.")
	assert.Contains(t, buf.String(), "msg=Shown.")
}
