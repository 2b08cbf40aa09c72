package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(t *testing.T, format Format) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return New(&Config{Level: DebugLevel, Format: format, Output: &buf, EnableSanitizing: true}), &buf
}

func TestWithComponentReturnsFieldLoggerTaggingComponent(t *testing.T) {
	logger, buf := newBufferedLogger(t, JSONFormat)
	fl := logger.WithComponent("governor")
	fl.Info("admitted")

	var entry Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "admitted", entry.Message)
	assert.Equal(t, "governor", entry.Fields["component"])
}

func TestFieldLoggerCarriesFieldsOntoEveryEntry(t *testing.T) {
	logger, buf := newBufferedLogger(t, JSONFormat)
	fl := logger.WithField("task_id", "1:aaaaa")
	fl.Info("hello")

	var entry Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "1:aaaaa", entry.Fields["task_id"])
}

func TestWithFieldChainsWithoutMutatingParent(t *testing.T) {
	logger, _ := newBufferedLogger(t, JSONFormat)
	base := logger.WithField("a", 1)
	child := base.WithField("b", 2)

	assert.Len(t, base.fields, 1)
	assert.Len(t, child.fields, 2)
}

func TestSanitizePatternRedactsLikelySecretInField(t *testing.T) {
	logger, buf := newBufferedLogger(t, JSONFormat)
	logger.Info("auth attempt", map[string]interface{}{"password": "hunter2hunter2"})

	var entry Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotEqual(t, "hunter2hunter2", entry.Fields["password"])
}

func TestTextFormatIncludesLevelAndMessage(t *testing.T) {
	logger, buf := newBufferedLogger(t, TextFormat)
	logger.Errorf("broker dial failed: %v", "timeout")

	out := buf.String()
	assert.True(t, strings.Contains(out, "[ERROR]"))
	assert.True(t, strings.Contains(out, "broker dial failed"))
}

func TestParseLevelIsCaseInsensitive(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, lvl)

	lvl, err = ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, lvl)
}

func TestParseLevelRejectsUnknownName(t *testing.T) {
	_, err := ParseLevel("bogus")
	assert.Error(t, err)
}
