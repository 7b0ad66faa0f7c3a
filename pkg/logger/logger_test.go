package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{Level: DebugLevel, Output: &buf})

	log.WithFields(map[string]interface{}{"worker": "reminders"}).
		Error(errors.New("smtp down"), "dispatch failed", "appointment_id", "a-1", "tag", "3")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "dispatch failed", entry["message"])
	assert.Equal(t, "smtp down", entry["error"])
	assert.Equal(t, "reminders", entry["worker"])
	assert.Equal(t, "a-1", entry["appointment_id"])
	assert.Equal(t, "3", entry["tag"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{Level: WarnLevel, Output: &buf})

	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, InfoLevel, ParseLevel(""))
	assert.Equal(t, InfoLevel, ParseLevel("loud"))
}
