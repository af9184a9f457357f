package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "json", "debug")

	log.Debug().Str("profile_id", "p1").Msg("balance computed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "p1", line["profile_id"])
	assert.Equal(t, "balance computed", line["message"])
	assert.Contains(t, line, "time")
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "json", "warn")

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "json", "chatty")

	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestNew_TextIsNotJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "text", "info")
	log.Info().Msg("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
