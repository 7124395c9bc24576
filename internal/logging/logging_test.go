package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/unisenza-bridge/internal/config"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOutput(&config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("entry_id", "abc").Debug("setup")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "setup", line["msg"])
	assert.Equal(t, "abc", line["entry_id"])
}

func TestNewDefaults(t *testing.T) {
	logger, err := NewWithOutput(nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

func TestNewRejectsInvalid(t *testing.T) {
	_, err := NewWithOutput(&config.LoggingConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
	_, err = NewWithOutput(&config.LoggingConfig{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}
