package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igmonitor/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug json", cfg: &config.LoggingConfig{Level: "debug", Format: "json"}},
		{name: "invalid level", cfg: &config.LoggingConfig{Level: "invalid"}, wantErr: true},
		{name: "with file", cfg: &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "igmonitor.log")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
			if tt.cfg.File != "" {
				_, statErr := os.Stat(tt.cfg.File)
				assert.NoError(t, statErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"chatty", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFieldsAreWritten(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	l := &zerologLogger{logger: &zl, fields: map[string]interface{}{}}

	l.WithField("subject", "alice").
		WithError(errors.New("boom")).
		InfoWithFields("collection finished", map[string]interface{}{
			"collected": 3,
			"elapsed":   2 * time.Second,
		})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "collection finished", entry["message"])
	assert.Equal(t, "alice", entry["subject"])
	assert.Equal(t, "boom", entry["error"])
	assert.EqualValues(t, 3, entry["collected"])
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	parent := &zerologLogger{logger: &zl, fields: map[string]interface{}{"a": 1}}

	child := parent.WithFields(map[string]interface{}{"b": 2}).(*zerologLogger)
	assert.Len(t, parent.fields, 1)
	assert.Len(t, child.fields, 2)
}

func TestTestLoggerCapture(t *testing.T) {
	tl := NewTestLogger()
	child := tl.WithField("subject", "alice")

	child.WarnWithFields("checkpoint delete failed", map[string]interface{}{"kind": "followers"})
	tl.Error("storage down")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "WARN", msgs[0].Level)
	assert.Equal(t, "alice", msgs[0].Fields["subject"])
	assert.Equal(t, "followers", msgs[0].Fields["kind"])
	assert.True(t, tl.HasMessage("checkpoint delete"))
	assert.True(t, tl.HasError())

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestCollectionHelpers(t *testing.T) {
	tl := NewTestLogger()

	LogCollectionStart(tl, "alice", "followers", "tok", 120, 0)
	LogCollectionEnd(tl, "alice", "followers", "tok", "complete", 120, time.Minute, nil)
	LogCollectionEnd(tl, "alice", "followees", "tok", "throttled", 4, time.Minute, errors.New("please wait"))
	LogCollectionEnd(tl, "alice", "followees", "tok", "failed", 4, time.Minute, errors.New("boom"))

	levels := make([]string, 0, 4)
	for _, m := range tl.GetMessages() {
		levels = append(levels, m.Level)
	}
	assert.Equal(t, "INFO,INFO,WARN,ERROR", strings.Join(levels, ","))
}

func TestGlobalLogger(t *testing.T) {
	tl := NewTestLogger()
	SetLogger(tl)
	defer SetLogger(nil)

	Info("hello")
	WithField("k", "v").Warn("careful")

	assert.True(t, tl.HasMessage("hello"))
	assert.Len(t, tl.GetMessagesByLevel("WARN"), 1)
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.WithField("a", 1).WithError(errors.New("x")).Info("ignored")
		l.GetZerolog().Info().Msg("ignored")
	})
}
