package commands

import (
	"log/slog"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogToLogrus(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	l := newSlogLogger(logger).With(slog.String("session", "abc"))
	l.Debug("sending envelope", slog.String("channel", "room1"))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "sending envelope", entry.Message)
	assert.Equal(t, logrus.Fields{"session": "abc", "channel": "room1"}, entry.Data)
}

func TestSlogToLogrus_Levels(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  logrus.Level
	}{
		{slog.LevelDebug, logrus.DebugLevel},
		{slog.LevelInfo, logrus.InfoLevel},
		{slog.LevelWarn, logrus.WarnLevel},
		{slog.LevelError, logrus.ErrorLevel},
		{slog.LevelError + 4, logrus.ErrorLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, logrusLevel(tt.level), "level %s", tt.level)
	}
}

func TestSlogToLogrus_Disabled(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)

	l := newSlogLogger(logger)
	l.Debug("hidden")
	l.Warn("shown")

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "shown", hook.LastEntry().Message)
}

func TestSlogToLogrus_Groups(t *testing.T) {
	logger, hook := test.NewNullLogger()

	l := newSlogLogger(logger).WithGroup("conn")
	l.Info("closed", slog.Int("code", 1000), slog.Group("peer", slog.String("reason", "bye")))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, int64(1000), entry.Data["conn.code"])
	assert.Equal(t, "bye", entry.Data["conn.peer.reason"])
}
