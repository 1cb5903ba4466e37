package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPrintfStyleLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(zap.NewNop()) })

	Info("字段 %s 处理 %d 个文件", "fotos", 2)
	Warn("保留原文件: %v", "a.heic")
	Debug("debug %d", 1)
	Error("失败")

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, "字段 fotos 处理 2 个文件", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Init(Options{Level: "verbose"}))
	require.NoError(t, Init(Options{Level: "warn", Format: "console"}))
	t.Cleanup(func() { SetLogger(zap.NewNop()) })
}
