package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options 日志选项
type Options struct {
	Level  string // debug/info/warn/error
	Format string // json/console
}

var (
	mu    sync.RWMutex
	sugar = zap.NewNop().Sugar()
)

// Init 初始化全局日志
func Init(opts Options) error {
	var zapCfg zap.Config
	if strings.EqualFold(opts.Format, "console") {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level := opts.Level
	if level == "" {
		level = "info"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("解析日志级别失败: %w", err)
	}
	zapCfg.Level.SetLevel(lvl)

	l, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("创建日志实例失败: %w", err)
	}

	mu.Lock()
	sugar = l.Sugar()
	mu.Unlock()
	zap.ReplaceGlobals(l)
	return nil
}

// SetLogger 替换底层日志实例（测试中使用 zaptest/observer）
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	sugar = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Debug(format string, args ...interface{}) {
	current().Debugf(format, args...)
}

func Info(format string, args ...interface{}) {
	current().Infof(format, args...)
}

func Warn(format string, args ...interface{}) {
	current().Warnf(format, args...)
}

func Error(format string, args ...interface{}) {
	current().Errorf(format, args...)
}

// Sync 刷新缓冲
func Sync() {
	_ = current().Sync()
}
