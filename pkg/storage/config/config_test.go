package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMapConfigConversions(t *testing.T) {
	cfg := NewMapConfig(map[string]interface{}{
		"bucket":   "  forms ",
		"port":     "2222",
		"max":      float64(1024),
		"secure":   "true",
		"timeout":  "5s",
		"seconds":  10,
		"empty":    "",
		"nonsense": []string{"x"},
	})

	assert.True(t, cfg.Has("bucket"))
	assert.Equal(t, "forms", cfg.GetString("bucket"))
	assert.Equal(t, "fallback", cfg.GetStringWithDefault("empty", "fallback"))
	assert.Equal(t, 2222, cfg.GetIntWithDefault("port", 22))
	assert.Equal(t, 22, cfg.GetIntWithDefault("missing", 22))
	assert.Equal(t, int64(1024), cfg.GetInt64("max"))
	assert.True(t, cfg.GetBoolWithDefault("secure", false))
	assert.True(t, cfg.GetBoolWithDefault("missing", true))
	assert.Equal(t, 5*time.Second, cfg.GetDurationWithDefault("timeout", time.Minute))
	assert.Equal(t, 10*time.Second, cfg.GetDurationWithDefault("seconds", time.Minute))
	assert.Equal(t, time.Minute, cfg.GetDurationWithDefault("nonsense", time.Minute))

	cfg.Set("bucket", "otro")
	assert.Equal(t, "otro", cfg.GetString("bucket"))
}
