package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MapConfig 基于 map 的适配器配置
type MapConfig struct {
	data map[string]interface{}
}

func NewMapConfig(data map[string]interface{}) *MapConfig {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &MapConfig{data: data}
}

func (c *MapConfig) Get(key string) interface{} {
	return c.data[key]
}

func (c *MapConfig) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

func (c *MapConfig) Set(key string, value interface{}) {
	c.data[key] = value
}

func (c *MapConfig) GetString(key string) string {
	v, ok := c.data[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	default:
		return fmt.Sprintf("%v", t)
	}
}

// GetStringWithDefault 值为空时返回默认值
func (c *MapConfig) GetStringWithDefault(key, def string) string {
	if s := c.GetString(key); s != "" {
		return s
	}
	return def
}

func (c *MapConfig) GetInt(key string) int {
	return int(c.GetInt64(key))
}

func (c *MapConfig) GetInt64(key string) int64 {
	switch t := c.data[key].(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n
	}
	return 0
}

func (c *MapConfig) GetFloat64(key string) float64 {
	switch t := c.data[key].(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	}
	return 0
}

func (c *MapConfig) GetBool(key string) bool {
	return c.GetBoolWithDefault(key, false)
}

// GetBoolWithDefault 兼容 bool 与 "true"/"1" 等字符串
func (c *MapConfig) GetBoolWithDefault(key string, def bool) bool {
	v, ok := c.data[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if strings.TrimSpace(t) == "" {
			return def
		}
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return b
	case int:
		return t != 0
	}
	return def
}

// GetIntWithDefault 值缺失或为 0 时返回默认值
func (c *MapConfig) GetIntWithDefault(key string, def int) int {
	if n := c.GetInt(key); n != 0 {
		return n
	}
	return def
}

// GetDurationWithDefault 支持 "30s" 字符串或秒数
func (c *MapConfig) GetDurationWithDefault(key string, def time.Duration) time.Duration {
	switch t := c.data[key].(type) {
	case time.Duration:
		return t
	case string:
		if d, err := time.ParseDuration(strings.TrimSpace(t)); err == nil {
			return d
		}
	case int, int64, float64:
		if n := c.GetInt64(key); n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
