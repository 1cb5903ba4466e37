package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Capture    CaptureConfig    `yaml:"capture" mapstructure:"capture"`
	Submission SubmissionConfig `yaml:"submission" mapstructure:"submission"`
	Signature  SignatureConfig  `yaml:"signature" mapstructure:"signature"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Forms      FormsConfig      `yaml:"forms" mapstructure:"forms"`
}

// ServerConfig HTTP 服务
type ServerConfig struct {
	Port int    `yaml:"port" mapstructure:"port"`
	Mode string `yaml:"mode" mapstructure:"mode"` // debug/release/test
}

// LogConfig 日志
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CaptureConfig 采集管线（转换 + 压缩）
type CaptureConfig struct {
	TargetBytes       int64         `yaml:"target_bytes" mapstructure:"target_bytes"`
	InitialMaxEdge    int           `yaml:"initial_max_edge" mapstructure:"initial_max_edge"`
	AggressiveMaxEdge int           `yaml:"aggressive_max_edge" mapstructure:"aggressive_max_edge"`
	ConvertQuality    float64       `yaml:"convert_quality" mapstructure:"convert_quality"`
	CapabilityWait    time.Duration `yaml:"capability_wait" mapstructure:"capability_wait"`
	ConvertTimeout    time.Duration `yaml:"convert_timeout" mapstructure:"convert_timeout"`
	HeifConvertPath   string        `yaml:"heif_convert_path" mapstructure:"heif_convert_path"` // 备用解码源（外部命令）
	MaxUploadBytes    int64         `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// SubmissionConfig 提交校验
type SubmissionConfig struct {
	// 提交时附件的大小上限，不得小于 capture.target_bytes；
	// 压缩兜底结果与回退原文件可能超出压缩目标，由下游继续处理
	MaxAttachmentBytes int64 `yaml:"max_attachment_bytes" mapstructure:"max_attachment_bytes"`
}

// SignatureConfig 签名画布
type SignatureConfig struct {
	Width       int     `yaml:"width" mapstructure:"width"`
	Height      int     `yaml:"height" mapstructure:"height"`
	StrokeWidth float64 `yaml:"stroke_width" mapstructure:"stroke_width"`
}

// SessionConfig 表单会话
type SessionConfig struct {
	IdleTTL   time.Duration `yaml:"idle_ttl" mapstructure:"idle_ttl"`
	SweepSpec string        `yaml:"sweep_spec" mapstructure:"sweep_spec"`
}

// StorageConfig 提交后的交付存储
type StorageConfig struct {
	Type         string `yaml:"type" mapstructure:"type"` // local/s3/r2
	BasePath     string `yaml:"base_path" mapstructure:"base_path"`
	Bucket       string `yaml:"bucket" mapstructure:"bucket"`
	Region       string `yaml:"region" mapstructure:"region"`
	Endpoint     string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey    string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey    string `yaml:"secret_key" mapstructure:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style" mapstructure:"use_path_style"`
	Prefix       string `yaml:"prefix" mapstructure:"prefix"`

	// 适配器专用参数（如 sftp 的 host/username、access_control）
	Options map[string]interface{} `yaml:"options" mapstructure:"options"`
}

// FormsConfig 表单定义
type FormsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// AsMap 适配器初始化参数
func (s StorageConfig) AsMap() map[string]interface{} {
	m := map[string]interface{}{
		"base_path":      s.BasePath,
		"bucket":         s.Bucket,
		"region":         s.Region,
		"endpoint":       s.Endpoint,
		"access_key":     s.AccessKey,
		"secret_key":     s.SecretKey,
		"use_path_style": s.UsePathStyle,
	}
	for k, v := range s.Options {
		m[k] = v
	}
	return m
}

// SetDefaults 写入默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("capture.target_bytes", 500*1024)
	v.SetDefault("capture.initial_max_edge", 2000)
	v.SetDefault("capture.aggressive_max_edge", 1200)
	v.SetDefault("capture.convert_quality", 0.92)
	v.SetDefault("capture.capability_wait", "20s")
	v.SetDefault("capture.convert_timeout", "30s")
	v.SetDefault("capture.heif_convert_path", "")
	v.SetDefault("capture.max_upload_bytes", 10*1024*1024)
	v.SetDefault("submission.max_attachment_bytes", 10*1024*1024)
	v.SetDefault("signature.width", 600)
	v.SetDefault("signature.height", 200)
	v.SetDefault("signature.stroke_width", 2.0)
	v.SetDefault("session.idle_ttl", "2h")
	v.SetDefault("session.sweep_spec", "@every 5m")
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.base_path", "uploads/forms")
	v.SetDefault("storage.region", "auto")
	v.SetDefault("forms.dir", "configs/forms")
}

// Load 读取配置文件与环境变量；path 为空时按默认位置查找 config.yaml
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("FORMCAPTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !eris.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read config file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Capture.TargetBytes <= 0 {
		return eris.New("config: capture.target_bytes must be positive")
	}
	if c.Capture.AggressiveMaxEdge <= 0 || c.Capture.InitialMaxEdge <= 0 {
		return eris.New("config: capture max edges must be positive")
	}
	if c.Capture.AggressiveMaxEdge > c.Capture.InitialMaxEdge {
		return eris.New("config: capture.aggressive_max_edge must not exceed capture.initial_max_edge")
	}
	if c.Capture.ConvertQuality <= 0 || c.Capture.ConvertQuality > 1 {
		return eris.New("config: capture.convert_quality must be in (0,1]")
	}
	if c.Submission.MaxAttachmentBytes > 0 && c.Submission.MaxAttachmentBytes < c.Capture.TargetBytes {
		return eris.New("config: submission.max_attachment_bytes must not be below capture.target_bytes")
	}
	if c.Signature.Width <= 0 || c.Signature.Height <= 0 {
		return eris.New("config: signature raster size must be positive")
	}
	return nil
}
