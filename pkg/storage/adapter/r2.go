package adapter

import (
	"formcapture/pkg/storage/config"
)

// R2Adapter Cloudflare R2 存储适配器（S3 兼容）
type R2Adapter struct {
	S3Adapter
}

// NewR2Adapter 创建 R2 适配器
func NewR2Adapter() StorageAdapter { return &R2Adapter{S3Adapter{storageName: "r2"}} }

// Initialize 初始化适配器
func (a *R2Adapter) Initialize(configData map[string]interface{}) error {
	cfg := config.NewMapConfig(configData)

	a.bucket = cfg.GetStringWithDefault("bucket", "")
	a.region = cfg.GetStringWithDefault("region", "auto")
	a.endpoint = cfg.GetStringWithDefault("endpoint", "")
	a.accessKey = cfg.GetStringWithDefault("access_key", "")
	a.secretKey = cfg.GetStringWithDefault("secret_key", "")
	// R2 多由桶策略控制，不设置对象 ACL；PathStyle 必须 true
	a.accessControl = ""
	a.usePathStyle = true

	if a.endpoint == "" {
		return NewStorageError(ErrorTypeInternal, "endpoint is required", nil)
	}
	if err := a.requireCredentials(); err != nil {
		return err
	}

	a.connect()
	return nil
}
