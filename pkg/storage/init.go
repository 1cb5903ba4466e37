package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"formcapture/pkg/storage/adapter"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]adapter.AdapterFactory{}
)

// init 包初始化函数，自动注册内置适配器
func init() {
	RegisterAdapter("local", adapter.NewLocalAdapter)

	// 注册 通用 S3 适配器（AWS S3 / 兼容 S3）
	RegisterAdapter("s3", adapter.NewS3Adapter)

	// 注册 Cloudflare R2 存储适配器
	RegisterAdapter("r2", adapter.NewR2Adapter)

	// 注册 MinIO 适配器（使用 minio-go SDK）
	RegisterAdapter("minio", adapter.NewMinIOAdapter)

	// 注册 SFTP 存储适配器
	RegisterAdapter("sftp", adapter.NewSFTPAdapter)

	// 注册常见 S3 兼容厂商（作为 S3 适配器别名）
	RegisterAdapter("obs", adapter.NewS3Adapter)    // 华为云 OBS
	RegisterAdapter("wasabi", adapter.NewS3Adapter) // Wasabi
	RegisterAdapter("spaces", adapter.NewS3Adapter) // DigitalOcean Spaces
	RegisterAdapter("b2", adapter.NewS3Adapter)     // Backblaze B2 S3
}

// RegisterAdapter 注册适配器工厂，同名覆盖
func RegisterAdapter(name string, factory adapter.AdapterFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = factory
}

// RegisteredTypes 已注册的存储类型
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewAdapter 按类型创建并初始化适配器
func NewAdapter(storageType string, cfg map[string]interface{}) (adapter.StorageAdapter, error) {
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(strings.TrimSpace(storageType))]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("不支持的存储类型: %s", storageType)
	}

	a := factory()
	if err := a.Initialize(cfg); err != nil {
		return nil, fmt.Errorf("初始化 %s 存储失败: %w", storageType, err)
	}
	return a, nil
}
