package adapter

import (
	"context"
	"errors"
	"io"
)

// StorageAdapter 存储适配器接口
// 表单提交后的文件、签名与清单都经由适配器交付
type StorageAdapter interface {
	Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	ReadFile(ctx context.Context, path string) (io.ReadCloser, error)

	Initialize(config map[string]interface{}) error
	HealthCheck(ctx context.Context) error
	GetType() string
	GetCapabilities() Capabilities
}

// UploadRequest 上传请求
type UploadRequest struct {
	Data        []byte // 文件内容
	FolderPath  string // 对象目录
	FileName    string // 文件名
	ContentType string // 内容类型
}

// UploadResult 上传结果
type UploadResult struct {
	Path        string // 对象键或本地路径
	URL         string // 访问 URL（可能为空）
	Size        int64
	Hash        string // md5
	ContentType string
}

// Capabilities 存储能力
type Capabilities struct {
	SupportsSignedURL bool
	MaxFileSize       int64 // 0 表示不限制
}

// Config 配置接口
type Config interface {
	Get(key string) interface{}
	GetString(key string) string
	GetInt(key string) int
	GetInt64(key string) int64
	GetBool(key string) bool
	GetFloat64(key string) float64
	Set(key string, value interface{})
	Has(key string) bool
}

// AdapterFactory 适配器工厂函数
type AdapterFactory func() StorageAdapter

// ErrorType 错误类型
type ErrorType string

const (
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypePermission    ErrorType = "permission"
	ErrorTypeQuotaExceeded ErrorType = "quota_exceeded"
	ErrorTypeInvalidFormat ErrorType = "invalid_format"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeInternal      ErrorType = "internal"
)

// StorageError 存储错误
type StorageError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

func NewStorageError(errType ErrorType, message string, cause error) *StorageError {
	return &StorageError{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

func isType(err error, t ErrorType) bool {
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr.Type == t
	}
	return false
}

// IsNotFoundError 检查是否为文件不存在错误
func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsPermissionError 检查是否为权限错误
func IsPermissionError(err error) bool {
	return isType(err, ErrorTypePermission)
}

// IsQuotaExceededError 检查是否为配额超限错误
func IsQuotaExceededError(err error) bool {
	return isType(err, ErrorTypeQuotaExceeded)
}
