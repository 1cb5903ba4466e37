package adapter

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"formcapture/pkg/imagex/formats"
	"formcapture/pkg/storage/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOAdapter MinIO/S3 兼容存储适配器（使用 minio-go SDK）
// 相比 S3Adapter，对某些非标准 S3 兼容存储有更好的兼容性
type MinIOAdapter struct {
	client      *minio.Client
	bucket      string
	region      string
	endpoint    string // 完整端点，如 https://fs.example.com
	accessKey   string
	secretKey   string
	initialized bool
}

func NewMinIOAdapter() StorageAdapter   { return &MinIOAdapter{} }
func (a *MinIOAdapter) GetType() string { return "minio" }

// Initialize 初始化适配器
func (a *MinIOAdapter) Initialize(configData map[string]interface{}) error {
	cfg := config.NewMapConfig(configData)
	a.bucket = cfg.GetStringWithDefault("bucket", "")
	a.region = cfg.GetStringWithDefault("region", "us-east-1")
	a.endpoint = cfg.GetStringWithDefault("endpoint", "")
	a.accessKey = cfg.GetStringWithDefault("access_key", "")
	a.secretKey = cfg.GetStringWithDefault("secret_key", "")

	if a.bucket == "" {
		return NewStorageError(ErrorTypeInternal, "bucket is required", nil)
	}
	if a.endpoint == "" {
		return NewStorageError(ErrorTypeInternal, "endpoint is required for MinIO adapter", nil)
	}
	if a.accessKey == "" || a.secretKey == "" {
		return NewStorageError(ErrorTypeInternal, "access_key/secret_key is required", nil)
	}

	// minio.New 需要不带 scheme 的 host
	host, secure := a.endpoint, true
	if u, err := url.Parse(a.endpoint); err == nil && u.Host != "" {
		host = u.Host
		secure = u.Scheme != "http"
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(a.accessKey, a.secretKey, ""),
		Secure: secure,
		Region: a.region,
	})
	if err != nil {
		return NewStorageError(ErrorTypeInternal, "failed to create MinIO client", err)
	}
	a.client = client
	a.initialized = true
	return nil
}

// Upload 上传
func (a *MinIOAdapter) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if !a.initialized {
		return nil, NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}
	if req == nil || strings.TrimSpace(req.FileName) == "" {
		return nil, NewStorageError(ErrorTypeInvalidFormat, "file name is required", nil)
	}

	key := objectKey(req.FolderPath, req.FileName)
	contentType := req.ContentType
	if contentType == "" {
		contentType = formats.GetContentType(path.Ext(req.FileName))
	}

	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(req.Data), int64(len(req.Data)), opts); err != nil {
		return nil, NewStorageError(ErrorTypeNetwork, "failed to upload to MinIO", err)
	}

	return &UploadResult{
		Path:        key,
		Size:        int64(len(req.Data)),
		Hash:        fmt.Sprintf("%x", md5.Sum(req.Data)),
		ContentType: contentType,
	}, nil
}

// Delete 删除
func (a *MinIOAdapter) Delete(ctx context.Context, path string) error {
	if !a.initialized {
		return NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}
	return a.client.RemoveObject(ctx, a.bucket, path, minio.RemoveObjectOptions{})
}

// SignedURL 生成预签名 URL
func (a *MinIOAdapter) SignedURL(ctx context.Context, path string, expires time.Duration) (string, error) {
	if !a.initialized {
		return "", NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}
	if expires <= 0 {
		expires = time.Hour
	}
	u, err := a.client.PresignedGetObject(ctx, a.bucket, path, expires, url.Values{})
	if err != nil {
		return "", NewStorageError(ErrorTypeInternal, "failed to generate presigned URL", err)
	}
	return u.String(), nil
}

// HealthCheck 检查桶是否存在
func (a *MinIOAdapter) HealthCheck(ctx context.Context) error {
	if !a.initialized {
		return NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return NewStorageError(ErrorTypeNetwork, "bucket not reachable", err)
	}
	if !exists {
		return NewStorageError(ErrorTypeNotFound, "bucket does not exist", nil)
	}
	return nil
}

// ReadFile 读取对象
func (a *MinIOAdapter) ReadFile(ctx context.Context, path string) (io.ReadCloser, error) {
	if !a.initialized {
		return nil, NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}
	obj, err := a.client.GetObject(ctx, a.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, NewStorageError(ErrorTypeNetwork, "failed to read object", err)
	}
	return obj, nil
}

// Exists 检查对象是否存在
func (a *MinIOAdapter) Exists(ctx context.Context, path string) (bool, error) {
	if !a.initialized {
		return false, NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}
	_, err := a.client.StatObject(ctx, a.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, NewStorageError(ErrorTypeNetwork, "failed to stat object", err)
	}
	return true, nil
}

func (a *MinIOAdapter) GetCapabilities() Capabilities {
	return Capabilities{SupportsSignedURL: true, MaxFileSize: 5 * 1024 * 1024 * 1024}
}
