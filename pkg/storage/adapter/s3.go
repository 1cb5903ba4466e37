package adapter

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"formcapture/pkg/imagex/formats"
	"formcapture/pkg/logger"
	"formcapture/pkg/storage/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// URLSigner 支持生成私有访问签名 URL 的适配器
type URLSigner interface {
	SignedURL(ctx context.Context, path string, expires time.Duration) (string, error)
}

// S3Adapter 通用 S3 兼容存储适配器（AWS S3 / MinIO / 其他兼容端点）
type S3Adapter struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	region        string
	endpoint      string // 为空表示使用 AWS 官方端点
	accessKey     string
	secretKey     string
	usePathStyle  bool
	accessControl string // public-read/private（也可留空，使用桶策略）
	storageName   string
	initialized   bool
}

func NewS3Adapter() StorageAdapter   { return &S3Adapter{storageName: "s3"} }
func (a *S3Adapter) GetType() string { return a.storageName }

// Initialize 初始化
func (a *S3Adapter) Initialize(configData map[string]interface{}) error {
	cfg := config.NewMapConfig(configData)
	a.bucket = cfg.GetStringWithDefault("bucket", "")
	a.region = cfg.GetStringWithDefault("region", "us-east-1")
	a.endpoint = cfg.GetStringWithDefault("endpoint", "")
	a.accessKey = cfg.GetStringWithDefault("access_key", "")
	a.secretKey = cfg.GetStringWithDefault("secret_key", "")
	a.usePathStyle = cfg.GetBoolWithDefault("use_path_style", false)
	a.accessControl = cfg.GetString("access_control")

	if err := a.requireCredentials(); err != nil {
		return err
	}

	a.connect()
	return nil
}

func (a *S3Adapter) requireCredentials() error {
	if a.bucket == "" {
		return NewStorageError(ErrorTypeInternal, "bucket is required", nil)
	}
	if a.accessKey == "" {
		return NewStorageError(ErrorTypeInternal, "access_key is required", nil)
	}
	if a.secretKey == "" {
		return NewStorageError(ErrorTypeInternal, "secret_key is required", nil)
	}
	return nil
}

func (a *S3Adapter) connect() {
	awsCfg := aws.Config{
		Region:      a.region,
		Credentials: credentials.NewStaticCredentialsProvider(a.accessKey, a.secretKey, ""),
	}
	if strings.TrimSpace(a.endpoint) != "" {
		ep := a.endpoint
		region := a.region
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(func(service, _ string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: ep, SigningRegion: region, HostnameImmutable: true}, nil
		})
	}

	pathStyle := a.usePathStyle
	a.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) { o.UsePathStyle = pathStyle })
	a.presignClient = s3.NewPresignClient(a.client)
	a.initialized = true
}

// objectKey 目录与文件名拼接为对象键
func objectKey(folder, name string) string {
	return strings.TrimPrefix(path.Join("/", folder, name), "/")
}

// cannedACL access_control 映射为 S3 预设 ACL
func cannedACL(acl string) (types.ObjectCannedACL, bool) {
	switch strings.ToLower(strings.TrimSpace(acl)) {
	case "public-read":
		return types.ObjectCannedACLPublicRead, true
	case "private":
		return types.ObjectCannedACLPrivate, true
	}
	return "", false
}

// Upload 上传
func (a *S3Adapter) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
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

	put := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(req.Data),
		ContentType: aws.String(contentType),
	}
	if acl, ok := cannedACL(a.accessControl); ok {
		put.ACL = acl
	}
	if _, err := a.client.PutObject(ctx, put); err != nil {
		return nil, NewStorageError(ErrorTypeNetwork, fmt.Sprintf("failed to upload to %s", a.storageName), err)
	}
	logger.Debug("[%s] 已上传 %s/%s (%d bytes)", a.storageName, a.bucket, key, len(req.Data))

	return &UploadResult{
		Path:        key,
		Size:        int64(len(req.Data)),
		Hash:        fmt.Sprintf("%x", md5.Sum(req.Data)),
		ContentType: contentType,
	}, nil
}

// Delete 删除
func (a *S3Adapter) Delete(ctx context.Context, path string) error {
	if !a.initialized {
		return NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(path)})
	return err
}

// SignedURL 生成私有访问签名 URL
func (a *S3Adapter) SignedURL(ctx context.Context, path string, expires time.Duration) (string, error) {
	if !a.initialized || a.presignClient == nil {
		return "", NewStorageError(ErrorTypeInternal, "presign client not initialized", nil)
	}
	if expires <= 0 {
		expires = time.Hour
	}
	req, err := a.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(path)}, func(o *s3.PresignOptions) { o.Expires = expires })
	if err != nil {
		return "", NewStorageError(ErrorTypeInternal, "failed to generate presigned URL", err)
	}
	return req.URL, nil
}

// HealthCheck 简单列举
func (a *S3Adapter) HealthCheck(ctx context.Context) error {
	if !a.initialized {
		return NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}
	_, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(a.bucket), MaxKeys: aws.Int32(1)})
	if err != nil {
		return NewStorageError(ErrorTypeNetwork, "bucket not reachable", err)
	}
	return nil
}

// ReadFile 读取对象
func (a *S3Adapter) ReadFile(ctx context.Context, path string) (io.ReadCloser, error) {
	if !a.initialized {
		return nil, NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}
	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(path)})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, NewStorageError(ErrorTypeNotFound, "file not found", err)
		}
		return nil, NewStorageError(ErrorTypeNetwork, "failed to read object", err)
	}
	return resp.Body, nil
}

// Exists 检查对象是否存在
func (a *S3Adapter) Exists(ctx context.Context, path string) (bool, error) {
	if !a.initialized {
		return false, NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(path)})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (a *S3Adapter) GetCapabilities() Capabilities {
	return Capabilities{SupportsSignedURL: true, MaxFileSize: 5 * 1024 * 1024 * 1024}
}
