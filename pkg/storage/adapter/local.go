package adapter

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"formcapture/pkg/imagex/formats"
	"formcapture/pkg/logger"
	"formcapture/pkg/storage/config"
)

// LocalAdapter 本地存储适配器
type LocalAdapter struct {
	basePath    string // 基础存储路径
	maxFileSize int64  // 单文件大小上限
	initialized bool   // 是否已初始化
}

func NewLocalAdapter() StorageAdapter {
	return &LocalAdapter{}
}

func (a *LocalAdapter) GetType() string {
	return "local"
}

// Initialize 初始化适配器
func (a *LocalAdapter) Initialize(configData map[string]interface{}) error {
	cfg := config.NewMapConfig(configData)

	a.basePath = cfg.GetStringWithDefault("base_path", "data/submissions")
	a.maxFileSize = cfg.GetInt64("max_file_size")

	if err := os.MkdirAll(a.basePath, 0755); err != nil {
		return NewStorageError(
			ErrorTypeInternal,
			"failed to create storage directories",
			err,
		)
	}

	a.initialized = true
	return nil
}

// Upload 写入文件
func (a *LocalAdapter) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if !a.initialized {
		return nil, NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}
	if req == nil || strings.TrimSpace(req.FileName) == "" {
		return nil, NewStorageError(ErrorTypeInvalidFormat, "file name is required", nil)
	}
	if a.maxFileSize > 0 && int64(len(req.Data)) > a.maxFileSize {
		return nil, NewStorageError(ErrorTypeQuotaExceeded,
			fmt.Sprintf("file size %d exceeds maximum limit", len(req.Data)), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError(ErrorTypeInternal, "upload cancelled", err)
	}

	rel, err := a.relativePath(req.FolderPath, req.FileName)
	if err != nil {
		return nil, err
	}
	fullPath := filepath.Join(a.basePath, rel)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, NewStorageError(ErrorTypeInternal, "failed to create directory", err)
	}

	size, err := a.saveFile(bytes.NewReader(req.Data), fullPath)
	if err != nil {
		return nil, NewStorageError(ErrorTypeInternal, "failed to save file", err)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = formats.GetContentType(filepath.Ext(req.FileName))
	}

	sum := md5.Sum(req.Data)
	logger.Debug("Local storage: 已写入 %s (%d bytes)", fullPath, size)
	return &UploadResult{
		Path:        filepath.ToSlash(rel),
		Size:        size,
		Hash:        hex.EncodeToString(sum[:]),
		ContentType: contentType,
	}, nil
}

// Delete 删除文件
func (a *LocalAdapter) Delete(ctx context.Context, path string) error {
	if !a.initialized {
		return NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}

	p := strings.TrimSpace(path)
	if p == "" {
		return nil
	}
	rel, err := a.relativePath("", p)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(a.basePath, rel)); err != nil && !os.IsNotExist(err) {
		return NewStorageError(ErrorTypeInternal, "failed to delete file", err)
	}
	return nil
}

// Exists 检查文件是否存在
func (a *LocalAdapter) Exists(ctx context.Context, path string) (bool, error) {
	if !a.initialized {
		return false, NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}

	rel, err := a.relativePath("", path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(a.basePath, rel))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, NewStorageError(
			ErrorTypeInternal,
			"failed to check file existence",
			err,
		)
	}
	return true, nil
}

// ReadFile 读取文件
func (a *LocalAdapter) ReadFile(ctx context.Context, path string) (io.ReadCloser, error) {
	if !a.initialized {
		return nil, NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}

	rel, err := a.relativePath("", path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(a.basePath, rel))
	if os.IsNotExist(err) {
		return nil, NewStorageError(ErrorTypeNotFound, "file not found", err)
	}
	if err != nil {
		return nil, NewStorageError(ErrorTypeInternal, "failed to open file", err)
	}

	return file, nil
}

// HealthCheck 健康检查
func (a *LocalAdapter) HealthCheck(ctx context.Context) error {
	if !a.initialized {
		return NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}

	testFile := filepath.Join(a.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		return NewStorageError(
			ErrorTypePermission,
			"storage directory not writable",
			err,
		)
	}

	os.Remove(testFile)

	return nil
}

func (a *LocalAdapter) GetCapabilities() Capabilities {
	return Capabilities{
		SupportsSignedURL: false,
		MaxFileSize:       a.maxFileSize,
	}
}

// relativePath 拼接目录与文件名，拒绝越出 basePath 的路径
func (a *LocalAdapter) relativePath(folder, name string) (string, error) {
	joined := filepath.Clean(filepath.Join(filepath.FromSlash(folder), filepath.FromSlash(strings.TrimPrefix(name, "/"))))
	if joined == "." || joined == ".." || strings.HasPrefix(joined, ".."+string(filepath.Separator)) || filepath.IsAbs(joined) {
		return "", NewStorageError(ErrorTypePermission, "path escapes storage root", nil)
	}
	return joined, nil
}

// saveFile 保存文件数据
func (a *LocalAdapter) saveFile(data io.Reader, filePath string) (int64, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	size, err := io.Copy(file, data)
	if err != nil {
		os.Remove(filePath) // 清理失败的文件
		return 0, err
	}

	return size, nil
}
