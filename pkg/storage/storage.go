package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"formcapture/pkg/imagex"
	"formcapture/pkg/logger"
	"formcapture/pkg/storage/adapter"

	"github.com/google/uuid"
)

const manifestName = "manifest.json"

// Storage 表单提交的交付入口
// 把一次提交的附件、签名与字段值写入底层适配器
type Storage struct {
	adapter   adapter.StorageAdapter
	prefix    string
	signedTTL time.Duration
	now       func() time.Time
}

// New 创建存储服务
func New(a adapter.StorageAdapter, prefix string) *Storage {
	return &Storage{
		adapter:   a,
		prefix:    strings.Trim(prefix, "/"),
		signedTTL: 24 * time.Hour,
		now:       time.Now,
	}
}

// NewFromConfig 按类型创建适配器并包装为存储服务
func NewFromConfig(storageType string, cfg map[string]interface{}, prefix string) (*Storage, error) {
	a, err := NewAdapter(storageType, cfg)
	if err != nil {
		return nil, err
	}
	return New(a, prefix), nil
}

// Signer 签名人信息
type Signer struct {
	Name     string `json:"name,omitempty"`
	Document string `json:"document,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Company  string `json:"company,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Package 一次表单提交的全部内容
type Package struct {
	FormID     string
	SessionID  string
	Values     map[string]string
	Files      map[string][]*imagex.File // 字段 -> 附件（按选择顺序）
	Signatures map[string]string         // 字段 -> PNG data URL
	Signers    map[string]Signer
}

// StoredObject 已写入的对象
type StoredObject struct {
	Field        string  `json:"field"`
	Path         string  `json:"path"`
	OriginalName string  `json:"original_name,omitempty"`
	Size         int64   `json:"size"`
	Hash         string  `json:"hash"`
	ContentType  string  `json:"content_type"`
	Signer       *Signer `json:"signer,omitempty"`
}

// Manifest 提交清单
type Manifest struct {
	ID          string            `json:"id"`
	FormID      string            `json:"form_id"`
	SessionID   string            `json:"session_id,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
	Values      map[string]string `json:"values"`
	Files       []StoredObject    `json:"files"`
	Signatures  []StoredObject    `json:"signatures"`
}

// Receipt 交付回执
type Receipt struct {
	ID           string    `json:"id"`
	Folder       string    `json:"folder"`
	ManifestPath string    `json:"manifest_path"`
	ManifestURL  string    `json:"manifest_url,omitempty"`
	Objects      int       `json:"objects"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Deliver 写入一次提交：附件、签名 PNG、manifest.json
// 任一写入失败时尽力删除已写入的对象
func (s *Storage) Deliver(ctx context.Context, pkg *Package) (*Receipt, error) {
	if pkg == nil || strings.TrimSpace(pkg.FormID) == "" {
		return nil, adapter.NewStorageError(adapter.ErrorTypeInvalidFormat, "form id is required", nil)
	}

	id := uuid.NewString()
	folder := path.Join(s.prefix, pkg.FormID, id)
	manifest := &Manifest{
		ID:          id,
		FormID:      pkg.FormID,
		SessionID:   pkg.SessionID,
		SubmittedAt: s.now().UTC(),
		Values:      pkg.Values,
		Files:       []StoredObject{},
		Signatures:  []StoredObject{},
	}
	if manifest.Values == nil {
		manifest.Values = map[string]string{}
	}

	var written []string
	rollback := func() {
		for _, p := range written {
			if err := s.adapter.Delete(context.Background(), p); err != nil {
				logger.Warn("回滚删除 %s 失败: %v", p, err)
			}
		}
	}

	upload := func(name, contentType string, data []byte) (*adapter.UploadResult, error) {
		res, err := s.adapter.Upload(ctx, &adapter.UploadRequest{
			Data:        data,
			FolderPath:  folder,
			FileName:    name,
			ContentType: contentType,
		})
		if err != nil {
			return nil, fmt.Errorf("写入 %s 失败: %w", name, err)
		}
		written = append(written, res.Path)
		return res, nil
	}

	for _, field := range sortedKeys(pkg.Files) {
		for n, f := range pkg.Files[field] {
			name := fmt.Sprintf("%s_%d%s", field, n+1, fileExt(f))
			res, err := upload(name, f.MimeType, f.Data)
			if err != nil {
				rollback()
				return nil, err
			}
			manifest.Files = append(manifest.Files, StoredObject{
				Field:        field,
				Path:         res.Path,
				OriginalName: f.Name,
				Size:         res.Size,
				Hash:         res.Hash,
				ContentType:  res.ContentType,
			})
		}
	}

	for _, field := range sortedKeys(pkg.Signatures) {
		value := pkg.Signatures[field]
		if value == "" {
			continue
		}
		data, contentType, err := DecodeDataURL(value)
		if err != nil {
			rollback()
			return nil, adapter.NewStorageError(adapter.ErrorTypeInvalidFormat, "invalid signature payload for "+field, err)
		}
		res, err := upload(field+"_signature.png", contentType, data)
		if err != nil {
			rollback()
			return nil, err
		}
		obj := StoredObject{
			Field:       field,
			Path:        res.Path,
			Size:        res.Size,
			Hash:        res.Hash,
			ContentType: res.ContentType,
		}
		if signer, ok := pkg.Signers[field]; ok {
			signer := signer
			obj.Signer = &signer
		}
		manifest.Signatures = append(manifest.Signatures, obj)
	}

	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		rollback()
		return nil, fmt.Errorf("生成提交清单失败: %w", err)
	}
	res, err := upload(manifestName, "application/json", body)
	if err != nil {
		rollback()
		return nil, err
	}

	receipt := &Receipt{
		ID:           id,
		Folder:       folder,
		ManifestPath: res.Path,
		Objects:      len(written),
		SubmittedAt:  manifest.SubmittedAt,
	}
	if signer, ok := s.adapter.(adapter.URLSigner); ok {
		if u, err := signer.SignedURL(ctx, res.Path, s.signedTTL); err == nil {
			receipt.ManifestURL = u
		} else {
			logger.Warn("生成清单签名 URL 失败: %v", err)
		}
	}

	logger.Info("表单 %s 已交付: %s (%d 个对象)", pkg.FormID, folder, receipt.Objects)
	return receipt, nil
}

// ReadManifest 读取已交付的清单
func (s *Storage) ReadManifest(ctx context.Context, manifestPath string) (*Manifest, error) {
	rc, err := s.adapter.ReadFile(ctx, manifestPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("读取提交清单失败: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("解析提交清单失败: %w", err)
	}
	return &m, nil
}

// HealthCheck 健康检查
func (s *Storage) HealthCheck(ctx context.Context) error {
	return s.adapter.HealthCheck(ctx)
}

// Type 底层存储类型
func (s *Storage) Type() string {
	return s.adapter.GetType()
}

// DecodeDataURL 解析 base64 data URL
func DecodeDataURL(value string) ([]byte, string, error) {
	if !strings.HasPrefix(value, "data:") {
		return nil, "", fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(value, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data url")
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("data url is not base64 encoded")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

// fileExt 取原文件扩展名，缺失时按 MIME 推断
func fileExt(f *imagex.File) string {
	if ext := strings.ToLower(filepath.Ext(f.Name)); ext != "" {
		return ext
	}
	switch strings.ToLower(f.MimeType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "application/pdf":
		return ".pdf"
	}
	return ".bin"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
