package formats

import (
	"path/filepath"
	"strings"
)

// Kind 文件分类结果
type Kind string

const (
	KindLegacyContainer Kind = "legacy-container"
	KindDecodableImage  Kind = "decodable-image"
	KindOther           Kind = "other"
)

// 允许上传的栅格格式
var supportedExtensions = []string{"jpg", "jpeg", "png", "gif", "webp", "heic", "heif", "bmp", "tiff", "tif"}

var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"heic": "image/heic",
	"heif": "image/heif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"tif":  "image/tiff",
	"svg":  "image/svg+xml",
}

// Classify 根据文件名与 MIME 判断文件类别，不读取文件内容
func Classify(name, mimeType string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	if ext == ".heic" || ext == ".heif" || mt == "image/heic" || mt == "image/heif" {
		return KindLegacyContainer
	}
	if strings.HasPrefix(mt, "image/") {
		return KindDecodableImage
	}
	return KindOther
}

// GetContentType 按扩展名返回 MIME，未知返回 application/octet-stream
func GetContentType(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// IsSupported 是否为允许的栅格格式
func IsSupported(ext string) bool {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	for _, e := range supportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// SupportedExtensionsWithDot 带点的允许扩展名列表
func SupportedExtensionsWithDot() []string {
	out := make([]string, 0, len(supportedExtensions))
	for _, e := range supportedExtensions {
		out = append(out, "."+e)
	}
	return out
}

// ReplaceExtension 替换最后一个扩展名，没有扩展名时直接追加
func ReplaceExtension(filename, ext string) string {
	base := filepath.Base(filename)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		return filename[:len(filename)-len(base)+i] + ext
	}
	return filename + ext
}

// IsHEICFormat 通过 ftyp 品牌识别 HEIC/HEIF 数据
func IsHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "hevx", "heim", "heis", "mif1", "msf1":
		return true
	}
	return false
}
