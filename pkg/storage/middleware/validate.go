package middleware

import (
	"fmt"
	"path/filepath"
	"strings"

	"formcapture/pkg/imagex"
	"formcapture/pkg/imagex/formats"
)

// 校验失败代码
const (
	CodeTooLarge         = "FILE_TOO_LARGE"
	CodeEmpty            = "FILE_EMPTY"
	CodeInvalidName      = "INVALID_NAME"
	CodeFormatNotAllowed = "FORMAT_NOT_ALLOWED"
	CodeHeaderMismatch   = "HEADER_MISMATCH"
)

// ValidationOptions 验证选项
type ValidationOptions struct {
	MaxFileSize int64 // 单个文件最大大小
	AllowEmpty  bool  // 是否允许空文件

	// 图片类文件允许的格式（为空表示不限制），非图片附件不受此限制
	AllowedFormats []string

	MaxNameLength int // 文件名最大长度

	CheckFileHeader bool // 是否检查文件头
}

// ValidationResult 验证结果
type ValidationResult struct {
	Valid        bool               // 是否验证通过
	ValidFiles   []*imagex.File     // 有效文件
	InvalidFiles []*ValidationError // 无效文件及错误信息
	TotalSize    int64              // 有效文件总大小
	FileCount    int                // 有效文件数量
}

// ValidationError 验证错误
type ValidationError struct {
	File    *imagex.File // 文件
	Code    string       // 错误代码
	Message string       // 错误信息
}

func (e *ValidationError) Error() string {
	return e.Message
}

// FileValidator 文件验证器
type FileValidator struct {
	defaultOptions ValidationOptions
}

func NewFileValidator(defaultOptions ValidationOptions) *FileValidator {
	return &FileValidator{
		defaultOptions: defaultOptions,
	}
}

// ValidateFiles 验证文件列表，options 为空时使用默认选项
func (v *FileValidator) ValidateFiles(files []*imagex.File, options *ValidationOptions) *ValidationResult {
	opts := v.mergeOptions(options)

	result := &ValidationResult{
		Valid:        true,
		ValidFiles:   make([]*imagex.File, 0, len(files)),
		InvalidFiles: make([]*ValidationError, 0),
	}

	for _, file := range files {
		if verr := v.validateSingleFile(file, opts); verr != nil {
			result.InvalidFiles = append(result.InvalidFiles, verr)
			result.Valid = false
			continue
		}
		result.TotalSize += file.Size()
		result.ValidFiles = append(result.ValidFiles, file)
	}

	result.FileCount = len(result.ValidFiles)
	return result
}

func (v *FileValidator) validateSingleFile(file *imagex.File, options ValidationOptions) *ValidationError {
	fail := func(code, format string, args ...interface{}) *ValidationError {
		return &ValidationError{File: file, Code: code, Message: fmt.Sprintf(format, args...)}
	}

	if file == nil {
		return fail(CodeEmpty, "文件为空")
	}
	// 大小先于文件名检查，空文件名的超限文件仍按超限报告
	if options.MaxFileSize > 0 && file.Size() > options.MaxFileSize {
		return fail(CodeTooLarge, "文件大小超过限制: %s > %s",
			imagex.FormatFileSize(file.Size()), imagex.FormatFileSize(options.MaxFileSize))
	}
	if file.Size() == 0 && !options.AllowEmpty {
		return fail(CodeEmpty, "文件为空: %s", file.Name)
	}
	if strings.TrimSpace(file.Name) == "" {
		return fail(CodeInvalidName, "文件名为空")
	}

	if err := v.validateFileName(file.Name, options); err != nil {
		return fail(CodeInvalidName, "文件名验证失败: %v", err)
	}
	if err := v.validateFileFormat(file, options); err != nil {
		return fail(CodeFormatNotAllowed, "文件格式验证失败: %v", err)
	}
	if options.CheckFileHeader && file.Size() > 0 {
		if err := validateFileHeader(file.Data, strings.ToLower(filepath.Ext(file.Name)), file.Name); err != nil {
			return fail(CodeHeaderMismatch, "文件头验证失败: %v", err)
		}
	}
	return nil
}

// validateFileName 验证文件名
func (v *FileValidator) validateFileName(filename string, options ValidationOptions) error {
	if options.MaxNameLength > 0 && len(filename) > options.MaxNameLength {
		return fmt.Errorf("文件名过长: %d > %d", len(filename), options.MaxNameLength)
	}
	if strings.ContainsRune(filename, 0) {
		return fmt.Errorf("文件名包含非法字符")
	}
	return nil
}

// validateFileFormat 图片类文件的扩展名必须在允许列表中
func (v *FileValidator) validateFileFormat(file *imagex.File, options ValidationOptions) error {
	if len(options.AllowedFormats) == 0 || formats.Classify(file.Name, file.MimeType) == formats.KindOther {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(file.Name))
	for _, format := range options.AllowedFormats {
		if strings.ToLower(format) == ext {
			return nil
		}
	}
	if ext == "" {
		ext = file.MimeType
	}
	return fmt.Errorf("图片格式不被支持: %s", ext)
}

// validateFileHeader 按扩展名检查文件头，未知扩展名不检查
func validateFileHeader(header []byte, ext, filename string) error {
	n := len(header)
	switch ext {
	case ".jpg", ".jpeg":
		if n < 3 || header[0] != 0xFF || header[1] != 0xD8 || header[2] != 0xFF {
			return fmt.Errorf("无效的JPEG文件，文件头不匹配: %s", filename)
		}

	case ".png":
		pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
		if n < len(pngHeader) {
			return fmt.Errorf("文件头长度不足，无法验证PNG格式: %s", filename)
		}
		for i, expectedByte := range pngHeader {
			if header[i] != expectedByte {
				return fmt.Errorf("无效的PNG文件，文件头不匹配: %s", filename)
			}
		}

	case ".gif":
		if n < 6 || (string(header[:6]) != "GIF87a" && string(header[:6]) != "GIF89a") {
			return fmt.Errorf("无效的GIF文件，文件头不匹配: %s", filename)
		}

	case ".bmp":
		if n < 2 || header[0] != 0x42 || header[1] != 0x4D {
			return fmt.Errorf("无效的BMP文件，文件头不匹配: %s", filename)
		}

	case ".webp":
		if n < 12 || string(header[:4]) != "RIFF" || string(header[8:12]) != "WEBP" {
			return fmt.Errorf("无效的WebP文件，文件头不匹配: %s", filename)
		}

	case ".tiff", ".tif":
		if n < 4 || !(string(header[:4]) == "II*\x00" || string(header[:4]) == "MM\x00*") {
			return fmt.Errorf("无效的TIFF文件，文件头不匹配: %s", filename)
		}

	case ".heic", ".heif":
		if !formats.IsHEICFormat(header) {
			return fmt.Errorf("无效的HEIC文件，文件头不匹配: %s", filename)
		}
	}
	return nil
}

func (v *FileValidator) mergeOptions(options *ValidationOptions) ValidationOptions {
	if options == nil {
		return v.defaultOptions
	}
	merged := *options
	if merged.MaxNameLength == 0 {
		merged.MaxNameLength = v.defaultOptions.MaxNameLength
	}
	return merged
}

// SanitizeFileName 清理客户端提供的文件名
func (v *FileValidator) SanitizeFileName(filename string) string {
	// 去掉客户端路径部分
	filename = filename[strings.LastIndexAny(filename, `/\`)+1:]

	replacer := strings.NewReplacer(
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		"\x00", "",
	)
	result := strings.Trim(replacer.Replace(filename), ". ")

	if len(result) > 255 {
		ext := filepath.Ext(result)
		name := strings.TrimSuffix(result, ext)
		if maxNameLen := 255 - len(ext); maxNameLen > 0 {
			result = name[:maxNameLen] + ext
		}
	}
	if result == "" {
		result = "file"
	}
	return result
}
