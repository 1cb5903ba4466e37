package imagex

import (
	"errors"
	"fmt"
	"time"
)

// File 内存中的待处理文件
type File struct {
	Name     string
	MimeType string
	Data     []byte
	ModTime  time.Time
	Width    int // 未知时为 0
	Height   int
}

// Size 字节大小
func (f *File) Size() int64 {
	if f == nil {
		return 0
	}
	return int64(len(f.Data))
}

// Clone 深拷贝，保证原文件不被后续处理修改
func (f *File) Clone() *File {
	if f == nil {
		return nil
	}
	c := *f
	c.Data = append([]byte(nil), f.Data...)
	return &c
}

// ErrorType 处理错误类型
type ErrorType string

const (
	ErrorTypeCapabilityUnavailable ErrorType = "capability_unavailable"
	ErrorTypeConversionFailed      ErrorType = "conversion_failed"
	ErrorTypeDecodeFailed          ErrorType = "decode_failed"
	ErrorTypeEncodeFailed          ErrorType = "encode_failed"
	ErrorTypePreconditionViolation ErrorType = "precondition_violation"
)

// ProcessError 单文件处理错误
type ProcessError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ProcessError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}

func NewProcessError(errType ErrorType, message string, cause error) *ProcessError {
	return &ProcessError{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// IsType 检查错误链中是否存在指定类型的处理错误
func IsType(err error, t ErrorType) bool {
	var pe *ProcessError
	if errors.As(err, &pe) {
		return pe.Type == t
	}
	return false
}

// IsFallbackEligible 可回退为原文件直传的错误（接线错误不在此列）
func IsFallbackEligible(err error) bool {
	var pe *ProcessError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Type {
	case ErrorTypeCapabilityUnavailable, ErrorTypeConversionFailed,
		ErrorTypeDecodeFailed, ErrorTypeEncodeFailed:
		return true
	}
	return false
}

// FormatFileSize 人类可读的文件大小
func FormatFileSize(size int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case size < KB:
		return fmt.Sprintf("%d B", size)
	case size < MB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	case size < GB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	default:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	}
}
