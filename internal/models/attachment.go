package models

import (
	"time"

	"formcapture/pkg/imagex"
)

// CaptureMode 文件输入的采集方式
type CaptureMode string

const (
	CaptureCameraSingle CaptureMode = "camera-single"
	CaptureGalleryMulti CaptureMode = "gallery-multi"
)

// Valid 是否为已知采集方式
func (m CaptureMode) Valid() bool {
	return m == CaptureCameraSingle || m == CaptureGalleryMulti
}

// Attachment 字段中待提交的附件
type Attachment struct {
	Name       string      `json:"name"`
	MimeType   string      `json:"mime_type"`
	ByteSize   int64       `json:"byte_size"`
	SourceKind CaptureMode `json:"source_kind"`
	Width      int         `json:"width,omitempty"`
	Height     int         `json:"height,omitempty"`
	ModTime    time.Time   `json:"mod_time"`
	Data       []byte      `json:"-"`
}

// DedupKey 去重键（名称 + 字节数）
type DedupKey struct {
	Name     string
	ByteSize int64
}

func (a *Attachment) Key() DedupKey {
	return DedupKey{Name: a.Name, ByteSize: a.ByteSize}
}

/* NewAttachment 由处理后的文件生成附件 */
func NewAttachment(f *imagex.File, mode CaptureMode) *Attachment {
	return &Attachment{
		Name:       f.Name,
		MimeType:   f.MimeType,
		ByteSize:   f.Size(),
		SourceKind: mode,
		Width:      f.Width,
		Height:     f.Height,
		ModTime:    f.ModTime,
		Data:       f.Data,
	}
}

// File 转回内存文件
func (a *Attachment) File() *imagex.File {
	return &imagex.File{
		Name:     a.Name,
		MimeType: a.MimeType,
		Data:     a.Data,
		ModTime:  a.ModTime,
		Width:    a.Width,
		Height:   a.Height,
	}
}
