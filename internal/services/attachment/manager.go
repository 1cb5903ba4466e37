package attachment

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"

	"formcapture/internal/models"
	"formcapture/pkg/errors"
	"formcapture/pkg/imagex"
	"formcapture/pkg/imagex/compress"
	"formcapture/pkg/imagex/formats"
	"formcapture/pkg/logger"

	"github.com/disintegration/imaging"
)

const (
	thumbEdge    = 160
	thumbQuality = 70
)

// Manager 附件集合管理器，所有对 Store 的修改都经由此处
type Manager struct {
	store *Store

	// 提交期间独占，集合修改需等待提交结束
	submit     sync.RWMutex
	submitting atomic.Bool
}

func NewManager(store *Store) *Manager {
	return &Manager{store: store}
}

// Store 底层存储
func (m *Manager) Store() *Store {
	return m.store
}

// BeginSubmit 独占附件集合直到调用 release；已有提交进行中时返回错误
func (m *Manager) BeginSubmit() (release func(), err error) {
	if !m.submitting.CompareAndSwap(false, true) {
		return nil, errors.New(errors.CodeSubmitInProgress, "表单正在提交")
	}
	m.submit.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.submit.Unlock()
			m.submitting.Store(false)
		})
	}, nil
}

// OnFilesSelected 合并新选择的文件并刷新预览与输入控件
// camera-single 只保留最后一个新文件；gallery-multi 按名称+大小去重追加
func (m *Manager) OnFilesSelected(fieldID string, files []*models.Attachment, mode models.CaptureMode) ([]Preview, error) {
	if !mode.Valid() {
		return nil, errors.New(errors.CodeInvalidParameter, "未知的采集方式: "+string(mode))
	}

	incoming := files
	if mode == models.CaptureCameraSingle && len(files) > 0 {
		incoming = files[len(files)-1:]
	}
	// 缩略图在加锁前生成
	thumbs := make(map[models.DedupKey]string, len(incoming))
	for _, f := range incoming {
		if _, ok := thumbs[f.Key()]; !ok {
			thumbs[f.Key()] = thumbnail(f)
		}
	}

	m.submit.RLock()
	defer m.submit.RUnlock()
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	st, ok := m.store.get(fieldID)
	if !ok {
		return nil, errors.New(errors.CodeFieldNotFound, "文件字段不存在: "+fieldID)
	}
	for k, v := range thumbs {
		if _, ok := st.thumbs[k]; !ok {
			st.thumbs[k] = v
		}
	}

	switch mode {
	case models.CaptureCameraSingle:
		if len(files) == 0 {
			return clonePreviews(st.Previews), nil
		}
		st.Attachments = []*models.Attachment{files[len(files)-1]}
	case models.CaptureGalleryMulti:
		seen := make(map[models.DedupKey]bool, len(st.Attachments)+len(files))
		for _, a := range st.Attachments {
			seen[a.Key()] = true
		}
		for _, f := range files {
			if seen[f.Key()] {
				logger.Debug("字段 %s 忽略重复文件: %s (%d bytes)", fieldID, f.Name, f.ByteSize)
				continue
			}
			seen[f.Key()] = true
			st.Attachments = append(st.Attachments, f)
		}
	}

	m.render(st)
	m.syncInput(st)
	if mode == models.CaptureCameraSingle {
		st.Input.Capture = false
	}
	return clonePreviews(st.Previews), nil
}

// RemoveAt 移除指定位置的附件；集合清空时字段回到初始状态
func (m *Manager) RemoveAt(fieldID string, index int) ([]Preview, error) {
	m.submit.RLock()
	defer m.submit.RUnlock()
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	st, ok := m.store.get(fieldID)
	if !ok {
		return nil, errors.New(errors.CodeFieldNotFound, "文件字段不存在: "+fieldID)
	}
	if index < 0 || index >= len(st.Attachments) {
		return nil, errors.New(errors.CodeInvalidParameter, fmt.Sprintf("附件索引越界: %d", index))
	}

	removed := st.Attachments[index]
	st.Attachments = append(st.Attachments[:index:index], st.Attachments[index+1:]...)
	delete(st.thumbs, removed.Key())

	if len(st.Attachments) == 0 {
		st.reset()
		return nil, nil
	}
	m.render(st)
	m.syncInput(st)
	return clonePreviews(st.Previews), nil
}

// Clear 清空字段
func (m *Manager) Clear(fieldID string) error {
	m.submit.RLock()
	defer m.submit.RUnlock()
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	st, ok := m.store.get(fieldID)
	if !ok {
		return errors.New(errors.CodeFieldNotFound, "文件字段不存在: "+fieldID)
	}
	st.reset()
	return nil
}

// Attachments 字段当前的附件（副本）
func (m *Manager) Attachments(fieldID string) []*models.Attachment {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	st, ok := m.store.get(fieldID)
	if !ok {
		return nil
	}
	return append([]*models.Attachment(nil), st.Attachments...)
}

// Previews 字段当前的预览
func (m *Manager) Previews(fieldID string) []Preview {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	st, ok := m.store.get(fieldID)
	if !ok {
		return nil
	}
	return clonePreviews(st.Previews)
}

// Input 字段输入控件的当前状态
func (m *Manager) Input(fieldID string) (InputControl, bool) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	st, ok := m.store.get(fieldID)
	if !ok {
		return InputControl{}, false
	}
	in := st.Input
	in.Files = append([]*models.Attachment(nil), st.Input.Files...)
	return in, true
}

// Inputs 全部文件输入控件的快照，供提交校验读取
func (m *Manager) Inputs() map[string]InputControl {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	out := make(map[string]InputControl, len(m.store.fields))
	for id, st := range m.store.fields {
		in := st.Input
		in.Files = append([]*models.Attachment(nil), st.Input.Files...)
		out[id] = in
	}
	return out
}

// Drain 交出全部附件并清空各字段
func (m *Manager) Drain() map[string][]*models.Attachment {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	out := make(map[string][]*models.Attachment, len(m.store.fields))
	for id, st := range m.store.fields {
		if len(st.Attachments) > 0 {
			out[id] = st.Attachments
		}
		st.reset()
	}
	return out
}

// render 按插入顺序重建预览
func (m *Manager) render(st *FieldState) {
	previews := make([]Preview, 0, len(st.Attachments))
	for i, a := range st.Attachments {
		thumb, ok := st.thumbs[a.Key()]
		if !ok {
			thumb = thumbnail(a)
			st.thumbs[a.Key()] = thumb
		}
		previews = append(previews, Preview{
			Index:     i,
			Name:      a.Name,
			MimeType:  a.MimeType,
			ByteSize:  a.ByteSize,
			SizeLabel: imagex.FormatFileSize(a.ByteSize),
			Width:     a.Width,
			Height:    a.Height,
			Thumbnail: thumb,
		})
	}
	st.Previews = previews
}

// syncInput 用内存中的集合重建输入控件的文件列表
func (m *Manager) syncInput(st *FieldState) {
	st.Input.Files = append([]*models.Attachment(nil), st.Attachments...)
}

// thumbnail 生成 JPEG 缩略图的 data URL，无法解码时返回空
func thumbnail(a *models.Attachment) string {
	if formats.Classify(a.Name, a.MimeType) != formats.KindDecodableImage {
		return ""
	}
	img, err := compress.Decode(a.File())
	if err != nil {
		logger.Debug("预览缩略图生成失败: %s: %v", a.Name, err)
		return ""
	}
	thumb := imaging.Thumbnail(img, thumbEdge, thumbEdge, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(thumbQuality)); err != nil {
		return ""
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func clonePreviews(p []Preview) []Preview {
	if p == nil {
		return nil
	}
	return append([]Preview(nil), p...)
}
