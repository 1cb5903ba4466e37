package attachment

import (
	"sync"

	"formcapture/internal/models"
)

// InputControl 原生文件输入控件的状态
type InputControl struct {
	Files    []*models.Attachment `json:"-"`
	Capture  bool                 `json:"capture"` // 是否带 capture 属性
	Multiple bool                 `json:"multiple"`
	Required bool                 `json:"required"`
}

// Count 控件中的文件数
func (c InputControl) Count() int {
	return len(c.Files)
}

// Preview 预览条目
type Preview struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	MimeType  string `json:"mime_type"`
	ByteSize  int64  `json:"byte_size"`
	SizeLabel string `json:"size_label"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// FieldState 单个文件字段的待提交状态
type FieldState struct {
	Attachments []*models.Attachment
	Input       InputControl
	Previews    []Preview

	initial InputControl
	thumbs  map[models.DedupKey]string
}

// Store 按字段 ID 保存待提交附件，由 Manager 独占修改
type Store struct {
	mu     sync.RWMutex
	fields map[string]*FieldState
}

func NewStore() *Store {
	return &Store{fields: make(map[string]*FieldState)}
}

// Register 登记文件字段及其输入控件的初始状态
func (s *Store) Register(fieldID string, input InputControl) {
	s.mu.Lock()
	defer s.mu.Unlock()
	input.Files = nil
	s.fields[fieldID] = &FieldState{
		Input:   input,
		initial: input,
		thumbs:  make(map[models.DedupKey]string),
	}
}

// Fields 已登记的字段 ID
func (s *Store) Fields() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.fields))
	for id := range s.fields {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) get(fieldID string) (*FieldState, bool) {
	st, ok := s.fields[fieldID]
	return st, ok
}

func (st *FieldState) reset() {
	st.Attachments = nil
	st.Previews = nil
	st.Input = st.initial
	st.Input.Files = nil
	st.thumbs = make(map[models.DedupKey]string)
}
