package session

import (
	"sort"
	"sync"
	"time"

	"formcapture/internal/models"
	"formcapture/internal/services/attachment"
	"formcapture/internal/services/capture"
	"formcapture/internal/services/cascade"
	"formcapture/internal/services/signature"
	"formcapture/pkg/errors"
	"formcapture/pkg/logger"

	"github.com/google/uuid"
)

// FormSession 一个正在填写的表单实例
type FormSession struct {
	ID         string
	FormID     string
	Definition *models.FormDefinition
	CreatedAt  time.Time

	Store    *attachment.Store
	Manager  *attachment.Manager
	Pipeline *capture.Pipeline
	Surface  *signature.Surface
	Cascades *cascade.Registry

	mu       sync.Mutex
	lastSeen time.Time
}

// Touch 刷新最近访问时间
func (s *FormSession) Touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen 最近访问时间
func (s *FormSession) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Dependencies 会话共享的处理组件
type Dependencies struct {
	Converter       capture.Converter
	Optimizer       capture.Optimizer
	TargetBytes     int64
	SignatureWidth  int
	SignatureHeight int
	StrokeWidth     float64
}

// Registry 内存中的会话表
type Registry struct {
	forms   map[string]*models.FormDefinition
	deps    Dependencies
	idleTTL time.Duration

	mu       sync.RWMutex
	sessions map[string]*FormSession

	now   func() time.Time
	newID func() string
}

func NewRegistry(forms map[string]*models.FormDefinition, deps Dependencies, idleTTL time.Duration) *Registry {
	if forms == nil {
		forms = make(map[string]*models.FormDefinition)
	}
	return &Registry{
		forms:    forms,
		deps:     deps,
		idleTTL:  idleTTL,
		sessions: make(map[string]*FormSession),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Forms 全部表单定义，按 ID 排序
func (r *Registry) Forms() []*models.FormDefinition {
	ids := make([]string, 0, len(r.forms))
	for id := range r.forms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*models.FormDefinition, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.forms[id])
	}
	return out
}

// Form 按 ID 取表单定义
func (r *Registry) Form(id string) (*models.FormDefinition, error) {
	def, ok := r.forms[id]
	if !ok {
		return nil, errors.New(errors.CodeFormNotFound, "表单不存在: "+id)
	}
	return def, nil
}

// Create 打开表单：登记文件字段、初始化签名画布与联动组
func (r *Registry) Create(formID string) (*FormSession, error) {
	def, err := r.Form(formID)
	if err != nil {
		return nil, err
	}

	store := attachment.NewStore()
	for _, f := range def.FieldsOfType(models.FieldFile) {
		store.Register(f.ID, attachment.InputControl{
			Capture:  f.Capture,
			Multiple: f.Multiple,
			Required: f.Required,
		})
	}
	manager := attachment.NewManager(store)

	surface := signature.NewSurface(r.deps.SignatureWidth, r.deps.SignatureHeight, r.deps.StrokeWidth)
	for _, f := range def.FieldsOfType(models.FieldSignature) {
		surface.Init(f.ID)
	}

	now := r.now()
	s := &FormSession{
		ID:         r.newID(),
		FormID:     def.ID,
		Definition: def,
		CreatedAt:  now,
		Store:      store,
		Manager:    manager,
		Pipeline:   capture.NewPipeline(r.deps.Converter, r.deps.Optimizer, manager, r.deps.TargetBytes),
		Surface:    surface,
		Cascades:   cascade.NewRegistry(def),
		lastSeen:   now,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	logger.Info("创建表单会话 %s (表单 %s)", s.ID, def.ID)
	return s, nil
}

// Get 取会话并刷新访问时间
func (r *Registry) Get(id string) (*FormSession, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.CodeSessionNotFound, "会话不存在或已过期")
	}
	s.Touch(r.now())
	return s, nil
}

// Remove 关闭会话
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Sweep 清理空闲超过 idleTTL 的会话，返回清理数量
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	if n > 0 {
		logger.Info("清理空闲会话 %d 个，剩余 %d 个", n, len(r.sessions))
	}
	return n
}

// Len 当前会话数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
