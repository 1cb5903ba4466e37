package cascade

import (
	"sort"
	"strings"
	"sync"

	"formcapture/internal/models"
	"formcapture/pkg/errors"
	"formcapture/pkg/logger"

	"github.com/google/uuid"
)

// 联动输入允许的类型，其余按 text 处理
var dependentTypes = map[models.FieldType]bool{
	models.FieldText:     true,
	models.FieldDate:     true,
	models.FieldNumber:   true,
	models.FieldEmail:    true,
	models.FieldTextarea: true,
}

// DependentInput 由下拉选择生成的联动输入
type DependentInput struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Type        models.FieldType `json:"type"`
	Label       string           `json:"label"`
	ParentField string           `json:"parent_field"`
	Option      string           `json:"option"`
}

// Group 一个下拉字段及其当前联动输入
type Group struct {
	mu        sync.Mutex
	field     models.FieldDefinition
	selected  string
	dependent *DependentInput
	discarded map[string]bool
	newID     func() string
}

func NewGroup(field models.FieldDefinition) (*Group, error) {
	if field.Type != models.FieldSelect {
		return nil, errors.New(errors.CodeInvalidParameter, "不是下拉字段: "+field.ID)
	}
	return &Group{field: field, discarded: make(map[string]bool), newID: uuid.NewString}, nil
}

// Select 选择选项；旧的联动输入整体丢弃，按选项元数据生成新的输入
// 空值只清除联动输入
func (g *Group) Select(value string) (*DependentInput, error) {
	var option *models.SelectOption
	if value != "" {
		for i := range g.field.Options {
			if g.field.Options[i].Value == value {
				option = &g.field.Options[i]
				break
			}
		}
		if option == nil {
			return nil, errors.New(errors.CodeInvalidParameter, "无效的选项: "+value)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dependent != nil {
		g.discarded[g.dependent.Name] = true
		logger.Debug("字段 %s 丢弃联动输入 %s", g.field.ID, g.dependent.Name)
		g.dependent = nil
	}
	g.selected = value
	if option == nil {
		return nil, nil
	}

	t := models.FieldType(strings.ToLower(strings.TrimSpace(option.DependentType)))
	if !dependentTypes[t] {
		t = models.FieldText
	}
	id := g.newID()
	label := option.Label
	if label == "" {
		label = option.Value
	}
	g.dependent = &DependentInput{
		ID:          id,
		Name:        g.field.ID + "_" + strings.ReplaceAll(id, "-", ""),
		Type:        t,
		Label:       label,
		ParentField: g.field.ID,
		Option:      option.Value,
	}
	copied := *g.dependent
	return &copied, nil
}

// Dependent 当前联动输入
func (g *Group) Dependent() (DependentInput, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dependent == nil {
		return DependentInput{}, false
	}
	return *g.dependent, true
}

// Selected 当前选项值
func (g *Group) Selected() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.selected
}

func (g *Group) isDiscarded(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.discarded[name]
}

// Registry 表单内全部联动组
type Registry struct {
	groups map[string]*Group
}

// NewRegistry 为表单中的每个下拉字段建立联动组
func NewRegistry(def *models.FormDefinition) *Registry {
	r := &Registry{groups: make(map[string]*Group)}
	if def == nil {
		return r
	}
	for _, f := range def.FieldsOfType(models.FieldSelect) {
		g, err := NewGroup(f)
		if err != nil {
			continue
		}
		r.groups[f.ID] = g
	}
	return r
}

// Select 在指定下拉字段上选择
func (r *Registry) Select(fieldID, value string) (*DependentInput, error) {
	g, ok := r.groups[fieldID]
	if !ok {
		return nil, errors.New(errors.CodeFieldNotFound, "下拉字段不存在: "+fieldID)
	}
	return g.Select(value)
}

// Dependents 当前全部联动输入，按父字段排序
func (r *Registry) Dependents() []DependentInput {
	ids := make([]string, 0, len(r.groups))
	for id := range r.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []DependentInput
	for _, id := range ids {
		if d, ok := r.groups[id].Dependent(); ok {
			out = append(out, d)
		}
	}
	return out
}

// Prune 去掉已丢弃联动输入的值
func (r *Registry) Prune(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		stale := false
		for _, g := range r.groups {
			if g.isDiscarded(k) {
				stale = true
				break
			}
		}
		if !stale {
			out[k] = v
		}
	}
	return out
}
