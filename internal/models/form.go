package models

import (
	"strings"
)

// FieldType 表单字段类型
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldDate      FieldType = "date"
	FieldNumber    FieldType = "number"
	FieldEmail     FieldType = "email"
	FieldTextarea  FieldType = "textarea"
	FieldSelect    FieldType = "select"
	FieldFile      FieldType = "file"
	FieldSignature FieldType = "signature"
)

// MandatoryMarker 签名字段标签中的必填标记
const MandatoryMarker = "*"

// FormDefinition 表单定义（configs/forms/*.yaml）
type FormDefinition struct {
	ID     string            `yaml:"id" json:"id"`
	Title  string            `yaml:"title" json:"title"`
	Fields []FieldDefinition `yaml:"fields" json:"fields"`
}

// FieldDefinition 字段定义
type FieldDefinition struct {
	ID         string         `yaml:"id" json:"id"`
	Label      string         `yaml:"label" json:"label"`
	Type       FieldType      `yaml:"type" json:"type"`
	Required   bool           `yaml:"required" json:"required"`
	Validation string         `yaml:"validation,omitempty" json:"validation,omitempty"` // 校验类型，如 numeric-id / cedula
	Multiple   bool           `yaml:"multiple,omitempty" json:"multiple,omitempty"`
	Capture    bool           `yaml:"capture,omitempty" json:"capture,omitempty"` // 文件字段默认调起相机
	Options    []SelectOption `yaml:"options,omitempty" json:"options,omitempty"`
}

// SelectOption 下拉选项，DependentType 决定联动输入的类型
type SelectOption struct {
	Value         string `yaml:"value" json:"value"`
	Label         string `yaml:"label" json:"label"`
	DependentType string `yaml:"dependent_type,omitempty" json:"dependent_type,omitempty"`
}

// Field 按 ID 查找字段
func (d *FormDefinition) Field(id string) (*FieldDefinition, bool) {
	for i := range d.Fields {
		if d.Fields[i].ID == id {
			return &d.Fields[i], true
		}
	}
	return nil, false
}

// FieldsOfType 指定类型的字段
func (d *FormDefinition) FieldsOfType(t FieldType) []FieldDefinition {
	var out []FieldDefinition
	for _, f := range d.Fields {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

// IsMandatorySignature 签名字段标签带必填标记
func (f *FieldDefinition) IsMandatorySignature() bool {
	return f.Type == FieldSignature && strings.Contains(f.Label, MandatoryMarker)
}

// DisplayLabel 去掉必填标记的标签
func (f *FieldDefinition) DisplayLabel() string {
	label := strings.TrimSpace(strings.ReplaceAll(f.Label, MandatoryMarker, ""))
	if label == "" {
		return f.ID
	}
	return label
}

// SignerInfo 签名人信息
type SignerInfo struct {
	Name     string `json:"name" form:"name"`
	Document string `json:"document" form:"document"`
	Phone    string `json:"phone" form:"phone"`
	Company  string `json:"company" form:"company"`
	Role     string `json:"role" form:"role"`
}
