package dto

import (
	"formcapture/internal/models"
	"formcapture/internal/services/attachment"
	"formcapture/internal/services/capture"
	"formcapture/internal/services/cascade"
)

// UploadFilesDTO 文件字段变更请求
type UploadFilesDTO struct {
	Mode string `form:"mode" binding:"omitempty,oneof=camera-single gallery-multi"`
}

func (d *UploadFilesDTO) GetValidationMessages() map[string]string {
	return map[string]string{
		"Mode.oneof": "采集方式必须是 camera-single 或 gallery-multi",
	}
}

// CascadeSelectDTO 下拉选择请求
type CascadeSelectDTO struct {
	Value string `form:"value" json:"value" binding:"max=200"`
}

func (d *CascadeSelectDTO) GetValidationMessages() map[string]string {
	return map[string]string{
		"Value.max": "选项值不能超过200个字符",
	}
}

// SignerDTO 签名人信息
type SignerDTO struct {
	Name     string `form:"name" json:"name" binding:"required,max=100"`
	Document string `form:"document" json:"document" binding:"omitempty,max=32"`
	Phone    string `form:"phone" json:"phone" binding:"omitempty,max=32"`
	Company  string `form:"company" json:"company" binding:"omitempty,max=100"`
	Role     string `form:"role" json:"role" binding:"omitempty,max=100"`
}

func (d *SignerDTO) GetValidationMessages() map[string]string {
	return map[string]string{
		"Name.required": "签名人姓名不能为空",
		"Name.max":      "签名人姓名不能超过100个字符",
		"Document.max":  "证件号不能超过32个字符",
		"Phone.max":     "电话不能超过32个字符",
		"Company.max":   "单位名称不能超过100个字符",
		"Role.max":      "职务不能超过100个字符",
	}
}

// ToModel 转为签名人模型
func (d *SignerDTO) ToModel() models.SignerInfo {
	return models.SignerInfo{
		Name:     d.Name,
		Document: d.Document,
		Phone:    d.Phone,
		Company:  d.Company,
		Role:     d.Role,
	}
}

// SubmitDTO 提交请求
type SubmitDTO struct {
	Values map[string]string `json:"values"`
}

// StreamEventDTO 签名流中的指针事件
type StreamEventDTO struct {
	Type          string  `json:"type"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	DisplayWidth  float64 `json:"display_width"`
	DisplayHeight float64 `json:"display_height"`
}

// StreamReplyDTO 签名流的回复
type StreamReplyDTO struct {
	State  string `json:"state,omitempty"`
	HasInk bool   `json:"has_ink"`
	Error  string `json:"error,omitempty"`
}

// SignatureSizeDTO 签名画布分辨率
type SignatureSizeDTO struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SessionDTO 会话信息
type SessionDTO struct {
	ID        string                   `json:"id"`
	FormID    string                   `json:"form_id"`
	Title     string                   `json:"title"`
	Fields    []models.FieldDefinition `json:"fields"`
	Signature SignatureSizeDTO         `json:"signature"`
}

// FieldFilesDTO 文件字段的当前状态
type FieldFilesDTO struct {
	Input    attachment.InputControl `json:"input"`
	Previews []attachment.Preview    `json:"previews"`
}

// SessionStateDTO 会话当前状态
type SessionStateDTO struct {
	SessionDTO
	Files      map[string]FieldFilesDTO `json:"files"`
	Signatures map[string]bool          `json:"signatures"` // 字段 -> 是否有笔迹
	Dependents []cascade.DependentInput `json:"dependents"`
}

// SelectionDTO 文件选择结果
type SelectionDTO struct {
	FieldID  string               `json:"field_id"`
	Previews []attachment.Preview `json:"previews"`
	Outcomes []capture.Outcome    `json:"outcomes"`
}

// PreviewsDTO 文件字段预览
type PreviewsDTO struct {
	FieldID  string               `json:"field_id"`
	Previews []attachment.Preview `json:"previews"`
}

// SignatureValueDTO 签名序列化结果
type SignatureValueDTO struct {
	FieldID string `json:"field_id"`
	Value   string `json:"value"`
}

// CascadeDTO 联动输入
type CascadeDTO struct {
	FieldID   string                  `json:"field_id"`
	Dependent *cascade.DependentInput `json:"dependent"`
}
