package submission

import (
	"fmt"
	"sort"
	"strings"

	"formcapture/internal/models"
	"formcapture/internal/services/attachment"
	"formcapture/internal/services/signature"
	"formcapture/pkg/imagex"
	"formcapture/pkg/storage/middleware"

	"github.com/go-playground/validator/v10"
)

const (
	msgRequired      = "此项为必填"
	msgFileRequired  = "请至少上传一个文件"
	msgSignatureMiss = "请在签名框内签名"
)

// Form 提交时刻的表单快照
type Form struct {
	Definition *models.FormDefinition
	Values     map[string]string
	Inputs     map[string]attachment.InputControl // 文件输入控件中实际存在的文件
	Surface    *signature.Surface
}

// Gate 提交前的最后一道校验
type Gate struct {
	validate           *validator.Validate
	files              *middleware.FileValidator
	maxAttachmentBytes int64
}

func NewGate(maxAttachmentBytes int64) *Gate {
	return &Gate{
		validate:           NewValidator(),
		files:              middleware.NewFileValidator(middleware.ValidationOptions{AllowEmpty: true}),
		maxAttachmentBytes: maxAttachmentBytes,
	}
}

// Check 依次执行格式、必填、附件大小、签名检查，问题全部收集后一次返回
// 通过时序列化全部签名画布并返回字段值
func (g *Gate) Check(form *Form) (map[string]string, error) {
	if form == nil || form.Definition == nil {
		return nil, fmt.Errorf("表单定义为空")
	}
	def := form.Definition

	var problems []Problem
	add := func(f *models.FieldDefinition, code ProblemCode, msg string) {
		problems = append(problems, Problem{FieldID: f.ID, Label: f.DisplayLabel(), Code: code, Message: msg})
	}

	for i := range def.Fields {
		f := &def.Fields[i]
		if f.Validation == "" || !isValueField(f) {
			continue
		}
		value := strings.TrimSpace(form.Values[f.ID])
		// 必填且为空的字段只报必填
		if value == "" {
			continue
		}
		if !CheckKind(g.validate, f.Validation, value) {
			add(f, ProblemPattern, KindMessage(f.Validation))
		}
	}

	for i := range def.Fields {
		f := &def.Fields[i]
		switch {
		case f.Type == models.FieldFile:
			in, ok := form.Inputs[f.ID]
			required := f.Required
			if ok {
				required = in.Required
			}
			if required && in.Count() == 0 {
				add(f, ProblemRequired, msgFileRequired)
			}
		case isValueField(f):
			if f.Required && strings.TrimSpace(form.Values[f.ID]) == "" {
				add(f, ProblemRequired, msgRequired)
			}
		}
	}

	problems = append(problems, g.checkSizes(def, form.Inputs)...)

	for i := range def.Fields {
		f := &def.Fields[i]
		if !f.IsMandatorySignature() {
			continue
		}
		if form.Surface == nil {
			add(f, ProblemSignature, msgSignatureMiss)
			continue
		}
		c, err := form.Surface.Get(f.ID)
		if err != nil || !c.HasInk() {
			add(f, ProblemSignature, msgSignatureMiss)
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	if form.Surface == nil {
		return map[string]string{}, nil
	}
	return form.Surface.SaveAll()
}

// checkSizes 重新校验每个文件输入中的附件大小
func (g *Gate) checkSizes(def *models.FormDefinition, inputs map[string]attachment.InputControl) []Problem {
	if g.maxAttachmentBytes <= 0 {
		return nil
	}

	ids := make([]string, 0, len(inputs))
	for id := range inputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var problems []Problem
	for _, id := range ids {
		in := inputs[id]
		files := make([]*imagex.File, 0, in.Count())
		for _, a := range in.Files {
			files = append(files, a.File())
		}
		res := g.files.ValidateFiles(files, &middleware.ValidationOptions{
			MaxFileSize: g.maxAttachmentBytes,
			AllowEmpty:  true,
		})

		label := id
		if f, ok := def.Field(id); ok {
			label = f.DisplayLabel()
		}
		for _, inv := range res.InvalidFiles {
			if inv.Code != middleware.CodeTooLarge {
				continue
			}
			problems = append(problems, Problem{
				FieldID: id,
				Label:   label,
				Code:    ProblemSize,
				Message: fmt.Sprintf("文件 %s 超过大小上限 %s", inv.File.Name, imagex.FormatFileSize(g.maxAttachmentBytes)),
			})
		}
	}
	return problems
}

// isValueField 以文本值提交的字段
func isValueField(f *models.FieldDefinition) bool {
	return f.Type != models.FieldFile && f.Type != models.FieldSignature
}
