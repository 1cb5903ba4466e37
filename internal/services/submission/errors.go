package submission

import (
	"strings"
)

// ProblemCode 校验问题类别
type ProblemCode string

const (
	ProblemPattern   ProblemCode = "pattern"
	ProblemRequired  ProblemCode = "required"
	ProblemSize      ProblemCode = "size"
	ProblemSignature ProblemCode = "signature"
)

// Problem 单条校验问题
type Problem struct {
	FieldID string      `json:"field_id"`
	Label   string      `json:"label"`
	Code    ProblemCode `json:"code"`
	Message string      `json:"message"`
}

// ValidationError 提交校验失败，汇总全部问题
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	return e.Message()
}

// Message 面向用户的汇总提示
func (e *ValidationError) Message() string {
	var b strings.Builder
	b.WriteString("请检查以下内容:")
	for _, p := range e.Problems {
		b.WriteString("\n- ")
		b.WriteString(p.Label)
		b.WriteString(": ")
		b.WriteString(p.Message)
	}
	return b.String()
}

// Labels 出错字段的标签
func (e *ValidationError) Labels(code ProblemCode) []string {
	var out []string
	for _, p := range e.Problems {
		if code == "" || p.Code == code {
			out = append(out, p.Label)
		}
	}
	return out
}
