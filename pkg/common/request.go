package common

import (
	stderrors "errors"
	"strings"

	"formcapture/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// ValidationMessager DTO 自定义的校验提示，键为 "字段.标签"
type ValidationMessager interface {
	GetValidationMessages() map[string]string
}

// ValidateRequest 绑定并校验请求参数（JSON / 表单 / 查询串按 Content-Type 选择）
func ValidateRequest[T any](c *gin.Context) (*T, error) {
	req := new(T)
	if err := c.ShouldBind(req); err != nil {
		return nil, errors.New(errors.CodeInvalidParameter, validationMessage(req, err))
	}
	return req, nil
}

// ValidateQuery 只从查询串绑定
func ValidateQuery[T any](c *gin.Context) (*T, error) {
	req := new(T)
	if err := c.ShouldBindQuery(req); err != nil {
		return nil, errors.New(errors.CodeInvalidParameter, validationMessage(req, err))
	}
	return req, nil
}

func validationMessage(req interface{}, err error) string {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return "请求参数错误: " + err.Error()
	}

	var messages map[string]string
	if m, ok := req.(ValidationMessager); ok {
		messages = m.GetValidationMessages()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
			parts = append(parts, msg)
			continue
		}
		parts = append(parts, fe.Field()+" 校验失败: "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}
