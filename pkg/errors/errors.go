package errors

import (
	stderrors "errors"
	"net/http"

	"formcapture/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"
)

// Code 业务错误码
type Code int

const (
	CodeSuccess           Code = 0
	CodeInvalidParameter  Code = 1001
	CodeNotFound          Code = 1004
	CodeSessionNotFound   Code = 2001
	CodeFieldNotFound     Code = 2002
	CodeFormNotFound      Code = 2003
	CodeFileTooLarge      Code = 3001
	CodeFileProcessFailed Code = 3002
	CodeValidationFailed  Code = 4001
	CodeSubmitInProgress  Code = 4002
	CodeInternal          Code = 5000
	CodeHandoffFailed     Code = 5001
)

var statusByCode = map[Code]int{
	CodeInvalidParameter:  http.StatusBadRequest,
	CodeNotFound:          http.StatusNotFound,
	CodeSessionNotFound:   http.StatusNotFound,
	CodeFieldNotFound:     http.StatusNotFound,
	CodeFormNotFound:      http.StatusNotFound,
	CodeFileTooLarge:      http.StatusRequestEntityTooLarge,
	CodeFileProcessFailed: http.StatusInternalServerError,
	CodeValidationFailed:  http.StatusUnprocessableEntity,
	CodeSubmitInProgress:  http.StatusConflict,
	CodeInternal:          http.StatusInternalServerError,
	CodeHandoffFailed:     http.StatusBadGateway,
}

// AppError 应用错误
type AppError struct {
	Code    Code
	Message string
	Details interface{}
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// HTTPStatus 错误码对应的 HTTP 状态
func (e *AppError) HTTPStatus() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap 包装底层错误并保留调用栈
func Wrap(err error, code Code, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, cause: eris.Wrap(err, message)}
}

// WithDetails 附加详情（如校验问题列表）
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// As 提取 AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Response 统一响应结构
type Response struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// HandleError 输出错误响应
func HandleError(c *gin.Context, err error) {
	appErr, ok := As(err)
	if !ok {
		logger.Error("未分类错误: %v", err)
		appErr = Wrap(err, CodeInternal, "服务器内部错误")
	}
	if appErr.HTTPStatus() >= http.StatusInternalServerError && appErr.cause != nil {
		logger.Error("%s", eris.ToString(appErr.cause, true))
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus(), Response{
		Code:    appErr.Code,
		Message: appErr.Message,
		Data:    appErr.Details,
	})
}

// ResponseSuccess 输出成功响应
func ResponseSuccess(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, Response{Code: CodeSuccess, Message: message, Data: data})
}
