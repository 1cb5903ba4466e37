package router

import (
	"time"

	"formcapture/internal/controllers/form"
	"formcapture/pkg/errors"
	"formcapture/pkg/logger"

	"github.com/gin-gonic/gin"
)

// New 创建 gin 引擎并注册全部路由
func New(mode string, ctl *form.Controller) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	engine := gin.New()
	engine.Use(requestLogger(), gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("请求处理崩溃 %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		errors.HandleError(c, errors.New(errors.CodeInternal, "服务器内部错误"))
	}))
	engine.NoRoute(func(c *gin.Context) {
		errors.HandleError(c, errors.New(errors.CodeNotFound, "接口不存在"))
	})
	engine.GET("/healthz", func(c *gin.Context) {
		errors.ResponseSuccess(c, gin.H{"status": "ok"}, "ok")
	})

	Register(engine.Group("/api/v1"), ctl)
	return engine
}

// Register 注册表单会话路由
func Register(api *gin.RouterGroup, ctl *form.Controller) {
	api.GET("/forms", ctl.ListForms)
	api.POST("/forms/:formId/sessions", ctl.CreateSession)

	sessions := api.Group("/sessions/:sid")
	{
		sessions.GET("", ctl.GetSession)
		sessions.DELETE("", ctl.CloseSession)

		sessions.POST("/fields/:fieldId/files", ctl.UploadFiles)
		sessions.DELETE("/fields/:fieldId/files", ctl.ClearFiles)
		sessions.DELETE("/fields/:fieldId/files/:index", ctl.RemoveFile)

		sessions.GET("/signatures/:fieldId/stream", ctl.SignatureStream)
		sessions.POST("/signatures/:fieldId/clear", ctl.ClearSignature)
		sessions.POST("/signatures/:fieldId/save", ctl.SaveSignature)
		sessions.POST("/signatures/:fieldId/signer", ctl.SetSigner)

		sessions.POST("/cascades/:fieldId", ctl.SelectCascade)
		sessions.POST("/submit", ctl.Submit)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		if status >= 500 {
			logger.Error("%s %s %d %v", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
			return
		}
		logger.Debug("%s %s %d %v", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
	}
}
