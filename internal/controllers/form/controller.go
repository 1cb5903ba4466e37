package form

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"formcapture/internal/controllers/form/dto"
	"formcapture/internal/models"
	"formcapture/internal/services/attachment"
	"formcapture/internal/services/session"
	"formcapture/internal/services/submission"
	"formcapture/pkg/common"
	"formcapture/pkg/errors"
	"formcapture/pkg/imagex"
	"formcapture/pkg/imagex/formats"
	"formcapture/pkg/logger"
	"formcapture/pkg/storage/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Controller 表单会话的 HTTP 接口
type Controller struct {
	sessions    *session.Registry
	submissions *submission.Service
	intake      *middleware.FileValidator
	maxUpload   int64
	upgrader    websocket.Upgrader
	now         func() time.Time
}

func NewController(sessions *session.Registry, submissions *submission.Service, maxUploadBytes int64) *Controller {
	return &Controller{
		sessions:    sessions,
		submissions: submissions,
		intake: middleware.NewFileValidator(middleware.ValidationOptions{
			MaxFileSize:     maxUploadBytes,
			AllowedFormats:  formats.SupportedExtensionsWithDot(),
			MaxNameLength:   255,
			CheckFileHeader: true,
		}),
		maxUpload: maxUploadBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}
}

func (ctl *Controller) session(c *gin.Context) (*session.FormSession, bool) {
	s, err := ctl.sessions.Get(c.Param("sid"))
	if err != nil {
		errors.HandleError(c, err)
		return nil, false
	}
	return s, true
}

// ListForms 可用的表单定义
func (ctl *Controller) ListForms(c *gin.Context) {
	errors.ResponseSuccess(c, ctl.sessions.Forms(), "获取成功")
}

// CreateSession 打开表单
func (ctl *Controller) CreateSession(c *gin.Context) {
	s, err := ctl.sessions.Create(c.Param("formId"))
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.ResponseSuccess(c, sessionDTO(s), "会话已创建")
}

// GetSession 会话当前状态
func (ctl *Controller) GetSession(c *gin.Context) {
	s, ok := ctl.session(c)
	if !ok {
		return
	}

	state := dto.SessionStateDTO{
		SessionDTO: sessionDTO(s),
		Files:      make(map[string]dto.FieldFilesDTO),
		Signatures: make(map[string]bool),
		Dependents: s.Cascades.Dependents(),
	}
	for id, in := range s.Manager.Inputs() {
		state.Files[id] = dto.FieldFilesDTO{Input: in, Previews: s.Manager.Previews(id)}
	}
	for _, canvas := range s.Surface.Canvases() {
		state.Signatures[canvas.FieldID()] = canvas.HasInk()
	}
	errors.ResponseSuccess(c, state, "获取成功")
}

// CloseSession 放弃填写
func (ctl *Controller) CloseSession(c *gin.Context) {
	if !ctl.sessions.Remove(c.Param("sid")) {
		errors.HandleError(c, errors.New(errors.CodeSessionNotFound, "会话不存在或已过期"))
		return
	}
	errors.ResponseSuccess(c, nil, "会话已关闭")
}

// UploadFiles 文件字段的一次选择事件
func (ctl *Controller) UploadFiles(c *gin.Context) {
	s, ok := ctl.session(c)
	if !ok {
		return
	}
	fieldID := c.Param("fieldId")
	in, exists := s.Manager.Input(fieldID)
	if !exists {
		errors.HandleError(c, errors.New(errors.CodeFieldNotFound, "文件字段不存在: "+fieldID))
		return
	}

	req, err := common.ValidateQuery[dto.UploadFilesDTO](c)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	mode := models.CaptureMode(req.Mode)
	if mode == "" {
		mode = defaultMode(in)
	}

	form, err := c.MultipartForm()
	if err != nil {
		errors.HandleError(c, errors.New(errors.CodeInvalidParameter, "文件上传失败: "+err.Error()))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		errors.HandleError(c, errors.New(errors.CodeInvalidParameter, "未选择文件"))
		return
	}

	files, err := ctl.readFiles(headers)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	sel, err := s.Pipeline.HandleSelection(c.Request.Context(), fieldID, files, mode)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.ResponseSuccess(c, dto.SelectionDTO{FieldID: fieldID, Previews: sel.Previews, Outcomes: sel.Outcomes}, "处理完成")
}

// readFiles 读取上传内容并在处理前拦截超限或伪造类型的文件
func (ctl *Controller) readFiles(headers []*multipart.FileHeader) ([]*imagex.File, error) {
	files := make([]*imagex.File, 0, len(headers))
	for _, fh := range headers {
		name := ctl.intake.SanitizeFileName(fh.Filename)
		if ctl.maxUpload > 0 && fh.Size > ctl.maxUpload {
			return nil, errors.New(errors.CodeFileTooLarge,
				"文件 "+name+" 超过上传上限 "+imagex.FormatFileSize(ctl.maxUpload))
		}

		f, err := fh.Open()
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidParameter, "读取上传文件失败")
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidParameter, "读取上传文件失败")
		}

		files = append(files, &imagex.File{
			Name:     name,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
			ModTime:  ctl.now(),
		})
	}

	if res := ctl.intake.ValidateFiles(files, nil); !res.Valid {
		inv := res.InvalidFiles[0]
		logger.Warn("拒绝上传文件 %s: %s", inv.File.Name, inv.Message)
		if inv.Code == middleware.CodeTooLarge {
			return nil, errors.New(errors.CodeFileTooLarge, inv.Message)
		}
		return nil, errors.New(errors.CodeInvalidParameter, inv.Message)
	}
	return files, nil
}

// RemoveFile 移除指定位置的附件
func (ctl *Controller) RemoveFile(c *gin.Context) {
	s, ok := ctl.session(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		errors.HandleError(c, errors.New(errors.CodeInvalidParameter, "附件索引必须是整数"))
		return
	}
	fieldID := c.Param("fieldId")
	previews, err := s.Manager.RemoveAt(fieldID, index)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.ResponseSuccess(c, dto.PreviewsDTO{FieldID: fieldID, Previews: previews}, "已移除")
}

// ClearFiles 清空文件字段
func (ctl *Controller) ClearFiles(c *gin.Context) {
	s, ok := ctl.session(c)
	if !ok {
		return
	}
	fieldID := c.Param("fieldId")
	if err := s.Manager.Clear(fieldID); err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.ResponseSuccess(c, dto.PreviewsDTO{FieldID: fieldID}, "已清空")
}

// ClearSignature 擦除签名
func (ctl *Controller) ClearSignature(c *gin.Context) {
	s, ok := ctl.session(c)
	if !ok {
		return
	}
	if err := s.Surface.Clear(c.Param("fieldId")); err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.ResponseSuccess(c, nil, "已清除")
}

// SaveSignature 序列化签名
func (ctl *Controller) SaveSignature(c *gin.Context) {
	s, ok := ctl.session(c)
	if !ok {
		return
	}
	fieldID := c.Param("fieldId")
	value, err := s.Surface.Save(fieldID)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.ResponseSuccess(c, dto.SignatureValueDTO{FieldID: fieldID, Value: value}, "已保存")
}

// SetSigner 记录签名人信息
func (ctl *Controller) SetSigner(c *gin.Context) {
	s, ok := ctl.session(c)
	if !ok {
		return
	}
	canvas, err := s.Surface.Get(c.Param("fieldId"))
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	req, err := common.ValidateRequest[dto.SignerDTO](c)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	if err := canvas.SetSigner(req.ToModel()); err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.ResponseSuccess(c, canvas.Signer(), "已保存")
}

// SelectCascade 下拉选择，返回新的联动输入
func (ctl *Controller) SelectCascade(c *gin.Context) {
	s, ok := ctl.session(c)
	if !ok {
		return
	}
	req, err := common.ValidateRequest[dto.CascadeSelectDTO](c)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	fieldID := c.Param("fieldId")
	dep, err := s.Cascades.Select(fieldID, req.Value)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.ResponseSuccess(c, dto.CascadeDTO{FieldID: fieldID, Dependent: dep}, "已选择")
}

// Submit 提交表单；成功后关闭会话
func (ctl *Controller) Submit(c *gin.Context) {
	s, ok := ctl.session(c)
	if !ok {
		return
	}

	values, err := submitValues(c)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	receipt, err := ctl.submissions.Submit(c.Request.Context(), &submission.Submission{
		FormID:     s.FormID,
		SessionID:  s.ID,
		Definition: s.Definition,
		Values:     s.Cascades.Prune(values),
		Manager:    s.Manager,
		Surface:    s.Surface,
	})
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	ctl.sessions.Remove(s.ID)
	errors.ResponseSuccess(c, receipt, "提交成功")
}

// submitValues JSON 请求读取 values，表单请求读取全部表单字段
func submitValues(c *gin.Context) (map[string]string, error) {
	if c.ContentType() == gin.MIMEJSON {
		req, err := common.ValidateRequest[dto.SubmitDTO](c)
		if err != nil {
			return nil, err
		}
		if req.Values == nil {
			return map[string]string{}, nil
		}
		return req.Values, nil
	}

	if err := c.Request.ParseForm(); err != nil {
		return nil, errors.New(errors.CodeInvalidParameter, "请求参数错误: "+err.Error())
	}
	values := make(map[string]string, len(c.Request.PostForm))
	for k, v := range c.Request.PostForm {
		if len(v) > 0 {
			values[k] = v[0]
		}
	}
	return values, nil
}

// defaultMode 带 capture 的单选控件按拍照处理
func defaultMode(in attachment.InputControl) models.CaptureMode {
	if in.Capture && !in.Multiple {
		return models.CaptureCameraSingle
	}
	return models.CaptureGalleryMulti
}

func sessionDTO(s *session.FormSession) dto.SessionDTO {
	out := dto.SessionDTO{
		ID:     s.ID,
		FormID: s.FormID,
		Title:  s.Definition.Title,
		Fields: s.Definition.Fields,
	}
	if canvases := s.Surface.Canvases(); len(canvases) > 0 {
		out.Signature.Width, out.Signature.Height = canvases[0].Size()
	}
	return out
}
