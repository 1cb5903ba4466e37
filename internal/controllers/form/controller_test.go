package form_test

import (
	"bytes"
	"encoding/json"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"formcapture/internal/controllers/form"
	"formcapture/internal/models"
	"formcapture/internal/router"
	"formcapture/internal/services/session"
	"formcapture/internal/services/submission"
	"formcapture/pkg/errors"
	"formcapture/pkg/imagex/compress"
	"formcapture/pkg/storage"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    errors.Code     `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func inspection() map[string]*models.FormDefinition {
	return map[string]*models.FormDefinition{
		"inspeccion": {ID: "inspeccion", Title: "Inspección", Fields: []models.FieldDefinition{
			{ID: "nombre", Label: "Nombre", Type: models.FieldText, Required: true},
			{ID: "cedula", Label: "Cédula", Type: models.FieldText, Validation: "cedula"},
			{ID: "fotos", Label: "Fotos", Type: models.FieldFile, Multiple: true},
			{ID: "firma", Label: "Firma *", Type: models.FieldSignature},
			{ID: "tipo", Label: "Tipo", Type: models.FieldSelect, Options: []models.SelectOption{
				{Value: "otro", Label: "Otro motivo", DependentType: "text"},
			}},
		}},
	}
}

type harness struct {
	engine   *gin.Engine
	sessions *session.Registry
	baseDir  string
}

func newHarness(t *testing.T, maxUpload int64) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := session.NewRegistry(inspection(), session.Dependencies{
		Optimizer:       compress.NewOptimizer(compress.DefaultOptions()),
		TargetBytes:     500 * 1024,
		SignatureWidth:  120,
		SignatureHeight: 40,
		StrokeWidth:     2,
	}, time.Hour)

	dir := t.TempDir()
	store, err := storage.NewFromConfig("local", map[string]interface{}{"base_path": dir}, "")
	require.NoError(t, err)

	svc := submission.NewService(submission.NewGate(10*1024*1024), store)
	ctl := form.NewController(sessions, svc, maxUpload)
	return &harness{engine: router.New(gin.TestMode, ctl), sessions: sessions, baseDir: dir}
}

func (h *harness) do(t *testing.T, method, path string, body []byte, contentType string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (h *harness) createSession(t *testing.T) string {
	t.Helper()
	w, env := h.do(t, http.MethodPost, "/api/v1/forms/inspeccion/sessions", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var s struct {
		ID        string `json:"id"`
		Signature struct {
			Width int `json:"width"`
		} `json:"signature"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &s))
	require.NotEmpty(t, s.ID)
	require.Equal(t, 120, s.Signature.Width)
	return s.ID
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func multipartBody(t *testing.T, name, contentType string, data []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func (h *harness) sign(t *testing.T, sid string) {
	t.Helper()
	srv := httptest.NewServer(h.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + sid + "/signatures/firma/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var reply struct {
		State  string `json:"state"`
		HasInk bool   `json:"has_ink"`
		Error  string `json:"error"`
	}
	events := []map[string]interface{}{
		{"type": "pointerdown", "x": 10, "y": 10, "display_width": 240, "display_height": 80},
		{"type": "move", "x": 200, "y": 60, "display_width": 240, "display_height": 80},
		{"type": "up", "display_width": 240, "display_height": 80},
	}
	for _, ev := range events {
		require.NoError(t, conn.WriteJSON(ev))
		require.NoError(t, conn.ReadJSON(&reply))
	}
	assert.Equal(t, "idle", reply.State)
	assert.True(t, reply.HasInk)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "wheel"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Contains(t, reply.Error, "wheel")
}

func TestCreateSessionUnknownForm(t *testing.T) {
	h := newHarness(t, 1024*1024)
	w, env := h.do(t, http.MethodPost, "/api/v1/forms/nada/sessions", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errors.CodeFormNotFound, env.Code)

	w, env = h.do(t, http.MethodGet, "/api/v1/sessions/nada", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errors.CodeSessionNotFound, env.Code)
}

func TestUploadRemoveAndClear(t *testing.T) {
	h := newHarness(t, 1024*1024)
	sid := h.createSession(t)
	path := "/api/v1/sessions/" + sid + "/fields/fotos/files"

	body, ct := multipartBody(t, "frente.png", "image/png", pngBytes(t, 64, 48))
	w, env := h.do(t, http.MethodPost, path+"?mode=gallery-multi", body, ct)
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	var sel struct {
		Previews []struct {
			Name     string `json:"name"`
			MimeType string `json:"mime_type"`
		} `json:"previews"`
		Outcomes []struct {
			Name   string `json:"name"`
			Action string `json:"action"`
		} `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sel))
	require.Len(t, sel.Previews, 1)
	assert.Equal(t, "frente.png", sel.Outcomes[0].Name)
	assert.Equal(t, "optimized", sel.Outcomes[0].Action)
	assert.Equal(t, "image/jpeg", sel.Previews[0].MimeType)

	body, ct = multipartBody(t, "plano.pdf", "application/pdf", []byte("%PDF-1.4"))
	w, _ = h.do(t, http.MethodPost, path, body, ct)
	require.Equal(t, http.StatusOK, w.Code)

	s, err := h.sessions.Get(sid)
	require.NoError(t, err)
	require.Len(t, s.Manager.Attachments("fotos"), 2)

	w, _ = h.do(t, http.MethodDelete, path+"/0", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, s.Manager.Attachments("fotos"), 1)

	w, env = h.do(t, http.MethodDelete, path+"/5", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.CodeInvalidParameter, env.Code)

	w, _ = h.do(t, http.MethodDelete, path, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, s.Manager.Attachments("fotos"))
}

func TestUploadRejectedAtIntake(t *testing.T) {
	h := newHarness(t, 512)
	sid := h.createSession(t)
	path := "/api/v1/sessions/" + sid + "/fields/fotos/files"

	body, ct := multipartBody(t, "grande.bin", "application/octet-stream", make([]byte, 2048))
	w, env := h.do(t, http.MethodPost, path, body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, errors.CodeFileTooLarge, env.Code)

	body, ct = multipartBody(t, "falso.png", "image/png", []byte("no soy png"))
	w, env = h.do(t, http.MethodPost, path, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.CodeInvalidParameter, env.Code)

	w, _ = h.do(t, http.MethodPost, path+"?mode=scanner", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 图片类文件必须是允许的栅格格式
	svg, svgCT := multipartBody(t, "logo.svg", "image/svg+xml", []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`))
	w, env = h.do(t, http.MethodPost, path, svg, svgCT)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Message, ".svg")

	renamed, renamedCT := multipartBody(t, "foto.exe", "image/png", pngBytes(t, 8, 8))
	w, _ = h.do(t, http.MethodPost, path, renamed, renamedCT)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 非图片附件不受栅格列表限制
	notes, notesCT := multipartBody(t, "notas.txt", "text/plain", []byte("hola"))
	w, env = h.do(t, http.MethodPost, path, notes, notesCT)
	assert.Equal(t, http.StatusOK, w.Code, env.Message)

	w, env = h.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/fields/nombre/files", body, ct)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errors.CodeFieldNotFound, env.Code)
}

func TestCascadeSelect(t *testing.T) {
	h := newHarness(t, 1024)
	sid := h.createSession(t)

	w, env := h.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/cascades/tipo", []byte(`{"value":"otro"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Dependent struct {
			Name  string `json:"name"`
			Label string `json:"label"`
		} `json:"dependent"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.True(t, strings.HasPrefix(out.Dependent.Name, "tipo_"))
	assert.Equal(t, "Otro motivo", out.Dependent.Label)

	w, _ = h.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/cascades/tipo", []byte(`{"value":"x"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignerAndSignatureActions(t *testing.T) {
	h := newHarness(t, 1024)
	sid := h.createSession(t)
	base := "/api/v1/sessions/" + sid + "/signatures/firma"

	w, env := h.do(t, http.MethodPost, base+"/signer", []byte(`{"name":" Ana ","document":"CC 1.234","phone":"+57 300"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var signer models.SignerInfo
	require.NoError(t, json.Unmarshal(env.Data, &signer))
	assert.Equal(t, "Ana", signer.Name)
	assert.Equal(t, "1234", signer.Document)
	assert.Equal(t, "+57300", signer.Phone)

	w, env = h.do(t, http.MethodPost, base+"/signer", []byte(`{"document":"1"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "签名人姓名不能为空", env.Message)

	h.sign(t, sid)

	w, env = h.do(t, http.MethodPost, base+"/save", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "data:image/png;base64,")

	w, _ = h.do(t, http.MethodPost, base+"/clear", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	s, err := h.sessions.Get(sid)
	require.NoError(t, err)
	c, err := s.Surface.Get("firma")
	require.NoError(t, err)
	assert.False(t, c.HasInk())
}

func TestSubmitFlow(t *testing.T) {
	h := newHarness(t, 1024*1024)
	sid := h.createSession(t)
	submit := "/api/v1/sessions/" + sid + "/submit"

	w, env := h.do(t, http.MethodPost, submit, []byte(`{"values":{"nombre":"","cedula":"12"}}`), "application/json")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, errors.CodeValidationFailed, env.Code)
	assert.Contains(t, env.Message, "Nombre")
	assert.Contains(t, env.Message, "Firma")

	var problems []submission.Problem
	require.NoError(t, json.Unmarshal(env.Data, &problems))
	assert.Len(t, problems, 3)

	h.sign(t, sid)
	body, ct := multipartBody(t, "frente.png", "image/png", pngBytes(t, 32, 32))
	w, _ = h.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/fields/fotos/files", body, ct)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = h.do(t, http.MethodPost, submit, []byte("nombre=Ana&cedula=1234567"), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var receipt storage.Receipt
	require.NoError(t, json.Unmarshal(env.Data, &receipt))
	assert.Equal(t, 3, receipt.Objects)
	assert.NotEmpty(t, receipt.ManifestPath)

	w, _ = h.do(t, http.MethodGet, "/api/v1/sessions/"+sid, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionStateAndClose(t *testing.T) {
	h := newHarness(t, 1024)
	sid := h.createSession(t)

	w, env := h.do(t, http.MethodGet, "/api/v1/sessions/"+sid, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var state struct {
		Files      map[string]json.RawMessage `json:"files"`
		Signatures map[string]bool            `json:"signatures"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.Contains(t, state.Files, "fotos")
	assert.Equal(t, map[string]bool{"firma": false}, state.Signatures)

	w, _ = h.do(t, http.MethodDelete, "/api/v1/sessions/"+sid, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = h.do(t, http.MethodDelete, "/api/v1/sessions/"+sid, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
