package signature

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"formcapture/internal/models"

	"github.com/disintegration/imaging"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/math/fixed"
)

// State 画布状态
type State string

const (
	StateIdle    State = "idle"
	StateDrawing State = "drawing"
)

// EventType 指针事件类型
type EventType string

const (
	EventDown  EventType = "down"
	EventMove  EventType = "move"
	EventUp    EventType = "up"
	EventLeave EventType = "leave"
)

// 触摸事件与指针事件等价
var eventAliases = map[string]EventType{
	"pointerdown":  EventDown,
	"mousedown":    EventDown,
	"touchstart":   EventDown,
	"pointermove":  EventMove,
	"mousemove":    EventMove,
	"touchmove":    EventMove,
	"pointerup":    EventUp,
	"mouseup":      EventUp,
	"touchend":     EventUp,
	"touchcancel":  EventUp,
	"pointerleave": EventLeave,
	"mouseleave":   EventLeave,
	"mouseout":     EventLeave,
}

// ParseEventType 解析事件名
func ParseEventType(s string) (EventType, bool) {
	switch t := EventType(s); t {
	case EventDown, EventMove, EventUp, EventLeave:
		return t, true
	}
	t, ok := eventAliases[s]
	return t, ok
}

// PointerEvent 以 CSS 像素表示的指针事件及画布当前的显示尺寸
type PointerEvent struct {
	Type          EventType `json:"type"`
	X             float64   `json:"x"`
	Y             float64   `json:"y"`
	DisplayWidth  float64   `json:"display_width"`
	DisplayHeight float64   `json:"display_height"`
}

// Canvas 单个签名字段的固定分辨率画布
type Canvas struct {
	mu sync.Mutex

	fieldID     string
	img         *image.RGBA
	stroker     *rasterx.Stroker
	strokeWidth float64
	state       State
	lastX       float64
	lastY       float64
	serialized  string
	signer      models.SignerInfo
}

func NewCanvas(fieldID string, width, height int, strokeWidth float64) *Canvas {
	if strokeWidth <= 0 {
		strokeWidth = 2
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	stroker := rasterx.NewStroker(width, height, scanner)
	stroker.SetStroke(fixed.Int26_6(strokeWidth*64), 4*64, rasterx.RoundCap, rasterx.RoundCap, rasterx.RoundGap, rasterx.Round)
	stroker.SetColor(color.Black)

	return &Canvas{
		fieldID:     fieldID,
		img:         img,
		stroker:     stroker,
		strokeWidth: strokeWidth,
		state:       StateIdle,
	}
}

func (c *Canvas) FieldID() string { return c.fieldID }

// Size 内部栅格尺寸
func (c *Canvas) Size() (int, int) {
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

func (c *Canvas) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// toRaster 每次事件都按当前显示尺寸重新计算缩放比例
func (c *Canvas) toRaster(ev PointerEvent) (float64, float64) {
	w, h := c.Size()
	sx, sy := 1.0, 1.0
	if ev.DisplayWidth > 0 {
		sx = float64(w) / ev.DisplayWidth
	}
	if ev.DisplayHeight > 0 {
		sy = float64(h) / ev.DisplayHeight
	}
	return ev.X * sx, ev.Y * sy
}

// Handle 处理一个指针事件，返回处理后的状态
func (c *Canvas) Handle(ev PointerEvent) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case EventDown:
		c.lastX, c.lastY = c.toRaster(ev)
		c.state = StateDrawing
	case EventMove:
		if c.state != StateDrawing {
			break
		}
		x, y := c.toRaster(ev)
		c.segment(c.lastX, c.lastY, x, y)
		c.lastX, c.lastY = x, y
	case EventUp, EventLeave:
		c.state = StateIdle
	}
	return c.state
}

// segment 立即绘制一段笔画
func (c *Canvas) segment(x0, y0, x1, y1 float64) {
	c.stroker.Clear()
	c.stroker.Start(rasterx.ToFixedP(x0, y0))
	c.stroker.Line(rasterx.ToFixedP(x1, y1))
	c.stroker.Stop(false)
	c.stroker.Draw()
}

// HasInk 扫描像素，存在非纯白像素即视为已签名
func (c *Canvas) HasInk() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return hasInk(c.img)
}

func hasInk(img *image.RGBA) bool {
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		if pix[i] != 0xFF || pix[i+1] != 0xFF || pix[i+2] != 0xFF {
			return true
		}
	}
	return false
}

// Clear 擦除画布并清空已保存的值
func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	draw.Draw(c.img, c.img.Bounds(), image.White, image.Point{}, draw.Src)
	c.serialized = ""
	c.state = StateIdle
}

// Save 将当前画布编码为 PNG data URL 并写入隐藏字段值
func (c *Canvas) Save() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, c.img, imaging.PNG); err != nil {
		return "", err
	}
	c.serialized = "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	return c.serialized, nil
}

// Value 隐藏字段中的当前值
func (c *Canvas) Value() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serialized
}

// Signer 签名人信息
func (c *Canvas) Signer() models.SignerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signer
}

// SetSigner 校验并规范化签名人信息
func (c *Canvas) SetSigner(info models.SignerInfo) error {
	normalized, err := NormalizeSigner(info)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.signer = normalized
	c.mu.Unlock()
	return nil
}
