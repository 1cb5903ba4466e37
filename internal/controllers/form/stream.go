package form

import (
	"formcapture/internal/controllers/form/dto"
	"formcapture/internal/services/signature"
	"formcapture/pkg/errors"
	"formcapture/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// SignatureStream 签名画布的指针事件流
// 每个事件回复 {state, has_ink}；连接断开视为指针离开
func (ctl *Controller) SignatureStream(c *gin.Context) {
	s, ok := ctl.session(c)
	if !ok {
		return
	}
	canvas, err := s.Surface.Get(c.Param("fieldId"))
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	conn, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("签名流升级失败: %v", err)
		return
	}
	defer conn.Close()
	defer canvas.Handle(signature.PointerEvent{Type: signature.EventLeave})

	for {
		var ev dto.StreamEventDTO
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("签名流异常断开 %s/%s: %v", s.ID, canvas.FieldID(), err)
			}
			return
		}

		t, known := signature.ParseEventType(ev.Type)
		if !known {
			if err := conn.WriteJSON(dto.StreamReplyDTO{HasInk: canvas.HasInk(), Error: "未知事件: " + ev.Type}); err != nil {
				return
			}
			continue
		}

		state := canvas.Handle(signature.PointerEvent{
			Type:          t,
			X:             ev.X,
			Y:             ev.Y,
			DisplayWidth:  ev.DisplayWidth,
			DisplayHeight: ev.DisplayHeight,
		})
		s.Touch(ctl.now())
		if err := conn.WriteJSON(dto.StreamReplyDTO{State: string(state), HasInk: canvas.HasInk()}); err != nil {
			return
		}
	}
}
