package chat

import (
	"net"
	"net/http"

	"SuperChat/logger"
	"SuperChat/tools/errs"
	"SuperChat/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and runs the read loop. Writes never happen
// here; every outbound byte goes through the session's write pump.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade failed: %v", err)
		return
	}

	snowID := ids.GenerateString()
	conn := s.connMgr.AddUnauth(snowID, ws)
	s.connMgr.AttachPongHandler(ws, snowID)
	s.connMgr.StartWritePump(conn)
	defer s.connMgr.RemoveBySnow(snowID)

	s.Reply(conn, BuildConnAck(snowID, s.conf.GatewayID))

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed snowID=%s", snowID)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout snowID=%s err=%v", snowID, rerr)
			} else {
				logger.Infof("[ws] read err snowID=%s err=%v", snowID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		f, perr := ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[ws] bad frame snowID=%s err=%v sample=%q", snowID, perr, sample)
			continue
		}
		f.ConnID = snowID

		if derr := s.DispatchFrame(f, conn); derr != nil {
			logger.Infof("[ws] handle %s snowID=%s err=%v", f.Type, snowID, derr)
			// a missed auth deadline fails the whole connection attempt
			if errs.Code(derr) == errs.ErrAuthTimeout.ECode() {
				return
			}
		}
	}
}
