package handlers

import (
	"SuperChat/service/chat"
)

// PingHandler refreshes the session deadline on app-level heartbeats and
// echoes the frame back.
type PingHandler struct{}

func NewPingHandler() chat.Handler          { return &PingHandler{} }
func (h *PingHandler) Type() chat.FrameType { return chat.FramePing }

func (h *PingHandler) Handle(ctx *chat.ChatContext, f *chat.Frame, conn *chat.WsConn) error {
	if err := ctx.S.ConnMgr().Heartbeat(conn.SnowID); err != nil {
		return err
	}
	ctx.S.Reply(conn, chat.BuildPong(conn.SnowID))
	return nil
}
