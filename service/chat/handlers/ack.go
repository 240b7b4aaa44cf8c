package handlers

import (
	"context"

	"SuperChat/service/chat"
	"SuperChat/tools/errs"
)

// AckHandler finalizes a delivery record when the recipient confirms a
// pushed message.
type AckHandler struct{}

func NewAckHandler() chat.Handler          { return &AckHandler{} }
func (h *AckHandler) Type() chat.FrameType { return chat.FrameAck }

func (h *AckHandler) Handle(ctx *chat.ChatContext, f *chat.Frame, conn *chat.WsConn) error {
	s := ctx.S
	if !conn.Authorized {
		e := errs.ErrUnauthorized.WrapMsg("ack before auth")
		s.Reply(conn, chat.BuildError(f, e))
		return e
	}
	ap, err := chat.ExtractAckPayload(f)
	if err != nil || ap.ServerMsgID == "" {
		e := errs.ErrArgs.WrapMsg("ack payload missing server_msg_id")
		s.Reply(conn, chat.BuildError(f, e))
		return e
	}

	if aerr := s.Tracker().Acknowledge(context.Background(), ap.ServerMsgID, conn.UserID); aerr != nil {
		s.Reply(conn, chat.BuildError(f, aerr))
		return aerr
	}
	return nil
}
