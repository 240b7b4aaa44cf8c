package handlers

import (
	"context"

	"SuperChat/service/chat"
	"SuperChat/tools/errs"
)

// SendHandler feeds SEND frames into the routing pipeline and answers with
// a SACK carrying the server message id and sequence, or an ERR frame.
type SendHandler struct{}

func NewSendHandler() chat.Handler          { return &SendHandler{} }
func (h *SendHandler) Type() chat.FrameType { return chat.FrameSend }

func (h *SendHandler) Handle(ctx *chat.ChatContext, f *chat.Frame, conn *chat.WsConn) error {
	s := ctx.S
	if !conn.Authorized {
		e := errs.ErrUnauthorized.WrapMsg("send before auth")
		s.Reply(conn, chat.BuildError(f, e))
		return e
	}
	sp, err := chat.ExtractSendPayload(f)
	if err != nil {
		e := errs.ErrArgs.WrapMsg("bad send payload")
		s.Reply(conn, chat.BuildError(f, e))
		return e
	}

	msg, rerr := s.Router().Route(context.Background(), conn, f.ConvID, sp)
	if rerr != nil {
		s.Reply(conn, chat.BuildError(f, rerr))
		return rerr
	}
	s.Reply(conn, chat.BuildSendAck(f, msg))
	return nil
}
