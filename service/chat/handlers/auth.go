package handlers

import (
	"context"

	"SuperChat/logger"
	"SuperChat/service/chat"
	"SuperChat/tools/errs"
)

// AuthHandler verifies the bearer token off the AUTH frame and promotes the
// connection to a user session. A verification that misses the auth
// deadline fails the connection attempt.
type AuthHandler struct{}

func NewAuthHandler() chat.Handler          { return &AuthHandler{} }
func (h *AuthHandler) Type() chat.FrameType { return chat.FrameAuth }

func (h *AuthHandler) Handle(ctx *chat.ChatContext, f *chat.Frame, conn *chat.WsConn) error {
	s := ctx.S
	ap, err := chat.ExtractAuthPayload(f)
	if err != nil || ap.Token == "" {
		e := errs.ErrArgs.WrapMsg("auth payload missing token")
		s.Reply(conn, chat.BuildError(f, e))
		return e
	}

	vctx, cancel := context.WithTimeout(context.Background(), s.AuthTimeout())
	ident, verr := s.Verifier().Verify(vctx, ap.Token)
	cancel()
	if verr != nil {
		s.Reply(conn, chat.BuildError(f, verr))
		logger.Infof("[auth] verify failed snowID=%s err=%v", conn.SnowID, verr)
		return verr
	}

	if berr := s.ConnMgr().BindUser(conn.SnowID, ident, ap.Token); berr != nil {
		s.Reply(conn, chat.BuildError(f, berr))
		return berr
	}

	logger.Infof("[auth] session bound user=%s snowID=%s", ident.Subject, conn.SnowID)
	s.Reply(conn, chat.BuildAuthAck(conn.SnowID, ident.Subject, s.PingInterval(), 3*s.PingInterval()))
	return nil
}
