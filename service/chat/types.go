package chat

type Handler interface {
	Type() FrameType
	Handle(*ChatContext, *Frame, *WsConn) error
}

type ChatContext struct {
	S *Server
}
