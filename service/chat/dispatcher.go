package chat

import (
	"SuperChat/tools/errs"
)

type Dispatcher struct {
	handlers map[FrameType]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[FrameType]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Type()] = h }

func (d *Dispatcher) Dispatch(ctx *ChatContext, f *Frame, conn *WsConn) error {
	h, ok := d.handlers[f.Type]
	if !ok {
		return errs.ErrArgs.WrapMsg("no handler for frame type", "type", string(f.Type))
	}
	return h.Handle(ctx, f, conn)
}
