package chat

import (
	"context"
	"time"

	"SuperChat/logger"
	"SuperChat/module/chat/conversation"
	"SuperChat/module/chat/delivery"
	"SuperChat/module/chat/message"
	chatmodel "SuperChat/module/chat/model"
	"SuperChat/module/chat/seq"
	"SuperChat/service/natsx"
	"SuperChat/service/storage"
	"SuperChat/tools/safe"
	"SuperChat/tools/security"
)

type ServerConf struct {
	GatewayID   string
	AuthTimeout time.Duration
	ClaimsMode  string
	Manager     ManagerConf
	Tracker     delivery.TrackerConf
}

// Server ties the gateway together: the session registry, the frame
// dispatcher, the routing pipeline and the delivery tracker.
type Server struct {
	conf     ServerConf
	connMgr  *ConnManager
	disp     *Dispatcher
	router   *Router
	tracker  *delivery.Tracker
	presence *storage.Presence
	verifier *security.Verifier
	relay    *natsx.Relay
}

func NewServer(conf ServerConf, gate *conversation.Gate, sequencer seq.Sequencer,
	msgs message.Store, deliveries delivery.Store, presence *storage.Presence,
	relay *natsx.Relay, verifier *security.Verifier) *Server {

	s := &Server{
		conf:     conf,
		disp:     NewDispatcher(),
		presence: presence,
		verifier: verifier,
		relay:    relay,
	}

	mconf := conf.Manager
	if presence != nil {
		mconf.OnUserOnline = func(userID string) {
			if err := presence.Online(context.Background(), userID, conf.GatewayID); err != nil {
				logger.Log.Sugar().Warnw("presence online", "userID", userID, "err", err)
			}
		}
		mconf.OnUserOffline = func(userID string) {
			if err := presence.Offline(context.Background(), userID); err != nil {
				logger.Log.Sugar().Warnw("presence offline", "userID", userID, "err", err)
			}
		}
	}
	s.connMgr = NewConnManager(mconf)

	s.tracker = delivery.NewTracker(deliveries, msgs, s.pushMessage, s.notifyExpired, conf.Tracker)

	var presenceLookup PresenceLookup
	if presence != nil {
		presenceLookup = presence
	}
	var deliverRelay DeliverRelay
	if relay != nil {
		deliverRelay = relay
	}
	s.router = NewRouter(
		RouterConf{GatewayID: conf.GatewayID, ClaimsMode: conf.ClaimsMode},
		gate, sequencer, msgs, s.tracker, s.connMgr, presenceLookup, deliverRelay, verifier,
	)

	if relay != nil {
		if err := relay.SubscribeLocal(s.onRelayDeliver); err != nil {
			logger.Log.Sugar().Errorw("subscribe relay", "gatewayID", conf.GatewayID, "err", err)
		}
	}
	return s
}

func (s *Server) ConnMgr() *ConnManager        { return s.connMgr }
func (s *Server) Disp() *Dispatcher            { return s.disp }
func (s *Server) Router() *Router              { return s.router }
func (s *Server) Tracker() *delivery.Tracker   { return s.tracker }
func (s *Server) Verifier() *security.Verifier { return s.verifier }
func (s *Server) GatewayID() string            { return s.conf.GatewayID }
func (s *Server) AuthTimeout() time.Duration   { return s.conf.AuthTimeout }
func (s *Server) PingInterval() time.Duration  { return s.conf.Manager.PingInterval }

func (s *Server) DispatchFrame(f *Frame, conn *WsConn) error {
	return s.disp.Dispatch(&ChatContext{S: s}, f, conn)
}

// Reply encodes a frame onto the session's send queue.
func (s *Server) Reply(conn *WsConn, f *Frame) {
	raw, err := f.Encode()
	if err != nil {
		logger.Log.Sugar().Errorw("encode reply", "type", string(f.Type), "err", err)
		return
	}
	s.connMgr.Push(conn, raw)
}

// pushMessage is the tracker's redelivery path. Local sessions first; a
// recipient attached to a peer gateway gets the frame over the relay, and
// that gateway marks the record delivered on push.
func (s *Server) pushMessage(recipientID string, msg *chatmodel.MessageModel) bool {
	raw, err := BuildDeliver(msg, recipientID).Encode()
	if err != nil {
		logger.Log.Sugar().Errorw("encode redeliver frame", "serverMsgID", msg.ServerMsgID, "err", err)
		return false
	}
	if s.connMgr.PushUser(recipientID, raw) > 0 {
		return true
	}
	if s.presence == nil || s.relay == nil {
		return false
	}
	gw, online, err := s.presence.Lookup(context.Background(), recipientID)
	if err != nil || !online || gw == s.conf.GatewayID {
		return false
	}
	if err := s.relay.PublishDeliver(gw, raw); err != nil {
		logger.Log.Sugar().Warnw("relay redeliver", "serverMsgID", msg.ServerMsgID, "gatewayID", gw, "err", err)
	}
	return false
}

// notifyExpired tells a recipient, best effort, that a message gave up its
// delivery budget.
func (s *Server) notifyExpired(recipientID, serverMsgID string) {
	raw, err := BuildExpiredNotice(recipientID, serverMsgID).Encode()
	if err != nil {
		return
	}
	s.connMgr.PushUser(recipientID, raw)
}

// onRelayDeliver handles frames forwarded by a peer gateway for users
// attached here.
func (s *Server) onRelayDeliver(raw []byte) {
	f, err := ParseFrame(raw)
	if err != nil {
		logger.Log.Sugar().Warnw("bad relay frame", "err", err)
		return
	}
	if f.Type != FrameDeliver || f.To == "" {
		return
	}
	if s.connMgr.PushUser(f.To, raw) == 0 {
		return
	}
	sid, _ := f.Payload["server_msg_id"].(string)
	if sid == "" {
		return
	}
	if err := s.tracker.MarkDelivered(context.Background(), sid, f.To); err != nil {
		logger.Log.Sugar().Warnw("mark relayed delivery", "serverMsgID", sid, "recipientID", f.To, "err", err)
	}
}

func (s *Server) Start() {
	safe.Go(s.tracker.Run)
}

func (s *Server) Close() {
	s.tracker.Stop()
	s.connMgr.Close()
	if s.relay != nil {
		_ = s.relay.Close()
	}
}
