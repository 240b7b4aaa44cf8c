package chat

import (
	"context"
	"hash/fnv"
	"sync"

	"SuperChat/global"
	"SuperChat/logger"
	"SuperChat/module/chat/conversation"
	"SuperChat/module/chat/delivery"
	"SuperChat/module/chat/message"
	chatmodel "SuperChat/module/chat/model"
	"SuperChat/module/chat/seq"
	"SuperChat/tools/errs"
	"SuperChat/tools/ids"
	"SuperChat/tools/security"
)

const routerStripes = 64

// Pusher is the local session surface the router fans out through.
type Pusher interface {
	PushUser(userID string, data []byte) int
}

// PresenceLookup answers where a user is attached cluster-wide.
type PresenceLookup interface {
	Lookup(ctx context.Context, userID string) (gatewayID string, online bool, err error)
}

// DeliverRelay forwards an encoded deliver frame to a peer gateway.
type DeliverRelay interface {
	PublishDeliver(targetGateway string, raw []byte) error
}

// reconciler is the optional fast-path repair a sequence allocator may offer
// when the persisted stream is ahead of the counter.
type reconciler interface {
	ReconcileAndNext(ctx context.Context, conversationID string, dbMax int64) (int64, error)
}

type RouterConf struct {
	GatewayID  string
	ClaimsMode string // global.ClaimsCacheNone re-verifies the token per route
}

// Router runs the send pipeline: authorize, sequence, persist, record,
// fan out. A striped mutex serializes the pipeline per conversation so
// sequence order and enqueue order cannot diverge.
type Router struct {
	conf     RouterConf
	gate     *conversation.Gate
	seq      seq.Sequencer
	msgs     message.Store
	tracker  *delivery.Tracker
	pusher   Pusher
	presence PresenceLookup
	relay    DeliverRelay
	verifier *security.Verifier

	locks [routerStripes]sync.Mutex
}

func NewRouter(conf RouterConf, gate *conversation.Gate, sequencer seq.Sequencer, msgs message.Store,
	tracker *delivery.Tracker, pusher Pusher, presence PresenceLookup, relay DeliverRelay,
	verifier *security.Verifier) *Router {
	return &Router{
		conf:     conf,
		gate:     gate,
		seq:      sequencer,
		msgs:     msgs,
		tracker:  tracker,
		pusher:   pusher,
		presence: presence,
		relay:    relay,
		verifier: verifier,
	}
}

func (r *Router) stripe(conversationID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return &r.locks[h.Sum32()%routerStripes]
}

// Route accepts a message from an authenticated session and returns the
// persisted record once it is sequenced and stored. Authorization failures
// consume no sequence number and leave no trace.
func (r *Router) Route(ctx context.Context, sess *WsConn, conversationID string, p *SendPayload) (*chatmodel.MessageModel, error) {
	if sess == nil || !sess.Authorized || sess.UserID == "" {
		return nil, errs.ErrUnauthorized.WrapMsg("session not authenticated")
	}
	if conversationID == "" {
		return nil, errs.ErrArgs.WrapMsg("conversation id missing")
	}
	senderID := sess.UserID
	if err := r.checkClaims(ctx, sess); err != nil {
		return nil, err
	}

	conv, err := r.gate.Resolve(ctx, senderID, conversationID)
	if err != nil {
		return nil, err
	}

	mu := r.stripe(conversationID)
	mu.Lock()
	defer mu.Unlock()

	msg, err := r.persist(ctx, conversationID, senderID, p)
	if err != nil {
		return nil, err
	}

	recipients := make([]string, 0, len(conv.Members))
	for _, m := range conv.Members {
		if m != senderID {
			recipients = append(recipients, m)
		}
	}
	if len(recipients) > 0 {
		// The message is already durable; delivery bookkeeping failures are
		// logged, never surfaced to the sender.
		if err := r.tracker.Track(ctx, msg, recipients); err != nil {
			logger.Log.Sugar().Errorw("track delivery records", "serverMsgID", msg.ServerMsgID, "err", err)
		}
		r.fanOut(ctx, msg, recipients)
	}
	return msg, nil
}

// checkClaims re-verifies the bearer token on every route when claim
// caching is off. With session-ttl caching the identity pinned at
// handshake is trusted for the session's lifetime.
func (r *Router) checkClaims(ctx context.Context, sess *WsConn) error {
	if r.conf.ClaimsMode != global.ClaimsCacheNone || r.verifier == nil {
		return nil
	}
	ident, err := r.verifier.Verify(ctx, sess.Token)
	if err != nil {
		return errs.ErrUnauthorized.WrapMsg("token no longer valid")
	}
	if ident.Subject != sess.UserID {
		return errs.ErrUnauthorized.WrapMsg("token subject changed")
	}
	return nil
}

func (r *Router) persist(ctx context.Context, conversationID, senderID string, p *SendPayload) (*chatmodel.MessageModel, error) {
	seqNo, err := r.seq.Next(ctx, conversationID)
	if err != nil {
		return nil, errs.ErrPersistenceFailed.WrapMsg("allocate sequence", "conversationID", conversationID)
	}
	msg := r.newMessage(conversationID, senderID, seqNo, p)
	err = r.msgs.Insert(ctx, msg)
	if err == nil {
		return msg, nil
	}
	if !r.msgs.IsDupSeq(err) {
		return nil, errs.ErrPersistenceFailed.WrapMsg("insert message", "conversationID", conversationID)
	}

	// The counter fell behind the stored stream, e.g. after a cache flush.
	// Raise it over the persisted max and retry once.
	rec, ok := r.seq.(reconciler)
	if !ok {
		return nil, errs.ErrPersistenceFailed.WrapMsg("duplicate sequence", "conversationID", conversationID, "seq", seqNo)
	}
	dbMax, err := r.msgs.MaxSeq(ctx, conversationID)
	if err != nil {
		return nil, errs.ErrPersistenceFailed.WrapMsg("load max seq", "conversationID", conversationID)
	}
	seqNo, err = rec.ReconcileAndNext(ctx, conversationID, dbMax)
	if err != nil {
		return nil, errs.ErrPersistenceFailed.WrapMsg("reconcile sequence", "conversationID", conversationID)
	}
	msg = r.newMessage(conversationID, senderID, seqNo, p)
	if err := r.msgs.Insert(ctx, msg); err != nil {
		return nil, errs.ErrPersistenceFailed.WrapMsg("insert message after reconcile", "conversationID", conversationID)
	}
	return msg, nil
}

func (r *Router) newMessage(conversationID, senderID string, seqNo int64, p *SendPayload) *chatmodel.MessageModel {
	ct := p.ContentType
	if ct == 0 {
		ct = chatmodel.ContentTypeText
	}
	return &chatmodel.MessageModel{
		ConversationID: conversationID,
		Seq:            seqNo,
		ServerMsgID:    ids.GenerateString(),
		ClientMsgID:    p.ClientMsgID,
		SenderID:       senderID,
		ContentType:    ct,
		Content:        p.Content,
		CreateTime:     nowMilli(),
	}
}

// fanOut pushes to local sessions, relays to the recipient's gateway when
// they are attached elsewhere, and otherwise leaves the record pending for
// the retry sweep.
func (r *Router) fanOut(ctx context.Context, msg *chatmodel.MessageModel, recipients []string) {
	for _, rid := range recipients {
		frame := BuildDeliver(msg, rid)
		raw, err := frame.Encode()
		if err != nil {
			logger.Log.Sugar().Errorw("encode deliver frame", "serverMsgID", msg.ServerMsgID, "err", err)
			continue
		}
		if n := r.pusher.PushUser(rid, raw); n > 0 {
			if err := r.tracker.MarkDelivered(ctx, msg.ServerMsgID, rid); err != nil {
				logger.Log.Sugar().Warnw("mark delivered", "serverMsgID", msg.ServerMsgID, "recipientID", rid, "err", err)
			}
			continue
		}
		if r.presence == nil || r.relay == nil {
			continue
		}
		gw, online, err := r.presence.Lookup(ctx, rid)
		if err != nil || !online || gw == r.conf.GatewayID {
			continue
		}
		if err := r.relay.PublishDeliver(gw, raw); err != nil {
			logger.Log.Sugar().Warnw("relay deliver", "serverMsgID", msg.ServerMsgID, "gatewayID", gw, "err", err)
		}
	}
}
