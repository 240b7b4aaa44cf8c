package delivery

import (
	"context"
	"sync"
	"time"

	"SuperChat/logger"
	"SuperChat/module/chat/message"
	chatmodel "SuperChat/module/chat/model"
	"SuperChat/tools/errs"
)

// PushFunc attempts to deliver the immutable message to one recipient's
// live sessions (local or via the relay). Returns true when the push was
// handed to at least one connection.
type PushFunc func(recipientID string, msg *chatmodel.MessageModel) bool

// NotifyFunc surfaces an undeliverable notice once a record expires.
type NotifyFunc func(recipientID, serverMsgID string)

type TrackerConf struct {
	RetryEvery time.Duration // age before a pending/unacked record is retried
	RetryMax   int           // attempts before the record expires
	Retention  time.Duration // how long expired records stay queryable
	SweepEvery time.Duration
	Clock      func() time.Time // injectable for tests; nil => time.Now
}

func (c *TrackerConf) norm() {
	if c.RetryEvery <= 0 {
		c.RetryEvery = 30 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 5
	}
	if c.Retention <= 0 {
		c.Retention = 7 * 24 * time.Hour
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 10 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Tracker drives the DeliveryRecord state machine: it records fan-out
// outcomes, redelivers unacknowledged messages on a periodic sweep and
// expires records whose retry budget ran out. The sweep runs on its own
// timer and never blocks live routing.
type Tracker struct {
	store  Store
	msgs   message.Store
	push   PushFunc
	notify NotifyFunc
	conf   TrackerConf

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewTracker(store Store, msgs message.Store, push PushFunc, notify NotifyFunc, conf TrackerConf) *Tracker {
	conf.norm()
	return &Tracker{
		store:  store,
		msgs:   msgs,
		push:   push,
		notify: notify,
		conf:   conf,
		stopCh: make(chan struct{}),
	}
}

// Track records one pending DeliveryRecord per recipient for a freshly
// persisted message.
func (t *Tracker) Track(ctx context.Context, msg *chatmodel.MessageModel, recipients []string) error {
	if len(recipients) == 0 {
		return nil
	}
	nowMS := t.conf.Clock().UnixMilli()
	recs := make([]*chatmodel.DeliveryRecord, 0, len(recipients))
	for _, r := range recipients {
		recs = append(recs, &chatmodel.DeliveryRecord{
			ServerMsgID:    msg.ServerMsgID,
			ConversationID: msg.ConversationID,
			RecipientID:    r,
			Status:         chatmodel.DeliveryPending,
			LastAttempt:    nowMS,
			CreateTime:     nowMS,
			UpdateTime:     nowMS,
		})
	}
	return t.store.Insert(ctx, recs)
}

// MarkDelivered transitions the record after a successful push. A record
// already past pending is left alone.
func (t *Tracker) MarkDelivered(ctx context.Context, serverMsgID, recipientID string) error {
	_, err := t.store.MarkDelivered(ctx, serverMsgID, recipientID, t.conf.Clock().UnixMilli())
	return err
}

// Acknowledge handles the recipient's explicit ack. Acking twice is a no-op;
// acking an unknown record is an error.
func (t *Tracker) Acknowledge(ctx context.Context, serverMsgID, recipientID string) error {
	if _, err := t.store.Get(ctx, serverMsgID, recipientID); err != nil {
		return err
	}
	_, err := t.store.Acknowledge(ctx, serverMsgID, recipientID, t.conf.Clock().UnixMilli())
	return err
}

// Run blocks on the sweep timer until Stop.
func (t *Tracker) Run() {
	ticker := time.NewTicker(t.conf.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.SweepOnce(context.Background())
		}
	}
}

func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// SweepOnce takes a snapshot of due records and works it: expired budget ->
// expire exactly once and notify; otherwise count the attempt and retry the
// push with the original message.
func (t *Tracker) SweepOnce(ctx context.Context) {
	now := t.conf.Clock()
	due, err := t.store.Due(ctx, now.Add(-t.conf.RetryEvery).UnixMilli(), 0)
	if err != nil {
		logger.Errorf("[delivery] sweep query failed: %v", err)
		return
	}

	for _, rec := range due {
		if rec.Attempts >= t.conf.RetryMax {
			t.expire(ctx, rec, now)
			continue
		}
		t.redeliver(ctx, rec, now)
	}

	if _, err := t.store.PurgeExpired(ctx, now.Add(-t.conf.Retention).UnixMilli()); err != nil {
		logger.Errorf("[delivery] purge failed: %v", err)
	}
}

func (t *Tracker) expire(ctx context.Context, rec *chatmodel.DeliveryRecord, now time.Time) {
	changed, err := t.store.Expire(ctx, rec.ServerMsgID, rec.RecipientID, now.UnixMilli())
	if err != nil {
		logger.Errorf("[delivery] expire failed msg=%s recipient=%s: %v",
			rec.ServerMsgID, rec.RecipientID, err)
		return
	}
	// only the transition winner emits the notice
	if changed && t.notify != nil {
		t.notify(rec.RecipientID, rec.ServerMsgID)
	}
}

func (t *Tracker) redeliver(ctx context.Context, rec *chatmodel.DeliveryRecord, now time.Time) {
	if err := t.store.MarkAttempt(ctx, rec.ServerMsgID, rec.RecipientID, now.UnixMilli()); err != nil {
		logger.Errorf("[delivery] mark attempt failed msg=%s recipient=%s: %v",
			rec.ServerMsgID, rec.RecipientID, err)
		return
	}
	msg, err := t.msgs.GetByServerID(ctx, rec.ServerMsgID)
	if err != nil {
		logger.Errorf("[delivery] load message failed msg=%s: %v", rec.ServerMsgID, err)
		return
	}
	if t.push == nil || !t.push(rec.RecipientID, msg) {
		return
	}
	if rec.Status == chatmodel.DeliveryPending {
		if _, err := t.store.MarkDelivered(ctx, rec.ServerMsgID, rec.RecipientID, now.UnixMilli()); err != nil {
			logger.Errorf("[delivery] mark delivered failed msg=%s recipient=%s: %v",
				rec.ServerMsgID, rec.RecipientID, err)
		}
	}
}

// Status exposes a record's current state for the REST surface.
func (t *Tracker) Status(ctx context.Context, serverMsgID, recipientID string) (chatmodel.DeliveryStatus, error) {
	rec, err := t.store.Get(ctx, serverMsgID, recipientID)
	if err != nil {
		return 0, err
	}
	if rec.Status == chatmodel.DeliveryExpired {
		return rec.Status, errs.ErrDeliveryExpired.Wrap()
	}
	return rec.Status, nil
}
