package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"SuperChat/module/chat/message"
	chatmodel "SuperChat/module/chat/model"
	"SuperChat/tools/errs"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type pushRecorder struct {
	mu    sync.Mutex
	ok    bool
	calls []string
}

func (p *pushRecorder) push(recipientID string, msg *chatmodel.MessageModel) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, recipientID+"/"+msg.ServerMsgID)
	return p.ok
}

func (p *pushRecorder) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type noticeRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (n *noticeRecorder) notify(recipientID, serverMsgID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, recipientID+"/"+serverMsgID)
}

type trackerFixture struct {
	clk     *stepClock
	store   *MemStore
	msgs    *message.MemStore
	push    *pushRecorder
	notices *noticeRecorder
	tracker *Tracker
	msg     *chatmodel.MessageModel
}

func newTrackerFixture(t *testing.T, retryMax int) *trackerFixture {
	t.Helper()
	fx := &trackerFixture{
		clk:     newStepClock(),
		store:   NewMemStore(),
		msgs:    message.NewMemStore(),
		push:    &pushRecorder{},
		notices: &noticeRecorder{},
	}
	fx.tracker = NewTracker(fx.store, fx.msgs, fx.push.push, fx.notices.notify, TrackerConf{
		RetryEvery: 30 * time.Second,
		RetryMax:   retryMax,
		Retention:  time.Hour,
		Clock:      fx.clk.Now,
	})
	fx.msg = &chatmodel.MessageModel{
		ConversationID: "c1",
		Seq:            1,
		ServerMsgID:    "srv-1",
		SenderID:       "alice",
		Content:        "hi",
		CreateTime:     fx.clk.Now().UnixMilli(),
	}
	if err := fx.msgs.Insert(context.Background(), fx.msg); err != nil {
		t.Fatalf("insert message: %v", err)
	}
	if err := fx.tracker.Track(context.Background(), fx.msg, []string{"bob"}); err != nil {
		t.Fatalf("track: %v", err)
	}
	return fx
}

func (fx *trackerFixture) record(t *testing.T) *chatmodel.DeliveryRecord {
	t.Helper()
	rec, err := fx.store.Get(context.Background(), "srv-1", "bob")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	return rec
}

func TestTrackCreatesOnePendingRecordPerRecipient(t *testing.T) {
	fx := newTrackerFixture(t, 5)
	rec := fx.record(t)
	if rec.Status != chatmodel.DeliveryPending || rec.Attempts != 0 {
		t.Fatalf("fresh record: %+v", rec)
	}

	// tracking the same message again must not reset the record
	_ = fx.store.MarkAttempt(context.Background(), "srv-1", "bob", fx.clk.Now().UnixMilli())
	if err := fx.tracker.Track(context.Background(), fx.msg, []string{"bob"}); err != nil {
		t.Fatalf("re-track: %v", err)
	}
	if rec := fx.record(t); rec.Attempts != 1 {
		t.Fatalf("re-track reset the record: %+v", rec)
	}
}

func TestSweepRetriesUntilPushSucceeds(t *testing.T) {
	fx := newTrackerFixture(t, 5)

	fx.clk.Advance(31 * time.Second)
	fx.tracker.SweepOnce(context.Background())
	if fx.push.count() != 1 {
		t.Fatalf("want 1 retry push, got %d", fx.push.count())
	}
	if rec := fx.record(t); rec.Status != chatmodel.DeliveryPending || rec.Attempts != 1 {
		t.Fatalf("after failed retry: %+v", rec)
	}

	// recipient comes back
	fx.push.ok = true
	fx.clk.Advance(31 * time.Second)
	fx.tracker.SweepOnce(context.Background())
	if rec := fx.record(t); rec.Status != chatmodel.DeliveryDelivered {
		t.Fatalf("after successful retry: %+v", rec)
	}
}

func TestSweepSkipsRecordsNotYetDue(t *testing.T) {
	fx := newTrackerFixture(t, 5)
	fx.clk.Advance(10 * time.Second)
	fx.tracker.SweepOnce(context.Background())
	if fx.push.count() != 0 {
		t.Fatalf("record retried before its retry interval, pushes=%d", fx.push.count())
	}
}

func TestBudgetExhaustedExpiresExactlyOnce(t *testing.T) {
	fx := newTrackerFixture(t, 2)

	for i := 0; i < 5; i++ {
		fx.clk.Advance(31 * time.Second)
		fx.tracker.SweepOnce(context.Background())
	}

	rec := fx.record(t)
	if rec.Status != chatmodel.DeliveryExpired {
		t.Fatalf("want expired, got %+v", rec)
	}
	if rec.Attempts != 2 {
		t.Fatalf("want exactly 2 attempts before expiry, got %d", rec.Attempts)
	}
	if got := len(fx.notices.calls); got != 1 {
		t.Fatalf("want exactly one expiry notice, got %d: %v", got, fx.notices.calls)
	}
	if fx.notices.calls[0] != "bob/srv-1" {
		t.Fatalf("notice went to %s", fx.notices.calls[0])
	}
}

func TestAcknowledgedRecordIsNeverRetried(t *testing.T) {
	fx := newTrackerFixture(t, 5)

	if err := fx.tracker.Acknowledge(context.Background(), "srv-1", "bob"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	// a second ack is a harmless no-op
	if err := fx.tracker.Acknowledge(context.Background(), "srv-1", "bob"); err != nil {
		t.Fatalf("second ack: %v", err)
	}

	fx.clk.Advance(time.Hour)
	fx.tracker.SweepOnce(context.Background())
	if fx.push.count() != 0 {
		t.Fatalf("acknowledged record was retried %d times", fx.push.count())
	}
	if rec := fx.record(t); rec.Status != chatmodel.DeliveryAcknowledged {
		t.Fatalf("ack state lost: %+v", rec)
	}
}

func TestAcknowledgeUnknownRecordFails(t *testing.T) {
	fx := newTrackerFixture(t, 5)
	err := fx.tracker.Acknowledge(context.Background(), "srv-1", "stranger")
	if errs.Code(err) != errs.ErrRecordNotFound.ECode() {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestLateMarkDeliveredCannotDowngrade(t *testing.T) {
	fx := newTrackerFixture(t, 5)
	if err := fx.tracker.Acknowledge(context.Background(), "srv-1", "bob"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := fx.tracker.MarkDelivered(context.Background(), "srv-1", "bob"); err != nil {
		t.Fatalf("late mark delivered: %v", err)
	}
	if rec := fx.record(t); rec.Status != chatmodel.DeliveryAcknowledged {
		t.Fatalf("late delivery downgraded the record: %+v", rec)
	}
}

func TestStatusReportsExpired(t *testing.T) {
	fx := newTrackerFixture(t, 1)
	for i := 0; i < 3; i++ {
		fx.clk.Advance(31 * time.Second)
		fx.tracker.SweepOnce(context.Background())
	}
	status, err := fx.tracker.Status(context.Background(), "srv-1", "bob")
	if status != chatmodel.DeliveryExpired {
		t.Fatalf("want expired status, got %v", status)
	}
	if errs.Code(err) != errs.ErrDeliveryExpired.ECode() {
		t.Fatalf("want delivery expired error, got %v", err)
	}
}

func TestPurgeRemovesOldExpiredRecords(t *testing.T) {
	fx := newTrackerFixture(t, 1)
	for i := 0; i < 3; i++ {
		fx.clk.Advance(31 * time.Second)
		fx.tracker.SweepOnce(context.Background())
	}
	if rec := fx.record(t); rec.Status != chatmodel.DeliveryExpired {
		t.Fatalf("precondition, want expired: %+v", rec)
	}

	// retention is an hour; jump past it and sweep again
	fx.clk.Advance(2 * time.Hour)
	fx.tracker.SweepOnce(context.Background())
	if _, err := fx.store.Get(context.Background(), "srv-1", "bob"); errs.Code(err) != errs.ErrRecordNotFound.ECode() {
		t.Fatalf("expired record survived retention: %v", err)
	}
}
