package delivery

import (
	"context"

	chatmodel "SuperChat/module/chat/model"
)

// Store persists DeliveryRecords. Implementations enforce the monotone
// status machine in their update filters so a late MarkDelivered can never
// downgrade an acknowledged or expired record.
type Store interface {
	Insert(ctx context.Context, recs []*chatmodel.DeliveryRecord) error
	Get(ctx context.Context, serverMsgID, recipientID string) (*chatmodel.DeliveryRecord, error)

	// MarkDelivered transitions pending -> delivered. Returns false when the
	// record was not in pending (already delivered, acked or expired).
	MarkDelivered(ctx context.Context, serverMsgID, recipientID string, nowMS int64) (bool, error)
	// Acknowledge transitions pending|delivered -> acknowledged.
	Acknowledge(ctx context.Context, serverMsgID, recipientID string, nowMS int64) (bool, error)
	// Expire transitions pending|delivered -> expired. Returns true only for
	// the call that actually performed the transition.
	Expire(ctx context.Context, serverMsgID, recipientID string, nowMS int64) (bool, error)

	// MarkAttempt bumps the retry counter and stamp before a redelivery try.
	MarkAttempt(ctx context.Context, serverMsgID, recipientID string, nowMS int64) error

	// Due returns a snapshot of pending/delivered records whose last attempt
	// is older than beforeMS, ordered oldest first.
	Due(ctx context.Context, beforeMS int64, limit int64) ([]*chatmodel.DeliveryRecord, error)

	// PurgeExpired removes expired records older than beforeMS.
	PurgeExpired(ctx context.Context, beforeMS int64) (int64, error)
}
