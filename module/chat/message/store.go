package message

import (
	"context"

	chatmodel "SuperChat/module/chat/model"
)

// Store abstracts message persistence: the Mongo implementation is the
// production one, the mem implementation backs tests.
//
// Insert is the single point of truth for routing: until it returns nil the
// message does not exist and no fan-out may happen.
type Store interface {
	Insert(ctx context.Context, m *chatmodel.MessageModel) error
	GetByServerID(ctx context.Context, serverMsgID string) (*chatmodel.MessageModel, error)
	// List returns messages with seq > fromSeq ordered by ascending seq.
	List(ctx context.Context, convID string, fromSeq, limit int64) ([]*chatmodel.MessageModel, error)
	// MaxSeq reports the highest persisted seq (0 when empty); also serves
	// as the sequencer's durable floor.
	MaxSeq(ctx context.Context, convID string) (int64, error)

	// IsDupSeq reports whether err is a unique-seq violation, which the
	// router resolves by reconciling the sequencer and retrying.
	IsDupSeq(err error) bool
}
