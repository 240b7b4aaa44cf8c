package conversation

import (
	"context"

	chatmodel "SuperChat/module/chat/model"
)

// Store holds conversations and their membership. Membership mutations are
// synchronous: a successful AddMember/RemoveMember is visible to the very
// next Get or Authorize.
type Store interface {
	Create(ctx context.Context, conv *chatmodel.Conversation) error
	Get(ctx context.Context, convID string) (*chatmodel.Conversation, error)
	AddMember(ctx context.Context, convID, userID string) error
	RemoveMember(ctx context.Context, convID, userID string) error
	Archive(ctx context.Context, convID string) error
}
