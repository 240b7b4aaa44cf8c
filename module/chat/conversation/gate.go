package conversation

import (
	"context"

	chatmodel "SuperChat/module/chat/model"
	"SuperChat/tools/errs"
)

// Gate authorizes conversation access. It reads membership from the store
// on every call; there is no cache to go stale, so a membership change is
// visible to the next Authorize.
type Gate struct {
	store Store
}

func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// Authorize returns nil when userID may post to convID. A non-member gets
// ErrForbidden, never a silent drop; a missing conversation surfaces as
// ErrRecordNotFound.
func (g *Gate) Authorize(ctx context.Context, userID, convID string) error {
	_, err := g.Resolve(ctx, userID, convID)
	return err
}

// Resolve authorizes userID and returns the conversation so the router can
// fan out to the membership it just validated against.
func (g *Gate) Resolve(ctx context.Context, userID, convID string) (*chatmodel.Conversation, error) {
	conv, err := g.store.Get(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv.Archived {
		return nil, errs.ErrForbidden.WrapMsg("conversation archived", "conv", convID)
	}
	if !conv.HasMember(userID) {
		return nil, errs.ErrForbidden.WrapMsg("not a member", "user", userID, "conv", convID)
	}
	return conv, nil
}
