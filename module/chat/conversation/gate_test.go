package conversation

import (
	"context"
	"testing"
	"time"

	chatmodel "SuperChat/module/chat/model"
	"SuperChat/tools/errs"
)

func newGateFixture(t *testing.T) (*MemStore, *Gate) {
	t.Helper()
	store := NewMemStore()
	err := store.Create(context.Background(), &chatmodel.Conversation{
		ConversationID: "c1",
		CreatorID:      "alice",
		Members:        []string{"alice", "bob"},
		CreateTime:     time.Now(),
		UpdateTime:     time.Now(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return store, NewGate(store)
}

func TestGateAllowsMembers(t *testing.T) {
	_, gate := newGateFixture(t)
	conv, err := gate.Resolve(context.Background(), "alice", "c1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if conv.ConversationID != "c1" {
		t.Fatalf("wrong conversation: %+v", conv)
	}
}

func TestGateDeniesNonMembers(t *testing.T) {
	_, gate := newGateFixture(t)
	if err := gate.Authorize(context.Background(), "mallory", "c1"); errs.Code(err) != errs.ErrForbidden.ECode() {
		t.Fatalf("want forbidden, got %v", err)
	}
}

func TestGateUnknownConversation(t *testing.T) {
	_, gate := newGateFixture(t)
	if err := gate.Authorize(context.Background(), "alice", "ghost"); errs.Code(err) != errs.ErrRecordNotFound.ECode() {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestGateDeniesArchived(t *testing.T) {
	store, gate := newGateFixture(t)
	if err := store.Archive(context.Background(), "c1"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := gate.Authorize(context.Background(), "alice", "c1"); errs.Code(err) != errs.ErrForbidden.ECode() {
		t.Fatalf("want forbidden on archived, got %v", err)
	}
}

func TestMembershipChangesAreImmediatelyVisible(t *testing.T) {
	store, gate := newGateFixture(t)

	if err := gate.Authorize(context.Background(), "carol", "c1"); errs.Code(err) != errs.ErrForbidden.ECode() {
		t.Fatalf("carol allowed before joining: %v", err)
	}
	if err := store.AddMember(context.Background(), "c1", "carol"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := gate.Authorize(context.Background(), "carol", "c1"); err != nil {
		t.Fatalf("carol denied right after joining: %v", err)
	}
	if err := store.RemoveMember(context.Background(), "c1", "carol"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if err := gate.Authorize(context.Background(), "carol", "c1"); errs.Code(err) != errs.ErrForbidden.ECode() {
		t.Fatalf("carol allowed right after leaving: %v", err)
	}
}

func TestAddMemberIsIdempotent(t *testing.T) {
	store, _ := newGateFixture(t)
	if err := store.AddMember(context.Background(), "c1", "bob"); err != nil {
		t.Fatalf("re-add member: %v", err)
	}
	conv, err := store.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	count := 0
	for _, m := range conv.Members {
		if m == "bob" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("bob appears %d times", count)
	}
}
