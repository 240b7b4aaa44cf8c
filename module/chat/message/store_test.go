package message

import (
	"context"
	"fmt"
	"testing"

	chatmodel "SuperChat/module/chat/model"
	"SuperChat/tools/errs"
)

func seed(t *testing.T, s *MemStore, convID string, seqs ...int64) {
	t.Helper()
	for _, q := range seqs {
		err := s.Insert(context.Background(), &chatmodel.MessageModel{
			ConversationID: convID,
			Seq:            q,
			ServerMsgID:    fmt.Sprintf("%s-srv-%d", convID, q),
			SenderID:       "alice",
			Content:        "m",
		})
		if err != nil {
			t.Fatalf("insert seq %d: %v", q, err)
		}
	}
}

func TestInsertRejectsDuplicateSeq(t *testing.T) {
	s := NewMemStore()
	seed(t, s, "c1", 1)

	err := s.Insert(context.Background(), &chatmodel.MessageModel{
		ConversationID: "c1", Seq: 1, ServerMsgID: "other", SenderID: "bob",
	})
	if err == nil {
		t.Fatal("duplicate seq accepted")
	}
	if !s.IsDupSeq(err) {
		t.Fatalf("IsDupSeq missed the violation: %v", err)
	}
	if s.IsDupSeq(errs.New("unrelated")) {
		t.Fatal("IsDupSeq matched an unrelated error")
	}
}

func TestListAscendingFromSeq(t *testing.T) {
	s := NewMemStore()
	seed(t, s, "c1", 3, 1, 5, 2, 4)

	out, err := s.List(context.Background(), "c1", 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 || out[0].Seq != 3 || out[1].Seq != 4 {
		t.Fatalf("page: %+v", out)
	}

	all, err := s.List(context.Background(), "c1", 0, 100)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	for i, m := range all {
		if m.Seq != int64(i+1) {
			t.Fatalf("ordering broken at %d: %+v", i, m)
		}
	}
}

func TestMaxSeq(t *testing.T) {
	s := NewMemStore()
	if got, err := s.MaxSeq(context.Background(), "empty"); err != nil || got != 0 {
		t.Fatalf("empty conversation max=%d err=%v", got, err)
	}
	seed(t, s, "c1", 1, 2, 7)
	if got, _ := s.MaxSeq(context.Background(), "c1"); got != 7 {
		t.Fatalf("max=%d", got)
	}
}

func TestGetByServerID(t *testing.T) {
	s := NewMemStore()
	seed(t, s, "c1", 1)

	m, err := s.GetByServerID(context.Background(), "c1-srv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Seq != 1 {
		t.Fatalf("got %+v", m)
	}
	if _, err := s.GetByServerID(context.Background(), "ghost"); errs.Code(err) != errs.ErrRecordNotFound.ECode() {
		t.Fatalf("want not found, got %v", err)
	}
}
