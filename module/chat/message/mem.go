package message

import (
	"context"
	"errors"
	"sort"
	"sync"

	chatmodel "SuperChat/module/chat/model"
	"SuperChat/tools/errs"
)

var errDupSeq = errs.New("unique seq violated")

// MemStore is the in-memory Store used by tests.
type MemStore struct {
	mu    sync.RWMutex
	bySeq map[string]map[int64]*chatmodel.MessageModel // conv -> seq -> msg
	bySID map[string]*chatmodel.MessageModel
}

func NewMemStore() *MemStore {
	return &MemStore{
		bySeq: make(map[string]map[int64]*chatmodel.MessageModel),
		bySID: make(map[string]*chatmodel.MessageModel),
	}
}

func (s *MemStore) Insert(_ context.Context, m *chatmodel.MessageModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byConv := s.bySeq[m.ConversationID]
	if byConv == nil {
		byConv = make(map[int64]*chatmodel.MessageModel)
		s.bySeq[m.ConversationID] = byConv
	}
	if _, exists := byConv[m.Seq]; exists {
		return errDupSeq
	}
	cp := *m
	byConv[m.Seq] = &cp
	s.bySID[m.ServerMsgID] = &cp
	return nil
}

func (s *MemStore) GetByServerID(_ context.Context, serverMsgID string) (*chatmodel.MessageModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.bySID[serverMsgID]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("message", "server_msg_id", serverMsgID)
	}
	cp := *m
	return &cp, nil
}

func (s *MemStore) List(_ context.Context, convID string, fromSeq, limit int64) ([]*chatmodel.MessageModel, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*chatmodel.MessageModel
	for seq, m := range s.bySeq[convID] {
		if seq > fromSeq {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) MaxSeq(_ context.Context, convID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max int64
	for seq := range s.bySeq[convID] {
		if seq > max {
			max = seq
		}
	}
	return max, nil
}

func (s *MemStore) IsDupSeq(err error) bool {
	return errors.Is(err, errDupSeq)
}
