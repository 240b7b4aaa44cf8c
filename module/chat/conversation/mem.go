package conversation

import (
	"context"
	"sync"
	"time"

	chatmodel "SuperChat/module/chat/model"
	"SuperChat/tools/errs"
)

// MemStore is the in-memory Store used by tests.
type MemStore struct {
	mu    sync.RWMutex
	convs map[string]*chatmodel.Conversation
}

func NewMemStore() *MemStore {
	return &MemStore{convs: make(map[string]*chatmodel.Conversation)}
}

func (s *MemStore) Create(_ context.Context, conv *chatmodel.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.convs[conv.ConversationID]; exists {
		return errs.ErrRecordExists.WrapMsg("conversation", "conv", conv.ConversationID)
	}
	now := time.Now()
	conv.CreateTime = now
	conv.UpdateTime = now
	cp := *conv
	cp.Members = append([]string(nil), conv.Members...)
	s.convs[conv.ConversationID] = &cp
	return nil
}

func (s *MemStore) Get(_ context.Context, convID string) (*chatmodel.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[convID]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("conversation", "conv", convID)
	}
	cp := *conv
	cp.Members = append([]string(nil), conv.Members...)
	return &cp, nil
}

func (s *MemStore) AddMember(_ context.Context, convID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[convID]
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("conversation", "conv", convID)
	}
	if !conv.HasMember(userID) {
		conv.Members = append(conv.Members, userID)
		conv.UpdateTime = time.Now()
	}
	return nil
}

func (s *MemStore) RemoveMember(_ context.Context, convID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[convID]
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("conversation", "conv", convID)
	}
	out := conv.Members[:0]
	for _, m := range conv.Members {
		if m != userID {
			out = append(out, m)
		}
	}
	conv.Members = out
	conv.UpdateTime = time.Now()
	return nil
}

func (s *MemStore) Archive(_ context.Context, convID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[convID]
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("conversation", "conv", convID)
	}
	conv.Archived = true
	conv.UpdateTime = time.Now()
	return nil
}
