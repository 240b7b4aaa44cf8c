package delivery

import (
	"context"
	"sort"
	"sync"

	chatmodel "SuperChat/module/chat/model"
	"SuperChat/tools/errs"
)

// MemStore is the in-memory Store used by tests.
type MemStore struct {
	mu   sync.RWMutex
	recs map[string]*chatmodel.DeliveryRecord // msgID|recipient
}

func NewMemStore() *MemStore {
	return &MemStore{recs: make(map[string]*chatmodel.DeliveryRecord)}
}

func key(msgID, recipient string) string { return msgID + "|" + recipient }

func (s *MemStore) Insert(_ context.Context, recs []*chatmodel.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		k := key(r.ServerMsgID, r.RecipientID)
		if _, exists := s.recs[k]; exists {
			continue
		}
		cp := *r
		s.recs[k] = &cp
	}
	return nil
}

func (s *MemStore) Get(_ context.Context, serverMsgID, recipientID string) (*chatmodel.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[key(serverMsgID, recipientID)]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("delivery record",
			"msg", serverMsgID, "recipient", recipientID)
	}
	cp := *rec
	return &cp, nil
}

func (s *MemStore) transition(serverMsgID, recipientID string,
	from []chatmodel.DeliveryStatus, to chatmodel.DeliveryStatus, nowMS int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[key(serverMsgID, recipientID)]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if rec.Status == f {
			rec.Status = to
			rec.UpdateTime = nowMS
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) MarkDelivered(_ context.Context, serverMsgID, recipientID string, nowMS int64) (bool, error) {
	return s.transition(serverMsgID, recipientID,
		[]chatmodel.DeliveryStatus{chatmodel.DeliveryPending},
		chatmodel.DeliveryDelivered, nowMS)
}

func (s *MemStore) Acknowledge(_ context.Context, serverMsgID, recipientID string, nowMS int64) (bool, error) {
	return s.transition(serverMsgID, recipientID,
		[]chatmodel.DeliveryStatus{chatmodel.DeliveryPending, chatmodel.DeliveryDelivered},
		chatmodel.DeliveryAcknowledged, nowMS)
}

func (s *MemStore) Expire(_ context.Context, serverMsgID, recipientID string, nowMS int64) (bool, error) {
	return s.transition(serverMsgID, recipientID,
		[]chatmodel.DeliveryStatus{chatmodel.DeliveryPending, chatmodel.DeliveryDelivered},
		chatmodel.DeliveryExpired, nowMS)
}

func (s *MemStore) MarkAttempt(_ context.Context, serverMsgID, recipientID string, nowMS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[key(serverMsgID, recipientID)]
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("delivery record",
			"msg", serverMsgID, "recipient", recipientID)
	}
	rec.Attempts++
	rec.LastAttempt = nowMS
	rec.UpdateTime = nowMS
	return nil
}

func (s *MemStore) Due(_ context.Context, beforeMS int64, limit int64) ([]*chatmodel.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*chatmodel.DeliveryRecord
	for _, rec := range s.recs {
		if (rec.Status == chatmodel.DeliveryPending || rec.Status == chatmodel.DeliveryDelivered) &&
			rec.LastAttempt <= beforeMS {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAttempt < out[j].LastAttempt })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) PurgeExpired(_ context.Context, beforeMS int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, rec := range s.recs {
		if rec.Status == chatmodel.DeliveryExpired && rec.UpdateTime <= beforeMS {
			delete(s.recs, k)
			n++
		}
	}
	return n, nil
}
