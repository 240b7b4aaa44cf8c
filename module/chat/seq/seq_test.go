package seq

import (
	"context"
	"sort"
	"sync"
	"testing"
)

func TestMemSequencerStrictlyIncreases(t *testing.T) {
	s := NewMemSequencer()
	var last int64
	for i := 0; i < 100; i++ {
		n, err := s.Next(context.Background(), "c1")
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if n != last+1 {
			t.Fatalf("gap or repeat: got %d after %d", n, last)
		}
		last = n
	}
}

func TestMemSequencerIsolatesConversations(t *testing.T) {
	s := NewMemSequencer()
	if n, _ := s.Next(context.Background(), "c1"); n != 1 {
		t.Fatalf("c1 first seq %d", n)
	}
	if n, _ := s.Next(context.Background(), "c1"); n != 2 {
		t.Fatalf("c1 second seq %d", n)
	}
	if n, _ := s.Next(context.Background(), "c2"); n != 1 {
		t.Fatalf("fresh conversation started at %d", n)
	}
}

type fixedFloor int64

func (f fixedFloor) MaxSeq(context.Context, string) (int64, error) {
	return int64(f), nil
}

func TestMaxFloorPicksHighest(t *testing.T) {
	f := MaxFloor{fixedFloor(3), fixedFloor(9), fixedFloor(5)}
	got, err := f.MaxSeq(context.Background(), "c1")
	if err != nil {
		t.Fatalf("max seq: %v", err)
	}
	if got != 9 {
		t.Fatalf("want 9, got %d", got)
	}
}

func TestMemSequencerConcurrentNoDuplicates(t *testing.T) {
	s := NewMemSequencer()
	const workers = 8
	const perWorker = 200

	var mu sync.Mutex
	seen := make([]int64, 0, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				n, err := s.Next(context.Background(), "c1")
				if err != nil {
					t.Errorf("next: %v", err)
					return
				}
				local = append(local, n)
			}
			mu.Lock()
			seen = append(seen, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
	if len(seen) != workers*perWorker {
		t.Fatalf("lost allocations: %d", len(seen))
	}
	for i, n := range seen {
		if n != int64(i+1) {
			t.Fatalf("want dense 1..%d, index %d holds %d", len(seen), i, n)
		}
	}
}

type recordingCommitter struct {
	mu    sync.Mutex
	convs []string
	seqs  []int64
	fail  bool
}

func (c *recordingCommitter) AdvanceCommit(_ context.Context, convID string, toSeq int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.convs = append(c.convs, convID)
	c.seqs = append(c.seqs, toSeq)
	if c.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func TestIssuedCommitsFloorAndPassesNumberThrough(t *testing.T) {
	c := &recordingCommitter{}
	a := (&RedisAllocator{}).WithCommitter(c)

	n, err := a.issued(context.Background(), "c1", 7, nil)
	if err != nil {
		t.Fatalf("issued: %v", err)
	}
	if n != 7 {
		t.Fatalf("issued rewrote the number: %d", n)
	}
	if len(c.seqs) != 1 || c.seqs[0] != 7 || c.convs[0] != "c1" {
		t.Fatalf("commit not recorded: convs=%v seqs=%v", c.convs, c.seqs)
	}

	// an allocator error passes through and commits nothing
	if _, err := a.issued(context.Background(), "c1", 0, context.Canceled); err != context.Canceled {
		t.Fatalf("allocator error swallowed: %v", err)
	}
	if len(c.seqs) != 1 {
		t.Fatalf("commit recorded for a failed allocation: %v", c.seqs)
	}

	// a failing commit never fails the issued number
	c.fail = true
	n, err = a.issued(context.Background(), "c1", 8, nil)
	if err != nil || n != 8 {
		t.Fatalf("commit failure leaked to caller: n=%d err=%v", n, err)
	}
}
