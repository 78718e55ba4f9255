package frame

import (
	"sync"
	"testing"
	"time"
)

func testFrame(id uint64) *Frame {
	f := New(2, 2)
	f.Seq = id
	return f
}

func TestBuffer_EmptyPop(t *testing.T) {
	for _, policy := range []Policy{LatestWins, Ordered} {
		t.Run(policy.String(), func(t *testing.T) {
			b := NewBuffer(policy, 4)
			if f, ok := b.PopLatest(); ok || f != nil {
				t.Errorf("PopLatest on empty buffer = (%v, %v), want (nil, false)", f, ok)
			}
		})
	}
}

func TestBuffer_LatestWinsReturnsNewest(t *testing.T) {
	b := NewBuffer(LatestWins, 0)

	const n = 10
	for i := uint64(1); i <= n; i++ {
		b.Push(testFrame(i))
	}

	f, ok := b.PopLatest()
	if !ok {
		t.Fatal("expected a frame")
	}
	if f.Seq != n {
		t.Errorf("got frame %d, want most recent %d", f.Seq, n)
	}

	// The slot is consumed; older frames are gone for good
	if _, ok := b.PopLatest(); ok {
		t.Error("expected empty buffer after consuming the latest frame")
	}

	stats := b.Stats()
	if stats.Dropped != n-1 {
		t.Errorf("Dropped = %d, want %d", stats.Dropped, n-1)
	}
	if stats.Pushed != n || stats.Popped != 1 {
		t.Errorf("Pushed/Popped = %d/%d, want %d/1", stats.Pushed, stats.Popped, n)
	}
}

func TestBuffer_ClearThenPopIsEmpty(t *testing.T) {
	for _, policy := range []Policy{LatestWins, Ordered} {
		t.Run(policy.String(), func(t *testing.T) {
			b := NewBuffer(policy, 8)
			for i := uint64(1); i <= 5; i++ {
				b.Push(testFrame(i))
			}

			b.Clear()

			if f, ok := b.PopLatest(); ok {
				t.Errorf("PopLatest after Clear returned frame %d", f.Seq)
			}
			if b.Len() != 0 {
				t.Errorf("Len after Clear = %d, want 0", b.Len())
			}
		})
	}
}

func TestBuffer_OrderedDeliversConsecutive(t *testing.T) {
	b := NewBuffer(Ordered, 8)
	for i := uint64(1); i <= 5; i++ {
		b.Push(testFrame(i))
	}

	for want := uint64(1); want <= 5; want++ {
		f, ok := b.PopLatest()
		if !ok {
			t.Fatalf("expected frame %d, buffer empty", want)
		}
		if f.Seq != want {
			t.Errorf("got frame %d, want %d", f.Seq, want)
		}
	}
}

func TestBuffer_OrderedEvictsOldestWhenFull(t *testing.T) {
	b := NewBuffer(Ordered, 3)
	for i := uint64(1); i <= 5; i++ {
		b.Push(testFrame(i))
	}

	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}
	f, _ := b.PopLatest()
	if f.Seq != 3 {
		t.Errorf("oldest surviving frame = %d, want 3", f.Seq)
	}
	if got := b.Stats().Dropped; got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}
}

func TestBuffer_SetPolicyClears(t *testing.T) {
	b := NewBuffer(LatestWins, 4)
	b.Push(testFrame(1))

	b.SetPolicy(Ordered)

	if b.Policy() != Ordered {
		t.Errorf("Policy = %v, want ordered", b.Policy())
	}
	if _, ok := b.PopLatest(); ok {
		t.Error("frames from the previous mode must be discarded")
	}

	b.Push(testFrame(2))
	b.Push(testFrame(3))
	b.SetPolicy(LatestWins)
	if b.Len() != 0 {
		t.Errorf("Len after switching back = %d, want 0", b.Len())
	}
}

func TestBuffer_AssignsSequence(t *testing.T) {
	b := NewBuffer(Ordered, 4)
	b.Push(New(1, 1))
	b.Push(New(1, 1))

	first, _ := b.PopLatest()
	second, _ := b.PopLatest()
	if first.Seq == 0 || second.Seq <= first.Seq {
		t.Errorf("sequence not increasing: %d then %d", first.Seq, second.Seq)
	}
}

func TestBuffer_PushNil(t *testing.T) {
	b := NewBuffer(LatestWins, 0)
	b.Push(nil)
	if b.Len() != 0 || b.Stats().Pushed != 0 {
		t.Error("nil frames must be ignored")
	}
}

// TestBuffer_PushNonBlocking checks the producer is never held up by a
// consumer that is not reading.
func TestBuffer_PushNonBlocking(t *testing.T) {
	for _, policy := range []Policy{LatestWins, Ordered} {
		t.Run(policy.String(), func(t *testing.T) {
			b := NewBuffer(policy, 4)

			start := time.Now()
			for i := 0; i < 10000; i++ {
				b.Push(New(1, 1))
			}
			if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
				t.Errorf("Push blocked: 10000 pushes took %v", elapsed)
			}
		})
	}
}

func TestBuffer_ConcurrentProducerConsumer(t *testing.T) {
	b := NewBuffer(LatestWins, 0)

	const n = 2000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			b.Push(New(1, 1))
		}
	}()

	var last uint64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			f, ok := b.PopLatest()
			if ok {
				if f.Seq <= last {
					t.Errorf("observed frame %d after %d", f.Seq, last)
					return
				}
				last = f.Seq
				if last == n {
					return
				}
			}
		}
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer never observed the final frame")
	}
}

func TestBuffer_PushLeavesProducerFrameUntouched(t *testing.T) {
	b := NewBuffer(LatestWins, 0)
	f := New(2, 2)
	b.Push(f)

	if f.Seq != 0 {
		t.Errorf("producer frame Seq = %d, want 0", f.Seq)
	}
	got, ok := b.PopLatest()
	if !ok || got.Seq == 0 {
		t.Fatalf("popped frame = %+v, want a sequenced frame", got)
	}
	if &got.Pix[0] != &f.Pix[0] {
		t.Error("popped frame should share the producer's pixels")
	}
}
