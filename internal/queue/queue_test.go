package queue

import (
	"fmt"
	"sync"
	"testing"
)

// inbound mirrors the command envelope the sim drains each tick.
type inbound struct {
	Seq int
	Raw string
}

func TestQueue_New(t *testing.T) {
	q := New[inbound]()
	if q == nil {
		t.Fatal("expected non-nil queue")
	}
	if !q.Empty() {
		t.Error("expected empty queue")
	}
	if q.Len() != 0 {
		t.Errorf("expected length 0, got %d", q.Len())
	}
}

func TestQueue_PushAndLen(t *testing.T) {
	q := New[inbound]()

	q.Push(inbound{Seq: 1, Raw: "move_forward"})
	if q.Len() != 1 {
		t.Errorf("expected length 1, got %d", q.Len())
	}

	q.Push(inbound{Seq: 2}, inbound{Seq: 3})
	if q.Len() != 3 {
		t.Errorf("expected length 3, got %d", q.Len())
	}
}

func TestQueue_Pop(t *testing.T) {
	q := New[inbound]()

	// Pop from empty queue returns zero value
	zero := q.Pop()
	if zero.Seq != 0 || zero.Raw != "" {
		t.Errorf("expected zero value, got %+v", zero)
	}

	q.Push(inbound{Seq: 1, Raw: "ascend"}, inbound{Seq: 2, Raw: "stop"})
	first := q.Pop()
	if first.Seq != 1 || first.Raw != "ascend" {
		t.Errorf("expected {1, ascend}, got %+v", first)
	}
	if q.Len() != 1 {
		t.Errorf("expected length 1, got %d", q.Len())
	}
}

func TestQueue_Clear(t *testing.T) {
	q := New[inbound]()
	q.Push(inbound{Seq: 1}, inbound{Seq: 2}, inbound{Seq: 3})

	q.Clear()

	if !q.Empty() {
		t.Error("expected empty queue after clear")
	}
}

func TestQueue_DrainAll(t *testing.T) {
	q := New[inbound]()

	if got := q.DrainAll(); len(got) != 0 {
		t.Errorf("expected empty drain, got %d items", len(got))
	}

	q.Push(inbound{Seq: 1}, inbound{Seq: 2}, inbound{Seq: 3})
	result := q.DrainAll()

	if len(result) != 3 {
		t.Fatalf("expected 3 items, got %d", len(result))
	}
	if result[0].Seq != 1 || result[1].Seq != 2 || result[2].Seq != 3 {
		t.Errorf("drain out of order: %+v", result)
	}
	if !q.Empty() {
		t.Error("expected empty queue after DrainAll")
	}
}

// A batch returned after a failed write must come out before anything
// that arrived while the write was in flight.
func TestQueue_PushFrontKeepsArrivalOrder(t *testing.T) {
	q := New[inbound]()
	q.Push(inbound{Seq: 1}, inbound{Seq: 2})

	batch := q.DrainAll()
	q.Push(inbound{Seq: 3}) // arrives during the failed write
	q.PushFront(batch...)

	drained := q.DrainAll()
	if len(drained) != 3 {
		t.Fatalf("expected 3 items, got %d", len(drained))
	}
	for i, want := range []int{1, 2, 3} {
		if drained[i].Seq != want {
			t.Errorf("position %d: expected Seq %d, got %d", i, want, drained[i].Seq)
		}
	}
}

// Producers on separate goroutines must never lose or duplicate items,
// and each producer's own items must come out in the order it pushed
// them.
func TestQueue_ConcurrentProducersKeepOrder(t *testing.T) {
	const producers = 8
	const perProducer = 200

	q := New[inbound]()
	var wg sync.WaitGroup

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(inbound{Seq: i, Raw: fmt.Sprintf("producer-%d", p)})
			}
		}(p)
	}
	wg.Wait()

	var drained []inbound
	for !q.Empty() {
		drained = append(drained, q.DrainAll()...)
	}

	if len(drained) != producers*perProducer {
		t.Fatalf("expected %d items, got %d", producers*perProducer, len(drained))
	}

	lastSeq := make(map[string]int)
	for _, item := range drained {
		if prev, ok := lastSeq[item.Raw]; ok && item.Seq <= prev {
			t.Fatalf("producer %s reordered: %d after %d", item.Raw, item.Seq, prev)
		}
		lastSeq[item.Raw] = item.Seq
	}
}

func TestQueue_DrainWhileProducing(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			q.Push(n)
		}(i)
	}

	total := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		total += len(q.DrainAll())
		select {
		case <-done:
			total += len(q.DrainAll())
			if total != 100 {
				t.Errorf("expected 100 items across drains, got %d", total)
			}
			return
		default:
		}
	}
}
