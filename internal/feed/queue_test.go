package feed

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_BasicPushPop(t *testing.T) {
	q := NewQueue[int](10)

	for i := 0; i < 5; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}
	if q.Len() != 5 {
		t.Errorf("Len() = %d, want 5", q.Len())
	}

	for i := 0; i < 5; i++ {
		val, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("popped %d, want %d", val, i)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestQueue_GrowsAt70Percent(t *testing.T) {
	q := NewQueue[int](10)

	for i := 0; i < 7; i++ {
		q.Push(i)
	}

	stats := q.Stats()
	if stats.Capacity <= 10 {
		t.Errorf("Capacity = %d, expected growth after 70%% fill", stats.Capacity)
	}
	if stats.Resizes != 1 {
		t.Errorf("Resizes = %d, want 1", stats.Resizes)
	}

	for i := 0; i < 7; i++ {
		val, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("popped %d, want %d", val, i)
		}
	}
}

func TestQueue_MultipleGrowsKeepOrder(t *testing.T) {
	q := NewQueue[int](4)

	for i := 0; i < 100; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}

	stats := q.Stats()
	if stats.Count != 100 {
		t.Errorf("Count = %d, want 100", stats.Count)
	}
	if stats.Resizes < 3 {
		t.Errorf("Resizes = %d, expected at least 3", stats.Resizes)
	}

	for i := 0; i < 100; i++ {
		val, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("popped %d, want %d", val, i)
		}
	}
}

func TestQueue_BlockingPop(t *testing.T) {
	q := NewQueue[int](10)

	received := make(chan int, 1)
	go func() {
		if val, ok := q.Pop(); ok {
			received <- val
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(42)

	select {
	case val := <-received:
		if val != 42 {
			t.Errorf("popped %d, want 42", val)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on Push")
	}
}

func TestQueue_CloseDrainsThenEnds(t *testing.T) {
	q := NewQueue[string](4)
	q.Push("a")
	q.Push("b")
	q.Close()

	if q.Push("c") {
		t.Error("Push after Close should return false")
	}

	if val, ok := q.Pop(); !ok || val != "a" {
		t.Errorf("Pop = (%q, %t), want (a, true)", val, ok)
	}
	if val, ok := q.Pop(); !ok || val != "b" {
		t.Errorf("Pop = (%q, %t), want (b, true)", val, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop on closed empty queue should report closed")
	}
}

func TestQueue_Drain(t *testing.T) {
	q := NewQueue[int](10)
	for i := 0; i < 6; i++ {
		q.Push(i)
	}

	first := q.Drain(4)
	if len(first) != 4 || first[0] != 0 || first[3] != 3 {
		t.Errorf("Drain(4) = %v", first)
	}
	rest := q.Drain(0)
	if len(rest) != 2 || rest[0] != 4 || rest[1] != 5 {
		t.Errorf("Drain(0) = %v", rest)
	}
	if q.Drain(10) != nil {
		t.Error("Drain on empty queue should return nil")
	}
}

func TestQueue_ConcurrentProducersConsumers(t *testing.T) {
	q := NewQueue[int](8)
	const producers = 4
	const perProducer = 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(i)
			}
		}()
	}

	done := make(chan int)
	go func() {
		total := 0
		for {
			if _, ok := q.Pop(); !ok {
				done <- total
				return
			}
			total++
		}
	}()

	wg.Wait()
	q.Close()

	select {
	case total := <-done:
		if total != producers*perProducer {
			t.Errorf("consumed %d items, want %d", total, producers*perProducer)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not finish")
	}
}
