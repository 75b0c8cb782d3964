package ami

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(8)
	for i := 0; i < 5; i++ {
		q.Push(NewMessage("Event", fmt.Sprint(i)))
	}
	got := q.Drain(0)
	if len(got) != 5 {
		t.Fatalf("Drain() returned %d, want 5", len(got))
	}
	for i, m := range got {
		if m.Event() != fmt.Sprint(i) {
			t.Errorf("got[%d] = %q, want %d", i, m.Event(), i)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after drain, want 0", q.Len())
	}
}

func TestQueueDropsOldest(t *testing.T) {
	q := NewQueue(3)
	for i := 0; i < 5; i++ {
		dropped := q.Push(NewMessage("Event", fmt.Sprint(i)))
		if wantDrop := i >= 3; dropped != wantDrop {
			t.Errorf("Push(%d) dropped = %v, want %v", i, dropped, wantDrop)
		}
	}
	if q.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", q.Dropped())
	}
	got := q.Drain(0)
	want := []string{"2", "3", "4"}
	if len(got) != len(want) {
		t.Fatalf("Drain() returned %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Event() != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i].Event(), want[i])
		}
	}
}

func TestQueueDrainMax(t *testing.T) {
	q := NewQueue(10)
	for i := 0; i < 6; i++ {
		q.Push(NewMessage("Event", fmt.Sprint(i)))
	}
	first := q.Drain(4)
	if len(first) != 4 || first[3].Event() != "3" {
		t.Fatalf("Drain(4) = %v", first)
	}
	rest := q.Drain(4)
	if len(rest) != 2 || rest[0].Event() != "4" {
		t.Fatalf("second Drain(4) = %v", rest)
	}
	if q.Drain(4) != nil {
		t.Error("Drain on empty queue should return nil")
	}
}

func TestQueueWrapAround(t *testing.T) {
	q := NewQueue(3)
	q.Push(NewMessage("Event", "a"))
	q.Push(NewMessage("Event", "b"))
	q.Drain(1)
	q.Push(NewMessage("Event", "c"))
	q.Push(NewMessage("Event", "d"))

	got := q.Drain(0)
	want := []string{"b", "c", "d"}
	for i := range want {
		if got[i].Event() != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i].Event(), want[i])
		}
	}
}

func TestQueueWait(t *testing.T) {
	q := NewQueue(4)
	ctx := context.Background()

	start := time.Now()
	if q.Wait(ctx, 20*time.Millisecond) {
		t.Error("Wait on empty queue reported messages")
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Error("Wait returned before timeout")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(NewMessage("Event", "x"))
	}()
	if !q.Wait(ctx, 2*time.Second) {
		t.Error("Wait did not observe pushed message")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	q.Drain(0)
	if q.Wait(cancelled, time.Second) {
		t.Error("Wait on cancelled context reported messages")
	}
}
