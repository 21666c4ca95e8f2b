package command

import "testing"

func TestQueueSubmitAndTryNextFIFO(t *testing.T) {
	q := NewQueue()
	q.Submit(Record{Kind: KindArm})
	q.Submit(Record{Kind: KindDisarm})

	r1, ok := q.TryNext()
	if !ok || r1.Kind != KindArm {
		t.Fatalf("expected KindArm first, got %+v ok=%v", r1, ok)
	}
	r2, ok := q.TryNext()
	if !ok || r2.Kind != KindDisarm {
		t.Fatalf("expected KindDisarm second, got %+v ok=%v", r2, ok)
	}
	if _, ok := q.TryNext(); ok {
		t.Error("expected empty queue after draining both records")
	}
}

func TestQueueSubmitFailsWhenSaturated(t *testing.T) {
	q := NewQueue()
	accepted := 0
	for i := 0; i < queueCapacity+10; i++ {
		if q.Submit(Record{Kind: KindArm}) {
			accepted++
		}
	}
	if accepted != queueCapacity {
		t.Errorf("accepted = %d, want %d (queue should apply backpressure, not grow unbounded)", accepted, queueCapacity)
	}
}
