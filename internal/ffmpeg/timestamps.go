package ffmpeg

import (
	"container/heap"
	"sync"
	"time"
)

type stamp struct {
	pts time.Duration
	dur time.Duration
}

type stampHeap []stamp

func (h stampHeap) Len() int           { return len(h) }
func (h stampHeap) Less(i, j int) bool { return h[i].pts < h[j].pts }
func (h stampHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *stampHeap) Push(x any)        { *h = append(*h, x.(stamp)) }
func (h *stampHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// ptsQueue hands decoder output the smallest outstanding presentation
// timestamp, which restores presentation order for streams with B-frames.
// With ordered set it behaves as a FIFO, for encoders that emit in input
// order.
type ptsQueue struct {
	mu      sync.Mutex
	ordered bool
	h       stampHeap
	fifo    []stamp
	last    stamp
	have    bool
}

func (q *ptsQueue) push(pts, dur time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ordered {
		q.fifo = append(q.fifo, stamp{pts, dur})
		return
	}
	heap.Push(&q.h, stamp{pts, dur})
}

// pop returns the next stamp. When ffmpeg produces more output than was
// submitted, timestamps are extrapolated from the last one.
func (q *ptsQueue) pop() stamp {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s stamp
	switch {
	case q.ordered && len(q.fifo) > 0:
		s = q.fifo[0]
		q.fifo = q.fifo[1:]
	case !q.ordered && q.h.Len() > 0:
		s = heap.Pop(&q.h).(stamp)
	case q.have:
		s = stamp{pts: q.last.pts + q.last.dur, dur: q.last.dur}
	}
	q.last, q.have = s, true
	return s
}
