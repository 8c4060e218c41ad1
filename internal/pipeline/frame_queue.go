package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

// DefaultQueueSize is the per-camera frame buffer capacity.
const DefaultQueueSize = 100

// FrameQueue is a bounded buffer between one capture goroutine and one
// processing goroutine. When full, Push evicts the oldest frame so the
// consumer always sees the most recent ones.
type FrameQueue struct {
	ch      chan *model.Frame
	dropped atomic.Uint64
}

// NewFrameQueue creates a queue holding at most capacity frames.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &FrameQueue{ch: make(chan *model.Frame, capacity)}
}

// Push enqueues a frame, evicting the oldest when full. Never blocks.
func (q *FrameQueue) Push(frame *model.Frame) {
	for {
		select {
		case q.ch <- frame:
			return
		default:
		}
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
	}
}

// Pop dequeues the oldest frame, waiting up to timeout. The second return
// is false when the timeout expired.
func (q *FrameQueue) Pop(timeout time.Duration) (*model.Frame, bool) {
	select {
	case frame := <-q.ch:
		return frame, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case frame := <-q.ch:
		return frame, true
	case <-timer.C:
		return nil, false
	}
}

// Depth returns the number of buffered frames.
func (q *FrameQueue) Depth() int {
	return len(q.ch)
}

// Capacity returns the queue capacity.
func (q *FrameQueue) Capacity() int {
	return cap(q.ch)
}

// Dropped returns the total number of frames evicted since creation.
func (q *FrameQueue) Dropped() uint64 {
	return q.dropped.Load()
}
