package bus

import (
	"sync/atomic"

	"github.com/relabs-tech/vio_frontend/internal/camera"
)

// CameraQueue buffers stereo pairs between a producer and the processing
// goroutine. When full, the oldest queued pair is evicted.
type CameraQueue struct {
	ch      chan camera.FramePair
	dropped atomic.Uint64
}

// NewCameraQueue returns a queue holding at most size pairs.
func NewCameraQueue(size int) *CameraQueue {
	if size < 1 {
		size = 1
	}
	return &CameraQueue{ch: make(chan camera.FramePair, size)}
}

// Enqueue adds p, evicting the oldest pair if the queue is full.
// It reports whether a pair was evicted.
func (q *CameraQueue) Enqueue(p camera.FramePair) (evicted bool) {
	for {
		select {
		case q.ch <- p:
			return evicted
		default:
		}
		select {
		case <-q.ch:
			q.dropped.Add(1)
			evicted = true
		default:
		}
	}
}

// TryDequeue returns the oldest queued pair, if any. It never blocks.
func (q *CameraQueue) TryDequeue() (camera.FramePair, bool) {
	select {
	case p := <-q.ch:
		return p, true
	default:
		return camera.FramePair{}, false
	}
}

// Len returns the number of queued pairs.
func (q *CameraQueue) Len() int {
	return len(q.ch)
}

// Dropped returns the number of pairs evicted since creation.
func (q *CameraQueue) Dropped() uint64 {
	return q.dropped.Load()
}
