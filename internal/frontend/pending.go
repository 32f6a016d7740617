package frontend

import "github.com/relabs-tech/vio_frontend/internal/camera"

type pendingState int

const (
	pendingEmpty pendingState = iota
	pendingHolding
)

func (s pendingState) String() string {
	switch s {
	case pendingEmpty:
		return "empty"
	case pendingHolding:
		return "holding"
	default:
		return "unknown"
	}
}

// pendingFrame is the one-step delay buffer. It starts empty, holds the
// first dequeued pair, and from then on always holds the most recent pair
// that has not been fused yet.
type pendingFrame struct {
	state pendingState
	frame camera.FramePair
}

// held returns the buffered pair, if any.
func (p *pendingFrame) held() (camera.FramePair, bool) {
	return p.frame, p.state == pendingHolding
}

// hold replaces the buffered pair with f.
func (p *pendingFrame) hold(f camera.FramePair) {
	p.frame = f
	p.state = pendingHolding
}
