// Package bus is the in-process switchboard between sensor sources, the
// fusion frontend and downstream consumers.
//
// Inertial samples flow through an IMUStream to a single processing
// goroutine. Camera pairs wait in a CameraQueue until the processing
// goroutine polls for them; replayed pairs ride along with the sample that
// reaches them and enter the queue just before that sample is handled. Outputs fan out through Topics, each
// subscriber receiving its own copy of every value.
package bus

import "errors"

var (
	// ErrStreamClosed is returned when delivering to a closed IMUStream.
	ErrStreamClosed = errors.New("imu stream closed")
	// ErrNoCameraQueue is returned when pairs are delivered to an IMUStream
	// that has no CameraQueue attached.
	ErrNoCameraQueue = errors.New("imu stream has no camera queue")
	// ErrTopicClosed is returned when subscribing to a closed Topic.
	ErrTopicClosed = errors.New("topic closed")
	// ErrSubscriberExists is returned when a subscriber id is reused.
	ErrSubscriberExists = errors.New("subscriber already exists")
	// ErrSubscriberNotFound is returned for unknown subscriber ids.
	ErrSubscriberNotFound = errors.New("subscriber not found")
)

// SubscriberStats counts what a Topic did for one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}
