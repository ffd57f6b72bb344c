package overlay

import "errors"

var (
	// ErrMalformedTopic indicates a topic that does not follow the overlay address layout.
	ErrMalformedTopic = errors.New("malformed topic")

	// ErrForeignNamespace indicates a topic from another namespace sharing the bus.
	ErrForeignNamespace = errors.New("topic outside namespace")

	// ErrInvalidName indicates a node name or namespace unusable as a topic segment.
	ErrInvalidName = errors.New("invalid name")

	// ErrInvalidPattern indicates a subscription pattern with misplaced wildcards.
	ErrInvalidPattern = errors.New("invalid topic pattern")

	// ErrInvalidConfig indicates a node configuration that failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPeerNotFound is reported for a send to a name that never announced.
	ErrPeerNotFound = errors.New("peer not found in directory")

	// ErrAlreadyStarted is returned by Start on a node that was already started.
	ErrAlreadyStarted = errors.New("node already started")

	// ErrNodeClosed is returned by Start on a node that was closed. A Node cannot be reused.
	ErrNodeClosed = errors.New("node closed")

	// ErrNotReady is reported for sends attempted before the node reached StateReady.
	ErrNotReady = errors.New("node not ready")
)
