package overlay

import "sync"

// MessageInbox buffers decrypted inbound messages until a consumer drains them.
// It is unbounded: nothing is evicted and Append never waits for the consumer.
type MessageInbox struct {
	messages []InboundMessage
	lock     sync.Mutex
}

// NewMessageInbox creates an empty inbox.
func NewMessageInbox() *MessageInbox {
	return &MessageInbox{}
}

// Append adds msg after every message appended before it.
func (b *MessageInbox) Append(msg InboundMessage) {
	b.lock.Lock()
	b.messages = append(b.messages, msg)
	b.lock.Unlock()
}

// DrainAll returns every buffered message in arrival order and empties the inbox.
// A concurrent Append lands either in the returned slice or in the next drain.
func (b *MessageInbox) DrainAll() []InboundMessage {
	b.lock.Lock()
	drained := b.messages
	b.messages = nil
	b.lock.Unlock()
	return drained
}

// Len returns the number of buffered messages.
func (b *MessageInbox) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.messages)
}
