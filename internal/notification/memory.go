package notification

import (
	"context"
	"sync"
)

// InMemoryPublisher records published messages. Test twin of the kafka
// publisher.
type InMemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
}

func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{}
}

func (p *InMemoryPublisher) Publish(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

// Messages returns a snapshot of everything published so far.
func (p *InMemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
