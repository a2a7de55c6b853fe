package events

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

// outbox buffers messages between Notify and the next flush. When full the oldest
// message is dropped.
type outbox struct {
	m        sync.Mutex
	messages []kafka.Message
	limit    int
	dropped  int
}

func newOutbox(limit int) *outbox {
	return &outbox{limit: limit}
}

func (o *outbox) add(msg kafka.Message) {
	o.m.Lock()
	defer o.m.Unlock()
	if len(o.messages) >= o.limit {
		o.messages = o.messages[1:]
		o.dropped++
	}
	o.messages = append(o.messages, msg)
}

func (o *outbox) take(n int) []kafka.Message {
	o.m.Lock()
	defer o.m.Unlock()
	n = min(n, len(o.messages))
	batch := make([]kafka.Message, n)
	copy(batch, o.messages[:n])
	o.messages = o.messages[n:]
	return batch
}

// requeue puts a failed batch back in front, still honouring the limit.
func (o *outbox) requeue(batch []kafka.Message) {
	o.m.Lock()
	defer o.m.Unlock()
	merged := append(batch, o.messages...)
	if over := len(merged) - o.limit; over > 0 {
		merged = merged[over:]
		o.dropped += over
	}
	o.messages = merged
}

func (o *outbox) len() int {
	o.m.Lock()
	defer o.m.Unlock()
	return len(o.messages)
}
