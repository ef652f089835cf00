// Package events carries pipeline progress notifications to in-process
// subscribers (the websocket feed). Delivery is best-effort: a slow
// subscriber drops events rather than blocking the pipeline.
package events

import (
	"sync"
	"time"
)

type Type string

const (
	UploadProcessed Type = "upload_processed"
	UploadRejected  Type = "upload_rejected"
	GateComplete    Type = "gate_complete"
	RunFinished     Type = "run_finished"
)

type Event struct {
	Type      Type      `json:"type"`
	Date      string    `json:"date,omitempty"`
	StoreID   string    `json:"store_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
	}
}

func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *Bus) Subscribe() (int, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, 16)
	b.subs[id] = ch
	return id, ch
}

func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}
