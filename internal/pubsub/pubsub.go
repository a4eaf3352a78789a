// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pubsub provides a small generic in-process broker. Each subscriber
// receives events in publish order on its own buffered channel, which is how a
// single agent's event stream reaches the training bridge sequentially.
package pubsub

import (
	"context"
	"sync"
)

// EventType represents the type of event.
type EventType int

// CreatedEvent marks a newly observed item. It is the only type the event
// pump publishes.
const CreatedEvent EventType = iota

// Event wraps a payload with type information.
type Event[T any] struct {
	Type    EventType
	Payload T
}

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 64

// Broker fans published events out to subscribers.
//
// Publish blocks while a subscriber's buffer is full, so a slow subscriber
// applies backpressure instead of losing events. Events for one subscriber
// are never reordered.
type Broker[T any] struct {
	mu        sync.RWMutex
	subs      map[chan Event[T]]<-chan struct{}
	bufSize   int
	shutdown  bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewBroker creates a broker with DefaultBufferSize channels.
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](DefaultBufferSize)
}

// NewBrokerWithBuffer creates a broker with the given per-subscriber buffer.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	if size < 0 {
		size = 0
	}
	return &Broker[T]{
		subs:    make(map[chan Event[T]]<-chan struct{}),
		bufSize: size,
		done:    make(chan struct{}),
	}
}

// Subscribe registers a subscriber. The returned channel is closed when ctx
// is cancelled or the broker shuts down.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event[T], b.bufSize)
	if b.shutdown {
		close(ch)
		return ch
	}
	b.subs[ch] = ctx.Done()

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}()

	return ch
}

// Publish delivers an event to every current subscriber.
func (b *Broker[T]) Publish(t EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.shutdown {
		return
	}

	event := Event[T]{Type: t, Payload: payload}
	for ch, cancelled := range b.subs {
		select {
		case ch <- event:
		case <-cancelled:
		case <-b.done:
			return
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Shutdown closes every subscriber channel. Later publishes are dropped.
func (b *Broker[T]) Shutdown() {
	// unblock publishers before taking the write lock
	b.closeOnce.Do(func() { close(b.done) })

	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		return
	}
	b.shutdown = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
