package eventbus

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultBufferSize   = 16
	DefaultCriticalWait = 2 * time.Second
)

// EventBus fans events out to subscribers grouped by topic (a job id, for example).
// A subscriber whose buffer is full misses ordinary events; critical events
// wait up to CriticalWait for room before being dropped.
type EventBus[T any] interface {
	Publish(topic string, event T) int
	Subscribe(topic string) (<-chan T, func())
	SubscribersCount(topic string) int
	Clear()
}

type Options[T any] struct {
	BufferSize int
	Logger     *logrus.Logger
	// OnDrop is called once per event a slow subscriber could not receive.
	OnDrop func(topic string)
	// Critical marks events that must not be dropped just because a buffer
	// is momentarily full.
	Critical     func(event T) bool
	CriticalWait time.Duration
}

type hub[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan T]struct{}
	bufferSize  int
	log         *logrus.Logger
	onDrop      func(topic string)
	critical    func(event T) bool
	wait        time.Duration
}

func New[T any](opts Options[T]) EventBus[T] {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.CriticalWait <= 0 {
		opts.CriticalWait = DefaultCriticalWait
	}
	return &hub[T]{
		subscribers: make(map[string]map[chan T]struct{}),
		bufferSize:  opts.BufferSize,
		log:         opts.Logger,
		onDrop:      opts.OnDrop,
		critical:    opts.Critical,
		wait:        opts.CriticalWait,
	}
}

// Subscribe returns a channel receiving events published to topic from now on,
// and a func that removes the subscription and closes the channel. The func is
// safe to call more than once.
func (h *hub[T]) Subscribe(topic string) (<-chan T, func()) {
	ch := make(chan T, h.bufferSize)

	h.mu.Lock()
	if h.subscribers[topic] == nil {
		h.subscribers[topic] = make(map[chan T]struct{})
	}
	h.subscribers[topic][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.unsubscribe(topic, ch) })
	}
}

func (h *hub[T]) unsubscribe(topic string, ch chan T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[topic]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(h.subscribers, topic)
	}
}

// Publish delivers event to every current subscriber of topic and returns how
// many received it.
func (h *hub[T]) Publish(topic string, event T) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	critical := h.critical != nil && h.critical(event)
	delivered := 0
	for ch := range h.subscribers[topic] {
		select {
		case ch <- event:
			delivered++
			continue
		default:
		}
		if critical && h.sendWithin(ch, event) {
			delivered++
			continue
		}
		if h.log != nil {
			h.log.WithField("topic", topic).Warn("eventbus.Publish: subscriber buffer full, event dropped")
		}
		if h.onDrop != nil {
			h.onDrop(topic)
		}
	}
	return delivered
}

// sendWithin blocks for at most the critical wait. Callers hold the read
// lock, so an unsubscribe racing with it waits as long.
func (h *hub[T]) sendWithin(ch chan T, event T) bool {
	timer := time.NewTimer(h.wait)
	defer timer.Stop()
	select {
	case ch <- event:
		return true
	case <-timer.C:
		return false
	}
}

func (h *hub[T]) SubscribersCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}

// Clear drops every subscription, closing all channels.
func (h *hub[T]) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, subs := range h.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(h.subscribers, topic)
	}
}
