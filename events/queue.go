package events

import "sync"

// Queue is an unbounded FIFO of events for a single job. Push never blocks;
// Next blocks until an event arrives or the caller's done channel fires.
// Safe for one producer and one consumer running concurrently; multiple
// consumers each receive disjoint events.
type Queue struct {
	mu     sync.Mutex
	buf    []Event
	notify chan struct{}
}

func newQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends an event to the queue. It never blocks and never drops.
func (q *Queue) Push(ev Event) {
	q.mu.Lock()
	q.buf = append(q.buf, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Next returns the oldest unread event, blocking until one is available.
// The second return is false when done fires first.
func (q *Queue) Next(done <-chan struct{}) (Event, bool) {
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			ev := q.buf[0]
			q.buf = q.buf[1:]
			q.mu.Unlock()
			return ev, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-done:
			return Event{}, false
		}
	}
}

// TryNext returns the oldest unread event without blocking.
func (q *Queue) TryNext() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return Event{}, false
	}
	ev := q.buf[0]
	q.buf = q.buf[1:]
	return ev, true
}

// Len reports the number of unread events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
