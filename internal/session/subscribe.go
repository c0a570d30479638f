package session

import (
	"github.com/ZerkerEOD/krakenhashes/remote/internal/protocol"
	"github.com/ZerkerEOD/krakenhashes/remote/pkg/debug"
)

// DefaultSubscriberBuffer is used when Subscribe is given a non-positive size
const DefaultSubscriberBuffer = 64

// Subscribe returns a channel receiving every applied event, in order. Events
// are dropped for a subscriber whose channel is full; the logs still hold
// the resulting state. The returned function unsubscribes and closes the
// channel.
func (s *Session) Subscribe(size int) (<-chan protocol.Event, func()) {
	if size <= 0 {
		size = DefaultSubscriberBuffer
	}
	ch := make(chan protocol.Event, size)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (s *Session) publish(ev protocol.Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			debug.Warning("Subscriber %d is full, dropping %s event", id, ev.Kind())
		}
	}
}
