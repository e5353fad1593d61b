package capture

import (
	"context"
	"sync"
)

// Slot is a single-frame mailbox between a producer and one consumer.
// Publishing overwrites an unconsumed frame, so a slow consumer always
// receives the newest frame and never a backlog. Frames cycle through the
// slot's free list: at most three are live (being filled, waiting, lent).
type Slot struct {
	mu     sync.Mutex
	ready  chan struct{}
	done   chan struct{}
	frame  *Frame
	lent   *Frame
	free   []*Frame
	closed bool
	drops  uint64
	err    error
}

// NewSlot creates an empty slot.
func NewSlot() *Slot {
	return &Slot{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Acquire returns a recycled frame for the producer to fill, or nil when
// none is free.
func (s *Slot) Acquire() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.free)
	if n == 0 {
		return nil
	}
	f := s.free[n-1]
	s.free = s.free[:n-1]
	return f
}

// Publish makes f the newest frame. It returns false once the slot is closed.
func (s *Slot) Publish(f *Frame) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if s.frame != nil {
		s.drops++
		s.free = append(s.free, s.frame)
	}
	s.frame = f
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
	return true
}

// Take blocks until a frame is available, the slot is closed or ctx is done.
// Taking a frame releases the one returned by the previous call.
func (s *Slot) Take(ctx context.Context) (*Frame, error) {
	for {
		s.mu.Lock()
		if s.lent != nil {
			s.free = append(s.free, s.lent)
			s.lent = nil
		}
		if f := s.frame; f != nil {
			s.frame = nil
			s.lent = f
			s.mu.Unlock()
			return f, nil
		}
		if s.closed {
			err := s.err
			s.mu.Unlock()
			return nil, err
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Fail closes the slot with err; pending and future Take calls return it
// once any waiting frame has been consumed.
func (s *Slot) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.done)
}

// Close closes the slot with ErrClosed.
func (s *Slot) Close() {
	s.Fail(ErrClosed)
}

// Drops returns how many frames were overwritten before being consumed.
func (s *Slot) Drops() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}
