package internal

import "sync"

// Signal is a synchronous in-process notification point. Receivers run in
// connection order on the sender's goroutine; panics propagate to the sender
// like any other callback failure.
type Signal[T any] struct {
	mu        sync.RWMutex
	receivers []func(T)
}

// Connect registers a receiver and returns a function that disconnects it.
func (s *Signal[T]) Connect(fn func(T)) func() {
	s.mu.Lock()
	s.receivers = append(s.receivers, fn)
	idx := len(s.receivers) - 1
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.receivers) {
			s.receivers[idx] = nil
		}
	}
}

// Send delivers v to all connected receivers.
func (s *Signal[T]) Send(v T) {
	s.mu.RLock()
	receivers := s.receivers
	s.mu.RUnlock()

	for _, fn := range receivers {
		if fn != nil {
			fn(v)
		}
	}
}

// TeardownEvent accompanies the tearing-down signals. Err is the unhandled
// error the context is being torn down with, or nil on the clean path.
type TeardownEvent struct {
	App *App
	Err error
}

// ResponseEvent accompanies RequestFinished.
type ResponseEvent struct {
	Ctx      *RequestContext
	Response *Response
}

// ExceptionEvent accompanies GotRequestException, before the propagation
// policy is applied.
type ExceptionEvent struct {
	Ctx *RequestContext
	Err error
}
