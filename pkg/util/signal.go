package util

import "sync"

// SignalHandler receives the emitting object plus signal-specific params.
type SignalHandler func(sender any, params ...any)

// Signals is a tiny in-process dispatcher connecting model events to
// listeners (push, SMS, projections) without import cycles.
type Signals struct {
	mu       sync.RWMutex
	handlers map[string][]SignalHandler
}

var (
	sigOnce sync.Once
	sig     *Signals
)

// Sig returns the process-wide dispatcher.
func Sig() *Signals {
	sigOnce.Do(func() {
		sig = &Signals{handlers: make(map[string][]SignalHandler)}
	})
	return sig
}

func (s *Signals) Connect(name string, h SignalHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = append(s.handlers[name], h)
}

// Emit invokes handlers synchronously in connect order. Handlers that need to
// do I/O should spawn their own goroutine.
func (s *Signals) Emit(name string, sender any, params ...any) {
	s.mu.RLock()
	hs := make([]SignalHandler, len(s.handlers[name]))
	copy(hs, s.handlers[name])
	s.mu.RUnlock()
	for _, h := range hs {
		h(sender, params...)
	}
}

// Reset drops all handlers. Test helper.
func (s *Signals) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = make(map[string][]SignalHandler)
}
