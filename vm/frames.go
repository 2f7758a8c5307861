package vm

import "sync"

// ---------------------------------------------------------------------------
// Execution stack
// ---------------------------------------------------------------------------

// Frame is one activation on the execution stack. Frames hold references
// into the heap (receiver and temporaries) and a function whose owning
// class may be retired by a reload while the frame is still live.
type Frame struct {
	Function *Function
	Receiver Value
	Temps    []Value
}

// ExecStack is the mutator's execution stack. It is a GC root and a
// forwarding root: receiver and temporary slots are rewritten in place
// when an object they reference is replaced.
type ExecStack struct {
	mu     sync.Mutex
	frames []*Frame
}

// NewExecStack creates an empty stack.
func NewExecStack() *ExecStack {
	return &ExecStack{}
}

// Push adds a frame.
func (s *ExecStack) Push(f *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
}

// Pop removes and returns the top frame, or nil when empty.
func (s *ExecStack) Pop() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return f
}

// Depth returns the number of live frames.
func (s *ExecStack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// ForEachFrame visits frames from top to bottom.
func (s *ExecStack) ForEachFrame(fn func(*Frame)) {
	s.mu.Lock()
	snapshot := make([]*Frame, len(s.frames))
	copy(snapshot, s.frames)
	s.mu.Unlock()

	for i := len(snapshot) - 1; i >= 0; i-- {
		fn(snapshot[i])
	}
}

// ForEachRef implements RootProvider over every receiver and temporary.
func (s *ExecStack) ForEachRef(fn func(*Value)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.frames {
		fn(&f.Receiver)
		for i := range f.Temps {
			fn(&f.Temps[i])
		}
	}
}
