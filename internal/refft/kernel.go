package refft

import "github.com/charmbracelet/log"

// Kernel is a user-supplied spectral transform: given the number of
// milliseconds elapsed since the engine started and the current
// frame's spectrum, it returns a replacement spectrum of the same
// length. Kernels are loaded from hot-swappable plugins (see
// internal/kernel and internal/hotswap) but ReFFT only depends on
// this function shape.
type Kernel func(elapsedMs int64, spectrum []complex128) []complex128

// kernelStack is a lock-free "new good kernel or fall back" stack.
// Pushing a freshly-loaded kernel makes it the active one; if it
// panics in use, it is popped and the previous kernel (or none) takes
// over. Reads and writes happen only from the single goroutine driving
// a Stretcher, so no synchronization is needed beyond the slice
// itself.
type kernelStack struct {
	frames []Kernel
}

func (s *kernelStack) push(k Kernel) {
	s.frames = append(s.frames, k)
}

func (s *kernelStack) top() (Kernel, bool) {
	if len(s.frames) == 0 {
		return nil, false
	}
	return s.frames[len(s.frames)-1], true
}

func (s *kernelStack) pop() {
	if len(s.frames) == 0 {
		return
	}
	s.frames = s.frames[:len(s.frames)-1]
}

// applyTopKernel runs the current top-of-stack kernel against
// spectrum, isolated behind a panic boundary. A panicking kernel is
// popped and the call is retried with whatever is left on the stack;
// an empty stack means the spectrum passes through unchanged.
func (s *kernelStack) applyTopKernel(elapsedMs int64, spectrum []complex128) []complex128 {
	for {
		k, ok := s.top()
		if !ok {
			return spectrum
		}
		result, panicked := invokeKernel(k, elapsedMs, spectrum)
		if !panicked {
			return result
		}
		log.Warn("kernel panicked, falling back to previous kernel")
		s.pop()
	}
}

func invokeKernel(k Kernel, elapsedMs int64, spectrum []complex128) (result []complex128, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("kernel invocation recovered from panic", "recover", r)
			panicked = true
			result = nil
		}
	}()
	return k(elapsedMs, spectrum), false
}
