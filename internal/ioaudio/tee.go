package ioaudio

// Tee fans a single raw-frame input out to every output, broadcasting
// each frame to all of them. A single goroutine owns the read side of
// input, so two consumers reading the same device never compete for
// frames the way they would both reading from input directly; each
// gets every frame, copied so a downstream edit (deinterleaving,
// amplitude metering) in one consumer can't corrupt another's view.
//
// Sends to every output block until accepted, so the slowest consumer
// sets the pace for all of them. When input closes, every output is
// closed in turn.
func Tee(input <-chan []float32, outputs ...chan<- []float32) {
	go func() {
		for frame := range input {
			for _, out := range outputs {
				dup := make([]float32, len(frame))
				copy(dup, frame)
				out <- dup
			}
		}
		for _, out := range outputs {
			close(out)
		}
	}()
}
