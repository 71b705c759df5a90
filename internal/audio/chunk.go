package audio

// Chunk is the unit of transfer on a Bus: a variable-length sequence
// of samples for one channel. It is ephemeral — copied across the
// channel boundary and then discarded.
type Chunk []float32
