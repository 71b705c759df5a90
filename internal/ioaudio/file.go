package ioaudio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/rocoder-audio/rocoder/internal/audio"
)

// FileReader materializes an input stream into a Buffer. Codec-backed
// implementations (WAV, MP3) live outside this module; RawReader below
// covers the raw-float stream contract the CLI's stdin path speaks.
type FileReader interface {
	ReadAll() (*audio.Buffer, error)
}

// FileWriter persists a materialized Buffer.
type FileWriter interface {
	WriteAll(buf *audio.Buffer) error
}

// RawReader reads a headerless stream of little-endian 32-bit floats,
// channel-interleaved, in the format described by spec. A trailing
// partial frame is discarded.
type RawReader struct {
	r    io.Reader
	spec audio.Spec
}

// NewRawReader builds a FileReader over r, assuming spec's channel
// count and sample rate (a raw stream carries neither).
func NewRawReader(r io.Reader, spec audio.Spec) *RawReader {
	return &RawReader{r: r, spec: spec}
}

// ReadAll implements FileReader.
func (r *RawReader) ReadAll() (*audio.Buffer, error) {
	channels := int(r.spec.Channels)
	if channels == 0 {
		return nil, fmt.Errorf("ioaudio: raw stream spec has zero channels")
	}

	buf := audio.NewBuffer(r.spec)
	br := bufio.NewReader(r.r)
	var word [4]byte
	for i := 0; ; i++ {
		_, err := io.ReadFull(br, word[:])
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ioaudio: reading raw stream: %w", err)
		}
		s := math.Float32frombits(binary.LittleEndian.Uint32(word[:]))
		buf.Data[i%channels] = append(buf.Data[i%channels], s)
	}

	// Drop a trailing partial frame so every channel is equally long.
	shortest := len(buf.Data[0])
	for _, ch := range buf.Data[1:] {
		if len(ch) < shortest {
			shortest = len(ch)
		}
	}
	for i := range buf.Data {
		buf.Data[i] = buf.Data[i][:shortest]
	}
	return buf, nil
}

// RawWriter writes a Buffer as a headerless, channel-interleaved
// stream of little-endian 32-bit floats, the layout mirrored by
// RawReader.
type RawWriter struct {
	w io.Writer
}

// NewRawWriter builds a FileWriter over w.
func NewRawWriter(w io.Writer) *RawWriter {
	return &RawWriter{w: w}
}

// WriteAll implements FileWriter.
func (w *RawWriter) WriteAll(buf *audio.Buffer) error {
	bw := bufio.NewWriter(w.w)
	var word [4]byte
	for _, s := range buf.Interleave() {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(s))
		if _, err := bw.Write(word[:]); err != nil {
			return fmt.Errorf("ioaudio: writing raw stream: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("ioaudio: flushing raw stream: %w", err)
	}
	return nil
}
