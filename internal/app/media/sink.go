package media

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateDelete
)

// PacketWriter consumes RTP packets forwarded by a Track.
type PacketWriter interface {
	WriteRTP(*rtp.Packet) error
}

// Sink is one consumer attached to a Track.
type Sink struct {
	W     PacketWriter
	state atomic.Int32 // Zero by default (SinkStateOk)
}

func NewSink(w PacketWriter) *Sink {
	return &Sink{W: w}
}

func (s *Sink) State() SinkState {
	return SinkState(s.state.Load())
}

func (s *Sink) MarkDelete() {
	s.state.Store(int32(SinkStateDelete))
}

// PacketWriterFunc adapts a function to PacketWriter.
type PacketWriterFunc func(*rtp.Packet) error

func (f PacketWriterFunc) WriteRTP(pkt *rtp.Packet) error { return f(pkt) }
