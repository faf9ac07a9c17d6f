package capture

import (
	"errors"
	"io"

	"github.com/dkeye/p2precorder/internal/app/media"
	"github.com/pion/rtp"
)

var (
	ErrUnsupportedCodec = errors.New("unsupported codec")
	ErrEncoderClosed    = errors.New("encoder closed")
)

// Encoder muxes the RTP of a stream's tracks into a container written to the
// io.WriteCloser it was created with. It closes that writer when done,
// possibly asynchronously.
type Encoder interface {
	WriteRTP(trackID string, pkt *rtp.Packet) error
	Close() error
	MimeType() string
}

type EncoderFactory func(w io.WriteCloser, stream *media.Stream) (Encoder, error)
