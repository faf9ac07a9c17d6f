package core

import (
	"context"

	"github.com/dkeye/p2precorder/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type EventKind int

const (
	// EventCandidateGathered fires once per discovered local candidate.
	EventCandidateGathered EventKind = iota
	// EventGatheringComplete is the "no more candidates" sentinel.
	EventGatheringComplete
	EventCandidateError
	EventTrackReceived
	EventSignalingStateChanged
)

func (k EventKind) String() string {
	switch k {
	case EventCandidateGathered:
		return "candidate_gathered"
	case EventGatheringComplete:
		return "gathering_complete"
	case EventCandidateError:
		return "candidate_error"
	case EventTrackReceived:
		return "track_received"
	case EventSignalingStateChanged:
		return "signaling_state_changed"
	}
	return "unknown"
}

// Event is one occurrence reported by a MediaConnection.
type Event struct {
	Kind      EventKind
	Candidate string
	Track     RemoteTrack
	State     string
	Err       error
}

// RemoteTrack is an inbound media track. *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	Codec() webrtc.RTPCodecParameters
	SSRC() webrtc.SSRC
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

type MediaConnection interface {
	// Start subscribes to the connection occurrences. emit is called from
	// transport goroutines and must not block.
	Start(ctx context.Context, emit func(Event)) error
	// Close releases the connection. Calls after the first are no-ops.
	Close() error
	IsClosed() bool

	CreateOffer() (domain.SessionDescription, error)
	CreateAnswer() (domain.SessionDescription, error)
	SetLocalDescription(domain.SessionDescription) error
	SetRemoteDescription(domain.SessionDescription) error
	// LocalDescription returns the current local SDP including the
	// candidates gathered so far.
	LocalDescription() (domain.SessionDescription, bool)

	// AddLocalTrack attaches an outbound track.
	AddLocalTrack(webrtc.TrackLocal) error
	// RequestKeyframe asks the remote sender for a new keyframe on ssrc.
	RequestKeyframe(ssrc webrtc.SSRC) error
}

type ConnectionFactory func(cfg domain.ConnectionConfig, sid SessionID) (MediaConnection, error)

// LocalStream is a live capture whose tracks can be attached to a connection.
type LocalStream interface {
	Tracks() []webrtc.TrackLocal
	// Start begins pushing samples until ctx is done or Close is called.
	Start(ctx context.Context)
	Close()
}

type MediaSource interface {
	Acquire(ctx context.Context) (LocalStream, error)
}
