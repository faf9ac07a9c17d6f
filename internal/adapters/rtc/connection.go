package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/p2precorder/internal/core"
	"github.com/dkeye/p2precorder/internal/domain"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var errICEFailed = errors.New("ice connectivity failed over gathered candidates")

type WebRTCConnection struct {
	pc   *webrtc.PeerConnection
	sid  core.SessionID
	stop func() bool

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Configuration converts the ICE server list; an empty list yields the
// default STUN server.
func Configuration(cfg domain.ConnectionConfig) webrtc.Configuration {
	if len(cfg.ICEServers) == 0 {
		return DefaultWebRTCConfig()
	}
	out := webrtc.Configuration{}
	for _, s := range cfg.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out.ICEServers = append(out.ICEServers, srv)
	}
	return out
}

// NewFactory returns a core.ConnectionFactory creating connections on api.
func NewFactory(api *webrtc.API) core.ConnectionFactory {
	return func(cfg domain.ConnectionConfig, sid core.SessionID) (core.MediaConnection, error) {
		return NewWebRTCConnection(api, Configuration(cfg), sid)
	}
}

func NewWebRTCConnection(api *webrtc.API, cfg webrtc.Configuration, sid core.SessionID) (*WebRTCConnection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &WebRTCConnection{pc: pc, sid: sid}, nil
}

func (c *WebRTCConnection) Start(ctx context.Context, emit func(core.Event)) error {
	if c.closed.Load() {
		return domain.ErrSessionClosed
	}
	c.stop = context.AfterFunc(ctx, func() { _ = c.Close() })

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed && !c.closed.Load() {
			emit(core.Event{Kind: core.EventCandidateError, Err: errICEFailed})
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("peer_connection_state", s.String()).Msg("Peer state")
	})

	c.pc.OnSignalingStateChange(func(s webrtc.SignalingState) {
		if c.closed.Load() {
			return
		}
		emit(core.Event{Kind: core.EventSignalingStateChanged, State: s.String()})
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if c.closed.Load() {
			return
		}
		if cand == nil {
			emit(core.Event{Kind: core.EventGatheringComplete})
			return
		}
		emit(core.Event{Kind: core.EventCandidateGathered, Candidate: cand.ToJSON().Candidate})
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("sid", string(c.sid)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Str("codec", track.Codec().MimeType).
			Msg("OnTrack received")
		if c.closed.Load() {
			return
		}
		emit(core.Event{Kind: core.EventTrackReceived, Track: track})
	})

	return nil
}

func (c *WebRTCConnection) CreateOffer() (domain.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return fromPion(offer), nil
}

func (c *WebRTCConnection) CreateAnswer() (domain.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return fromPion(answer), nil
}

func (c *WebRTCConnection) SetLocalDescription(d domain.SessionDescription) error {
	return c.pc.SetLocalDescription(toPion(d))
}

func (c *WebRTCConnection) SetRemoteDescription(d domain.SessionDescription) error {
	return c.pc.SetRemoteDescription(toPion(d))
}

func (c *WebRTCConnection) LocalDescription() (domain.SessionDescription, bool) {
	d := c.pc.LocalDescription()
	if d == nil {
		return domain.SessionDescription{}, false
	}
	return fromPion(*d), true
}

// AddLocalTrack attaches an outbound track and drains its RTCP.
func (c *WebRTCConnection) AddLocalTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *WebRTCConnection) RequestKeyframe(ssrc webrtc.SSRC) error {
	if c.closed.Load() {
		return domain.ErrSessionClosed
	}
	if err := c.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)}}); err != nil {
		return fmt.Errorf("send pli: %w", err)
	}
	return nil
}

func (c *WebRTCConnection) IsClosed() bool { return c.closed.Load() }

func (c *WebRTCConnection) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.stop != nil {
			c.stop()
		}
		if c.closeErr = c.pc.Close(); c.closeErr != nil {
			log.Error().Err(c.closeErr).Str("module", "webrtc").Str("sid", string(c.sid)).Msg("close error")
		} else {
			log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Msg("closed")
		}
	})
	return c.closeErr
}

func toPion(d domain.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(string(d.Type)), SDP: d.SDP}
}

func fromPion(d webrtc.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{Type: domain.SDPType(d.Type.String()), SDP: d.SDP}
}
