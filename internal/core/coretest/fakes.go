// Package coretest provides in-memory doubles of the core media interfaces.
package coretest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dkeye/p2precorder/internal/core"
	"github.com/dkeye/p2precorder/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// RemoteTrack is a RemoteTrack fed by Push and ended by Close.
type RemoteTrack struct {
	TrackID     string
	Stream      string
	TrackKind   webrtc.RTPCodecType
	CodecParams webrtc.RTPCodecParameters
	TrackSSRC   webrtc.SSRC

	packets chan *rtp.Packet
	done    chan struct{}
	once    sync.Once
}

func NewRemoteTrack(id string, kind webrtc.RTPCodecType, mimeType string) *RemoteTrack {
	return &RemoteTrack{
		TrackID:   id,
		Stream:    "remote-stream",
		TrackKind: kind,
		CodecParams: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: mimeType},
		},
		TrackSSRC: webrtc.SSRC(len(id) + 1000),
		packets:   make(chan *rtp.Packet, 64),
		done:      make(chan struct{}),
	}
}

func NewVideoTrack(id string) *RemoteTrack {
	return NewRemoteTrack(id, webrtc.RTPCodecTypeVideo, webrtc.MimeTypeVP8)
}

func NewAudioTrack(id string) *RemoteTrack {
	return NewRemoteTrack(id, webrtc.RTPCodecTypeAudio, webrtc.MimeTypeOpus)
}

func (t *RemoteTrack) ID() string                       { return t.TrackID }
func (t *RemoteTrack) StreamID() string                 { return t.Stream }
func (t *RemoteTrack) Kind() webrtc.RTPCodecType        { return t.TrackKind }
func (t *RemoteTrack) Codec() webrtc.RTPCodecParameters { return t.CodecParams }
func (t *RemoteTrack) SSRC() webrtc.SSRC                { return t.TrackSSRC }

func (t *RemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	select {
	case p := <-t.packets:
		return p, nil, nil
	case <-t.done:
		return nil, nil, io.EOF
	}
}

func (t *RemoteTrack) Push(p *rtp.Packet) {
	select {
	case t.packets <- p:
	case <-t.done:
	}
}

func (t *RemoteTrack) Close() {
	t.once.Do(func() { close(t.done) })
}

// Connection is a scripted MediaConnection. Candidates added with Candidate
// are appended to the local description, like a real agent does.
type Connection struct {
	SID core.SessionID

	CreateOfferErr  error
	CreateAnswerErr error
	SetLocalErr     error
	SetRemoteErr    error
	AddTrackErr     error

	mu         sync.Mutex
	emit       func(core.Event)
	local      *domain.SessionDescription
	candidates []string
	remote     *domain.SessionDescription
	tracks     []webrtc.TrackLocal
	keyframes  []webrtc.SSRC

	closed     atomic.Bool
	closeCalls atomic.Int32
}

func (c *Connection) Start(_ context.Context, emit func(core.Event)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emit = emit
	return nil
}

func (c *Connection) Close() error {
	c.closeCalls.Add(1)
	c.closed.Store(true)
	return nil
}

func (c *Connection) IsClosed() bool { return c.closed.Load() }

func (c *Connection) CloseCalls() int { return int(c.closeCalls.Load()) }

func (c *Connection) CreateOffer() (domain.SessionDescription, error) {
	if c.CreateOfferErr != nil {
		return domain.SessionDescription{}, c.CreateOfferErr
	}
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0\r\no=- offer " + string(c.SID) + "\r\n"}, nil
}

func (c *Connection) CreateAnswer() (domain.SessionDescription, error) {
	if c.CreateAnswerErr != nil {
		return domain.SessionDescription{}, c.CreateAnswerErr
	}
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: "v=0\r\no=- answer " + string(c.SID) + "\r\n"}, nil
}

func (c *Connection) SetLocalDescription(d domain.SessionDescription) error {
	if c.SetLocalErr != nil {
		return c.SetLocalErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = &d
	return nil
}

func (c *Connection) SetRemoteDescription(d domain.SessionDescription) error {
	if c.SetRemoteErr != nil {
		return c.SetRemoteErr
	}
	if !strings.HasPrefix(d.SDP, "v=0") {
		return fmt.Errorf("malformed sdp")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = &d
	return nil
}

func (c *Connection) LocalDescription() (domain.SessionDescription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local == nil {
		return domain.SessionDescription{}, false
	}
	d := *c.local
	for _, cand := range c.candidates {
		d.SDP += "a=" + cand + "\r\n"
	}
	return d, true
}

func (c *Connection) Remote() (domain.SessionDescription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return domain.SessionDescription{}, false
	}
	return *c.remote, true
}

func (c *Connection) AddLocalTrack(t webrtc.TrackLocal) error {
	if c.AddTrackErr != nil {
		return c.AddTrackErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, t)
	return nil
}

func (c *Connection) LocalTracks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracks)
}

func (c *Connection) RequestKeyframe(ssrc webrtc.SSRC) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyframes = append(c.keyframes, ssrc)
	return nil
}

func (c *Connection) Keyframes() []webrtc.SSRC {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.SSRC(nil), c.keyframes...)
}

func (c *Connection) fire(ev core.Event) {
	c.mu.Lock()
	emit := c.emit
	c.mu.Unlock()
	if emit != nil {
		emit(ev)
	}
}

// Candidate gathers one local candidate.
func (c *Connection) Candidate(cand string) {
	c.mu.Lock()
	c.candidates = append(c.candidates, cand)
	c.mu.Unlock()
	c.fire(core.Event{Kind: core.EventCandidateGathered, Candidate: cand})
}

// Complete emits the end-of-candidates sentinel.
func (c *Connection) Complete() {
	c.fire(core.Event{Kind: core.EventGatheringComplete})
}

func (c *Connection) Track(t core.RemoteTrack) {
	c.fire(core.Event{Kind: core.EventTrackReceived, Track: t})
}

func (c *Connection) CandidateError(err error) {
	c.fire(core.Event{Kind: core.EventCandidateError, Err: err})
}

// Factory records every connection it creates.
type Factory struct {
	Err       error
	Configure func(*Connection)

	mu      sync.Mutex
	created []*Connection
}

func (f *Factory) New(_ domain.ConnectionConfig, sid core.SessionID) (core.MediaConnection, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	c := &Connection{SID: sid}
	if f.Configure != nil {
		f.Configure(c)
	}
	f.mu.Lock()
	f.created = append(f.created, c)
	f.mu.Unlock()
	return c, nil
}

func (f *Factory) Created() []*Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Connection(nil), f.created...)
}

// Last is the most recently created connection, nil if none.
func (f *Factory) Last() *Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

var ErrNoDevice = errors.New("no capture device")

// Source hands out LocalStreams with one VP8 track, or Err.
type Source struct {
	Err error

	mu      sync.Mutex
	streams []*LocalStream
}

func (s *Source) Acquire(context.Context) (core.LocalStream, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "local")
	if err != nil {
		return nil, err
	}
	ls := &LocalStream{tracks: []webrtc.TrackLocal{video}}
	s.mu.Lock()
	s.streams = append(s.streams, ls)
	s.mu.Unlock()
	return ls, nil
}

func (s *Source) Streams() []*LocalStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*LocalStream(nil), s.streams...)
}

type LocalStream struct {
	tracks  []webrtc.TrackLocal
	started atomic.Bool
	closed  atomic.Bool
}

func (l *LocalStream) Tracks() []webrtc.TrackLocal { return l.tracks }
func (l *LocalStream) Start(context.Context)       { l.started.Store(true) }
func (l *LocalStream) Close()                      { l.closed.Store(true) }
func (l *LocalStream) Started() bool               { return l.started.Load() }
func (l *LocalStream) Closed() bool                { return l.closed.Load() }
