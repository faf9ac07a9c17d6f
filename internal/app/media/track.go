package media

import (
	"context"
	"maps"
	"sync"

	"github.com/dkeye/p2precorder/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// KeyframeRequester asks the sending peer for a keyframe on ssrc.
type KeyframeRequester func(ssrc webrtc.SSRC) error

// Track is a remote track received from the peer. Run drains its RTP and
// forwards every packet to the attached sinks.
type Track struct {
	Remote core.RemoteTrack

	mu    sync.RWMutex
	sinks map[string]*Sink

	keyframe KeyframeRequester
	done     chan struct{}
	once     sync.Once
}

func NewTrack(remote core.RemoteTrack, keyframe KeyframeRequester) *Track {
	return &Track{
		Remote:   remote,
		sinks:    make(map[string]*Sink),
		keyframe: keyframe,
		done:     make(chan struct{}),
	}
}

func (t *Track) ID() string                { return t.Remote.ID() }
func (t *Track) Kind() webrtc.RTPCodecType { return t.Remote.Kind() }
func (t *Track) IsVideo() bool             { return t.Remote.Kind() == webrtc.RTPCodecTypeVideo }
func (t *Track) IsAudio() bool             { return t.Remote.Kind() == webrtc.RTPCodecTypeAudio }
func (t *Track) MimeType() string          { return t.Remote.Codec().MimeType }

// Done is closed once the read loop has stopped.
func (t *Track) Done() <-chan struct{} { return t.done }

func (t *Track) RequestKeyframe() error {
	if t.keyframe == nil {
		return nil
	}
	return t.keyframe(t.Remote.SSRC())
}

// Run reads RTP packets from the remote track and forwards them to all sinks
// until ctx is done or the track ends.
func (t *Track) Run(ctx context.Context, logger *zerolog.Logger) {
	defer t.once.Do(func() { close(t.done) })
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("track ctx done, marking all sinks for delete")
			t.markAllDelete()
			return
		default:
		}
		pkt, _, err := t.Remote.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("track read RTP stopped")
			t.markAllDelete()
			return
		}
		t.forward(pkt, logger)
	}
}

func (t *Track) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	t.mu.RLock()
	snapshot := maps.Clone(t.sinks)
	t.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for id, s := range snapshot {
		switch s.State() {
		case SinkStateDelete:
			dirty = append(dirty, id)
		case SinkStateOk:
			if err := s.W.WriteRTP(pkt); err != nil {
				logger.Warn().
					Err(err).
					Str("sink", id).
					Msg("sink write error, marking sink as delete")
				s.MarkDelete()
				dirty = append(dirty, id)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		t.cleanupDeleted(dirty)
	}
}

func (t *Track) cleanupDeleted(dirty []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range dirty {
		if s, ok := t.sinks[id]; ok && s.State() == SinkStateDelete {
			delete(t.sinks, id)
		}
	}
}

func (t *Track) markAllDelete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.sinks {
		s.MarkDelete()
	}
}

func (t *Track) AddSink(id string, s *Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sinks[id] = s
}

// RemoveSink detaches the sink registered under id; the packet being
// forwarded concurrently may still reach it.
func (t *Track) RemoveSink(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sinks[id]; ok {
		s.MarkDelete()
		delete(t.sinks, id)
	}
}

func (t *Track) SinkCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sinks)
}
