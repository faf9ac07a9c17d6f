package rtc

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dkeye/p2precorder/internal/core"
	"github.com/dkeye/p2precorder/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestConnection(t *testing.T, sid string) (*WebRTCConnection, chan core.Event) {
	t.Helper()
	api, err := NewAPI(nil)
	require.NoError(t, err)
	c, err := NewWebRTCConnection(api, webrtc.Configuration{}, core.SessionID(sid))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	events := make(chan core.Event, 256)
	require.NoError(t, c.Start(context.Background(), func(ev core.Event) {
		select {
		case events <- ev:
		default:
		}
	}))
	return c, events
}

func waitGathered(t *testing.T, events <-chan core.Event) {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == core.EventGatheringComplete {
				return
			}
		case <-timeout:
			t.Fatal("gathering did not complete")
		}
	}
}

func TestOfferAnswerLoopback(t *testing.T) {
	offerer, offerEvents := newTestConnection(t, "offerer")
	answerer, answerEvents := newTestConnection(t, "answerer")

	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "test")
	require.NoError(t, err)
	require.NoError(t, offerer.AddLocalTrack(video))

	_, ok := offerer.LocalDescription()
	require.False(t, ok)

	offer, err := offerer.CreateOffer()
	require.NoError(t, err)
	require.Equal(t, domain.SDPTypeOffer, offer.Type)
	require.Contains(t, offer.SDP, "VP8")
	require.NoError(t, offerer.SetLocalDescription(offer))
	waitGathered(t, offerEvents)

	local, ok := offerer.LocalDescription()
	require.True(t, ok)
	require.Equal(t, domain.SDPTypeOffer, local.Type)

	require.NoError(t, answerer.SetRemoteDescription(local))
	answer, err := answerer.CreateAnswer()
	require.NoError(t, err)
	require.Equal(t, domain.SDPTypeAnswer, answer.Type)
	require.NoError(t, answerer.SetLocalDescription(answer))
	waitGathered(t, answerEvents)

	final, ok := answerer.LocalDescription()
	require.True(t, ok)
	require.NoError(t, offerer.SetRemoteDescription(final))
}

func TestSetRemoteDescriptionRejectsGarbage(t *testing.T) {
	c, _ := newTestConnection(t, "garbage")
	err := c.SetRemoteDescription(domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "not sdp"})
	require.Error(t, err)
	_, ok := c.LocalDescription()
	require.False(t, ok)
}

func TestCloseIsIdempotent(t *testing.T) {
	c, _ := newTestConnection(t, "close")
	require.False(t, c.IsClosed())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.True(t, c.IsClosed())
	require.ErrorIs(t, c.RequestKeyframe(1), domain.ErrSessionClosed)
}

func TestContextCancelClosesConnection(t *testing.T) {
	api, err := NewAPI(nil)
	require.NoError(t, err)
	c, err := NewWebRTCConnection(api, webrtc.Configuration{}, "ctx")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx, func(core.Event) {}))
	cancel()
	require.Eventually(t, c.IsClosed, time.Second, 5*time.Millisecond)
}

func TestConfiguration(t *testing.T) {
	def := Configuration(domain.ConnectionConfig{})
	require.Equal(t, DefaultWebRTCConfig(), def)

	cfg := Configuration(domain.ConnectionConfig{ICEServers: []domain.ICEServer{
		{URLs: []string{"turn:turn.example.org:3478"}, Username: "u", Credential: "p"},
	}})
	require.Len(t, cfg.ICEServers, 1)
	require.Equal(t, "u", cfg.ICEServers[0].Username)
	require.Equal(t, "p", cfg.ICEServers[0].Credential)
}

func TestLoggerFactoryWritesToZerolog(t *testing.T) {
	var buf bytes.Buffer
	lf := NewLoggerFactory(zerolog.New(&buf).Level(zerolog.WarnLevel))
	l := lf.NewLogger("ice")

	l.Info("hidden")
	l.Warnf("candidate %d failed", 3)
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "candidate 3 failed")
	require.Contains(t, buf.String(), `"scope":"ice"`)
}
