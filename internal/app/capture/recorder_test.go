package capture

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/p2precorder/internal/app/media"
	"github.com/dkeye/p2precorder/internal/core/coretest"
	"github.com/dkeye/p2precorder/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// rawEncoder writes the payload of every packet of one track verbatim and
// closes its writer from another goroutine, like the WebM muxer.
type rawEncoder struct {
	mu      sync.Mutex
	w       io.WriteCloser
	trackID string
	closed  bool
}

func newRawEncoder(w io.WriteCloser, stream *media.Stream) (Encoder, error) {
	return &rawEncoder{w: w, trackID: stream.VideoTracks()[0].ID()}, nil
}

func (e *rawEncoder) WriteRTP(trackID string, pkt *rtp.Packet) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEncoderClosed
	}
	if trackID != e.trackID {
		return nil
	}
	_, err := e.w.Write(pkt.Payload)
	return err
}

func (e *rawEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	go e.w.Close()
	return nil
}

func (e *rawEncoder) MimeType() string { return "video/x-raw" }

type fixture struct {
	video  *coretest.RemoteTrack
	audio  *coretest.RemoteTrack
	stream *media.Stream

	mu        sync.Mutex
	keyframes []webrtc.SSRC
}

func newFixture(t *testing.T, withVideo bool) *fixture {
	t.Helper()
	f := &fixture{}
	ctx, cancel := context.WithCancel(context.Background())
	logger := zerolog.Nop()

	var tracks []*media.Track
	add := func(remote *coretest.RemoteTrack) {
		tr := media.NewTrack(remote, func(ssrc webrtc.SSRC) error {
			f.mu.Lock()
			f.keyframes = append(f.keyframes, ssrc)
			f.mu.Unlock()
			return nil
		})
		go tr.Run(ctx, &logger)
		tracks = append(tracks, tr)
		t.Cleanup(func() {
			remote.Close()
			<-tr.Done()
		})
	}
	if withVideo {
		f.video = coretest.NewVideoTrack("v1")
		add(f.video)
	}
	f.audio = coretest.NewAudioTrack("a1")
	add(f.audio)
	t.Cleanup(cancel)

	f.stream = media.Rebuild(tracks)
	return f
}

func (f *fixture) push(payloads ...string) {
	for _, p := range payloads {
		f.video.Push(&rtp.Packet{Payload: []byte(p)})
	}
}

// waitBuffered blocks until n bytes of the active recording reached the
// chunk buffer.
func waitBuffered(t *testing.T, r *Recorder, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		buf := r.active.buf
		buf.mu.Lock()
		defer buf.mu.Unlock()
		return buf.size+buf.pending.Len() == n
	}, time.Second, 5*time.Millisecond)
}

// record starts r, pushes payload and stops once it was encoded.
func (f *fixture) record(t *testing.T, r *Recorder, payload string) (*Artifact, error) {
	t.Helper()
	require.NoError(t, r.Start(f.stream))
	f.push(payload)
	waitBuffered(t, r, len(payload))
	return r.Stop()
}

func newTestRecorder(store *ArtifactStore) *Recorder {
	return NewRecorder(Config{Timeslice: 10 * time.Millisecond}, newRawEncoder, store)
}

func TestRecorderStartStopProducesArtifact(t *testing.T) {
	f := newFixture(t, true)
	store := NewArtifactStore("/artifacts/")
	r := newTestRecorder(store)

	require.NoError(t, r.Start(f.stream))
	require.Equal(t, RecorderRecording, r.State())
	f.mu.Lock()
	require.Equal(t, []webrtc.SSRC{f.video.SSRC()}, f.keyframes)
	f.mu.Unlock()

	var want []byte
	for i := 0; i < 20; i++ {
		p := fmt.Sprintf("frame-%02d;", i)
		want = append(want, p...)
		f.push(p)
		time.Sleep(time.Millisecond)
	}
	waitBuffered(t, r, len(want))

	a, err := r.Stop()
	require.NoError(t, err)
	require.Equal(t, RecorderIdle, r.State())
	require.Equal(t, want, a.Data)
	require.Equal(t, "video.webm", a.Filename)
	require.Equal(t, "video/x-raw", a.MimeType)
	require.GreaterOrEqual(t, a.Chunks, 1)
	require.Same(t, a, r.Last())

	got, ok := store.Get(a.ID)
	require.True(t, ok)
	require.Same(t, a, got)
}

func TestRecorderDetachesSinksOnStop(t *testing.T) {
	f := newFixture(t, true)
	r := newTestRecorder(NewArtifactStore("/artifacts/"))

	require.NoError(t, r.Start(f.stream))
	for _, tr := range f.stream.Tracks() {
		require.Equal(t, 1, tr.SinkCount())
	}
	f.push("frame")
	waitBuffered(t, r, len("frame"))
	_, err := r.Stop()
	require.NoError(t, err)
	for _, tr := range f.stream.Tracks() {
		require.Equal(t, 0, tr.SinkCount())
	}
	require.Nil(t, r.active)
}

func TestRecorderRejectsSecondStart(t *testing.T) {
	f := newFixture(t, true)
	r := newTestRecorder(NewArtifactStore("/artifacts/"))

	require.NoError(t, r.Start(f.stream))
	require.ErrorIs(t, r.Start(f.stream), domain.ErrRecordingStartRejected)
	require.Equal(t, RecorderRecording, r.State())

	f.push("frame")
	waitBuffered(t, r, len("frame"))
	_, err := r.Stop()
	require.NoError(t, err)
}

func TestRecorderRejectsStopWhenIdle(t *testing.T) {
	r := newTestRecorder(NewArtifactStore("/artifacts/"))
	a, err := r.Stop()
	require.ErrorIs(t, err, domain.ErrRecordingStopRejected)
	require.Nil(t, a)
	require.Equal(t, RecorderIdle, r.State())
}

func TestRecorderRejectsUnusableStreams(t *testing.T) {
	r := newTestRecorder(NewArtifactStore("/artifacts/"))

	require.ErrorIs(t, r.Start(nil), domain.ErrRecordingStartRejected)
	require.ErrorIs(t, r.Start(media.Rebuild(nil)), domain.ErrRecordingStartRejected)

	audioOnly := newFixture(t, false)
	require.ErrorIs(t, r.Start(audioOnly.stream), domain.ErrRecordingStartRejected)
	require.Equal(t, RecorderIdle, r.State())
}

func TestRecorderRevokesPreviousArtifact(t *testing.T) {
	f := newFixture(t, true)
	store := NewArtifactStore("/artifacts/")
	r := newTestRecorder(store)

	first, err := f.record(t, r, "first")
	require.NoError(t, err)

	second, err := f.record(t, r, "second")
	require.NoError(t, err)

	_, ok := store.Get(first.ID)
	require.False(t, ok)
	_, ok = store.Get(second.ID)
	require.True(t, ok)
	require.Equal(t, 1, store.Len())
	require.NotEqual(t, first.URL, second.URL)
}

func TestRecorderEmptyRecordingKeepsPreviousArtifact(t *testing.T) {
	f := newFixture(t, true)
	store := NewArtifactStore("/artifacts/")
	r := newTestRecorder(store)

	first, err := f.record(t, r, "keyframe")
	require.NoError(t, err)

	// nothing reaches the encoder this time
	require.NoError(t, r.Start(f.stream))
	a, err := r.Stop()
	require.ErrorIs(t, err, domain.ErrRecordingEmpty)
	require.Nil(t, a)
	require.Equal(t, RecorderIdle, r.State())
	for _, tr := range f.stream.Tracks() {
		require.Equal(t, 0, tr.SinkCount())
	}

	require.Same(t, first, r.Last())
	got, ok := store.Get(first.ID)
	require.True(t, ok)
	require.Equal(t, []byte("keyframe"), got.Data)
	require.Equal(t, 1, store.Len())

	// the recorder is usable again
	_, err = f.record(t, r, "again")
	require.NoError(t, err)
}

func TestRecorderAbort(t *testing.T) {
	f := newFixture(t, true)
	store := NewArtifactStore("/artifacts/")
	r := newTestRecorder(store)

	r.Abort()
	require.NoError(t, r.Start(f.stream))
	r.Abort()
	require.Equal(t, RecorderIdle, r.State())
	require.Nil(t, r.Last())
	require.Equal(t, 0, store.Len())
}
