package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/p2precorder/internal/app/media"
	"github.com/dkeye/p2precorder/internal/domain"
	"github.com/dkeye/p2precorder/internal/metrics"
	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeslice = time.Second
	DefaultFilename  = "video.webm"

	encoderCloseWait = 2 * time.Second
)

type RecorderState int

const (
	RecorderIdle RecorderState = iota
	RecorderRecording
	RecorderFinalizing
)

func (s RecorderState) String() string {
	switch s {
	case RecorderIdle:
		return "idle"
	case RecorderRecording:
		return "recording"
	case RecorderFinalizing:
		return "finalizing"
	}
	return "unknown"
}

func (s RecorderState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Config struct {
	Timeslice time.Duration
	Filename  string
}

// Recorder captures a remote stream into one artifact per Start/Stop cycle.
type Recorder struct {
	cfg        Config
	newEncoder EncoderFactory
	store      *ArtifactStore
	now        func() time.Time

	mu     sync.Mutex
	state  RecorderState
	active *recording
	last   *Artifact
}

func NewRecorder(cfg Config, newEncoder EncoderFactory, store *ArtifactStore) *Recorder {
	if cfg.Timeslice <= 0 {
		cfg.Timeslice = DefaultTimeslice
	}
	if cfg.Filename == "" {
		cfg.Filename = DefaultFilename
	}
	if newEncoder == nil {
		newEncoder = NewWebMEncoder
	}
	return &Recorder{
		cfg:        cfg,
		newEncoder: newEncoder,
		store:      store,
		now:        time.Now,
	}
}

func (r *Recorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Last is the most recent artifact, nil before the first Stop.
func (r *Recorder) Last() *Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Start begins recording stream. It is rejected unless the recorder is idle
// and the stream has at least one video track.
func (r *Recorder) Start(stream *media.Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RecorderIdle {
		return r.reject(fmt.Errorf("%w: recorder is %s", domain.ErrRecordingStartRejected, r.state))
	}
	if stream.Len() == 0 {
		return r.reject(fmt.Errorf("%w: no remote tracks", domain.ErrRecordingStartRejected))
	}
	if !stream.HasVideo() {
		return r.reject(fmt.Errorf("%w: stream has no video track", domain.ErrRecordingStartRejected))
	}

	buf := newChunkBuffer()
	enc, err := r.newEncoder(buf, stream)
	if err != nil {
		return r.reject(fmt.Errorf("%w: %v", domain.ErrRecordingStartRejected, err))
	}

	rec := &recording{
		id:        uuid.NewString(),
		stream:    stream,
		buf:       buf,
		enc:       enc,
		startedAt: r.now(),
		stop:      make(chan struct{}),
		tickDone:  make(chan struct{}),
	}
	rec.logger = log.With().Str("module", "capture").Str("recording", rec.id).Logger()

	for _, t := range stream.Tracks() {
		t.AddSink(rec.id, media.NewSink(media.PacketWriterFunc(func(pkt *rtp.Packet) error {
			return enc.WriteRTP(t.ID(), pkt)
		})))
	}
	for _, t := range stream.VideoTracks() {
		if err := t.RequestKeyframe(); err != nil {
			rec.logger.Warn().Err(err).Str("track_id", t.ID()).Msg("keyframe request failed")
		}
	}
	go rec.run(r.cfg.Timeslice)

	r.active = rec
	r.state = RecorderRecording
	metrics.Recordings.WithLabelValues("started").Inc()
	rec.logger.Info().
		Int("tracks", stream.Len()).
		Str("mime", enc.MimeType()).
		Dur("timeslice", r.cfg.Timeslice).
		Msg("recording started")
	return nil
}

// Stop finalizes the active recording into a new artifact. The previous
// artifact is revoked before the new one is published. When nothing playable
// was captured, typically because no keyframe arrived, no artifact is
// produced and the previous one is kept.
func (r *Recorder) Stop() (*Artifact, error) {
	r.mu.Lock()
	if r.state != RecorderRecording {
		state := r.state
		r.mu.Unlock()
		return nil, r.reject(fmt.Errorf("%w: recorder is %s", domain.ErrRecordingStopRejected, state))
	}
	rec := r.active
	r.state = RecorderFinalizing
	r.mu.Unlock()

	data, chunks := rec.finalize(r.now)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = nil
	r.state = RecorderIdle
	if len(data) == 0 {
		metrics.Recordings.WithLabelValues("empty").Inc()
		rec.logger.Warn().
			Dur("duration", r.now().Sub(rec.startedAt)).
			Msg("recording captured no media, previous artifact kept")
		return nil, fmt.Errorf("%w: no keyframe reached the encoder", domain.ErrRecordingEmpty)
	}
	if r.last != nil {
		r.store.Revoke(r.last.ID)
	}
	a := r.store.Put(r.cfg.Filename, rec.enc.MimeType(), data, chunks, r.now())
	r.last = a
	metrics.Recordings.WithLabelValues("finished").Inc()
	rec.logger.Info().
		Str("artifact", a.ID).
		Int("chunks", chunks).
		Int("bytes", len(data)).
		Dur("duration", r.now().Sub(rec.startedAt)).
		Msg("recording finished")
	return a, nil
}

// Abort drops the active recording without producing an artifact.
func (r *Recorder) Abort() {
	r.mu.Lock()
	if r.state != RecorderRecording {
		r.mu.Unlock()
		return
	}
	rec := r.active
	r.state = RecorderFinalizing
	r.mu.Unlock()

	rec.finalize(r.now)

	r.mu.Lock()
	r.active = nil
	r.state = RecorderIdle
	r.mu.Unlock()
	metrics.Recordings.WithLabelValues("aborted").Inc()
	rec.logger.Info().Msg("recording aborted")
}

func (r *Recorder) reject(err error) error {
	metrics.Recordings.WithLabelValues("rejected").Inc()
	log.Warn().Str("module", "capture").Err(err).Msg("recorder request rejected")
	return err
}

type recording struct {
	id        string
	stream    *media.Stream
	buf       *chunkBuffer
	enc       Encoder
	startedAt time.Time
	logger    zerolog.Logger

	stop     chan struct{}
	tickDone chan struct{}
}

func (rec *recording) run(every time.Duration) {
	defer close(rec.tickDone)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-rec.stop:
			return
		case at := <-t.C:
			rec.flush(at)
		}
	}
}

func (rec *recording) flush(at time.Time) {
	c, ok := rec.buf.Flush(at)
	if !ok {
		return
	}
	metrics.RecordingChunks.Inc()
	metrics.RecordingBytes.Add(float64(len(c.Data)))
	rec.logger.Debug().Int("seq", c.Seq).Int("bytes", len(c.Data)).Msg("chunk appended")
}

// finalize detaches the sinks, closes the encoder, flushes the tail and
// returns the assembled output. The chunk buffer is released.
func (rec *recording) finalize(now func() time.Time) ([]byte, int) {
	for _, t := range rec.stream.Tracks() {
		t.RemoveSink(rec.id)
	}
	close(rec.stop)
	<-rec.tickDone

	if err := rec.enc.Close(); err != nil && !errors.Is(err, ErrEncoderClosed) {
		rec.logger.Warn().Err(err).Msg("encoder close error")
	}
	select {
	case <-rec.buf.Closed():
	case <-time.After(encoderCloseWait):
		rec.logger.Warn().Msg("encoder did not finish output in time")
	}
	rec.flush(now())

	chunks := rec.buf.Len()
	data := rec.buf.Assemble()
	rec.buf.Release()
	return data, chunks
}
