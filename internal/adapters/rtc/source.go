package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dkeye/p2precorder/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const oggPageDuration = 20 * time.Millisecond

// FileSource captures local media from an IVF (VP8) file and an optional
// Ogg (Opus) file.
type FileSource struct {
	VideoFile string
	AudioFile string
	Loop      bool
}

func (s *FileSource) Acquire(ctx context.Context) (core.LocalStream, error) {
	if s.VideoFile == "" {
		return nil, errors.New("no video file configured")
	}
	if err := probeIVF(s.VideoFile); err != nil {
		return nil, err
	}
	if s.AudioFile != "" {
		if err := probeOgg(s.AudioFile); err != nil {
			return nil, err
		}
	}

	streamID := "capture-" + uuid.NewString()
	fs := &fileStream{
		src:    *s,
		logger: log.With().Str("module", "capture").Str("stream_id", streamID).Logger(),
	}
	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}
	fs.video = video
	if s.AudioFile != "" {
		audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
		if err != nil {
			return nil, fmt.Errorf("create audio track: %w", err)
		}
		fs.audio = audio
	}
	fs.logger.Info().Str("video", s.VideoFile).Str("audio", s.AudioFile).Msg("local media acquired")
	return fs, nil
}

func probeIVF(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}
	defer f.Close()
	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		return fmt.Errorf("read ivf header: %w", err)
	}
	if header.FourCC != "VP80" {
		return fmt.Errorf("video %s is %s, want VP80", path, header.FourCC)
	}
	return nil
}

func probeOgg(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()
	if _, _, err := oggreader.NewWith(f); err != nil {
		return fmt.Errorf("read ogg header: %w", err)
	}
	return nil
}

type fileStream struct {
	src    FileSource
	video  *webrtc.TrackLocalStaticSample
	audio  *webrtc.TrackLocalStaticSample
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

func (s *fileStream) Tracks() []webrtc.TrackLocal {
	out := []webrtc.TrackLocal{s.video}
	if s.audio != nil {
		out = append(out, s.audio)
	}
	return out
}

func (s *fileStream) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx, "video", s.src.VideoFile, s.writeVP8)
	}()
	if s.audio != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, "audio", s.src.AudioFile, s.writeOgg)
		}()
	}
}

func (s *fileStream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info().Msg("local media released")
}

// loop plays path through write, restarting at EOF when looping is enabled.
func (s *fileStream) loop(ctx context.Context, kind, path string, write func(context.Context, *os.File) error) {
	for {
		f, err := os.Open(path)
		if err != nil {
			s.logger.Error().Err(err).Str("kind", kind).Msg("open media file")
			return
		}
		err = write(ctx, f)
		f.Close()
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, io.EOF):
			if !s.src.Loop {
				s.logger.Debug().Str("kind", kind).Msg("all samples sent")
				return
			}
		case err != nil:
			s.logger.Error().Err(err).Str("kind", kind).Msg("media playback stopped")
			return
		}
	}
}

func (s *fileStream) writeVP8(ctx context.Context, f *os.File) error {
	ivf, header, err := ivfreader.NewWith(f)
	if err != nil {
		return err
	}
	frameDuration := time.Millisecond * time.Duration((float32(header.TimebaseNumerator)/float32(header.TimebaseDenominator))*1000)
	if frameDuration <= 0 {
		frameDuration = 33 * time.Millisecond
	}
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		frame, _, err := ivf.ParseNextFrame()
		if err != nil {
			return err
		}
		if err := s.video.WriteSample(pionmedia.Sample{Data: frame, Duration: frameDuration}); err != nil {
			return fmt.Errorf("write video sample: %w", err)
		}
	}
}

func (s *fileStream) writeOgg(ctx context.Context, f *os.File) error {
	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		return err
	}
	// The granule difference between pages is the number of samples in the page.
	var lastGranule uint64
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		page, pageHeader, err := ogg.ParseNextPage()
		if err != nil {
			return err
		}
		sampleCount := float64(pageHeader.GranulePosition - lastGranule)
		lastGranule = pageHeader.GranulePosition
		sampleDuration := time.Duration((sampleCount/48000)*1000) * time.Millisecond
		if err := s.audio.WriteSample(pionmedia.Sample{Data: page, Duration: sampleDuration}); err != nil {
			return fmt.Errorf("write audio sample: %w", err)
		}
	}
}
