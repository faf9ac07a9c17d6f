package capture

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/webm"
	"github.com/dkeye/p2precorder/internal/app/media"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
)

const (
	vp8ClockRate  = 90000
	opusClockRate = 48000
	maxLate       = 64
)

type webmEncoder struct {
	mu     sync.Mutex
	w      io.WriteCloser
	closed bool

	videoID      string
	videoBuilder *samplebuilder.SampleBuilder
	videoTS      time.Duration
	video        webm.BlockWriteCloser

	audioID      string
	audioBuilder *samplebuilder.SampleBuilder
	audioTS      time.Duration
	audio        webm.BlockWriteCloser
	channels     uint16
}

// NewWebMEncoder records the first VP8 video track and, when present, the
// first Opus audio track of stream. The WebM header is written once the first
// video keyframe arrives, since it carries the frame size.
func NewWebMEncoder(w io.WriteCloser, stream *media.Stream) (Encoder, error) {
	e := &webmEncoder{w: w}

	videos := stream.VideoTracks()
	if len(videos) == 0 {
		return nil, fmt.Errorf("%w: no video track", ErrUnsupportedCodec)
	}
	v := videos[0]
	if !strings.EqualFold(v.MimeType(), webrtc.MimeTypeVP8) {
		return nil, fmt.Errorf("%w: video %s", ErrUnsupportedCodec, v.MimeType())
	}
	e.videoID = v.ID()
	e.videoBuilder = samplebuilder.New(maxLate, &codecs.VP8Packet{}, vp8ClockRate)

	for _, a := range stream.AudioTracks() {
		if !strings.EqualFold(a.MimeType(), webrtc.MimeTypeOpus) {
			continue
		}
		e.audioID = a.ID()
		e.audioBuilder = samplebuilder.New(maxLate, &codecs.OpusPacket{}, opusClockRate)
		e.channels = a.Remote.Codec().Channels
		if e.channels == 0 {
			e.channels = 2
		}
		break
	}
	return e, nil
}

func (e *webmEncoder) MimeType() string {
	if e.audioID != "" {
		return "video/webm;codecs=vp8,opus"
	}
	return "video/webm;codecs=vp8"
}

func (e *webmEncoder) WriteRTP(trackID string, pkt *rtp.Packet) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEncoderClosed
	}
	switch trackID {
	case e.videoID:
		return e.pushVideo(pkt)
	case e.audioID:
		if e.audioBuilder != nil {
			return e.pushAudio(pkt)
		}
	}
	return nil
}

func (e *webmEncoder) pushVideo(pkt *rtp.Packet) error {
	e.videoBuilder.Push(pkt)
	for {
		sample := e.videoBuilder.Pop()
		if sample == nil {
			return nil
		}
		if len(sample.Data) == 0 {
			continue
		}
		keyframe := sample.Data[0]&0x1 == 0
		if keyframe && e.video == nil && len(sample.Data) >= 10 {
			raw := uint(sample.Data[6]) | uint(sample.Data[7])<<8 | uint(sample.Data[8])<<16 | uint(sample.Data[9])<<24
			width := int(raw & 0x3FFF)
			height := int((raw >> 16) & 0x3FFF)
			if err := e.initWriters(width, height); err != nil {
				return err
			}
		}
		if e.video == nil {
			continue
		}
		e.videoTS += sample.Duration
		if _, err := e.video.Write(keyframe, int64(e.videoTS/time.Millisecond), sample.Data); err != nil {
			return fmt.Errorf("write video block: %w", err)
		}
	}
}

func (e *webmEncoder) pushAudio(pkt *rtp.Packet) error {
	e.audioBuilder.Push(pkt)
	for {
		sample := e.audioBuilder.Pop()
		if sample == nil {
			return nil
		}
		// audio before the first keyframe is dropped
		if e.audio == nil {
			continue
		}
		e.audioTS += sample.Duration
		if _, err := e.audio.Write(true, int64(e.audioTS/time.Millisecond), sample.Data); err != nil {
			return fmt.Errorf("write audio block: %w", err)
		}
	}
}

func (e *webmEncoder) initWriters(width, height int) error {
	tracks := []webm.TrackEntry{{
		Name:            "Video",
		TrackNumber:     1,
		TrackUID:        1001,
		CodecID:         "V_VP8",
		TrackType:       1,
		DefaultDuration: 33333333,
		Video: &webm.Video{
			PixelWidth:  uint64(width),
			PixelHeight: uint64(height),
		},
	}}
	if e.audioBuilder != nil {
		tracks = append(tracks, webm.TrackEntry{
			Name:            "Audio",
			TrackNumber:     2,
			TrackUID:        1002,
			CodecID:         "A_OPUS",
			TrackType:       2,
			DefaultDuration: 20000000,
			Audio: &webm.Audio{
				SamplingFrequency: opusClockRate,
				Channels:          uint64(e.channels),
			},
		})
	}
	ws, err := webm.NewSimpleBlockWriter(e.w, tracks)
	if err != nil {
		return fmt.Errorf("init webm writer: %w", err)
	}
	e.video = ws[0]
	if len(ws) > 1 {
		e.audio = ws[1]
	}
	return nil
}

// Close finishes the container. Without any keyframe nothing was written and
// the underlying writer is closed directly.
func (e *webmEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.video == nil {
		return e.w.Close()
	}
	var firstErr error
	if e.audio != nil {
		if err := e.audio.Close(); err != nil {
			firstErr = err
		}
	}
	if err := e.video.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
