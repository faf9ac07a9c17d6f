package media

import (
	"github.com/google/uuid"
)

// Stream is the composite view over a RemoteTrackSet. It is never mutated;
// every change to the set produces a new Stream.
type Stream struct {
	id     string
	tracks []*Track
}

// Rebuild derives a fresh Stream from the full track set, keeping arrival order.
func Rebuild(set []*Track) *Stream {
	tracks := make([]*Track, len(set))
	copy(tracks, set)
	return &Stream{id: uuid.NewString(), tracks: tracks}
}

func (s *Stream) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

func (s *Stream) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tracks)
}

// Tracks returns the tracks in arrival order.
func (s *Stream) Tracks() []*Track {
	if s == nil {
		return nil
	}
	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *Stream) VideoTracks() []*Track {
	return s.filter((*Track).IsVideo)
}

func (s *Stream) AudioTracks() []*Track {
	return s.filter((*Track).IsAudio)
}

func (s *Stream) HasVideo() bool {
	return len(s.VideoTracks()) > 0
}

func (s *Stream) filter(keep func(*Track) bool) []*Track {
	if s == nil {
		return nil
	}
	var out []*Track
	for _, t := range s.tracks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
