package media

import (
	"testing"

	"github.com/dkeye/p2precorder/internal/core/coretest"
	"github.com/stretchr/testify/require"
)

func TestAggregatorRebuildsOnEveryAppend(t *testing.T) {
	a := NewAggregator()
	empty := a.Current()
	require.NotNil(t, empty)
	require.Equal(t, 0, empty.Len())

	v := NewTrack(coretest.NewVideoTrack("v1"), nil)
	au := NewTrack(coretest.NewAudioTrack("a1"), nil)

	first := a.Append(v)
	second := a.Append(au)

	require.Equal(t, 1, first.Len())
	require.Equal(t, 2, second.Len())
	require.NotEqual(t, first.ID(), second.ID())
	require.Same(t, second, a.Current())

	// earlier streams are immutable
	require.Equal(t, 1, first.Len())
	require.Equal(t, []*Track{v, au}, second.Tracks())
	require.Equal(t, []*Track{v}, second.VideoTracks())
	require.Equal(t, []*Track{au}, second.AudioTracks())
}

func TestAggregatorKeepsDuplicates(t *testing.T) {
	a := NewAggregator()
	v := NewTrack(coretest.NewVideoTrack("v1"), nil)
	a.Append(v)
	require.Equal(t, 2, a.Append(v).Len())
}

func TestAggregatorRelease(t *testing.T) {
	a := NewAggregator()
	a.Append(NewTrack(coretest.NewVideoTrack("v1"), nil))
	a.Release()

	require.Equal(t, 0, a.Current().Len())
	a.Append(NewTrack(coretest.NewVideoTrack("v2"), nil))
	require.Equal(t, 1, a.Current().Len())
}

func TestNilStreamIsEmpty(t *testing.T) {
	var s *Stream
	require.Equal(t, 0, s.Len())
	require.Empty(t, s.ID())
	require.Nil(t, s.Tracks())
	require.False(t, s.HasVideo())
}

func TestStreamTracksReturnsCopy(t *testing.T) {
	s := Rebuild([]*Track{NewTrack(coretest.NewVideoTrack("v1"), nil)})
	tracks := s.Tracks()
	tracks[0] = nil
	require.NotNil(t, s.Tracks()[0])
}
