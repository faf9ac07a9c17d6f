package signaling

import (
	"testing"

	"github.com/dkeye/p2precorder/internal/domain"
	"github.com/stretchr/testify/require"
)

func offer(sdp string) domain.SessionDescription {
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: sdp}
}

func TestGatheringRepublishesEveryCandidate(t *testing.T) {
	var g GatheringDetector

	changed, err := g.Observe(offer("v=0\r\n"))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, 1, g.Snapshot().Revision)

	changed, err = g.Candidate(offer("v=0\r\na=candidate:1\r\n"))
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = g.Candidate(offer("v=0\r\na=candidate:1\r\na=candidate:2\r\n"))
	require.NoError(t, err)
	require.True(t, changed)

	snap := g.Snapshot()
	require.Equal(t, 3, snap.Revision)
	require.Equal(t, 2, snap.Candidates)
	require.False(t, snap.Complete)
	require.Contains(t, snap.Text, "candidate:2")
	require.Equal(t, domain.SDPTypeOffer, snap.Type)
}

func TestGatheringUnchangedTextDoesNotBumpRevision(t *testing.T) {
	var g GatheringDetector
	_, err := g.Observe(offer("v=0\r\n"))
	require.NoError(t, err)

	changed, err := g.Observe(offer("v=0\r\n"))
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, 1, g.Snapshot().Revision)
}

func TestGatheringCompleteFreezesText(t *testing.T) {
	var g GatheringDetector
	_, _ = g.Observe(offer("v=0\r\n"))
	changed, err := g.Complete(offer("v=0\r\na=candidate:1\r\n"))
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, g.IsComplete())

	final := g.Snapshot().Text
	changed, err = g.Candidate(offer("v=0\r\na=candidate:late\r\n"))
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, final, g.Snapshot().Text)
	require.False(t, g.Expire())
}

func TestGatheringExpire(t *testing.T) {
	var g GatheringDetector
	_, _ = g.Observe(offer("v=0\r\n"))

	require.True(t, g.Expire())
	require.False(t, g.Expire())
	snap := g.Snapshot()
	require.True(t, snap.TimedOut)
	require.False(t, snap.Complete)

	// a late sentinel still completes the round
	_, err := g.Complete(offer("v=0\r\n"))
	require.NoError(t, err)
	snap = g.Snapshot()
	require.True(t, snap.Complete)
	require.False(t, snap.TimedOut)
}

func TestGatheringResetKeepsRevision(t *testing.T) {
	var g GatheringDetector
	_, _ = g.Observe(offer("v=0\r\n"))
	_, _ = g.Complete(offer("v=0\r\n"))
	g.Reset()

	snap := g.Snapshot()
	require.False(t, snap.Complete)
	require.Empty(t, snap.Text)
	require.Equal(t, 1, snap.Revision)
	_, ok := g.Best()
	require.False(t, ok)
}

func TestGatheringIgnoresZeroDescription(t *testing.T) {
	var g GatheringDetector
	changed, err := g.Observe(domain.SessionDescription{})
	require.NoError(t, err)
	require.False(t, changed)
	require.Empty(t, g.Snapshot().Text)
}
