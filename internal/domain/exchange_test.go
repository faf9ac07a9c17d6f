package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeExchangeKeepsSDPVerbatim(t *testing.T) {
	d := SessionDescription{Type: SDPTypeOffer, SDP: "v=0\r\na=candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host\r\na=fmtp:111 minptime=10;useinbandfec=1\r\n"}
	text, err := EncodeExchange(d)
	require.NoError(t, err)
	require.NotContains(t, text, "\n")
	require.NotContains(t, text, `<`)

	got, err := DecodeExchange(text)
	require.NoError(t, err)
	require.Equal(t, d, got)
}

func TestDecodeExchangeToleratesSurroundingWhitespace(t *testing.T) {
	got, err := DecodeExchange("\n\t {\"type\":\"answer\",\"sdp\":\"v=0\\r\\n\"}  \n")
	require.NoError(t, err)
	require.Equal(t, SDPTypeAnswer, got.Type)
	require.Equal(t, "v=0\r\n", got.SDP)
}

func TestDecodeExchangeErrors(t *testing.T) {
	for name, text := range map[string]string{
		"empty":        "",
		"blank":        " \n ",
		"not json":     "v=0",
		"truncated":    `{"type":"offer","sdp":"v=0`,
		"missing type": `{"sdp":"v=0"}`,
		"missing sdp":  `{"type":"offer"}`,
		"array":        `["offer"]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeExchange(text)
			require.ErrorIs(t, err, ErrSignalingParse)
		})
	}
}

func TestDecodeExchangeAcceptsUnknownType(t *testing.T) {
	got, err := DecodeExchange(`{"type":"pranswer","sdp":"v=0"}`)
	require.NoError(t, err)
	require.Equal(t, SDPType("pranswer"), got.Type)
}
