package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChunkBufferFlushAndAssemble(t *testing.T) {
	b := newChunkBuffer()
	now := time.Now()

	_, ok := b.Flush(now)
	require.False(t, ok)

	_, _ = b.Write([]byte("ab"))
	_, _ = b.Write([]byte("c"))
	c0, ok := b.Flush(now)
	require.True(t, ok)
	require.Equal(t, 0, c0.Seq)
	require.Equal(t, []byte("abc"), c0.Data)

	_, _ = b.Write([]byte("de"))
	c1, ok := b.Flush(now.Add(time.Second))
	require.True(t, ok)
	require.Equal(t, 1, c1.Seq)

	require.Equal(t, 2, b.Len())
	require.Equal(t, []byte("abcde"), b.Assemble())

	chunks := b.Chunks()
	require.Len(t, chunks, 2)
	require.Equal(t, []byte("de"), chunks[1].Data)
}

func TestChunkBufferRelease(t *testing.T) {
	b := newChunkBuffer()
	_, _ = b.Write([]byte("abc"))
	b.Flush(time.Now())
	_, _ = b.Write([]byte("pending"))

	b.Release()
	require.Equal(t, 0, b.Len())
	require.Empty(t, b.Assemble())
	_, ok := b.Flush(time.Now())
	require.False(t, ok)
}

func TestChunkBufferClose(t *testing.T) {
	b := newChunkBuffer()
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	select {
	case <-b.Closed():
	default:
		t.Fatal("closed channel not closed")
	}
}
