package core

// Frame is one encoded operator update.
type Frame []byte

// SignalConnection is an operator-facing push channel.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
